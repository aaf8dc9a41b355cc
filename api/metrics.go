package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/optomapp/ledger-engine/ledger"
)

// Metrics holds the HTTP and ledger collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	inFlight        prometheus.Gauge

	movements     *prometheus.CounterVec
	movedUnits    *prometheus.CounterVec
	rejectedSales prometheus.Counter
	summaryShared prometheus.Counter
	driftProducts prometheus.Gauge
}

// NewMetrics registers the collectors on a fresh registry, so routers built
// in tests never collide on the default one.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		gatherer: reg,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "optom",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optom",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "optom",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served.",
		}),
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optom",
			Subsystem: "ledger",
			Name:      "transactions_recorded_total",
			Help:      "Acceptances and sales recorded.",
		}, []string{"type"}),
		movedUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optom",
			Subsystem: "ledger",
			Name:      "units_moved_total",
			Help:      "Units received or sold.",
		}, []string{"type"}),
		rejectedSales: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optom",
			Subsystem: "ledger",
			Name:      "sales_rejected_insufficient_stock_total",
			Help:      "Sales refused because stock was short.",
		}),
		summaryShared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optom",
			Subsystem: "reports",
			Name:      "summary_shared_total",
			Help:      "Summary requests answered from a concurrent in-flight computation.",
		}),
		driftProducts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "optom",
			Subsystem: "ledger",
			Name:      "stock_drift_products",
			Help:      "Products whose stored stock disagreed with the ledger at the last check.",
		}),
	}
	reg.MustRegister(m.requestDuration, m.requestTotal, m.inFlight,
		m.movements, m.movedUnits, m.rejectedSales, m.summaryShared, m.driftProducts)
	return m
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request count, latency and in-flight gauge, labelled by
// the chi route pattern to keep label cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		status := strconv.Itoa(code)
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

func (m *Metrics) recordMovement(tx ledger.Transaction) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(string(tx.Type)).Inc()
	m.movedUnits.WithLabelValues(string(tx.Type)).Add(float64(tx.Quantity))
}

func (m *Metrics) recordRejectedSale() {
	if m == nil {
		return
	}
	m.rejectedSales.Inc()
}

func (m *Metrics) recordSharedSummary() {
	if m == nil {
		return
	}
	m.summaryShared.Inc()
}

func (m *Metrics) recordDrift(products int) {
	if m == nil {
		return
	}
	m.driftProducts.Set(float64(products))
}
