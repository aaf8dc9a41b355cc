/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RealIP:     Client address behind a proxy, for rate limiting
  2. RequestID:  Unique ID per request, copied into the log context
  3. Access log: One zerolog line per request
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Secure:     Security headers (unrolled/secure)
  6. CORS:       Cross-origin requests for the frontend
  7. Metrics:    Prometheus request metrics

  Mutating routes are additionally rate limited per client IP (httprate).

ROUTE GROUPS:
  /health               Liveness
  /metrics              Prometheus exposition
  /api/products/*       Product catalogue
  /api/transactions/*   Acceptances and sales
  /api/reports/*        Read-only reports
  /api/dev/scenarios/*  Demo data loaders (DevMode only)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	CORSOrigins []string

	// RateLimit is mutating requests per minute per client IP; 0 disables it.
	RateLimit int

	// DevMode relaxes security headers for local development.
	DevMode bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(h.secureHeaders(opts.DevMode))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(h.metrics.Middleware)

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	limitMutations := passthrough
	if opts.RateLimit > 0 {
		limitMutations = httprate.Limit(opts.RateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(writeRateLimited),
		)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/{id}", h.GetProduct)

			r.Group(func(r chi.Router) {
				r.Use(limitMutations)
				r.Post("/", h.CreateProduct)
				r.Put("/{id}", h.UpdateProduct)
				r.Delete("/{id}", h.DeleteProduct)
				r.Post("/{id}/stock-correction", h.CorrectStock)
			})
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Get("/{id}", h.GetTransaction)

			r.Group(func(r chi.Router) {
				r.Use(limitMutations)
				r.Post("/acceptance", h.RecordAcceptance)
				r.Post("/sale", h.RecordSale)
				r.Put("/{id}", h.UpdateTransactionNotes)
				r.Delete("/{id}", h.DeleteTransaction)
			})
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/summary", h.Summary)
			r.Get("/products", h.ProfitByProduct)
			r.Get("/stock-drift", h.StockDrift)
		})

		if opts.DevMode {
			r.Route("/dev/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Post("/{id}", h.ApplyScenario)
			})
		}
	})

	return r
}

func passthrough(next http.Handler) http.Handler { return next }

// accessLog carries the request id into the log context and writes one line
// per request.
func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = h.log.WithRequestID(ctx, id)
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		r = r.WithContext(ctx)

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.log.Access(ctx, r.Method, r.URL.Path, status, ww.BytesWritten(), time.Since(start))
	})
}

func (h *Handler) secureHeaders(dev bool) func(http.Handler) http.Handler {
	sm := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		IsDevelopment:         dev,
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sm.Process(w, r); err != nil {
				h.log.Warn(r.Context(), "secure headers blocked request")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
