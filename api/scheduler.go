/*
scheduler.go - Periodic stock drift check

PURPOSE:
  Stock corrections and direct edits change stored stock without a ledger
  row. The monitor periodically compares stored stock against the stock the
  ledger implies and reports products that disagree.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Checks once immediately on start
  - Logs one warning per drifted product and exports a gauge
  - Never corrects stock itself; a human decides which side is right

CONFIGURATION:
  - Interval: How often to check (OPTOM_DRIFT_CHECK_INTERVAL, default 1h)
  - Enabled:  Interval > 0

USAGE:
  monitor := NewDriftMonitor(reporter, log, metrics, time.Hour)
  monitor.Start()
  // ... later
  monitor.Stop()

SEE ALSO:
  - handlers.go: StockDrift endpoint (on-demand check)
  - ledger/report.go: ComputeStockDrift
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/optomapp/ledger-engine/ledger"
	"github.com/optomapp/ledger-engine/logging"
)

// DriftSource computes stock drift. *ledger.Reporter satisfies it.
type DriftSource interface {
	StockDrift(ctx context.Context) ([]ledger.StockDrift, error)
}

// DriftMonitor periodically checks the ledger for stock drift.
type DriftMonitor struct {
	source   DriftSource
	log      *logging.Logger
	metrics  *Metrics
	Interval time.Duration

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun time.Time
	drifted int
}

// NewDriftMonitor creates a monitor. A non-positive interval disables it.
func NewDriftMonitor(source DriftSource, log *logging.Logger, metrics *Metrics, interval time.Duration) *DriftMonitor {
	if log == nil {
		log = logging.Nop()
	}
	return &DriftMonitor{
		source:   source,
		log:      log,
		metrics:  metrics,
		Interval: interval,
	}
}

// DriftMonitor builds a monitor over this handler's reporter.
func (h *Handler) DriftMonitor(interval time.Duration) *DriftMonitor {
	return NewDriftMonitor(h.reporter, h.log, h.metrics, interval)
}

// Start begins periodic checks. It is a no-op when disabled or running.
func (dm *DriftMonitor) Start() {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	ctx := dm.log.WithField(context.Background(), "component", "drift-monitor")
	if dm.Interval <= 0 {
		dm.log.Info(ctx, "disabled, not starting")
		return
	}
	if dm.ticker != nil {
		return
	}

	dm.ticker = time.NewTicker(dm.Interval)
	dm.stop = make(chan struct{})
	dm.wg.Add(1)
	go dm.run(ctx)

	dm.log.Info(dm.log.WithField(ctx, "interval", dm.Interval.String()), "started")
}

// Stop halts the monitor and waits for an in-flight check.
func (dm *DriftMonitor) Stop() {
	dm.mu.Lock()
	if dm.ticker == nil {
		dm.mu.Unlock()
		return
	}
	dm.ticker.Stop()
	close(dm.stop)
	dm.ticker = nil
	dm.mu.Unlock()

	dm.wg.Wait()
}

func (dm *DriftMonitor) run(ctx context.Context) {
	defer dm.wg.Done()

	// Run immediately on start
	dm.CheckNow(ctx)

	dm.mu.Lock()
	ticker, stop := dm.ticker, dm.stop
	dm.mu.Unlock()
	if ticker == nil {
		return
	}

	for {
		select {
		case <-ticker.C:
			dm.CheckNow(ctx)
		case <-stop:
			return
		}
	}
}

// CheckNow runs one drift check and returns the drifted products.
func (dm *DriftMonitor) CheckNow(ctx context.Context) []ledger.StockDrift {
	rows, err := dm.source.StockDrift(ctx)
	if err != nil {
		dm.log.Error(ctx, "stock drift check failed", err)
		return nil
	}

	var drifted []ledger.StockDrift
	for _, row := range rows {
		if row.Drift == 0 || row.Orphaned {
			continue
		}
		drifted = append(drifted, row)
		dm.log.Warn(dm.log.WithFields(ctx, map[string]any{
			"product_id":   row.ProductID,
			"product_name": row.ProductName,
			"ledger_stock": row.LedgerStock,
			"stored_stock": row.StoredStock,
			"drift":        row.Drift,
		}), "stock drift detected")
	}

	dm.mu.Lock()
	dm.lastRun = time.Now()
	dm.drifted = len(drifted)
	dm.mu.Unlock()

	dm.metrics.recordDrift(len(drifted))
	return drifted
}

// LastRun reports when the last check finished and how many products drifted.
func (dm *DriftMonitor) LastRun() (time.Time, int) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.lastRun, dm.drifted
}
