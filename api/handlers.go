/*
handlers.go - HTTP API handlers for the inventory ledger

PURPOSE:
  Exposes the ledger engine and reporter via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the ledger package.

ENDPOINTS:
  Products:
    GET    /api/products                       List products (by name)
    POST   /api/products                       Create product
    GET    /api/products/{id}                  Get product
    PUT    /api/products/{id}                  Partial update
    DELETE /api/products/{id}                  Delete product (history kept)
    POST   /api/products/{id}/stock-correction Manual stock correction

  Transactions:
    GET    /api/transactions                   List, newest first
                                               ?type=&productId=&from=&to=
    POST   /api/transactions/acceptance        Receive stock
    POST   /api/transactions/sale              Sell stock
    PUT    /api/transactions/{id}              Edit notes
    DELETE /api/transactions/{id}              Delete and reverse stock

  Reports:
    GET    /api/reports/summary                Totals and profit metrics
    GET    /api/reports/products               Per-product profit
    GET    /api/reports/stock-drift            Stored vs ledger stock

REQUEST FLOW:
  1. Parse and shape-check the request (validate.go)
  2. Call the engine or reporter
  3. Serialize response (dto.go)
  4. Map errors to status codes (errors.go)

SECURITY NOTE:
  No authentication. The service is meant to run on the shop's own machine.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/optomapp/ledger-engine/ledger"
	"github.com/optomapp/ledger-engine/logging"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by stores that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	engine   *ledger.Engine
	reporter *ledger.Reporter
	pinger   Pinger
	resetter Resetter
	log      *logging.Logger
	metrics  *Metrics

	// Concurrent identical summary requests share one computation.
	summaries singleflight.Group
}

// NewHandler wires handlers to store. log and metrics may be nil.
func NewHandler(store ledger.TxStore, log *logging.Logger, metrics *Metrics, opts ...ledger.EngineOption) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	h := &Handler{
		engine:   ledger.NewEngine(store, opts...),
		reporter: ledger.NewReporter(store),
		log:      log,
		metrics:  metrics,
	}
	if p, ok := store.(Pinger); ok {
		h.pinger = p
	}
	if rs, ok := store.(Resetter); ok {
		h.resetter = rs
	}
	return h
}

// Health reports liveness, including a store ping when available.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.log.Error(r.Context(), "health check failed", err)
			writeJSON(w, http.StatusServiceUnavailable, HealthDTO{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok"})
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.reporter.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTOs(products))
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.reporter.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.engine.CreateProduct(r.Context(), ledger.NewProduct{
		Name:            req.Name,
		AcceptancePrice: req.AcceptancePrice,
		SalePrice:       req.SalePrice,
		Price:           req.Price,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.log.Info(h.log.WithField(r.Context(), "product_id", p.ID), "product created")
	writeJSON(w, http.StatusCreated, toProductDTO(p))
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req UpdateProductRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	upd := ledger.ProductUpdate{
		Name:            req.Name,
		AcceptancePrice: req.AcceptancePrice,
		SalePrice:       req.SalePrice,
		Price:           req.Price,
	}
	if req.Stock != nil {
		stock, err := ledger.ParseStock(*req.Stock)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		upd.Stock = &stock
	}

	id := chi.URLParam(r, "id")
	p, err := h.engine.UpdateProduct(r.Context(), id, upd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if upd.Stock != nil {
		h.logCorrection(r.Context(), id, *upd.Stock)
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

// CorrectStock overwrites a product's stock after a stocktake.
func (h *Handler) CorrectStock(w http.ResponseWriter, r *http.Request) {
	var req StockCorrectionRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	stock, err := ledger.ParseStock(*req.Stock)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	p, err := h.engine.CorrectStock(r.Context(), id, stock)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logCorrection(r.Context(), id, stock)
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

func (h *Handler) logCorrection(ctx context.Context, id string, stock int64) {
	ctx = h.log.WithFields(ctx, map[string]any{"product_id": id, "stock": stock})
	h.log.Warn(ctx, "manual stock correction")
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	changes, err := h.engine.DeleteProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Status: "deleted", Changes: changes})
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTransactionFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	txs, err := h.reporter.ListTransactions(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.reporter.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

func (h *Handler) RecordAcceptance(w http.ResponseWriter, r *http.Request) {
	h.recordMovement(w, r, h.engine.RecordAcceptance)
}

func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	h.recordMovement(w, r, h.engine.RecordSale)
}

func (h *Handler) recordMovement(w http.ResponseWriter, r *http.Request,
	record func(context.Context, ledger.Movement) (ledger.Transaction, error)) {
	var req MovementRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	qty, err := ledger.ParseQuantity(*req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	tx, err := record(r.Context(), ledger.Movement{
		ProductID: req.ProductID,
		Quantity:  qty,
		Price:     req.Price,
		Notes:     req.Notes,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientStock) {
			h.metrics.recordRejectedSale()
		}
		h.writeError(w, r, err)
		return
	}

	h.metrics.recordMovement(tx)
	ctx := h.log.WithFields(r.Context(), map[string]any{
		"transaction_id": tx.ID,
		"product_id":     tx.ProductID,
		"type":           string(tx.Type),
		"quantity":       tx.Quantity,
	})
	h.log.Info(ctx, "transaction recorded")
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

func (h *Handler) UpdateTransactionNotes(w http.ResponseWriter, r *http.Request) {
	var req UpdateNotesRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	tx, err := h.engine.UpdateTransactionNotes(r.Context(), chi.URLParam(r, "id"), *req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	changes, err := h.engine.DeleteTransaction(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.log.Info(h.log.WithField(r.Context(), "transaction_id", id), "transaction deleted")
	writeJSON(w, http.StatusOK, DeleteResponse{Status: "deleted", Changes: changes})
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTransactionFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	key := filterKey(filter)
	ch := h.summaries.DoChan(key, func() (any, error) {
		// Detached: one caller hanging up must not fail the others.
		return h.reporter.Summary(context.WithoutCancel(r.Context()), filter)
	})

	select {
	case <-r.Context().Done():
		h.writeError(w, r, r.Context().Err())
	case res := <-ch:
		if res.Err != nil {
			h.writeError(w, r, res.Err)
			return
		}
		if res.Shared {
			h.metrics.recordSharedSummary()
		}
		writeJSON(w, http.StatusOK, toSummaryDTO(res.Val.(ledger.Summary)))
	}
}

func (h *Handler) ProfitByProduct(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTransactionFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rows, err := h.reporter.ProfitByProduct(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductProfitDTOs(rows))
}

func (h *Handler) StockDrift(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reporter.StockDrift(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockDriftDTOs(rows))
}

// =============================================================================
// QUERY PARSING
// =============================================================================

// parseTransactionFilter reads type, productId, from and to. Dates accept
// RFC 3339 or YYYY-MM-DD; a bare "to" date covers that whole day.
func parseTransactionFilter(r *http.Request) (ledger.TransactionFilter, error) {
	q := r.URL.Query()
	filter := ledger.TransactionFilter{
		Type:      ledger.TransactionType(strings.TrimSpace(q.Get("type"))),
		ProductID: strings.TrimSpace(q.Get("productId")),
	}

	var err error
	if filter.From, err = parseQueryTime("from", q.Get("from"), false); err != nil {
		return filter, err
	}
	if filter.To, err = parseQueryTime("to", q.Get("to"), true); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseQueryTime(name, value string, endOfDay bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, badRequest("invalid query parameter", map[string]string{
			name: "must be RFC 3339 or YYYY-MM-DD",
		})
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func filterKey(f ledger.TransactionFilter) string {
	format := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(time.RFC3339Nano)
	}
	return strings.Join([]string{string(f.Type), f.ProductID, format(f.From), format(f.To)}, "|")
}
