/*
scenarios.go - Demo catalogue loaders for development and demonstrations

PURPOSE:

	Populates an empty ledger with a realistic optics-shop catalogue. Stock
	always enters through acceptances, so a seeded ledger reconciles with
	zero drift.

AVAILABLE SCENARIOS:

	optics-shop:  Three products received at their acceptance price
	trading-day:  optics-shop plus a morning of sales and a restock

HOW SCENARIOS WORK:
 1. Refuse when products already exist (unless the caller reset first)
 2. Create products through the engine
 3. Record an opening acceptance per product
 4. Optionally record sales and restocks

USAGE:

	optom seed --scenario trading-day
	POST /api/dev/scenarios/{id}        (dev mode only, resets first)

SEE ALSO:
  - cmd/server/cmd_db.go: CLI entry point (optom seed)
  - server.go: dev route registration
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/optomapp/ledger-engine/ledger"
)

// ErrNotEmpty is returned when seeding a ledger that already has products.
var ErrNotEmpty = errors.New("ledger already has products")

// Resetter is implemented by stores that can wipe all rows.
type Resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type demoProduct struct {
	name            string
	acceptancePrice string
	salePrice       string
	openingStock    int64
}

type demoMovement struct {
	product  int // index into the scenario's products
	txType   ledger.TransactionType
	quantity int64
	price    string // empty -> product default
	notes    string
}

type scenario struct {
	ScenarioDTO
	products  []demoProduct
	movements []demoMovement
}

var opticsCatalogue = []demoProduct{
	{name: "Rim 52", acceptancePrice: "42000", salePrice: "50000", openingStock: 10},
	{name: "Lenses - Single Vision", acceptancePrice: "95000", salePrice: "120000", openingStock: 5},
	{name: "Cleaning Solution", acceptancePrice: "14000", salePrice: "20000", openingStock: 15},
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "optics-shop",
			Name:        "Optics Shop",
			Description: "Frames, lenses and cleaning solution with opening stock",
		},
		products: opticsCatalogue,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "trading-day",
			Name:        "Trading Day",
			Description: "Optics shop after a morning of sales and a lens restock at a higher cost",
		},
		products: opticsCatalogue,
		movements: []demoMovement{
			{product: 0, txType: ledger.TxSale, quantity: 2, notes: "walk-in"},
			{product: 1, txType: ledger.TxSale, quantity: 1, price: "115000", notes: "loyalty discount"},
			{product: 2, txType: ledger.TxSale, quantity: 4},
			{product: 1, txType: ledger.TxAcceptance, quantity: 3, price: "99000", notes: "supplier price rise"},
			{product: 1, txType: ledger.TxSale, quantity: 2},
		},
	},
}

// Scenarios lists the available demo scenarios.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	return out
}

// =============================================================================
// LOADING
// =============================================================================

// LoadScenario seeds the ledger with scenario id. It fails with ErrNotEmpty
// if any product exists.
func (h *Handler) LoadScenario(ctx context.Context, id string) error {
	sc, ok := findScenario(id)
	if !ok {
		return &ledger.ValidationError{Field: "scenario", Message: fmt.Sprintf("unknown scenario %q", id)}
	}

	existing, err := h.reporter.ListProducts(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return ErrNotEmpty
	}

	ids := make([]string, len(sc.products))
	for i, dp := range sc.products {
		p, err := h.engine.CreateProduct(ctx, ledger.NewProduct{
			Name:            dp.name,
			AcceptancePrice: demoPrice(dp.acceptancePrice),
			SalePrice:       demoPrice(dp.salePrice),
		})
		if err != nil {
			return fmt.Errorf("create %s: %w", dp.name, err)
		}
		ids[i] = p.ID

		if dp.openingStock > 0 {
			if _, err := h.engine.RecordAcceptance(ctx, ledger.Movement{
				ProductID: p.ID,
				Quantity:  dp.openingStock,
				Notes:     "opening stock",
			}); err != nil {
				return fmt.Errorf("opening stock for %s: %w", dp.name, err)
			}
		}
	}

	for _, m := range sc.movements {
		var price *decimal.Decimal
		if m.price != "" {
			price = demoPrice(m.price)
		}
		record := h.engine.RecordSale
		if m.txType == ledger.TxAcceptance {
			record = h.engine.RecordAcceptance
		}
		if _, err := record(ctx, ledger.Movement{
			ProductID: ids[m.product],
			Quantity:  m.quantity,
			Price:     price,
			Notes:     m.notes,
		}); err != nil {
			return fmt.Errorf("%s of %s: %w", m.txType, sc.products[m.product].name, err)
		}
	}

	h.log.Info(h.log.WithField(ctx, "scenario", id), "scenario loaded")
	return nil
}

// ResetAndLoadScenario wipes the store, then loads id.
func (h *Handler) ResetAndLoadScenario(ctx context.Context, id string) error {
	if _, ok := findScenario(id); !ok {
		return &ledger.ValidationError{Field: "scenario", Message: fmt.Sprintf("unknown scenario %q", id)}
	}
	if h.resetter == nil {
		return errors.New("store does not support reset")
	}
	if err := h.resetter.Reset(ctx); err != nil {
		return &ledger.StoreError{Op: "reset", Err: err}
	}
	return h.LoadScenario(ctx, id)
}

func demoPrice(s string) *decimal.Decimal {
	d := ledger.MustParseMoney(s)
	return &d
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// DEV HANDLERS
// =============================================================================

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// ApplyScenario resets the database and loads the scenario in the URL.
func (h *Handler) ApplyScenario(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.ResetAndLoadScenario(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": id})
}
