/*
engine.go - Stock mutation engine

PURPOSE:
  The Engine is the only writer of the ledger. It validates every intent
  ("accept 10 units at 40", "delete transaction T") and applies it to the
  product and transaction tables as one atomic unit.

CRITICAL INVARIANTS:
  1. NON-NEGATIVE STOCK: An operation that would drive stock below zero is
     rejected, never clamped.
  2. LEDGER BALANCE: stock == sum(acceptance qty) - sum(sale qty) over the
     surviving transactions, unless CorrectStock was used.
  3. EXACT TOTALS: Transaction.Total == Quantity * Price, computed once.
  4. ALL OR NOTHING: Checks run before writes and every write happens inside
     one TxStore.WithTx call.

PRICE DEFAULTS:
  Acceptance: omitted or non-positive price -> product.AcceptancePrice, and
              the resolved price becomes the new AcceptancePrice.
  Sale:       omitted or non-positive price -> product.SalePrice. A sale
              never changes product prices. The product's AcceptancePrice at
              this moment is snapshotted into Transaction.CostPrice.

REVERSAL ON DELETE:
  Deleting a sale puts its quantity back. Deleting an acceptance takes its
  quantity out again and is refused when the units have already been sold.

MANUAL CORRECTION:
  CorrectStock (and UpdateProduct with Stock set) overwrites stock directly.
  It is an operator escape hatch and breaks invariant 2 on purpose.

SEE ALSO:
  - store.go: TxStore contract
  - errors.go: Error taxonomy
*/
package ledger

import (
	"context"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INPUTS
// =============================================================================

// NewProduct is the input of CreateProduct. Nil prices are "not supplied".
type NewProduct struct {
	Name            string
	AcceptancePrice *decimal.Decimal
	SalePrice       *decimal.Decimal

	// Price is the legacy single price, used as SalePrice when SalePrice is nil.
	Price *decimal.Decimal
}

// ProductUpdate is a partial update; nil fields are left unchanged.
type ProductUpdate struct {
	Name            *string
	AcceptancePrice *decimal.Decimal
	SalePrice       *decimal.Decimal
	Price           *decimal.Decimal // legacy alias for SalePrice

	// Stock, when set, is applied as a manual stock correction.
	Stock *int64
}

// Movement is the input of RecordAcceptance and RecordSale.
type Movement struct {
	ProductID string
	Quantity  int64
	Price     *decimal.Decimal // nil or non-positive -> product default
	Notes     string
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine applies product and stock operations atomically against a TxStore.
type Engine struct {
	store TxStore
	clock Clock
	ids   IDSource
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock sets the clock used to date transactions.
func WithClock(c Clock) EngineOption { return func(e *Engine) { e.clock = c } }

// WithIDSource sets the generator for product and transaction ids.
func WithIDSource(s IDSource) EngineOption { return func(e *Engine) { e.ids = s } }

// NewEngine returns an Engine using the system clock and UUIDv7 ids unless
// overridden by opts.
func NewEngine(store TxStore, opts ...EngineOption) *Engine {
	e := &Engine{store: store, clock: SystemClock{}, ids: UUIDSource{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// =============================================================================
// PRODUCTS
// =============================================================================

// CreateProduct registers a product with zero stock.
func (e *Engine) CreateProduct(ctx context.Context, in NewProduct) (Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Product{}, invalid("name", "must not be empty")
	}

	salePrice := in.SalePrice
	if salePrice == nil {
		salePrice = in.Price
	}
	if salePrice == nil || !salePrice.IsPositive() {
		return Product{}, invalid("salePrice", "must be a positive amount")
	}

	acceptancePrice := salePrice
	if in.AcceptancePrice != nil {
		if !in.AcceptancePrice.IsPositive() {
			return Product{}, invalid("acceptancePrice", "must be a positive amount")
		}
		acceptancePrice = in.AcceptancePrice
	}

	id, err := e.ids.NewID()
	if err != nil {
		return Product{}, storeFailure("generate product id", err)
	}

	p := Product{
		ID:              id,
		Name:            name,
		AcceptancePrice: *acceptancePrice,
		SalePrice:       *salePrice,
		Price:           *salePrice,
		Stock:           0,
	}

	err = e.store.WithTx(ctx, func(s Store) error {
		return s.InsertProduct(ctx, p)
	})
	if err != nil {
		return Product{}, storeFailure("create product", err)
	}
	return p, nil
}

// UpdateProduct applies a partial update. Price is re-synced to SalePrice on
// every write.
func (e *Engine) UpdateProduct(ctx context.Context, id string, upd ProductUpdate) (Product, error) {
	var name string
	if upd.Name != nil {
		name = strings.TrimSpace(*upd.Name)
		if name == "" {
			return Product{}, invalid("name", "must not be empty")
		}
	}
	if upd.AcceptancePrice != nil && !upd.AcceptancePrice.IsPositive() {
		return Product{}, invalid("acceptancePrice", "must be a positive amount")
	}
	salePrice := upd.SalePrice
	if salePrice == nil {
		salePrice = upd.Price
	}
	if salePrice != nil && !salePrice.IsPositive() {
		return Product{}, invalid("salePrice", "must be a positive amount")
	}
	if upd.Stock != nil && *upd.Stock < 0 {
		return Product{}, invalid("stock", "must be a non-negative integer")
	}

	var updated Product
	err := e.store.WithTx(ctx, func(s Store) error {
		p, err := mustProduct(ctx, s, id)
		if err != nil {
			return err
		}
		if upd.Name != nil {
			p.Name = name
		}
		if upd.AcceptancePrice != nil {
			p.AcceptancePrice = *upd.AcceptancePrice
		}
		if salePrice != nil {
			p.SalePrice = *salePrice
		}
		if upd.Stock != nil {
			p.Stock = *upd.Stock
		}
		p.Price = p.SalePrice

		if err := s.UpdateProduct(ctx, *p); err != nil {
			return err
		}
		updated = *p
		return nil
	})
	if err != nil {
		return Product{}, storeFailure("update product", err)
	}
	return updated, nil
}

// CorrectStock overwrites a product's stock count. This is the manual
// correction path; it deliberately bypasses the ledger-balance invariant.
func (e *Engine) CorrectStock(ctx context.Context, id string, stock int64) (Product, error) {
	return e.UpdateProduct(ctx, id, ProductUpdate{Stock: &stock})
}

// DeleteProduct removes a product. Transactions referencing it are kept as
// orphaned history.
func (e *Engine) DeleteProduct(ctx context.Context, id string) (int64, error) {
	var changes int64
	err := e.store.WithTx(ctx, func(s Store) error {
		if _, err := mustProduct(ctx, s, id); err != nil {
			return err
		}
		n, err := s.DeleteProduct(ctx, id)
		if err != nil {
			return err
		}
		changes = n
		return nil
	})
	if err != nil {
		return 0, storeFailure("delete product", err)
	}
	return changes, nil
}

// =============================================================================
// MOVEMENTS
// =============================================================================

// RecordAcceptance adds stock and adopts the resolved price as the product's
// new default cost.
func (e *Engine) RecordAcceptance(ctx context.Context, m Movement) (Transaction, error) {
	if m.Quantity <= 0 {
		return Transaction{}, invalid("quantity", "must be a positive integer")
	}
	id, err := e.ids.NewID()
	if err != nil {
		return Transaction{}, storeFailure("generate transaction id", err)
	}

	var created Transaction
	err = e.store.WithTx(ctx, func(s Store) error {
		p, err := mustProduct(ctx, s, m.ProductID)
		if err != nil {
			return err
		}
		price := resolvePrice(m.Price, p.AcceptancePrice)
		if !price.IsPositive() {
			return invalid("price", "must be a positive amount")
		}
		if p.Stock > math.MaxInt64-m.Quantity {
			return invalid("quantity", "stock would overflow")
		}

		tx := Transaction{
			ID:          id,
			Type:        TxAcceptance,
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    m.Quantity,
			Price:       price,
			Total:       LineTotal(m.Quantity, price),
			Date:        e.clock.Now(),
			Notes:       m.Notes,
		}

		p.Stock += m.Quantity
		p.AcceptancePrice = price
		if err := s.UpdateProduct(ctx, *p); err != nil {
			return err
		}
		if err := s.InsertTransaction(ctx, tx); err != nil {
			return err
		}
		created = tx
		return nil
	})
	if err != nil {
		return Transaction{}, storeFailure("record acceptance", err)
	}
	return created, nil
}

// RecordSale removes stock. It fails with InsufficientStockError before any
// write when stock < quantity.
func (e *Engine) RecordSale(ctx context.Context, m Movement) (Transaction, error) {
	if m.Quantity <= 0 {
		return Transaction{}, invalid("quantity", "must be a positive integer")
	}
	id, err := e.ids.NewID()
	if err != nil {
		return Transaction{}, storeFailure("generate transaction id", err)
	}

	var created Transaction
	err = e.store.WithTx(ctx, func(s Store) error {
		p, err := mustProduct(ctx, s, m.ProductID)
		if err != nil {
			return err
		}
		if p.Stock < m.Quantity {
			return &InsufficientStockError{ProductID: p.ID, Requested: m.Quantity, Available: p.Stock}
		}
		price := resolvePrice(m.Price, p.SalePrice)
		if !price.IsPositive() {
			return invalid("price", "must be a positive amount")
		}

		costPrice := p.AcceptancePrice
		tx := Transaction{
			ID:          id,
			Type:        TxSale,
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    m.Quantity,
			Price:       price,
			Total:       LineTotal(m.Quantity, price),
			Date:        e.clock.Now(),
			Notes:       m.Notes,
			CostPrice:   &costPrice,
		}

		p.Stock -= m.Quantity
		if err := s.UpdateProduct(ctx, *p); err != nil {
			return err
		}
		if err := s.InsertTransaction(ctx, tx); err != nil {
			return err
		}
		created = tx
		return nil
	})
	if err != nil {
		return Transaction{}, storeFailure("record sale", err)
	}
	return created, nil
}

// =============================================================================
// TRANSACTION EDITS
// =============================================================================

// DeleteTransaction removes a transaction and reverses its stock effect.
func (e *Engine) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	var changes int64
	err := e.store.WithTx(ctx, func(s Store) error {
		tx, err := s.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if tx == nil {
			return &NotFoundError{Kind: KindTransaction, ID: id}
		}
		p, err := mustProduct(ctx, s, tx.ProductID)
		if err != nil {
			return err
		}

		switch tx.Type {
		case TxSale:
			p.Stock += tx.Quantity
		case TxAcceptance:
			if p.Stock < tx.Quantity {
				return invalid("", "cannot delete: would drive stock negative")
			}
			p.Stock -= tx.Quantity
		}

		n, err := s.DeleteTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := s.UpdateProduct(ctx, *p); err != nil {
			return err
		}
		changes = n
		return nil
	})
	if err != nil {
		return 0, storeFailure("delete transaction", err)
	}
	return changes, nil
}

// UpdateTransactionNotes replaces the notes of a transaction. No other field
// is touched.
func (e *Engine) UpdateTransactionNotes(ctx context.Context, id, notes string) (Transaction, error) {
	var updated Transaction
	err := e.store.WithTx(ctx, func(s Store) error {
		tx, err := s.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if tx == nil {
			return &NotFoundError{Kind: KindTransaction, ID: id}
		}
		if err := s.UpdateTransactionNotes(ctx, id, notes); err != nil {
			return err
		}
		tx.Notes = notes
		updated = *tx
		return nil
	})
	if err != nil {
		return Transaction{}, storeFailure("update transaction notes", err)
	}
	return updated, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func mustProduct(ctx context.Context, s Store, id string) (*Product, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &NotFoundError{Kind: KindProduct, ID: id}
	}
	return p, nil
}

func resolvePrice(requested *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if requested != nil && requested.IsPositive() {
		return *requested
	}
	return fallback
}

var maxInt64 = decimal.NewFromInt(math.MaxInt64)

// ParseQuantity converts a transport number into a movement quantity.
func ParseQuantity(d decimal.Decimal) (int64, error) {
	if !d.IsInteger() || !d.IsPositive() || d.GreaterThan(maxInt64) {
		return 0, invalid("quantity", "must be a positive integer")
	}
	return d.IntPart(), nil
}

// ParseStock converts a transport number into a stock count.
func ParseStock(d decimal.Decimal) (int64, error) {
	if !d.IsInteger() || d.IsNegative() || d.GreaterThan(maxInt64) {
		return 0, invalid("stock", "must be a non-negative integer")
	}
	return d.IntPart(), nil
}
