/*
Package ledger provides the inventory ledger and profit-accounting engine.

PURPOSE:
  This package owns the rules for how stock levels and money aggregates
  evolve as acceptance (stock intake) and sale (stock-out) transactions are
  created, edited, or deleted. It also derives weighted-average cost and
  profit from the transaction log.

KEY CONCEPTS IN THIS FILE (types.go):
  - Product: A sellable item with a default cost price, sale price and stock
  - Transaction: One acceptance or sale movement with its unit price
  - TransactionType: acceptance | sale
  - TransactionFilter: Read-side projection filter

DESIGN PRINCIPLES:
  1. Precision: Money uses decimal.Decimal, quantities are int64
  2. Authority: Transaction.Price is the historical truth. Product prices are
     only the suggested defaults for the next movement.
  3. Soft references: Transaction.ProductID may outlive the product; the
     ProductName snapshot keeps history readable.

USAGE:
  engine := ledger.NewEngine(store)
  p, _ := engine.CreateProduct(ctx, ledger.NewProduct{Name: "Widget", SalePrice: ledger.Money(100)})
  tx, _ := engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 10})

SEE ALSO:
  - engine.go: Stock mutation rules
  - profit.go: Weighted-average cost and profit
  - report.go: Read-only projections
  - store.go: Persistence interface
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRODUCT
// =============================================================================

// Product is a stocked item.
//
// INVARIANT: Stock >= 0. Price always equals SalePrice on write; it is kept
// for older consumers that only know a single price.
type Product struct {
	ID              string
	Name            string
	AcceptancePrice decimal.Decimal
	SalePrice       decimal.Decimal
	Price           decimal.Decimal
	Stock           int64
}

// InventoryValue is the product's stock valued at its current sale price.
func (p Product) InventoryValue() decimal.Decimal {
	return p.SalePrice.Mul(decimal.NewFromInt(p.Stock))
}

// =============================================================================
// TRANSACTION
// =============================================================================

type TransactionType string

const (
	TxAcceptance TransactionType = "acceptance" // Goods received into inventory at a cost price
	TxSale       TransactionType = "sale"       // Goods sold out of inventory at a sale price
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TxAcceptance || t == TxSale
}

// Transaction is an immutable stock movement. Notes is the only field that
// may change after creation.
type Transaction struct {
	ID          string
	Type        TransactionType
	ProductID   string
	ProductName string
	Quantity    int64
	Price       decimal.Decimal
	Total       decimal.Decimal
	Date        time.Time
	Notes       string

	// CostPrice is the product's acceptance price at the moment of a sale.
	// Nil for acceptances.
	CostPrice *decimal.Decimal
}

// LineTotal returns quantity * price. Transaction.Total is stored once from
// this value and never re-derived.
func LineTotal(quantity int64, price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(quantity))
}

// =============================================================================
// FILTERS
// =============================================================================

// TransactionFilter narrows read-side transaction listings. Zero values
// mean "no restriction". From and To are inclusive.
type TransactionFilter struct {
	Type      TransactionType
	ProductID string
	From      time.Time
	To        time.Time
}

// Match reports whether tx passes the filter.
func (f TransactionFilter) Match(tx Transaction) bool {
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.ProductID != "" && tx.ProductID != f.ProductID {
		return false
	}
	if !f.From.IsZero() && tx.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && tx.Date.After(f.To) {
		return false
	}
	return true
}

// =============================================================================
// MONEY HELPERS
// =============================================================================

// Money builds a decimal from a float literal. Intended for tests and seeds;
// transport input is parsed with decimal.NewFromString to stay exact.
func Money(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

// MustParseMoney parses a decimal string and panics if it is malformed. Use
// it for compile-time constants such as demo prices.
func MustParseMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("ledger: bad money literal %q: %v", s, err))
	}
	return d
}
