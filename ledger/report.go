/*
report.go - Read-only query and reporting surface

PURPOSE:
  Projections over products and transactions for listing screens and
  financial summaries. The Reporter never writes.

SUMMARY METRICS:
  TotalAcceptanceValue  sum(acceptance.total)
  TotalSaleValue        sum(sale.total)
  SimpleProfit          TotalSaleValue - TotalAcceptanceValue
  AverageCostProfit     weighted-average COGS profit (profit.go)
  SnapshotCostProfit    cost-at-sale-time profit (profit.go)
  InventoryValue        sum(product.stock * product.salePrice)

  The three profit figures answer different questions and are reported
  side by side under these names.

STOCK DRIFT:
  StockDrift compares each product's stored stock with the stock implied by
  its surviving transactions. Drift appears after manual stock corrections,
  and for orphaned history whose product is gone.

SEE ALSO:
  - profit.go: Cost and profit calculations
  - api/handlers.go: HTTP exposure
*/
package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// Reporter answers read-only queries over products and transactions.
type Reporter struct {
	store Store
}

// NewReporter returns a Reporter reading from store.
func NewReporter(store Store) *Reporter {
	return &Reporter{store: store}
}

// =============================================================================
// LISTINGS
// =============================================================================

func (r *Reporter) ListProducts(ctx context.Context) ([]Product, error) {
	products, err := r.store.ListProducts(ctx)
	if err != nil {
		return nil, storeFailure("list products", err)
	}
	return products, nil
}

func (r *Reporter) GetProduct(ctx context.Context, id string) (Product, error) {
	p, err := r.store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, storeFailure("get product", err)
	}
	if p == nil {
		return Product{}, &NotFoundError{Kind: KindProduct, ID: id}
	}
	return *p, nil
}

func (r *Reporter) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	tx, err := r.store.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, storeFailure("get transaction", err)
	}
	if tx == nil {
		return Transaction{}, &NotFoundError{Kind: KindTransaction, ID: id}
	}
	return *tx, nil
}

// ListTransactions returns matching transactions, newest first.
func (r *Reporter) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, invalid("type", "must be acceptance or sale")
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, invalid("to", "must not be before from")
	}
	txs, err := r.store.ListTransactions(ctx, filter)
	if err != nil {
		return nil, storeFailure("list transactions", err)
	}
	return txs, nil
}

// =============================================================================
// SUMMARY
// =============================================================================

type Summary struct {
	AcceptanceCount      int
	SaleCount            int
	TotalAcceptanceValue decimal.Decimal
	TotalSaleValue       decimal.Decimal
	SimpleProfit         decimal.Decimal
	AverageCostProfit    ProfitReport
	SnapshotCostProfit   ProfitReport
	InventoryValue       decimal.Decimal
}

// Summarize computes the summary over the given sets. Inventory value always
// reflects the supplied products, whatever period the transactions cover.
func Summarize(products []Product, txs []Transaction) Summary {
	s := Summary{
		TotalAcceptanceValue: decimal.Zero,
		TotalSaleValue:       decimal.Zero,
		InventoryValue:       decimal.Zero,
	}
	for _, tx := range txs {
		switch tx.Type {
		case TxAcceptance:
			s.AcceptanceCount++
			s.TotalAcceptanceValue = s.TotalAcceptanceValue.Add(tx.Total)
		case TxSale:
			s.SaleCount++
			s.TotalSaleValue = s.TotalSaleValue.Add(tx.Total)
		}
	}
	s.SimpleProfit = s.TotalSaleValue.Sub(s.TotalAcceptanceValue)
	s.AverageCostProfit = CalculateProfit(txs)
	s.SnapshotCostProfit = SnapshotProfit(txs)

	for _, p := range products {
		s.InventoryValue = s.InventoryValue.Add(p.InventoryValue())
	}
	return s
}

// Summary loads products and the filtered transactions and summarizes them.
func (r *Reporter) Summary(ctx context.Context, filter TransactionFilter) (Summary, error) {
	products, err := r.ListProducts(ctx)
	if err != nil {
		return Summary{}, err
	}
	txs, err := r.ListTransactions(ctx, filter)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(products, txs), nil
}

// ProfitByProduct returns the per-product weighted-average breakdown.
func (r *Reporter) ProfitByProduct(ctx context.Context, filter TransactionFilter) ([]ProductProfit, error) {
	products, err := r.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := r.ListTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}
	return ProfitByProduct(txs, products), nil
}

// =============================================================================
// STOCK DRIFT
// =============================================================================

type StockDrift struct {
	ProductID   string
	ProductName string
	Orphaned    bool
	LedgerStock int64 // sum(accepted) - sum(sold)
	StoredStock int64
	Drift       int64 // StoredStock - LedgerStock
}

// ComputeStockDrift returns one row per product or orphaned reference whose
// stored stock disagrees with its transaction history. Sorted by name, id.
func ComputeStockDrift(products []Product, txs []Transaction) []StockDrift {
	rows := make(map[string]*StockDrift, len(products))
	for _, p := range products {
		rows[p.ID] = &StockDrift{ProductID: p.ID, ProductName: p.Name, StoredStock: p.Stock}
	}
	for _, tx := range txs {
		row, ok := rows[tx.ProductID]
		if !ok {
			row = &StockDrift{ProductID: tx.ProductID, ProductName: tx.ProductName, Orphaned: true}
			rows[tx.ProductID] = row
		}
		switch tx.Type {
		case TxAcceptance:
			row.LedgerStock += tx.Quantity
		case TxSale:
			row.LedgerStock -= tx.Quantity
		}
	}

	var drift []StockDrift
	for _, row := range rows {
		row.Drift = row.StoredStock - row.LedgerStock
		if row.Drift != 0 {
			drift = append(drift, *row)
		}
	}
	sort.Slice(drift, func(i, j int) bool {
		if drift[i].ProductName != drift[j].ProductName {
			return drift[i].ProductName < drift[j].ProductName
		}
		return drift[i].ProductID < drift[j].ProductID
	})
	return drift
}

func (r *Reporter) StockDrift(ctx context.Context) ([]StockDrift, error) {
	products, err := r.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := r.ListTransactions(ctx, TransactionFilter{})
	if err != nil {
		return nil, err
	}
	return ComputeStockDrift(products, txs), nil
}
