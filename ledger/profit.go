/*
profit.go - Cost and profit calculator

PURPOSE:
  Pure functions over a transaction set. Nothing here reads the store or
  the product's current prices; per-transaction prices are the only input.

WEIGHTED-AVERAGE COST:
  For each product:
    acceptedQty       = sum(acceptance.quantity)
    acceptedCostTotal = sum(acceptance.quantity * acceptance.price)
    averageCost       = acceptedCostTotal / acceptedQty   (0 if acceptedQty == 0)

  Every sale contributes quantity * averageCost to COGS, using the average
  over the WHOLE supplied set, not the average as of the sale's date. The
  product is taken before the division (costTotal * quantity / acceptedQty)
  so a repeating average never leaves a residue in COGS.

THREE PROFIT METRICS:
  These are different definitions and are never reconciled:
  - CalculateProfit:  revenue - weighted-average COGS
  - SnapshotProfit:   revenue - sum(quantity * sale.CostPrice), the cost
                      captured at sale time (falls back to the average cost
                      when a sale carries no snapshot)
  - SimpleProfit:     sale value - acceptance spend (see report.go)

EXAMPLE:
  acceptances: 10 @ 100, 10 @ 200  -> averageCost = 150
  sale:        5 @ 300             -> revenue 1500, COGS 750, profit 750

SEE ALSO:
  - report.go: Summary exposes all three metrics under distinct names
*/
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AVERAGE COST
// =============================================================================

// AverageCost accumulates acceptance history for one product.
type AverageCost struct {
	Quantity  int64
	CostTotal decimal.Decimal
}

// Value returns CostTotal / Quantity, or zero without acceptances.
func (a AverageCost) Value() decimal.Decimal {
	if a.Quantity <= 0 {
		return decimal.Zero
	}
	return a.CostTotal.Div(decimal.NewFromInt(a.Quantity))
}

// CostOf returns the average cost of qty units. It multiplies before
// dividing, so selling every accepted unit costs exactly CostTotal.
func (a AverageCost) CostOf(qty int64) decimal.Decimal {
	if a.Quantity <= 0 {
		return decimal.Zero
	}
	return a.CostTotal.Mul(decimal.NewFromInt(qty)).Div(decimal.NewFromInt(a.Quantity))
}

// AverageCosts builds the per-product average cost map.
func AverageCosts(txs []Transaction) map[string]AverageCost {
	costs := make(map[string]AverageCost)
	for _, tx := range txs {
		if tx.ProductID == "" || tx.Type != TxAcceptance {
			continue
		}
		c := costs[tx.ProductID]
		c.Quantity += tx.Quantity
		c.CostTotal = c.CostTotal.Add(LineTotal(tx.Quantity, tx.Price))
		costs[tx.ProductID] = c
	}
	return costs
}

// =============================================================================
// PROFIT
// =============================================================================

// ProfitReport is revenue, cost of goods sold and their difference.
type ProfitReport struct {
	Revenue decimal.Decimal
	COGS    decimal.Decimal
	Profit  decimal.Decimal
}

func newProfitReport(revenue, cogs decimal.Decimal) ProfitReport {
	return ProfitReport{Revenue: revenue, COGS: cogs, Profit: revenue.Sub(cogs)}
}

// CalculateProfit computes weighted-average-cost profit over txs.
func CalculateProfit(txs []Transaction) ProfitReport {
	costs := AverageCosts(txs)

	revenue, cogs := decimal.Zero, decimal.Zero
	for _, tx := range txs {
		if tx.Type != TxSale {
			continue
		}
		revenue = revenue.Add(tx.Total)
		cogs = cogs.Add(costs[tx.ProductID].CostOf(tx.Quantity))
	}
	return newProfitReport(revenue, cogs)
}

// SnapshotProfit computes profit from the cost price captured on each sale.
func SnapshotProfit(txs []Transaction) ProfitReport {
	var costs map[string]AverageCost

	revenue, cogs := decimal.Zero, decimal.Zero
	for _, tx := range txs {
		if tx.Type != TxSale {
			continue
		}
		revenue = revenue.Add(tx.Total)

		if tx.CostPrice != nil {
			cogs = cogs.Add(LineTotal(tx.Quantity, *tx.CostPrice))
			continue
		}
		if costs == nil {
			costs = AverageCosts(txs)
		}
		cogs = cogs.Add(costs[tx.ProductID].CostOf(tx.Quantity))
	}
	return newProfitReport(revenue, cogs)
}

// =============================================================================
// PER-PRODUCT BREAKDOWN
// =============================================================================

// ProductProfit is the weighted-average profit attributed to one product.
type ProductProfit struct {
	ProductID    string
	ProductName  string
	Orphaned     bool // product no longer exists
	AcceptedQty  int64
	SoldQty      int64
	AverageCost  decimal.Decimal
	ProfitReport ProfitReport
}

// ProfitByProduct splits CalculateProfit per product. Names come from the
// live product when it exists and from the transaction snapshot otherwise.
// The result is sorted by product name, then id.
func ProfitByProduct(txs []Transaction, products []Product) []ProductProfit {
	names := make(map[string]string, len(products))
	for _, p := range products {
		names[p.ID] = p.Name
	}
	costs := AverageCosts(txs)

	type acc struct {
		row     ProductProfit
		cost    AverageCost
		revenue decimal.Decimal
		cogs    decimal.Decimal
	}
	rows := make(map[string]*acc)
	for _, tx := range txs {
		if tx.ProductID == "" {
			continue
		}
		a, ok := rows[tx.ProductID]
		if !ok {
			name, live := names[tx.ProductID]
			if !live {
				name = tx.ProductName
			}
			a = &acc{
				row: ProductProfit{
					ProductID:   tx.ProductID,
					ProductName: name,
					Orphaned:    !live,
					AverageCost: costs[tx.ProductID].Value(),
				},
				cost: costs[tx.ProductID],
			}
			rows[tx.ProductID] = a
		}
		switch tx.Type {
		case TxAcceptance:
			a.row.AcceptedQty += tx.Quantity
		case TxSale:
			a.row.SoldQty += tx.Quantity
			a.revenue = a.revenue.Add(tx.Total)
			a.cogs = a.cogs.Add(a.cost.CostOf(tx.Quantity))
		}
	}

	result := make([]ProductProfit, 0, len(rows))
	for _, a := range rows {
		a.row.ProfitReport = newProfitReport(a.revenue, a.cogs)
		result = append(result, a.row)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ProductName != result[j].ProductName {
			return result[i].ProductName < result[j].ProductName
		}
		return result[i].ProductID < result[j].ProductID
	})
	return result
}
