/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts go out as exact JSON numbers (json.Number from the decimal string)
  and come in as decimal.Decimal, which accepts both 12.5 and "12.5".
  Quantities and stock also arrive as decimals so 1.5 can be rejected
  instead of silently truncated.

VALIDATION:
  Shape checks live in validate tags (see validate.go). Business rules stay
  in the ledger engine.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optomapp/ledger-engine/ledger"
)

// =============================================================================
// REQUESTS
// =============================================================================

// CreateProductRequest registers a product. Either salePrice or the legacy
// price must be given.
type CreateProductRequest struct {
	Name            string           `json:"name" validate:"required,max=200"`
	Price           *decimal.Decimal `json:"price"`
	AcceptancePrice *decimal.Decimal `json:"acceptancePrice"`
	SalePrice       *decimal.Decimal `json:"salePrice"`
}

// UpdateProductRequest is a partial update; absent fields are untouched.
type UpdateProductRequest struct {
	Name            *string          `json:"name" validate:"omitempty,max=200"`
	Price           *decimal.Decimal `json:"price"`
	AcceptancePrice *decimal.Decimal `json:"acceptancePrice"`
	SalePrice       *decimal.Decimal `json:"salePrice"`
	Stock           *decimal.Decimal `json:"stock"`
}

type StockCorrectionRequest struct {
	Stock *decimal.Decimal `json:"stock" validate:"required"`
}

// MovementRequest records an acceptance or a sale.
type MovementRequest struct {
	ProductID string           `json:"productId" validate:"required"`
	Quantity  *decimal.Decimal `json:"quantity" validate:"required"`
	Price     *decimal.Decimal `json:"price"`
	Notes     string           `json:"notes" validate:"max=2000"`
}

type UpdateNotesRequest struct {
	Notes *string `json:"notes" validate:"required,max=2000"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type ProductDTO struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Price           json.Number `json:"price"`
	Stock           int64       `json:"stock"`
	AcceptancePrice json.Number `json:"acceptancePrice"`
	SalePrice       json.Number `json:"salePrice"`
}

type TransactionDTO struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	ProductID   string       `json:"productId"`
	ProductName string       `json:"productName"`
	Quantity    int64        `json:"quantity"`
	Price       json.Number  `json:"price"`
	Total       json.Number  `json:"total"`
	Date        time.Time    `json:"date"`
	Notes       string       `json:"notes"`
	CostPrice   *json.Number `json:"costPrice"`
}

// DeleteResponse mirrors the number of rows a delete removed.
type DeleteResponse struct {
	Status  string `json:"status"`
	Changes int64  `json:"changes"`
}

type ProfitReportDTO struct {
	Revenue json.Number `json:"revenue"`
	COGS    json.Number `json:"cogs"`
	Profit  json.Number `json:"profit"`
}

type SummaryDTO struct {
	AcceptanceCount      int             `json:"acceptanceCount"`
	SaleCount            int             `json:"saleCount"`
	TotalAcceptanceValue json.Number     `json:"totalAcceptanceValue"`
	TotalSaleValue       json.Number     `json:"totalSaleValue"`
	SimpleProfit         json.Number     `json:"simpleProfit"`
	AverageCostProfit    ProfitReportDTO `json:"averageCostProfit"`
	SnapshotCostProfit   ProfitReportDTO `json:"snapshotCostProfit"`
	InventoryValue       json.Number     `json:"inventoryValue"`
}

type ProductProfitDTO struct {
	ProductID   string      `json:"productId"`
	ProductName string      `json:"productName"`
	Orphaned    bool        `json:"orphaned"`
	AcceptedQty int64       `json:"acceptedQty"`
	SoldQty     int64       `json:"soldQty"`
	AverageCost json.Number `json:"averageCost"`
	ProfitReportDTO
}

type StockDriftDTO struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Orphaned    bool   `json:"orphaned"`
	LedgerStock int64  `json:"ledgerStock"`
	StoredStock int64  `json:"storedStock"`
	Drift       int64  `json:"drift"`
}

type HealthDTO struct {
	Status string `json:"status"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func toProductDTO(p ledger.Product) ProductDTO {
	return ProductDTO{
		ID:              p.ID,
		Name:            p.Name,
		Price:           money(p.Price),
		Stock:           p.Stock,
		AcceptancePrice: money(p.AcceptancePrice),
		SalePrice:       money(p.SalePrice),
	}
}

func toProductDTOs(products []ledger.Product) []ProductDTO {
	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	return dtos
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:          tx.ID,
		Type:        string(tx.Type),
		ProductID:   tx.ProductID,
		ProductName: tx.ProductName,
		Quantity:    tx.Quantity,
		Price:       money(tx.Price),
		Total:       money(tx.Total),
		Date:        tx.Date.UTC(),
		Notes:       tx.Notes,
	}
	if tx.CostPrice != nil {
		c := money(*tx.CostPrice)
		dto.CostPrice = &c
	}
	return dto
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toProfitReportDTO(r ledger.ProfitReport) ProfitReportDTO {
	return ProfitReportDTO{Revenue: money(r.Revenue), COGS: money(r.COGS), Profit: money(r.Profit)}
}

func toSummaryDTO(s ledger.Summary) SummaryDTO {
	return SummaryDTO{
		AcceptanceCount:      s.AcceptanceCount,
		SaleCount:            s.SaleCount,
		TotalAcceptanceValue: money(s.TotalAcceptanceValue),
		TotalSaleValue:       money(s.TotalSaleValue),
		SimpleProfit:         money(s.SimpleProfit),
		AverageCostProfit:    toProfitReportDTO(s.AverageCostProfit),
		SnapshotCostProfit:   toProfitReportDTO(s.SnapshotCostProfit),
		InventoryValue:       money(s.InventoryValue),
	}
}

func toProductProfitDTOs(rows []ledger.ProductProfit) []ProductProfitDTO {
	dtos := make([]ProductProfitDTO, len(rows))
	for i, row := range rows {
		dtos[i] = ProductProfitDTO{
			ProductID:       row.ProductID,
			ProductName:     row.ProductName,
			Orphaned:        row.Orphaned,
			AcceptedQty:     row.AcceptedQty,
			SoldQty:         row.SoldQty,
			AverageCost:     money(row.AverageCost),
			ProfitReportDTO: toProfitReportDTO(row.ProfitReport),
		}
	}
	return dtos
}

func toStockDriftDTOs(rows []ledger.StockDrift) []StockDriftDTO {
	dtos := make([]StockDriftDTO, len(rows))
	for i, row := range rows {
		dtos[i] = StockDriftDTO(row)
	}
	return dtos
}
