package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optomapp/ledger-engine/ledger"
	"github.com/optomapp/ledger-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// stepClock advances one second per reading so transaction order is stable.
type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestEngine(t *testing.T) (*ledger.Engine, *ledger.Reporter, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	clock := &stepClock{now: time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)}
	seq := 0
	ids := ledger.IDFunc(func() (string, error) {
		seq++
		return fmt.Sprintf("id-%04d", seq), nil
	})
	engine := ledger.NewEngine(mem, ledger.WithClock(clock), ledger.WithIDSource(ids))
	return engine, ledger.NewReporter(mem), mem
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	if !dec(want).Equal(got) {
		assert.Fail(t, fmt.Sprintf("want %s, got %s", want, got), msgAndArgs...)
	}
}

func createWidget(t *testing.T, engine *ledger.Engine) ledger.Product {
	t.Helper()
	p, err := engine.CreateProduct(context.Background(), ledger.NewProduct{
		Name:            "Widget",
		AcceptancePrice: ledger.Money(60),
		SalePrice:       ledger.Money(100),
	})
	require.NoError(t, err)
	return p
}

// =============================================================================
// PRODUCT TESTS
// =============================================================================

func TestCreateProduct_DefaultsAndZeroStock(t *testing.T) {
	// GIVEN: Only a legacy price
	// WHEN: Creating the product
	// THEN: Sale, acceptance and legacy price are all that value, stock is 0

	engine, reporter, _ := newTestEngine(t)
	ctx := context.Background()

	p, err := engine.CreateProduct(ctx, ledger.NewProduct{Name: "  Rim 52 ", Price: ledger.Money(1200)})
	require.NoError(t, err)

	assert.Equal(t, "Rim 52", p.Name)
	assert.Equal(t, int64(0), p.Stock)
	assertDec(t, "1200", p.SalePrice)
	assertDec(t, "1200", p.AcceptancePrice)
	assertDec(t, "1200", p.Price)

	stored, err := reporter.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, stored.ID)
}

func TestCreateProduct_Validation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    ledger.NewProduct
		field string
	}{
		{"empty name", ledger.NewProduct{Name: "   ", SalePrice: ledger.Money(10)}, "name"},
		{"missing price", ledger.NewProduct{Name: "A"}, "salePrice"},
		{"zero sale price", ledger.NewProduct{Name: "A", SalePrice: ledger.Money(0)}, "salePrice"},
		{"zero sale price ignores legacy price", ledger.NewProduct{Name: "A", SalePrice: ledger.Money(0), Price: ledger.Money(10)}, "salePrice"},
		{"negative acceptance price", ledger.NewProduct{Name: "A", SalePrice: ledger.Money(10), AcceptancePrice: ledger.Money(-1)}, "acceptancePrice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.CreateProduct(ctx, tt.in)
			require.ErrorIs(t, err, ledger.ErrValidation)
			var verr *ledger.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestUpdateProduct_PartialKeepsPriceInSync(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	p := createWidget(t, engine)

	name := "Widget XL"
	updated, err := engine.UpdateProduct(ctx, p.ID, ledger.ProductUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Widget XL", updated.Name)
	assertDec(t, "60", updated.AcceptancePrice)
	assertDec(t, "100", updated.SalePrice)

	updated, err = engine.UpdateProduct(ctx, p.ID, ledger.ProductUpdate{SalePrice: ledger.Money(120)})
	require.NoError(t, err)
	assertDec(t, "120", updated.SalePrice)
	assertDec(t, "120", updated.Price)
}

func TestUpdateProduct_NotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	name := "x"
	_, err := engine.UpdateProduct(context.Background(), "nope", ledger.ProductUpdate{Name: &name})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// MOVEMENT TESTS
// =============================================================================

func TestWidgetLifecycle(t *testing.T) {
	// GIVEN: Widget with acceptance price 60 and sale price 100
	// WHEN: Accept 10 @ 40, sell 3 with default price, delete the sale
	// THEN: Stock follows 10 -> 7 -> 10 and prices follow the movements

	engine, reporter, _ := newTestEngine(t)
	ctx := context.Background()
	p := createWidget(t, engine)

	acc, err := engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 10, Price: ledger.Money(40)})
	require.NoError(t, err)
	assert.Equal(t, ledger.TxAcceptance, acc.Type)
	assertDec(t, "400", acc.Total)
	assert.Equal(t, "Widget", acc.ProductName)
	assert.Nil(t, acc.CostPrice)

	after, err := reporter.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), after.Stock)
	assertDec(t, "40", after.AcceptancePrice, "acceptance adopts the received price")

	sale, err := engine.RecordSale(ctx, ledger.Movement{ProductID: p.ID, Quantity: 3})
	require.NoError(t, err)
	assertDec(t, "100", sale.Price)
	assertDec(t, "300", sale.Total)
	require.NotNil(t, sale.CostPrice)
	assertDec(t, "40", *sale.CostPrice)

	after, err = reporter.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), after.Stock)
	assertDec(t, "100", after.SalePrice, "sales never change prices")

	changes, err := engine.DeleteTransaction(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changes)

	after, err = reporter.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), after.Stock)

	txs, err := reporter.ListTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, acc.ID, txs[0].ID)
}

func TestWidgetEndToEnd(t *testing.T) {
	// GIVEN: Widget with acceptance price 40 and sale price 100
	// WHEN: Accept 10 @ 40, sell 4 @ 100, delete the sale, then try to sell 20
	// THEN: Stock goes 0 -> 10 -> 6 -> 10 and the oversell leaves it at 10

	engine, reporter, _ := newTestEngine(t)
	ctx := context.Background()

	p, err := engine.CreateProduct(ctx, ledger.NewProduct{
		Name:            "Widget",
		AcceptancePrice: ledger.Money(40),
		SalePrice:       ledger.Money(100),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.Stock)

	_, err = engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 10, Price: ledger.Money(40)})
	require.NoError(t, err)
	after, err := reporter.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), after.Stock)
	assertDec(t, "40", after.AcceptancePrice)

	sale, err := engine.RecordSale(ctx, ledger.Movement{ProductID: p.ID, Quantity: 4, Price: ledger.Money(100)})
	require.NoError(t, err)
	assertDec(t, "400", sale.Total)
	require.NotNil(t, sale.CostPrice)
	assertDec(t, "40", *sale.CostPrice)
	after, err = reporter.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), after.Stock)

	_, err = engine.DeleteTransaction(ctx, sale.ID)
	require.NoError(t, err)
	after, err = reporter.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), after.Stock)

	_, err = engine.RecordSale(ctx, ledger.Movement{ProductID: p.ID, Quantity: 20})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	var ise *ledger.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(10), ise.Available)
	assert.Equal(t, int64(20), ise.Requested)

	after, err = reporter.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), after.Stock)
}

func TestRecordAcceptance_DefaultPrice(t *testing.T) {
	// GIVEN: No price or a non-positive price
	// THEN: The product's acceptance price is used

	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	p := createWidget(t, engine)

	tx, err := engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)
	assertDec(t, "60", tx.Price)
	assertDec(t, "120", tx.Total)

	tx, err = engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 1, Price: ledger.Money(0)})
	require.NoError(t, err)
	assertDec(t, "60", tx.Price)
}

func TestRecordMovement_InvalidQuantity(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	p := createWidget(t, engine)

	_, err := engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 0})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = engine.RecordSale(ctx, ledger.Movement{ProductID: p.ID, Quantity: -2})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestRecordMovement_UnknownProduct(t *testing.T) {
	engine, reporter, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.RecordAcceptance(ctx, ledger.Movement{ProductID: "ghost", Quantity: 1})
	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, ledger.KindProduct, nf.Kind)

	txs, err := reporter.ListTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestRecordSale_Overdraw_NoChange(t *testing.T) {
	// GIVEN: 2 units in stock
	// WHEN: Selling 5
	// THEN: InsufficientStockError with numbers, nothing written

	engine, reporter, _ := newTestEngine(t)
	ctx := context.Background()
	p := createWidget(t, engine)
	_, err := engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	_, err = engine.RecordSale(ctx, ledger.Movement{ProductID: p.ID, Quantity: 5})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	var ise *ledger.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(5), ise.Requested)
	assert.Equal(t, int64(2), ise.Available)
	assert.True(t, ledger.IsClientError(err))

	after, err := reporter.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), after.Stock)

	sales, err := reporter.ListTransactions(ctx, ledger.TransactionFilter{Type: ledger.TxSale})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestRecordSale_ExactStockReachesZero(t *testing.T) {
	engine, reporter, _ := newTestEngine(t)
	ctx := context.Background()
	p := createWidget(t, engine)
	_, err := engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 4})
	require.NoError(t, err)

	_, err = engine.RecordSale(ctx, ledger.Movement{ProductID: p.ID, Quantity: 4, Price: ledger.Money(90)})
	require.NoError(t, err)

	after, err := reporter.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.Stock)
}

// =============================================================================
// DELETE / EDIT TESTS
// =============================================================================

func TestDeleteTransaction_AcceptanceAlreadySold_Rejected(t *testing.T) {
	// GIVEN: Accept 5, sell 4 (stock 1)
	// WHEN: Deleting the acceptance
	// THEN: Rejected, stock and history unchanged

	engine, reporter, _ := newTestEngine(t)
	ctx := context.Background()
	p := createWidget(t, engine)

	acc, err := engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 5})
	require.NoError(t, err)
	_, err = engine.RecordSale(ctx, ledger.Movement{ProductID: p.ID, Quantity: 4})
	require.NoError(t, err)

	_, err = engine.DeleteTransaction(ctx, acc.ID)
	require.ErrorIs(t, err, ledger.ErrValidation)
	assert.Contains(t, err.Error(), "would drive stock negative")

	after, err := reporter.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), after.Stock)

	txs, err := reporter.ListTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestDeleteTransaction_Acceptance_ReversesStock(t *testing.T) {
	engine, reporter, _ := newTestEngine(t)
	ctx := context.Background()
	p := createWidget(t, engine)

	acc, err := engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 5})
	require.NoError(t, err)

	_, err = engine.DeleteTransaction(ctx, acc.ID)
	require.NoError(t, err)

	after, err := reporter.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.Stock)
}

func TestDeleteTransaction_Missing(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	_, err := engine.DeleteTransaction(context.Background(), "missing")
	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, ledger.KindTransaction, nf.Kind)
}

func TestDeleteTransaction_OrphanedProduct_NotFound(t *testing.T) {
	// GIVEN: A sale whose product has since been deleted
	// THEN: The sale cannot be reversed and stays in history

	engine, reporter, _ := newTestEngine(t)
	ctx := context.Background()
	p := createWidget(t, engine)
	_, err := engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 3})
	require.NoError(t, err)
	sale, err := engine.RecordSale(ctx, ledger.Movement{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)

	changes, err := engine.DeleteProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changes)

	_, err = engine.DeleteTransaction(ctx, sale.ID)
	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, ledger.KindProduct, nf.Kind)

	txs, err := reporter.ListTransactions(ctx, ledger.TransactionFilter{ProductID: p.ID})
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	assert.Equal(t, "Widget", txs[0].ProductName)
}

func TestUpdateTransactionNotes_OnlyNotesChange(t *testing.T) {
	engine, reporter, _ := newTestEngine(t)
	ctx := context.Background()
	p := createWidget(t, engine)

	acc, err := engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 3, Price: ledger.Money(55), Notes: "first"})
	require.NoError(t, err)

	updated, err := engine.UpdateTransactionNotes(ctx, acc.ID, "supplier invoice #7")
	require.NoError(t, err)
	assert.Equal(t, "supplier invoice #7", updated.Notes)

	stored, err := reporter.GetTransaction(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "supplier invoice #7", stored.Notes)
	assert.Equal(t, acc.Quantity, stored.Quantity)
	assertDec(t, acc.Price.String(), stored.Price)
	assertDec(t, acc.Total.String(), stored.Total)
	assert.True(t, acc.Date.Equal(stored.Date))

	after, err := reporter.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), after.Stock)
}

func TestUpdateTransactionNotes_Missing(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	_, err := engine.UpdateTransactionNotes(context.Background(), "missing", "x")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// MANUAL CORRECTION
// =============================================================================

func TestCorrectStock_BreaksLedgerBalance(t *testing.T) {
	// GIVEN: Accept 10
	// WHEN: Correcting stock to 8 after a stocktake
	// THEN: Stock is 8 and the drift report shows -2

	engine, reporter, _ := newTestEngine(t)
	ctx := context.Background()
	p := createWidget(t, engine)
	_, err := engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 10})
	require.NoError(t, err)

	corrected, err := engine.CorrectStock(ctx, p.ID, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(8), corrected.Stock)

	drift, err := reporter.StockDrift(ctx)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, int64(10), drift[0].LedgerStock)
	assert.Equal(t, int64(8), drift[0].StoredStock)
	assert.Equal(t, int64(-2), drift[0].Drift)
}

func TestCorrectStock_Negative_Rejected(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	p := createWidget(t, engine)
	_, err := engine.CorrectStock(context.Background(), p.ID, -1)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// PARSING
// =============================================================================

func TestParseQuantity(t *testing.T) {
	q, err := ledger.ParseQuantity(dec("12"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), q)

	for _, bad := range []string{"0", "-1", "1.5", "99999999999999999999"} {
		_, err := ledger.ParseQuantity(dec(bad))
		assert.ErrorIs(t, err, ledger.ErrValidation, bad)
	}
}

func TestParseStock(t *testing.T) {
	s, err := ledger.ParseStock(dec("0"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), s)

	_, err = ledger.ParseStock(dec("-3"))
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestMustParseMoney(t *testing.T) {
	assertDec(t, "12.50", ledger.MustParseMoney("12.50"))
	assert.Panics(t, func() { ledger.MustParseMoney("twelve") })
}

// =============================================================================
// STORE FAILURES
// =============================================================================

type failingStore struct {
	*store.Memory
}

func (failingStore) WithTx(context.Context, func(ledger.Store) error) error {
	return fmt.Errorf("disk full")
}

func TestStoreFailure_Surfaced(t *testing.T) {
	engine := ledger.NewEngine(failingStore{store.NewMemory()})
	_, err := engine.CreateProduct(context.Background(), ledger.NewProduct{Name: "A", SalePrice: ledger.Money(1)})

	require.ErrorIs(t, err, ledger.ErrStore)
	var se *ledger.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "create product", se.Op)
	assert.False(t, ledger.IsClientError(err))
}

// =============================================================================
// CONCURRENCY AND BALANCE
// =============================================================================

func TestRecordSale_ConcurrentNeverOversells(t *testing.T) {
	// GIVEN: A product with 10 units in stock
	// WHEN: 25 goroutines each try to sell one unit
	// THEN: Exactly 10 succeed, the rest see ErrInsufficientStock, stock ends at 0

	mem := store.NewMemory()
	engine := ledger.NewEngine(mem)
	reporter := ledger.NewReporter(mem)
	ctx := context.Background()

	p, err := engine.CreateProduct(ctx, ledger.NewProduct{Name: "Widget", SalePrice: ledger.Money(100)})
	require.NoError(t, err)
	_, err = engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 10, Price: ledger.Money(40)})
	require.NoError(t, err)

	const buyers = 25
	var (
		wg         sync.WaitGroup
		sold       atomic.Int64
		refused    atomic.Int64
		unexpected atomic.Int64
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.RecordSale(ctx, ledger.Movement{ProductID: p.ID, Quantity: 1})
			switch {
			case err == nil:
				sold.Add(1)
			case errors.Is(err, ledger.ErrInsufficientStock):
				refused.Add(1)
			default:
				unexpected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), sold.Load())
	assert.Equal(t, int64(buyers-10), refused.Load())
	assert.Zero(t, unexpected.Load())

	after, err := reporter.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.Stock)

	sales, err := reporter.ListTransactions(ctx, ledger.TransactionFilter{Type: ledger.TxSale})
	require.NoError(t, err)
	assert.Len(t, sales, 10)
}

// assertBalanced checks that stock agrees with the ledger, is never negative
// and that every stored total equals quantity * price.
func assertBalanced(t *testing.T, ctx context.Context, reporter *ledger.Reporter, step int) {
	t.Helper()

	drift, err := reporter.StockDrift(ctx)
	require.NoError(t, err)
	require.Empty(t, drift, "step %d", step)

	products, err := reporter.ListProducts(ctx)
	require.NoError(t, err)
	for _, p := range products {
		require.GreaterOrEqual(t, p.Stock, int64(0), "step %d product %s", step, p.ID)
	}

	txs, err := reporter.ListTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	for _, tx := range txs {
		require.True(t, ledger.LineTotal(tx.Quantity, tx.Price).Equal(tx.Total),
			"step %d tx %s: %s != %d * %s", step, tx.ID, tx.Total, tx.Quantity, tx.Price)
	}
}

func TestRandomMovements_StayBalanced(t *testing.T) {
	// GIVEN: Three products and a seeded random source
	// WHEN: 300 random acceptances, sales and deletions are applied
	// THEN: After every step stock matches the ledger and is never negative

	engine, reporter, _ := newTestEngine(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(20250301))

	var ids []string
	for _, name := range []string{"Rim 52", "Lens 1.6", "Cloth"} {
		p, err := engine.CreateProduct(ctx, ledger.NewProduct{Name: name, SalePrice: ledger.Money(90)})
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	var live []string
	for step := 0; step < 300; step++ {
		pid := ids[rng.Intn(len(ids))]
		price := decimal.New(int64(rng.Intn(5000)+1), -2)

		switch op := rng.Intn(3); {
		case op == 0:
			tx, err := engine.RecordAcceptance(ctx, ledger.Movement{ProductID: pid, Quantity: int64(rng.Intn(5) + 1), Price: &price})
			require.NoError(t, err, "step %d", step)
			live = append(live, tx.ID)

		case op == 1:
			before, err := reporter.GetProduct(ctx, pid)
			require.NoError(t, err)
			qty := int64(rng.Intn(6) + 1)
			tx, err := engine.RecordSale(ctx, ledger.Movement{ProductID: pid, Quantity: qty, Price: &price})
			if qty > before.Stock {
				require.ErrorIs(t, err, ledger.ErrInsufficientStock, "step %d", step)
				break
			}
			require.NoError(t, err, "step %d", step)
			live = append(live, tx.ID)

		case len(live) > 0:
			i := rng.Intn(len(live))
			_, err := engine.DeleteTransaction(ctx, live[i])
			if err != nil {
				// Only an acceptance whose units were already sold may refuse.
				require.ErrorIs(t, err, ledger.ErrValidation, "step %d", step)
				break
			}
			live = append(live[:i], live[i+1:]...)
		}

		assertBalanced(t, ctx, reporter, step)
	}
}
