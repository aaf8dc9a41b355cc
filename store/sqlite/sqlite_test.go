package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optomapp/ledger-engine/ledger"
	"github.com/optomapp/ledger-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestEngine(t *testing.T, store *sqlite.Store) *ledger.Engine {
	t.Helper()
	now := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	seq := 0
	return ledger.NewEngine(store,
		ledger.WithClock(ledger.ClockFunc(func() time.Time {
			now = now.Add(time.Millisecond)
			return now
		})),
		ledger.WithIDSource(ledger.IDFunc(func() (string, error) {
			seq++
			return fmt.Sprintf("id-%04d", seq), nil
		})),
	)
}

// =============================================================================
// SCHEMA TESTS
// =============================================================================

func TestMigrate_AllApplied(t *testing.T) {
	store := newTestStore(t)

	states, err := store.MigrationStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 2)
	for _, st := range states {
		assert.True(t, st.Applied, "migration %d", st.Version)
	}

	applied, err := store.Migrate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied, "second run is a no-op")
}

func TestMigrate_BackfillsSplitPrices(t *testing.T) {
	// GIVEN: A database created by the single-price schema
	// WHEN: Migrations run
	// THEN: acceptancePrice and salePrice are backfilled from price

	ctx := context.Background()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.ExecLegacySchema(ctx, `
		CREATE TABLE products (id TEXT PRIMARY KEY, name TEXT NOT NULL, price TEXT NOT NULL, stock INTEGER NOT NULL DEFAULT 0);
		CREATE TABLE transactions (id TEXT PRIMARY KEY, type TEXT NOT NULL, productId TEXT NOT NULL,
			productName TEXT NOT NULL, quantity INTEGER NOT NULL, price TEXT NOT NULL, total TEXT NOT NULL,
			date TEXT NOT NULL, notes TEXT NOT NULL DEFAULT '');
		INSERT INTO products (id, name, price, stock) VALUES ('p1', 'Rim 52', '1200', 3);
		INSERT INTO transactions (id, type, productId, productName, quantity, price, total, date)
			VALUES ('t1', 'acceptance', 'p1', 'Rim 52', 3, '1000', '3000', '2024-11-02T08:00:00Z');
	`))

	_, err = store.Migrate(ctx)
	require.NoError(t, err)

	p, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, decimal.NewFromInt(1200).Equal(p.AcceptancePrice))
	assert.True(t, decimal.NewFromInt(1200).Equal(p.SalePrice))

	tx, err := store.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Nil(t, tx.CostPrice)
	assert.Equal(t, time.Date(2024, time.November, 2, 8, 0, 0, 0, time.UTC), tx.Date)
}

func TestGetProduct_NullSplitPricesFallBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ExecLegacySchema(ctx,
		`INSERT INTO products (id, name, price, stock, acceptancePrice, salePrice) VALUES ('p1', 'Rim 52', '1200', 0, NULL, '')`))

	p, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, decimal.NewFromInt(1200).Equal(p.AcceptancePrice))
	assert.True(t, decimal.NewFromInt(1200).Equal(p.SalePrice))
}

func TestGetProduct_CorruptSalePrice(t *testing.T) {
	// GIVEN: A row whose salePrice is present but not a number
	// WHEN: The product is read
	// THEN: The read fails instead of silently using the legacy price

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ExecLegacySchema(ctx,
		`INSERT INTO products (id, name, price, stock, acceptancePrice, salePrice) VALUES ('p1', 'Rim 52', '1200', 0, '900', 'abc')`))

	_, err := store.GetProduct(ctx, "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "salePrice")

	_, err = store.ListProducts(ctx)
	assert.Error(t, err)
}

// =============================================================================
// ENGINE ON SQLITE
// =============================================================================

func TestWidgetScenario_Persisted(t *testing.T) {
	store := newTestStore(t)
	engine := newTestEngine(t, store)
	ctx := context.Background()

	p, err := engine.CreateProduct(ctx, ledger.NewProduct{
		Name:            "Widget",
		AcceptancePrice: ledger.Money(60),
		SalePrice:       ledger.Money(100),
	})
	require.NoError(t, err)

	_, err = engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 10, Price: ledger.Money(40)})
	require.NoError(t, err)
	sale, err := engine.RecordSale(ctx, ledger.Movement{ProductID: p.ID, Quantity: 3})
	require.NoError(t, err)

	stored, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stored.Stock)
	assert.True(t, decimal.NewFromInt(40).Equal(stored.AcceptancePrice))
	assert.True(t, decimal.NewFromInt(100).Equal(stored.Price))

	gotSale, err := store.GetTransaction(ctx, sale.ID)
	require.NoError(t, err)
	require.NotNil(t, gotSale.CostPrice)
	assert.True(t, decimal.NewFromInt(40).Equal(*gotSale.CostPrice))
	assert.True(t, sale.Date.Equal(gotSale.Date))

	_, err = engine.DeleteTransaction(ctx, sale.ID)
	require.NoError(t, err)

	stored, err = store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.Stock)
}

func TestDecimalRoundTrip_TotalsExact(t *testing.T) {
	// GIVEN: Fractional prices that binary floats cannot represent
	// THEN: total == quantity * price survives storage exactly

	store := newTestStore(t)
	engine := newTestEngine(t, store)
	ctx := context.Background()

	p, err := engine.CreateProduct(ctx, ledger.NewProduct{Name: "Lenses - Single Vision", SalePrice: ledger.Money(0.1)})
	require.NoError(t, err)

	price := decimal.RequireFromString("0.1")
	acc, err := engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 3, Price: &price})
	require.NoError(t, err)

	got, err := store.GetTransaction(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.3", got.Total.String())
	assert.True(t, got.Total.Equal(got.Price.Mul(decimal.NewFromInt(got.Quantity))))
}

func TestListTransactions_OrderAndFilters(t *testing.T) {
	store := newTestStore(t)
	engine := newTestEngine(t, store)
	ctx := context.Background()

	p, err := engine.CreateProduct(ctx, ledger.NewProduct{Name: "Rim 52", SalePrice: ledger.Money(1200)})
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 3; i++ {
		tx, err := engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 1})
		require.NoError(t, err)
		ids = append(ids, tx.ID)
	}
	sale, err := engine.RecordSale(ctx, ledger.Movement{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	all, err := store.ListTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, sale.ID, all[0].ID)
	assert.Equal(t, ids[0], all[3].ID)

	sales, err := store.ListTransactions(ctx, ledger.TransactionFilter{Type: ledger.TxSale})
	require.NoError(t, err)
	require.Len(t, sales, 1)

	first, err := store.GetTransaction(ctx, ids[0])
	require.NoError(t, err)
	ranged, err := store.ListTransactions(ctx, ledger.TransactionFilter{To: first.Date})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, ids[0], ranged[0].ID)

	none, err := store.ListTransactions(ctx, ledger.TransactionFilter{ProductID: "other"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListProducts_EmptyIsNotNil(t *testing.T) {
	store := newTestStore(t)
	products, err := store.ListProducts(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)
}

func TestDeleteProduct_KeepsHistory(t *testing.T) {
	store := newTestStore(t)
	engine := newTestEngine(t, store)
	ctx := context.Background()

	p, err := engine.CreateProduct(ctx, ledger.NewProduct{Name: "Cleaning Solution", SalePrice: ledger.Money(250)})
	require.NoError(t, err)
	_, err = engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	changes, err := engine.DeleteProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changes)

	txs, err := store.ListTransactions(ctx, ledger.TransactionFilter{ProductID: p.ID})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "Cleaning Solution", txs[0].ProductName)
}

// =============================================================================
// ATOMICITY
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(s ledger.Store) error {
		require.NoError(t, s.InsertProduct(ctx, ledger.Product{
			ID: "p1", Name: "Temp", Price: decimal.NewFromInt(1),
			AcceptancePrice: decimal.NewFromInt(1), SalePrice: decimal.NewFromInt(1),
		}))
		got, err := s.GetProduct(ctx, "p1")
		require.NoError(t, err)
		require.NotNil(t, got, "reads inside the tx see its own writes")
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestRecordSale_Overdraw_NothingPersisted(t *testing.T) {
	store := newTestStore(t)
	engine := newTestEngine(t, store)
	ctx := context.Background()

	p, err := engine.CreateProduct(ctx, ledger.NewProduct{Name: "Widget", SalePrice: ledger.Money(100)})
	require.NoError(t, err)
	_, err = engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	_, err = engine.RecordSale(ctx, ledger.Movement{ProductID: p.ID, Quantity: 5})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	stored, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Stock)

	txs, err := store.ListTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestInsertProduct_DuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := ledger.Product{ID: "dup", Name: "A", Price: decimal.NewFromInt(1),
		AcceptancePrice: decimal.NewFromInt(1), SalePrice: decimal.NewFromInt(1)}

	require.NoError(t, store.InsertProduct(ctx, p))
	assert.ErrorIs(t, store.InsertProduct(ctx, p), sqlite.ErrDuplicateID)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestRecordSale_ConcurrentNeverOversells(t *testing.T) {
	// GIVEN: A persisted product with 10 units in stock
	// WHEN: 25 goroutines each try to sell one unit
	// THEN: Exactly 10 sales are stored and stock ends at 0

	store := newTestStore(t)
	engine := ledger.NewEngine(store)
	ctx := context.Background()

	p, err := engine.CreateProduct(ctx, ledger.NewProduct{Name: "Widget", SalePrice: ledger.Money(100)})
	require.NoError(t, err)
	_, err = engine.RecordAcceptance(ctx, ledger.Movement{ProductID: p.ID, Quantity: 10, Price: ledger.Money(40)})
	require.NoError(t, err)

	const buyers = 25
	var (
		wg      sync.WaitGroup
		sold    atomic.Int64
		refused atomic.Int64
	)
	errs := make(chan error, buyers)
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
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected sale error: %v", err)
	}
	assert.Equal(t, int64(10), sold.Load())
	assert.Equal(t, int64(buyers-10), refused.Load())

	stored, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.Stock)

	sales, err := store.ListTransactions(ctx, ledger.TransactionFilter{Type: ledger.TxSale})
	require.NoError(t, err)
	assert.Len(t, sales, 10)

	drift, err := ledger.NewReporter(store).StockDrift(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)
}
