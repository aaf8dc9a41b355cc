/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Durable storage for the products and transactions tables. The engine
  decides WHAT to write; this package only maps rows to ledger types.

KEY TABLES:
  products:     id, name, price, stock, acceptancePrice, salePrice
  transactions: id, type, productId, productName, quantity, price, total,
                date, notes, costPrice

  Money columns hold decimal strings so every amount round-trips exactly.
  transactions.productId is a soft reference with no foreign key; history
  outlives deleted products.

ORDERING:
  Dates are written in a fixed-width UTC layout so lexical order equals
  chronological order. Listings sort by date DESC, id DESC.

CONCURRENCY:
  One open connection plus a store-wide sync.RWMutex. WithTx holds the write
  lock for the whole database transaction and routes every read and write
  through the *sql.Tx, so the engine's read-check-write sequence is atomic.

USAGE:
  store, err := sqlite.New("./data/optom.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store)

MIGRATION:
  New() applies the embedded goose migrations. Open() skips them so the
  migrate command can report status first.

SEE ALSO:
  - migrate.go: Embedded goose migrations
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/optomapp/ledger-engine/ledger"
)

// DateLayout is the fixed-width UTC layout of transactions.date.
const DateLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	ErrDuplicateID = errors.New("duplicate id")
	ErrMissingRow  = errors.New("row does not exist")
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ ledger.TxStore = (*Store)(nil)

// New opens the database and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	store, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Open opens the database without touching the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// QUERY PLUMBING
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowStore holds every statement; Store and txStore only choose the querier
// and the locking.
type rowStore struct {
	q querier
}

func (s *Store) rows() rowStore { return rowStore{q: s.db} }

// =============================================================================
// PRODUCTS
// =============================================================================

const productColumns = `id, name, price, stock, acceptancePrice, salePrice`

func (s *Store) GetProduct(ctx context.Context, id string) (*ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows().getProduct(ctx, id)
}

func (s *Store) ListProducts(ctx context.Context) ([]ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows().listProducts(ctx)
}

func (s *Store) InsertProduct(ctx context.Context, p ledger.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows().insertProduct(ctx, p)
}

func (s *Store) UpdateProduct(ctx context.Context, p ledger.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows().updateProduct(ctx, p)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows().deleteProduct(ctx, id)
}

func (r rowStore) getProduct(ctx context.Context, id string) (*ledger.Product, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r rowStore) listProducts(ctx context.Context) ([]ledger.Product, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []ledger.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r rowStore) insertProduct(ctx context.Context, p ledger.Product) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Price.String(), p.Stock, p.AcceptancePrice.String(), p.SalePrice.String())
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (r rowStore) updateProduct(ctx context.Context, p ledger.Product) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET name = ?, price = ?, stock = ?, acceptancePrice = ?, salePrice = ?
		WHERE id = ?
	`, p.Name, p.Price.String(), p.Stock, p.AcceptancePrice.String(), p.SalePrice.String(), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMissingRow
	}
	return nil
}

func (r rowStore) deleteProduct(ctx context.Context, id string) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete product: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(sc scanner) (ledger.Product, error) {
	var (
		p               ledger.Product
		price           string
		acceptancePrice sql.NullString
		salePrice       sql.NullString
	)
	if err := sc.Scan(&p.ID, &p.Name, &price, &p.Stock, &acceptancePrice, &salePrice); err != nil {
		if err == sql.ErrNoRows {
			return p, err
		}
		return p, fmt.Errorf("failed to scan product: %w", err)
	}

	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return p, fmt.Errorf("product %s: bad price %q: %w", p.ID, price, err)
	}
	// Older rows may predate the split prices; fall back to the legacy price.
	if p.AcceptancePrice, err = parseMoneyOr(acceptancePrice, p.Price); err != nil {
		return p, fmt.Errorf("product %s: bad acceptancePrice: %w", p.ID, err)
	}
	if p.SalePrice, err = parseMoneyOr(salePrice, p.Price); err != nil {
		return p, fmt.Errorf("product %s: bad salePrice: %w", p.ID, err)
	}
	return p, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

const transactionColumns = `id, type, productId, productName, quantity, price, total, date, notes, costPrice`

func (s *Store) GetTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows().getTransaction(ctx, id)
}

func (s *Store) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows().listTransactions(ctx, filter)
}

func (s *Store) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows().insertTransaction(ctx, tx)
}

func (s *Store) UpdateTransactionNotes(ctx context.Context, id, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows().updateTransactionNotes(ctx, id, notes)
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows().deleteTransaction(ctx, id)
}

func (r rowStore) getTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r rowStore) listTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.ProductID != "" {
		where = append(where, "productId = ?")
		args = append(args, filter.ProductID)
	}
	if !filter.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, formatDate(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, formatDate(filter.To))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date DESC, id DESC`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := []ledger.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func (r rowStore) insertTransaction(ctx context.Context, tx ledger.Transaction) error {
	var costPrice sql.NullString
	if tx.CostPrice != nil {
		costPrice = sql.NullString{String: tx.CostPrice.String(), Valid: true}
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tx.ID,
		string(tx.Type),
		tx.ProductID,
		tx.ProductName,
		tx.Quantity,
		tx.Price.String(),
		tx.Total.String(),
		formatDate(tx.Date),
		tx.Notes,
		costPrice,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (r rowStore) updateTransactionNotes(ctx context.Context, id, notes string) error {
	res, err := r.q.ExecContext(ctx, `UPDATE transactions SET notes = ? WHERE id = ?`, notes, id)
	if err != nil {
		return fmt.Errorf("failed to update transaction notes: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMissingRow
	}
	return nil
}

func (r rowStore) deleteTransaction(ctx context.Context, id string) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transaction: %w", err)
	}
	return res.RowsAffected()
}

func scanTransaction(sc scanner) (ledger.Transaction, error) {
	var (
		tx        ledger.Transaction
		txType    string
		price     string
		total     string
		date      string
		notes     sql.NullString
		costPrice sql.NullString
	)
	err := sc.Scan(&tx.ID, &txType, &tx.ProductID, &tx.ProductName, &tx.Quantity,
		&price, &total, &date, &notes, &costPrice)
	if err != nil {
		if err == sql.ErrNoRows {
			return tx, err
		}
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.Type = ledger.TransactionType(txType)
	tx.Notes = notes.String
	if tx.Price, err = decimal.NewFromString(price); err != nil {
		return tx, fmt.Errorf("transaction %s: bad price %q: %w", tx.ID, price, err)
	}
	if tx.Total, err = decimal.NewFromString(total); err != nil {
		return tx, fmt.Errorf("transaction %s: bad total %q: %w", tx.ID, total, err)
	}
	if tx.Date, err = parseDate(date); err != nil {
		return tx, fmt.Errorf("transaction %s: bad date %q: %w", tx.ID, date, err)
	}
	if costPrice.Valid {
		c, err := decimal.NewFromString(costPrice.String)
		if err != nil {
			return tx, fmt.Errorf("transaction %s: bad costPrice %q: %w", tx.ID, costPrice.String, err)
		}
		tx.CostPrice = &c
	}
	return tx, nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{rows: rowStore{q: sqlTx}}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every call on the open *sql.Tx; the parent lock is already held.
type txStore struct {
	rows rowStore
}

func (ts *txStore) GetProduct(ctx context.Context, id string) (*ledger.Product, error) {
	return ts.rows.getProduct(ctx, id)
}

func (ts *txStore) ListProducts(ctx context.Context) ([]ledger.Product, error) {
	return ts.rows.listProducts(ctx)
}

func (ts *txStore) InsertProduct(ctx context.Context, p ledger.Product) error {
	return ts.rows.insertProduct(ctx, p)
}

func (ts *txStore) UpdateProduct(ctx context.Context, p ledger.Product) error {
	return ts.rows.updateProduct(ctx, p)
}

func (ts *txStore) DeleteProduct(ctx context.Context, id string) (int64, error) {
	return ts.rows.deleteProduct(ctx, id)
}

func (ts *txStore) GetTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	return ts.rows.getTransaction(ctx, id)
}

func (ts *txStore) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	return ts.rows.listTransactions(ctx, filter)
}

func (ts *txStore) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	return ts.rows.insertTransaction(ctx, tx)
}

func (ts *txStore) UpdateTransactionNotes(ctx context.Context, id, notes string) error {
	return ts.rows.updateTransactionNotes(ctx, id, notes)
}

func (ts *txStore) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	return ts.rows.deleteTransaction(ctx, id)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"transactions", "products"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func formatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		// Rows written by older clients carry plain RFC 3339.
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC(), err
}

// parseMoneyOr returns fallback only for NULL or empty columns. A value that
// is present but unparsable is an error.
func parseMoneyOr(s sql.NullString, fallback decimal.Decimal) (decimal.Decimal, error) {
	if !s.Valid || s.String == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q: %w", s.String, err)
	}
	return d, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}
