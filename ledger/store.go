/*
store.go - Persistence interface for products and transactions

PURPOSE:
  Defines the interface between the ledger rules and the database. The
  engine is the only writer; the reporter only reads.

KEY INTERFACES:
  Store:   Keyed-record access to both tables (read-by-id, read-all, insert,
           update, delete)
  TxStore: Store plus WithTx, the atomic multi-write primitive

ATOMIC WRITES:
  Every engine mutation touches at most two rows (a product and a
  transaction) and runs inside one WithTx call. If fn returns an error,
  nothing fn wrote is visible afterwards. The engine does not care whether
  that guarantee comes from a database transaction or a snapshot/restore.

MISSING ROWS:
  GetProduct and GetTransaction return (nil, nil) for unknown ids. Turning
  that into NotFoundError is the engine's job.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite, schema via goose migrations
  - ledger/store/memory.go: In-memory for testing

SEE ALSO:
  - engine.go: Uses TxStore
  - report.go: Uses Store
*/
package ledger

import "context"

// =============================================================================
// STORE - Keyed-record persistence
// =============================================================================

// Store persists products and transactions.
type Store interface {
	// GetProduct returns the product or nil if it does not exist.
	GetProduct(ctx context.Context, id string) (*Product, error)

	// ListProducts returns all products ordered by name.
	ListProducts(ctx context.Context) ([]Product, error)

	InsertProduct(ctx context.Context, p Product) error

	// UpdateProduct overwrites every mutable column of an existing product.
	UpdateProduct(ctx context.Context, p Product) error

	// DeleteProduct removes the product and returns the affected row count.
	DeleteProduct(ctx context.Context, id string) (int64, error)

	// GetTransaction returns the transaction or nil if it does not exist.
	GetTransaction(ctx context.Context, id string) (*Transaction, error)

	// ListTransactions returns matching transactions, newest first
	// (date descending, then id descending).
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)

	InsertTransaction(ctx context.Context, tx Transaction) error

	// UpdateTransactionNotes changes the only mutable transaction column.
	UpdateTransactionNotes(ctx context.Context, id, notes string) error

	// DeleteTransaction removes the transaction and returns the affected row count.
	DeleteTransaction(ctx context.Context, id string) (int64, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
