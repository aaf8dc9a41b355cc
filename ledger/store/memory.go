// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/optomapp/ledger-engine/ledger"
)

var (
	ErrDuplicateID = errors.New("duplicate id")
	ErrMissingRow  = errors.New("row does not exist")
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	products     map[string]ledger.Product
	transactions map[string]ledger.Transaction
}

func NewMemory() *Memory {
	return &Memory{
		products:     make(map[string]ledger.Product),
		transactions: make(map[string]ledger.Transaction),
	}
}

var _ ledger.TxStore = (*Memory)(nil)

func (m *Memory) GetProduct(ctx context.Context, id string) (*ledger.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetProduct(ctx, id)
}

func (m *Memory) ListProducts(ctx context.Context) ([]ledger.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListProducts(ctx)
}

func (m *Memory) InsertProduct(ctx context.Context, p ledger.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().InsertProduct(ctx, p)
}

func (m *Memory) UpdateProduct(ctx context.Context, p ledger.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdateProduct(ctx, p)
}

func (m *Memory) DeleteProduct(ctx context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().DeleteProduct(ctx, id)
}

func (m *Memory) GetTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetTransaction(ctx, id)
}

func (m *Memory) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListTransactions(ctx, filter)
}

func (m *Memory) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().InsertTransaction(ctx, tx)
}

func (m *Memory) UpdateTransactionNotes(ctx context.Context, id, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdateTransactionNotes(ctx, id, notes)
}

func (m *Memory) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().DeleteTransaction(ctx, id)
}

// Reset removes all products and transactions.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = make(map[string]ledger.Product)
	m.transactions = make(map[string]ledger.Transaction)
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(m.view()); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	products     map[string]ledger.Product
	transactions map[string]ledger.Transaction
}

func (m *Memory) snapshot() memorySnapshot {
	products := make(map[string]ledger.Product, len(m.products))
	for k, v := range m.products {
		products[k] = v
	}
	txs := make(map[string]ledger.Transaction, len(m.transactions))
	for k, v := range m.transactions {
		txs[k] = v
	}
	return memorySnapshot{products: products, transactions: txs}
}

func (m *Memory) restore(s memorySnapshot) {
	m.products = s.products
	m.transactions = s.transactions
}

func (m *Memory) view() *memoryView {
	return &memoryView{parent: m}
}

// memoryView operates on the parent's maps without locking; callers hold
// the parent's mutex.
type memoryView struct {
	parent *Memory
}

func (v *memoryView) GetProduct(_ context.Context, id string) (*ledger.Product, error) {
	p, ok := v.parent.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (v *memoryView) ListProducts(_ context.Context) ([]ledger.Product, error) {
	result := make([]ledger.Product, 0, len(v.parent.products))
	for _, p := range v.parent.products {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (v *memoryView) InsertProduct(_ context.Context, p ledger.Product) error {
	if _, exists := v.parent.products[p.ID]; exists {
		return ErrDuplicateID
	}
	v.parent.products[p.ID] = p
	return nil
}

func (v *memoryView) UpdateProduct(_ context.Context, p ledger.Product) error {
	if _, exists := v.parent.products[p.ID]; !exists {
		return ErrMissingRow
	}
	v.parent.products[p.ID] = p
	return nil
}

func (v *memoryView) DeleteProduct(_ context.Context, id string) (int64, error) {
	if _, exists := v.parent.products[id]; !exists {
		return 0, nil
	}
	delete(v.parent.products, id)
	return 1, nil
}

func (v *memoryView) GetTransaction(_ context.Context, id string) (*ledger.Transaction, error) {
	tx, ok := v.parent.transactions[id]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (v *memoryView) ListTransactions(_ context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	result := make([]ledger.Transaction, 0, len(v.parent.transactions))
	for _, tx := range v.parent.transactions {
		if filter.Match(tx) {
			result = append(result, tx)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (v *memoryView) InsertTransaction(_ context.Context, tx ledger.Transaction) error {
	if _, exists := v.parent.transactions[tx.ID]; exists {
		return ErrDuplicateID
	}
	v.parent.transactions[tx.ID] = tx
	return nil
}

func (v *memoryView) UpdateTransactionNotes(_ context.Context, id, notes string) error {
	tx, exists := v.parent.transactions[id]
	if !exists {
		return ErrMissingRow
	}
	tx.Notes = notes
	v.parent.transactions[id] = tx
	return nil
}

func (v *memoryView) DeleteTransaction(_ context.Context, id string) (int64, error) {
	if _, exists := v.parent.transactions[id]; !exists {
		return 0, nil
	}
	delete(v.parent.transactions, id)
	return 1, nil
}
