// Package memory provides the in-memory Repository (tests, dev server).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/warp/savings-core/savings"
)

// =============================================================================
// MEMORY REPOSITORY
// =============================================================================

// Memory stores aggregates and transaction rows in maps. Load hands out
// deep copies, so callers mutate freely and nothing is durable until
// Save / SaveTransactions.
type Memory struct {
	mu       sync.RWMutex
	accounts map[savings.AccountID]*savings.Account
	txns     map[savings.AccountID][]*savings.Transaction
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[savings.AccountID]*savings.Account),
		txns:     make(map[savings.AccountID][]*savings.Transaction),
	}
}

func (m *Memory) CreateAccount(_ context.Context, a *savings.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(a)
}

func (m *Memory) Load(_ context.Context, id savings.AccountID) (*savings.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadLocked(id)
}

func (m *Memory) Save(_ context.Context, a *savings.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(a)
}

func (m *Memory) SaveTransaction(_ context.Context, tx *savings.Transaction) (savings.TransactionID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveTxLocked(tx)
}

func (m *Memory) SaveTransactions(_ context.Context, txs []*savings.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		if _, err := m.saveTxLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) FindOnHoldTransactions(_ context.Context, id savings.AccountID) ([]*savings.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.holdsLocked(id), nil
}

func (m *Memory) ListAccounts(_ context.Context) ([]savings.AccountID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(), nil
}

// WithUnit simulates a database transaction with snapshot + rollback.
// The whole unit runs under the write lock, so units are serialized.
// There is no database transaction to attach, so fn receives the
// caller's context unchanged.
func (m *Memory) WithUnit(ctx context.Context, fn func(context.Context, savings.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(ctx, &unitView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

// =============================================================================
// LOCKED HELPERS - callers hold m.mu
// =============================================================================

func (m *Memory) createLocked(a *savings.Account) error {
	if _, ok := m.accounts[a.ID]; ok {
		return savings.ErrPersistence
	}
	m.storeAccount(a)
	for _, tx := range a.Transactions {
		if _, err := m.saveTxLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) loadLocked(id savings.AccountID) (*savings.Account, error) {
	stored, ok := m.accounts[id]
	if !ok {
		return nil, savings.ErrAccountNotFound
	}
	a := stored.Clone()
	rows := make([]*savings.Transaction, 0, len(m.txns[id]))
	for _, tx := range m.txns[id] {
		rows = append(rows, tx.Clone())
	}
	a.SetTransactions(rows)
	return a, nil
}

func (m *Memory) saveLocked(a *savings.Account) error {
	if _, ok := m.accounts[a.ID]; !ok {
		return savings.ErrAccountNotFound
	}
	m.storeAccount(a)
	return nil
}

// storeAccount keeps the aggregate fields only; transaction rows live in
// their own map.
func (m *Memory) storeAccount(a *savings.Account) {
	c := a.Clone()
	c.Transactions = nil
	m.accounts[a.ID] = c
}

func (m *Memory) saveTxLocked(tx *savings.Transaction) (savings.TransactionID, error) {
	if tx.ID == "" {
		tx.ID = savings.TransactionID(uuid.NewString())
	}
	rows := m.txns[tx.AccountID]
	for i, row := range rows {
		if row.ID == tx.ID {
			rows[i] = tx.Clone()
			return tx.ID, nil
		}
	}
	m.txns[tx.AccountID] = append(rows, tx.Clone())
	return tx.ID, nil
}

func (m *Memory) holdsLocked(id savings.AccountID) []*savings.Transaction {
	var out []*savings.Transaction
	for _, tx := range m.txns[id] {
		if tx.IsHold() && !tx.Reversed {
			out = append(out, tx.Clone())
		}
	}
	return out
}

func (m *Memory) listLocked() []savings.AccountID {
	ids := make([]savings.AccountID, 0, len(m.accounts))
	for id := range m.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// =============================================================================
// SNAPSHOT / ROLLBACK
// =============================================================================

type memorySnapshot struct {
	accounts map[savings.AccountID]*savings.Account
	txns     map[savings.AccountID][]*savings.Transaction
}

func (m *Memory) snapshot() memorySnapshot {
	accounts := make(map[savings.AccountID]*savings.Account, len(m.accounts))
	for id, a := range m.accounts {
		accounts[id] = a.Clone()
	}
	txns := make(map[savings.AccountID][]*savings.Transaction, len(m.txns))
	for id, rows := range m.txns {
		cp := make([]*savings.Transaction, len(rows))
		for i, tx := range rows {
			cp[i] = tx.Clone()
		}
		txns[id] = cp
	}
	return memorySnapshot{accounts: accounts, txns: txns}
}

func (m *Memory) restore(s memorySnapshot) {
	m.accounts = s.accounts
	m.txns = s.txns
}

// unitView routes through the parent's locked helpers while WithUnit
// holds the write lock.
type unitView struct {
	parent *Memory
}

func (v *unitView) CreateAccount(_ context.Context, a *savings.Account) error {
	return v.parent.createLocked(a)
}

func (v *unitView) Load(_ context.Context, id savings.AccountID) (*savings.Account, error) {
	return v.parent.loadLocked(id)
}

func (v *unitView) Save(_ context.Context, a *savings.Account) error {
	return v.parent.saveLocked(a)
}

func (v *unitView) SaveTransaction(_ context.Context, tx *savings.Transaction) (savings.TransactionID, error) {
	return v.parent.saveTxLocked(tx)
}

func (v *unitView) SaveTransactions(_ context.Context, txs []*savings.Transaction) error {
	for _, tx := range txs {
		if _, err := v.parent.saveTxLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (v *unitView) FindOnHoldTransactions(_ context.Context, id savings.AccountID) ([]*savings.Transaction, error) {
	return v.parent.holdsLocked(id), nil
}

func (v *unitView) ListAccounts(_ context.Context) ([]savings.AccountID, error) {
	return v.parent.listLocked(), nil
}

// Nested units reuse the ambient one.
func (v *unitView) WithUnit(ctx context.Context, fn func(context.Context, savings.Repository) error) error {
	return fn(ctx, v)
}
