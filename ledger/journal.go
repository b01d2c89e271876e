/*
journal.go - Double-entry journal propagation

PURPOSE:
  Bridges committed savings operations into a double-entry journal.
  The core never constructs journal entries itself; it hands the writer
  a reconciliation scope (what the ledger knew before the operation)
  and the writer derives the delta - new transactions and newly
  reversed ones - and appends balanced debit/credit pairs for exactly
  that delta.

CRITICAL INVARIANTS:
  1. EXACTLY ONCE: Submit runs once per committed operation. The diff
     against the scope guarantees re-deriving produces no duplicates.
  2. BALANCED: every monetary transaction yields one debit and one
     credit of equal amount.
  3. APPEND-ONLY: reversals flip the original pair; nothing is edited.

GL MAPPING:
  deposit / dividend payout   debit cash            credit savings control
  interest posting            debit interest exp.   credit savings control
  withdrawal / fee            debit savings control credit cash / fee income
  account transfers           clearing account replaces cash

SEE ALSO:
  - savings/reconcile.go: how the scope snapshot is taken
  - savings/gateway.go:   the contract this package implements
*/
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/savings-core/savings"
)

// =============================================================================
// ENTRIES
// =============================================================================

type EntryType string

const (
	Debit  EntryType = "debit"
	Credit EntryType = "credit"
)

// GL account codes. Fixed chart; product-specific charts are out of
// scope for the core.
const (
	GLCash             = "1001-cash"
	GLTransferClearing = "1002-transfer-clearing"
	GLSavingsControl   = "2001-savings-control"
	GLInterestExpense  = "5001-interest-expense"
	GLFeeIncome        = "4001-fee-income"
)

// JournalEntry is one leg of a balanced pair.
type JournalEntry struct {
	ID            string
	AccountID     savings.AccountID
	TransactionID savings.TransactionID
	GLAccount     string
	Type          EntryType
	Amount        decimal.Decimal
	Currency      string
	Date          savings.TimePoint
	Ref           string
	Reversal      bool
	CreatedAt     time.Time
}

// JournalStore persists entries. Append-only.
type JournalStore interface {
	Append(ctx context.Context, entries []JournalEntry) error
	Entries(ctx context.Context, id savings.AccountID) ([]JournalEntry, error)
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryJournal is the in-memory store used by tests and the dev server.
type MemoryJournal struct {
	mu      sync.Mutex
	entries []JournalEntry
}

func NewMemoryJournal() *MemoryJournal { return &MemoryJournal{} }

func (m *MemoryJournal) Append(_ context.Context, entries []JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *MemoryJournal) Entries(_ context.Context, id savings.AccountID) ([]JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []JournalEntry
	for _, e := range m.entries {
		if e.AccountID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// =============================================================================
// WRITER - implements savings.LedgerGateway
// =============================================================================

type Writer struct {
	Store JournalStore
	NewID func() string
}

func NewWriter(store JournalStore) *Writer {
	return &Writer{Store: store, NewID: uuid.NewString}
}

// DeriveBridgeData diffs the account's history against the scope: a
// transaction is new when the scope never saw its identifier, and newly
// reversed when the scope saw it un-reversed. Transactions dated before
// the scope's window cutoff are final and never re-examined.
func (w *Writer) DeriveBridgeData(a *savings.Account, currencyCode string, scope savings.ReconciliationScope, isAccountTransfer, allowBackdating bool) savings.BridgeData {
	data := savings.BridgeData{
		AccountID:         a.ID,
		CurrencyCode:      currencyCode,
		DepositType:       a.DepositType,
		IsAccountTransfer: isAccountTransfer,
		AllowBackdating:   allowBackdating,
	}
	for _, tx := range a.Transactions {
		if !scope.From.IsZero() && tx.Date.Before(scope.From) {
			continue
		}
		if tx.ID == "" || !scope.Knows(tx.ID) {
			data.NewTransactions = append(data.NewTransactions, tx)
			continue
		}
		if tx.Reversed && !scope.KnowsReversed(tx.ID) {
			data.NewlyReversed = append(data.NewlyReversed, tx)
		}
	}
	return data
}

// SubmitJournalEntries appends the balanced pairs for the delta. New
// transactions that were reversed within the same operation net to
// nothing and are skipped.
func (w *Writer) SubmitJournalEntries(ctx context.Context, data savings.BridgeData) error {
	var entries []JournalEntry
	for _, tx := range data.NewTransactions {
		if !tx.Type.IsMonetary() || tx.Reversed {
			continue
		}
		pair, err := w.pairFor(data, tx, false)
		if err != nil {
			return err
		}
		entries = append(entries, pair...)
	}
	for _, tx := range data.NewlyReversed {
		if !tx.Type.IsMonetary() {
			continue
		}
		pair, err := w.pairFor(data, tx, true)
		if err != nil {
			return err
		}
		entries = append(entries, pair...)
	}
	if len(entries) == 0 {
		return nil
	}
	return w.Store.Append(ctx, entries)
}

// pairFor maps one transaction onto its debit/credit pair. reversal
// flips the pair.
func (w *Writer) pairFor(data savings.BridgeData, tx *savings.Transaction, reversal bool) ([]JournalEntry, error) {
	cash := GLCash
	if data.IsAccountTransfer {
		cash = GLTransferClearing
	}

	var debitGL, creditGL string
	switch tx.Type {
	case savings.TxDeposit, savings.TxDividendPayout:
		debitGL, creditGL = cash, GLSavingsControl
	case savings.TxInterestPosting:
		debitGL, creditGL = GLInterestExpense, GLSavingsControl
	case savings.TxWithdrawal:
		debitGL, creditGL = GLSavingsControl, cash
	case savings.TxWithdrawalFee:
		debitGL, creditGL = GLSavingsControl, GLFeeIncome
	default:
		return nil, fmt.Errorf("journal: no mapping for transaction type %q", tx.Type)
	}
	if reversal {
		debitGL, creditGL = creditGL, debitGL
	}

	now := time.Now().UTC()
	leg := func(gl string, typ EntryType) JournalEntry {
		return JournalEntry{
			ID:            w.NewID(),
			AccountID:     data.AccountID,
			TransactionID: tx.ID,
			GLAccount:     gl,
			Type:          typ,
			Amount:        tx.Amount.Amount,
			Currency:      data.CurrencyCode,
			Date:          tx.Date,
			Ref:           tx.Ref,
			Reversal:      reversal,
			CreatedAt:     now,
		}
	}
	return []JournalEntry{leg(debitGL, Debit), leg(creditGL, Credit)}, nil
}
