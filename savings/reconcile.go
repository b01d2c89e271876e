/*
reconcile.go - Reconciliation scope for ledger diffing

PURPOSE:
  Every mutating operation snapshots which transactions the ledger
  already knows about BEFORE the operation touches anything. After the
  operation commits, the ledger gateway diffs the account's history
  against that snapshot to find what changed - new transactions and
  newly reversed ones - and posts journal entries for exactly that
  delta, exactly once.

TWO MODES:
  Pivot-window mode (backdating allowed) bounds the snapshot to the
  open interest-reconciliation window; replaying an account's whole
  history on every transaction does not scale once accounts are
  long-lived. Full-history mode is kept for installations that disable
  backdating entirely.

LIFECYCLE:
  Created fresh per operation, populated once, handed to the ledger
  gateway, then discarded. The scope never mutates account state.
*/
package savings

// ReconciliationScope captures "what the ledger knew before this
// operation": identifiers of existing transactions and of transactions
// already reversed.
type ReconciliationScope struct {
	Existing         map[TransactionID]struct{}
	ExistingReversed map[TransactionID]struct{}

	// From is the window cutoff the snapshot was taken with: the ledger
	// diff considers only transactions dated on or after it. Zero means
	// the whole history was scoped.
	From TimePoint
}

func newScope() ReconciliationScope {
	return ReconciliationScope{
		Existing:         make(map[TransactionID]struct{}),
		ExistingReversed: make(map[TransactionID]struct{}),
	}
}

// Knows reports whether the transaction existed before the operation.
func (s ReconciliationScope) Knows(id TransactionID) bool {
	_, ok := s.Existing[id]
	return ok
}

// KnowsReversed reports whether the transaction was already reversed
// before the operation.
func (s ReconciliationScope) KnowsReversed(id TransactionID) bool {
	_, ok := s.ExistingReversed[id]
	return ok
}

// ScopeFor computes the reconciliation scope for one operation.
//
// With backdating allowed, only transactions inside the pivot-date
// window are considered: everything older is final and the ledger diff
// can never touch it. Without backdating, the whole history is scoped.
func ScopeFor(a *Account, allowBackdating bool, relaxingDays int) ReconciliationScope {
	scope := newScope()
	var txs []*Transaction
	if allowBackdating {
		txs = a.TransactionsInPivotWindow(relaxingDays)
		scope.From = a.PivotDate(true, relaxingDays)
	} else {
		txs = a.Transactions
	}
	for _, tx := range txs {
		if tx.ID == "" {
			continue // not yet persisted, cannot be known to the ledger
		}
		scope.Existing[tx.ID] = struct{}{}
		if tx.Reversed {
			scope.ExistingReversed[tx.ID] = struct{}{}
		}
	}
	return scope
}
