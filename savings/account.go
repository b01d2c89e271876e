/*
account.go - The savings account aggregate root

PURPOSE:
  Account owns the full transaction history and the running state
  derived from it: balance, on-hold total, and the interest-posting
  boundary. The balance is always recomputed by replaying non-reversed
  transactions in (date, seq) order - there is no separately mutated
  balance that can drift from the history. That replay is exactly what
  makes backdated inserts safe: adding or reversing a transaction in
  the middle of the history and replaying yields the same state as if
  it had been posted in order.

INVARIANTS:
  1. balance - onHoldFunds >= 0 at the end of every committed operation
     (unless the caller supplies the explicit override flag)
  2. a blocked account rejects all mutating operations; debit/credit
     blocks reject the corresponding transaction type
  3. transactions are never removed; reversal marks the original and
     adds a linked reversal record

SEE ALSO:
  - transaction.go: factory methods that attach transactions
  - validate.go: balance and pivot-window validators
  - interest.go: posting-boundary maintenance
*/
package savings

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS - Consolidated block flags
// =============================================================================

// AccountStatus is a bitmask of block states. The zero value is an
// active, unblocked account.
type AccountStatus uint8

const (
	StatusBlocked AccountStatus = 1 << iota // all mutations rejected
	StatusDebitBlocked
	StatusCreditBlocked
	StatusDormant // set when the balance reaches zero, cleared on funds
)

func (s AccountStatus) Has(flag AccountStatus) bool { return s&flag != 0 }

func (s AccountStatus) String() string {
	if s == 0 {
		return "active"
	}
	var parts []string
	if s.Has(StatusBlocked) {
		parts = append(parts, "blocked")
	}
	if s.Has(StatusDebitBlocked) {
		parts = append(parts, "debit_blocked")
	}
	if s.Has(StatusCreditBlocked) {
		parts = append(parts, "credit_blocked")
	}
	if s.Has(StatusDormant) {
		parts = append(parts, "dormant")
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "," + p
	}
	return out
}

func ParseAccountStatus(s string) AccountStatus {
	var st AccountStatus
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			switch s[start:i] {
			case "blocked":
				st |= StatusBlocked
			case "debit_blocked":
				st |= StatusDebitBlocked
			case "credit_blocked":
				st |= StatusCreditBlocked
			case "dormant":
				st |= StatusDormant
			}
			start = i + 1
		}
	}
	return st
}

// DepositAccountType distinguishes product families. Only savings
// accounts are orchestrated by this core; the type is carried for the
// ledger and for error messages.
type DepositAccountType string

const (
	DepositSavings   DepositAccountType = "savings"
	DepositFixed     DepositAccountType = "fixed_deposit"
	DepositRecurring DepositAccountType = "recurring_deposit"
)

// =============================================================================
// ACCOUNT - Aggregate root
// =============================================================================

type Account struct {
	ID          AccountID
	Currency    string
	DepositType DepositAccountType
	Status      AccountStatus

	// Capability flags checked for regular (customer-initiated)
	// transactions only; system transactions bypass them.
	AllowWithdrawal bool
	AllowDeposit    bool

	// Running state, derived from the transaction history.
	Balance     Money
	OnHoldFunds Money

	// Optional flat fee debited alongside each charged withdrawal.
	WithdrawalFee Money

	// Interest configuration. Rate is annual and nominal, e.g. 0.05.
	AnnualInterestRate decimal.Decimal
	PostingPeriod      PostingPeriodType

	// InterestPostedThrough is the boundary through which interest has
	// been finalized. Zero when nothing has been posted yet.
	InterestPostedThrough TimePoint

	// AccruedInterest is the provisional (calculated, not posted)
	// interest since the boundary.
	AccruedInterest Money

	OpenedOn TimePoint

	Transactions []*Transaction

	// Version supports optimistic locking at the persistence boundary.
	Version int64

	seq int64
}

// NewAccount returns an active account with empty history.
func NewAccount(id AccountID, currency string, openedOn TimePoint) *Account {
	return &Account{
		ID:              id,
		Currency:        currency,
		DepositType:     DepositSavings,
		AllowWithdrawal: true,
		AllowDeposit:    true,
		Balance:         ZeroMoney(currency),
		OnHoldFunds:     ZeroMoney(currency),
		WithdrawalFee:   ZeroMoney(currency),
		AccruedInterest: ZeroMoney(currency),
		PostingPeriod:   PostMonthly,
		OpenedOn:        openedOn,
	}
}

// Clone returns a deep copy of the aggregate. Orchestrator operations
// mutate a clone and commit it only on success, so a failed step never
// leaves partial mutation behind.
func (a *Account) Clone() *Account {
	cp := *a
	cp.Transactions = make([]*Transaction, len(a.Transactions))
	for i, tx := range a.Transactions {
		cp.Transactions[i] = tx.Clone()
	}
	return &cp
}

// SetTransactions installs a loaded history and re-derives running
// state. Used by repositories after reading rows back.
func (a *Account) SetTransactions(txs []*Transaction) {
	a.Transactions = txs
	a.seq = 0
	for _, tx := range txs {
		if tx.Seq > a.seq {
			a.seq = tx.Seq
		}
	}
	a.Replay()
}

// attach inserts a freshly built transaction and replays state.
func (a *Account) attach(tx *Transaction) {
	a.Transactions = append(a.Transactions, tx)
	a.Replay()
}

// FindTransaction returns the owned transaction with the given ID.
func (a *Account) FindTransaction(id TransactionID) (*Transaction, error) {
	for _, tx := range a.Transactions {
		if tx.ID == id {
			return tx, nil
		}
	}
	return nil, ErrTransactionNotFound
}

// =============================================================================
// REPLAY - Running state derived from history
// =============================================================================

// Replay sorts the history into its stable (date, seq) order and
// recomputes balance, on-hold total, and per-transaction running
// balances. Reversed transactions contribute nothing; their snapshot is
// pinned to the balance at their position so downstream rows stay
// consistent.
func (a *Account) Replay() {
	sort.SliceStable(a.Transactions, func(i, j int) bool {
		ti, tj := a.Transactions[i], a.Transactions[j]
		if !ti.Date.Equal(tj.Date) {
			return ti.Date.Before(tj.Date)
		}
		return ti.Seq < tj.Seq
	})

	balance := ZeroMoney(a.Currency)
	onHold := ZeroMoney(a.Currency)
	for _, tx := range a.Transactions {
		if !tx.Reversed {
			balance = balance.Add(tx.EffectiveAmount())
			// Only active holds earmark funds. A release is a marker row;
			// the freed amount drops out because ReleaseHold flags the
			// hold itself, so counting the release too would double it.
			if tx.Type == TxHold {
				onHold = onHold.Add(tx.Amount)
			}
		}
		tx.RunningBalance = balance
	}
	a.Balance = balance
	a.OnHoldFunds = onHold
}

// BalanceAsOf returns the end-of-day balance on the given date,
// replaying non-reversed monetary transactions dated on or before it.
func (a *Account) BalanceAsOf(date TimePoint) Money {
	balance := ZeroMoney(a.Currency)
	for _, tx := range a.Transactions {
		if tx.Date.After(date) {
			break
		}
		if !tx.Reversed {
			balance = balance.Add(tx.EffectiveAmount())
		}
	}
	return balance
}

// UndoTransaction marks a transaction reversed and replays the running
// state, restoring the balance to what it would have been had the
// transaction never posted.
func (a *Account) UndoTransaction(tx *Transaction) error {
	if tx.Reversed {
		return ErrAlreadyReversed
	}
	tx.Reversed = true
	a.Replay()
	return nil
}

// ActivateBasedOnBalance clears dormancy once the account holds funds
// again. Called after reversal replay.
func (a *Account) ActivateBasedOnBalance() {
	if a.Balance.IsPositive() {
		a.Status &^= StatusDormant
	}
}

// =============================================================================
// POSTING BOUNDARY & PIVOT WINDOW
// =============================================================================

// IsBeforeLastPostingPeriod reports whether a transaction dated at date
// lands inside already-finalized interest periods, which forces a full
// re-post instead of a provisional recalculation.
func (a *Account) IsBeforeLastPostingPeriod(date TimePoint, allowBackdating bool) bool {
	if a.InterestPostedThrough.IsZero() {
		return false
	}
	// The boundary itself is identical in both modes; backdating only
	// changes how far before it a date is still accepted (PivotDate).
	return date.Before(a.InterestPostedThrough)
}

// PivotDate returns the earliest date a backdated transaction may carry:
// the posting boundary relaxed by the configured number of days. Zero
// when backdating is disallowed or nothing has been posted yet.
func (a *Account) PivotDate(allowBackdating bool, relaxingDays int) TimePoint {
	if !allowBackdating || a.InterestPostedThrough.IsZero() {
		return TimePoint{}
	}
	return a.InterestPostedThrough.AddDays(-relaxingDays)
}

// TransactionsInPivotWindow returns the transactions whose dates fall
// inside the open reconciliation window. These are the rows a backdated
// operation may have rewritten and must re-persist.
func (a *Account) TransactionsInPivotWindow(relaxingDays int) []*Transaction {
	pivot := a.PivotDate(true, relaxingDays)
	var out []*Transaction
	for _, tx := range a.Transactions {
		if pivot.IsZero() || tx.Date.AfterOrEqual(pivot) {
			out = append(out, tx)
		}
	}
	return out
}

// =============================================================================
// BLOCK VALIDATION
// =============================================================================

func (a *Account) ValidateForAccountBlock() error {
	if a.Status.Has(StatusBlocked) {
		return &OperationNotAllowedError{AccountID: a.ID, Action: "transaction", Reason: "account blocked"}
	}
	return nil
}

func (a *Account) ValidateForDebitBlock() error {
	if a.Status.Has(StatusDebitBlocked) {
		return &OperationNotAllowedError{AccountID: a.ID, Action: "withdraw", Reason: "debit blocked"}
	}
	return nil
}

func (a *Account) ValidateForCreditBlock() error {
	if a.Status.Has(StatusCreditBlocked) {
		return &OperationNotAllowedError{AccountID: a.ID, Action: "deposit", Reason: "credit blocked"}
	}
	return nil
}

// Touch bumps the optimistic-lock version; repositories call it on save.
func (a *Account) Touch() { a.Version++ }
