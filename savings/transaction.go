/*
transaction.go - Transaction records and the transaction factory

PURPOSE:
  A Transaction is one posted monetary event against an account. It is
  immutable once created except for the reversed flag and the charge
  allocations attached to it. Corrections never delete: a reversal is a
  new linked transaction plus the reversed flag on the original.

FACTORY CONTRACT:
  The factory methods (Deposit, Withdraw, HoldAmount, ReleaseHold,
  NewReversal) apply the monetary effect to the account's running state
  immediately on construction and stamp the caller-supplied correlation
  reference. They NEVER decide interest posting - that belongs to the
  orchestrator and the interest recalculator.

SEE ALSO:
  - account.go: running-state replay and validation
  - orchestrator.go: sequences factory -> interest -> persistence
*/
package savings

import (
	"fmt"
	"time"
)

// =============================================================================
// TRANSACTION - One posted monetary event
// =============================================================================

type Transaction struct {
	ID        TransactionID
	AccountID AccountID
	Type      TransactionType
	Amount    Money // positive magnitude; sign comes from Type
	Date      TimePoint

	// RunningBalance is the account balance immediately after this
	// transaction, recomputed whenever a backdated change replays the
	// history.
	RunningBalance Money

	// Ref is the opaque correlation reference stamped at creation.
	Ref string

	// Seq fixes the order of same-day transactions. Assigned by the
	// account when the transaction is attached; persisted so replay
	// order is stable across reloads.
	Seq int64

	Reversed bool

	// RequiresInterestRecalc tags transactions whose reversal must
	// re-derive interest (monetary movements; holds never qualify).
	RequiresInterestRecalc bool

	// LienAllowed permits a hold to exceed the available balance.
	LienAllowed bool

	// LinkedTo points a reversal at its original transaction and a
	// release at its hold.
	LinkedTo TransactionID

	Charges []ChargeAllocation
	Payment *PaymentDetail

	CreatedAt time.Time
}

// IsHold reports whether the transaction earmarks funds.
func (t *Transaction) IsHold() bool { return t.Type == TxHold }

// EffectiveAmount is the signed running-balance delta of the transaction,
// zero for holds, releases, and reversal markers.
func (t *Transaction) EffectiveAmount() Money {
	switch {
	case t.Type.IsCredit():
		return t.Amount
	case t.Type.IsDebit():
		return t.Amount.Neg()
	default:
		return ZeroMoney(t.Amount.Currency)
	}
}

// Clone returns a deep copy, charges included.
func (t *Transaction) Clone() *Transaction {
	cp := *t
	if t.Charges != nil {
		cp.Charges = append([]ChargeAllocation(nil), t.Charges...)
	}
	if t.Payment != nil {
		p := *t.Payment
		cp.Payment = &p
	}
	return &cp
}

// =============================================================================
// TRANSACTION FACTORY - Build + apply in one step
// =============================================================================

// TransactionInput carries the validated user inputs for a deposit or
// withdrawal.
type TransactionInput struct {
	Date    TimePoint
	Amount  Money
	Payment *PaymentDetail
}

func (a *Account) newTransaction(typ TransactionType, amount Money, date TimePoint, ref string) *Transaction {
	a.seq++
	return &Transaction{
		AccountID:              a.ID,
		Type:                   typ,
		Amount:                 amount,
		Date:                   date,
		Ref:                    ref,
		Seq:                    a.seq,
		CreatedAt:              time.Now().UTC(),
		RequiresInterestRecalc: typ.IsMonetary(),
	}
}

func (a *Account) validateInput(in TransactionInput, allowBackdating bool, relaxingDays int) error {
	if !in.Amount.IsPositive() {
		return fmt.Errorf("transaction amount must be positive, got %s", in.Amount)
	}
	if in.Amount.Currency != a.Currency {
		return fmt.Errorf("%w: account %s is %s, amount is %s",
			ErrCurrencyMismatch, a.ID, a.Currency, in.Amount.Currency)
	}
	return a.ValidatePivotDateTransaction(in.Date, allowBackdating, relaxingDays)
}

// Deposit constructs a credit transaction of the given type (plain
// deposit or dividend payout) and applies it to the running balance.
func (a *Account) Deposit(in TransactionInput, typ TransactionType, allowBackdating bool, relaxingDays int, ref string) (*Transaction, error) {
	if !typ.IsCredit() {
		return nil, fmt.Errorf("deposit with non-credit type %q", typ)
	}
	if err := a.validateInput(in, allowBackdating, relaxingDays); err != nil {
		return nil, err
	}
	tx := a.newTransaction(typ, in.Amount, in.Date, ref)
	tx.Payment = in.Payment
	a.attach(tx)
	return tx, nil
}

// Withdraw constructs a withdrawal and applies it to the running
// balance. When applyFee is set and the account carries a withdrawal
// fee, a linked fee transaction is created alongside.
func (a *Account) Withdraw(in TransactionInput, applyFee, allowBackdating bool, relaxingDays int, ref string) (*Transaction, error) {
	if err := a.validateInput(in, allowBackdating, relaxingDays); err != nil {
		return nil, err
	}
	tx := a.newTransaction(TxWithdrawal, in.Amount, in.Date, ref)
	tx.Payment = in.Payment
	a.attach(tx)

	if applyFee && a.WithdrawalFee.IsPositive() {
		// Shares the withdrawal's correlation reference; identifiers are
		// assigned at persistence time.
		fee := a.newTransaction(TxWithdrawalFee, a.WithdrawalFee, in.Date, ref)
		fee.Charges = []ChargeAllocation{{ChargeID: "withdrawal-fee", Amount: a.WithdrawalFee}}
		a.attach(fee)
	}
	return tx, nil
}

// HoldAmount earmarks funds against the account. Holds bypass
// reconciliation and interest recalculation entirely. Unless lien is
// allowed, the hold must fit inside the available balance.
func (a *Account) HoldAmount(amount Money, date TimePoint, lienAllowed bool, ref string) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("hold amount must be positive, got %s", amount)
	}
	if amount.Currency != a.Currency {
		return nil, fmt.Errorf("%w: account %s is %s, amount is %s",
			ErrCurrencyMismatch, a.ID, a.Currency, amount.Currency)
	}
	if !lienAllowed {
		available := a.Balance.Sub(a.OnHoldFunds)
		if available.LessThan(amount) {
			return nil, &InsufficientFundsError{AccountID: a.ID, Available: available, Requested: amount}
		}
	}
	tx := a.newTransaction(TxHold, amount, date, ref)
	tx.LienAllowed = lienAllowed
	a.attach(tx)
	return tx, nil
}

// ReleaseHold frees previously earmarked funds.
func (a *Account) ReleaseHold(hold *Transaction, date TimePoint, ref string) (*Transaction, error) {
	if !hold.IsHold() || hold.Reversed {
		return nil, fmt.Errorf("%w: %s is not an active hold", ErrTransactionNotFound, hold.ID)
	}
	tx := a.newTransaction(TxRelease, hold.Amount, date, ref)
	tx.LinkedTo = hold.ID
	hold.Reversed = true
	a.attach(tx)
	return tx, nil
}

// NewReversal builds the reversal record for a transaction, copying the
// original's charge allocations. The balance effect comes from marking
// the original reversed (UndoTransaction), not from this record.
func (a *Account) NewReversal(original *Transaction, ref string) *Transaction {
	tx := a.newTransaction(TxReversal, original.Amount, original.Date, ref)
	tx.LinkedTo = original.ID
	tx.RequiresInterestRecalc = original.RequiresInterestRecalc
	if len(original.Charges) > 0 {
		tx.Charges = append([]ChargeAllocation(nil), original.Charges...)
	}
	a.attach(tx)
	return tx
}
