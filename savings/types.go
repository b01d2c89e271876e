/*
Package savings is the transaction core for interest-bearing deposit accounts.

PURPOSE:
  This package contains the account aggregate, the transaction factory,
  the balance validators, the reconciliation scope engine, the interest
  recalculator, and the orchestrator that sequences them into atomic
  units of work. The hard problem it solves is not deposit/withdrawal
  arithmetic but consistency under BACKDATED transactions: when a
  transaction lands before the most recent interest-posting boundary,
  every affected downstream transaction and interest posting must be
  identified, unwound, and recomputed in a stable order.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: a decimal quantity in a currency (never floats)
  - TransactionType: deposit, withdrawal, dividend payout, interest
    posting, hold, release, reversal
  - Account/Transaction IDs: type-safe identifiers
  - PaymentDetail: how funds moved (cash, transfer, cheque)

DESIGN PRINCIPLES:
  1. Immutability: transactions are never deleted, only reversed
  2. Precision: decimal.Decimal for all monetary math
  3. Exactly-once accounting: every committed operation produces one
     ledger propagation, computed from a reconciliation scope diff

SEE ALSO:
  - account.go: the aggregate root and its invariants
  - transaction.go: the transaction factory
  - orchestrator.go: the public operations
*/
package savings

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal quantity in a currency
// =============================================================================

type Money struct {
	Amount   decimal.Decimal
	Currency string
}

func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

func MoneyFromInt(v int64, currency string) Money {
	return Money{Amount: decimal.NewFromInt(v), Currency: currency}
}

func MoneyFromString(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	return Money{Amount: d, Currency: currency}, nil
}

func ZeroMoney(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

func (m Money) Add(o Money) Money        { return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency} }
func (m Money) Sub(o Money) Money        { return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency} }
func (m Money) Neg() Money               { return Money{Amount: m.Amount.Neg(), Currency: m.Currency} }
func (m Money) IsZero() bool             { return m.Amount.IsZero() }
func (m Money) IsNegative() bool         { return m.Amount.IsNegative() }
func (m Money) IsPositive() bool         { return m.Amount.IsPositive() }
func (m Money) LessThan(o Money) bool    { return m.Amount.LessThan(o.Amount) }
func (m Money) GreaterThan(o Money) bool { return m.Amount.GreaterThan(o.Amount) }
func (m Money) Equal(o Money) bool       { return m.Currency == o.Currency && m.Amount.Equal(o.Amount) }

func (m Money) String() string {
	return m.Amount.String() + " " + m.Currency
}

// SameCurrency reports whether both amounts share one currency code.
// Cross-currency arithmetic is a programming error in this core.
func (m Money) SameCurrency(o Money) bool { return m.Currency == o.Currency }

// =============================================================================
// ROUNDING - Explicit precision policy for interest math
// =============================================================================

// Rounding is the numeric contract for interest computation. One
// configured policy applies uniformly to the normal and reversal flows,
// so a reversal re-derivation always lands on the posted amounts.
type Rounding struct {
	Places int32
	Mode   RoundingMode
}

type RoundingMode int

const (
	RoundHalfUp RoundingMode = iota
	RoundHalfEven
	RoundFloor
	RoundCeil
)

// DefaultRounding matches common currency handling: 2 places, half-up.
func DefaultRounding() Rounding {
	return Rounding{Places: 2, Mode: RoundHalfUp}
}

func (r Rounding) Apply(d decimal.Decimal) decimal.Decimal {
	switch r.Mode {
	case RoundHalfEven:
		return d.RoundBank(r.Places)
	case RoundFloor:
		return d.RoundFloor(r.Places)
	case RoundCeil:
		return d.RoundCeil(r.Places)
	default:
		return d.Round(r.Places)
	}
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type TransactionID string

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

type TransactionType string

const (
	TxDeposit         TransactionType = "deposit"
	TxWithdrawal      TransactionType = "withdrawal"
	TxWithdrawalFee   TransactionType = "withdrawal_fee"
	TxDividendPayout  TransactionType = "dividend_payout"
	TxInterestPosting TransactionType = "interest_posting"
	TxHold            TransactionType = "hold"
	TxRelease         TransactionType = "release"
	TxReversal        TransactionType = "reversal"
)

// IsCredit reports whether the type increases the running balance.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TxDeposit, TxDividendPayout, TxInterestPosting:
		return true
	}
	return false
}

// IsDebit reports whether the type decreases the running balance.
func (t TransactionType) IsDebit() bool {
	switch t {
	case TxWithdrawal, TxWithdrawalFee:
		return true
	}
	return false
}

// IsMonetary reports whether the type moves the running balance at all.
// Holds and releases only move the on-hold total.
func (t TransactionType) IsMonetary() bool { return t.IsCredit() || t.IsDebit() }

// =============================================================================
// PAYMENT DETAIL - How the funds moved
// =============================================================================

type PaymentDetail struct {
	Method    string // "cash", "transfer", "cheque", ...
	Reference string // external receipt/cheque number
}

// =============================================================================
// CHARGE ALLOCATION - Charges settled by a transaction
// =============================================================================

// ChargeAllocation records the share of a transaction that settled a
// charge. Reversals copy the original's allocations so the ledger can
// unwind them.
type ChargeAllocation struct {
	ChargeID string
	Amount   Money
}
