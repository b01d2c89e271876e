/*
interest.go - Interest posting and provisional recalculation

PURPOSE:
  Decides between the two interest flows and implements both:

  POST      finalizes every complete posting period up to the business
            date. Posted interest is not revised by later provisional
            recalculation at the same boundary; a backdated transaction
            that lands inside a finalized period forces a re-post,
            which reverses the stale posting and writes a corrected one.
  CALCULATE provisionally derives accrued interest since the boundary.
            It may be re-derived at any time and posts nothing.

DECISION RULE (applied identically in deposit, withdrawal, reversal):
  transaction date strictly before the posting boundary -> POST
  otherwise                                             -> CALCULATE

ACCRUAL MODEL:
  Daily accrual on positive end-of-day balances, nominal annual rate,
  365-day year. A period's own posting (dated at the period end) is
  excluded from that period's accrual base; earlier postings compound
  into later periods.

NUMERIC CONTRACT:
  One Rounding policy from configuration, applied uniformly in every
  flow. Normal and reversal flows must round identically;
  interest_test.go pins both paths to the same amounts.
*/
package savings

import (
	"time"

	"github.com/shopspring/decimal"
)

var daysInYear = decimal.NewFromInt(365)

// =============================================================================
// INPUTS
// =============================================================================

// InterestInput carries everything the recalculator needs for one pass.
type InterestInput struct {
	Rounding             Rounding
	Today                TimePoint // current business date
	IsInterestTransfer   bool
	PostingAtPeriodEnd   bool // post a period on its final day, not the day after
	FiscalYearStartMonth time.Month
	AllowBackdating      bool
	PostReversals        bool // write reversal records for interest adjustments

	// PostInterestOn is an optional explicit posting date, accepted for
	// callers that schedule postings themselves. No caller in this core
	// supplies it.
	PostInterestOn *TimePoint

	// NewRef supplies correlation references for postings created during
	// the pass. Defaults to reusing the stale posting's reference.
	NewRef func() string
}

func (in InterestInput) ref(fallback string) string {
	if in.NewRef != nil {
		return in.NewRef()
	}
	return fallback
}

// =============================================================================
// RECALCULATOR
// =============================================================================

// InterestRecalculator is the seam the orchestrator calls through, so
// tests can record which variant ran for a given transaction date.
type InterestRecalculator interface {
	// PostInterest finalizes complete periods and advances the boundary.
	PostInterest(a *Account, in InterestInput) error

	// CalculateInterest refreshes the provisional accrued figure.
	CalculateInterest(a *Account, in InterestInput) error
}

// StandardRecalculator is the production implementation.
type StandardRecalculator struct{}

func (r *StandardRecalculator) PostInterest(a *Account, in InterestInput) error {
	first := a.firstMonetaryDate()
	if first.IsZero() {
		return nil
	}

	period := a.PostingPeriod.PeriodFor(first, in.FiscalYearStartMonth)
	lastEnd := TimePoint{}
	for r.periodComplete(period, in) {
		expected := in.Rounding.Apply(r.periodAccrual(a, period))
		r.reconcilePosting(a, period, expected, in)
		lastEnd = period.End
		period = a.PostingPeriod.NextPeriod(period, in.FiscalYearStartMonth)
	}

	if !lastEnd.IsZero() {
		boundary := lastEnd.AddDays(1)
		if a.InterestPostedThrough.IsZero() || a.InterestPostedThrough.Before(boundary) {
			a.InterestPostedThrough = boundary
		}
	}

	// Refresh the provisional figure for the open partial period.
	return r.CalculateInterest(a, in)
}

func (r *StandardRecalculator) CalculateInterest(a *Account, in InterestInput) error {
	first := a.firstMonetaryDate()
	if first.IsZero() {
		a.AccruedInterest = ZeroMoney(a.Currency)
		return nil
	}
	from := first
	if !a.InterestPostedThrough.IsZero() && a.InterestPostedThrough.After(from) {
		from = a.InterestPostedThrough
	}
	sum := decimal.Zero
	for day := from; !day.After(in.Today); day = day.AddDays(1) {
		sum = sum.Add(r.dailyAccrual(a, day, TimePoint{}))
	}
	a.AccruedInterest = NewMoney(in.Rounding.Apply(sum), a.Currency)
	return nil
}

// periodComplete reports whether the period may be finalized on the
// current business date.
func (r *StandardRecalculator) periodComplete(p Period, in InterestInput) bool {
	if p.End.Before(in.Today) {
		return true
	}
	return in.PostingAtPeriodEnd && p.End.Equal(in.Today)
}

// reconcilePosting brings the period's interest-posting transaction in
// line with the expected amount: keeps a matching posting, reverses a
// stale one (writing a reversal record when the toggle is on), and
// appends the corrected posting.
func (r *StandardRecalculator) reconcilePosting(a *Account, p Period, expected decimal.Decimal, in InterestInput) {
	existing := a.activePostingAt(p.End)

	if existing != nil && existing.Amount.Amount.Equal(expected) {
		return
	}
	if existing != nil {
		existing.Reversed = true
		if in.PostReversals {
			a.NewReversal(existing, in.ref(existing.Ref))
		} else {
			a.Replay()
		}
	}
	if !expected.IsZero() {
		fallback := ""
		if existing != nil {
			fallback = existing.Ref
		}
		tx := a.newTransaction(TxInterestPosting, NewMoney(expected, a.Currency), p.End, in.ref(fallback))
		a.attach(tx)
	}
}

// periodAccrual sums daily accrual over the period, excluding the
// period's own posting from its accrual base.
func (r *StandardRecalculator) periodAccrual(a *Account, p Period) decimal.Decimal {
	sum := decimal.Zero
	for day := p.Start; !day.After(p.End); day = day.AddDays(1) {
		sum = sum.Add(r.dailyAccrual(a, day, p.End))
	}
	return sum
}

// dailyAccrual returns the unrounded interest earned on the end-of-day
// balance. Interest postings dated excludePostingOn are left out of the
// balance (a period never accrues on itself). Negative balances accrue
// nothing.
func (r *StandardRecalculator) dailyAccrual(a *Account, day, excludePostingOn TimePoint) decimal.Decimal {
	balance := decimal.Zero
	for _, tx := range a.Transactions {
		if tx.Date.After(day) {
			break
		}
		if tx.Reversed || !tx.Type.IsMonetary() {
			continue
		}
		if tx.Type == TxInterestPosting && !excludePostingOn.IsZero() && tx.Date.Equal(excludePostingOn) {
			continue
		}
		balance = balance.Add(tx.EffectiveAmount().Amount)
	}
	if !balance.IsPositive() {
		return decimal.Zero
	}
	return balance.Mul(a.AnnualInterestRate).Div(daysInYear)
}

// firstMonetaryDate returns the date of the earliest non-reversed
// monetary transaction, zero when the history holds none.
func (a *Account) firstMonetaryDate() TimePoint {
	for _, tx := range a.Transactions {
		if !tx.Reversed && tx.Type.IsMonetary() {
			return tx.Date
		}
	}
	return TimePoint{}
}

// activePostingAt finds the non-reversed interest posting dated at the
// period end, nil when none exists.
func (a *Account) activePostingAt(periodEnd TimePoint) *Transaction {
	for _, tx := range a.Transactions {
		if tx.Type == TxInterestPosting && !tx.Reversed && tx.Date.Equal(periodEnd) {
			return tx
		}
	}
	return nil
}
