/*
validate.go - Balance and pivot-window validators

PURPOSE:
  Enforces the non-negative-balance invariant (including held/lien
  funds) and the backdating window before a mutation is committed.
  Validators run AFTER the factory has applied the mutation to the
  in-memory aggregate but BEFORE anything is persisted, so a failure
  simply discards the working copy.
*/
package savings

// ValidateBalanceNonNegative checks that the running balance minus the
// total of non-reversed on-hold funds stays non-negative after a debit
// of amount. The allowException override suppresses the check entirely
// (used for system-driven debits that may overdraw). The hold list is
// the repository's view, loaded only when the aggregate reports any
// on-hold funds.
func (a *Account) ValidateBalanceNonNegative(amount Money, allowException bool, holds []*Transaction, allowBackdating bool) error {
	if allowException {
		return nil
	}
	held := ZeroMoney(a.Currency)
	for _, h := range holds {
		if h.IsHold() && !h.Reversed {
			held = held.Add(h.Amount)
		}
	}
	available := a.Balance.Sub(held)
	if available.IsNegative() {
		// Balance already includes the debit under validation; report
		// the availability the caller saw before it.
		return &InsufficientFundsError{
			AccountID: a.ID,
			Available: available.Add(amount),
			Requested: amount,
		}
	}
	if allowBackdating {
		// A backdated debit must also not have driven any intermediate
		// running balance negative.
		for _, tx := range a.Transactions {
			if !tx.Reversed && tx.RunningBalance.IsNegative() {
				return &InsufficientFundsError{
					AccountID: a.ID,
					Available: tx.RunningBalance.Add(amount),
					Requested: amount,
				}
			}
		}
	}
	return nil
}

// ValidateBalanceNonNegativeMinimal is the reduced-cost variant used
// after reversal replay. It ignores on-hold funds: a reversal does not
// re-examine liens.
func (a *Account) ValidateBalanceNonNegativeMinimal(amount Money, allowException bool) error {
	if allowException {
		return nil
	}
	if a.Balance.IsNegative() {
		return &InsufficientFundsError{
			AccountID: a.ID,
			Available: a.Balance.Add(amount),
			Requested: amount,
		}
	}
	return nil
}

// ValidatePivotDateTransaction rejects dates outside the currently
// allowed backdating window. A no-op when backdating is disallowed or
// no interest has been posted yet.
func (a *Account) ValidatePivotDateTransaction(date TimePoint, allowBackdating bool, relaxingDays int) error {
	pivot := a.PivotDate(allowBackdating, relaxingDays)
	if pivot.IsZero() {
		return nil
	}
	if date.Before(pivot) {
		return &PivotDateError{AccountID: a.ID, Date: date, PivotDate: pivot}
	}
	return nil
}
