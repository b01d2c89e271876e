/*
orchestrator.go - Public operations, each one atomic unit of work

PURPOSE:
  Service sequences every mutating operation through the same spine:

    auth gate -> per-account lock -> unit of work {
        load -> block/capability checks -> reconciliation scope ->
        factory mutation -> interest post-or-calculate ->
        balance validation -> persistence -> ledger propagation
    } -> notification (best effort)

  Any failure anywhere inside the unit rolls the whole operation back;
  no partial state is ever durable. Operations against the same account
  serialize on a keyed mutex; different accounts run in parallel.

INTEREST DECISION:
  A transaction dated strictly before the posting boundary forces a
  full post (finalizing, reverses stale postings); anything else runs
  the provisional calculation. The rule is applied identically for
  deposits, withdrawals, and reversals.

SEE ALSO:
  - reconcile.go: scope snapshot handed to the ledger gateway
  - interest.go: the two interest flows
*/
package savings

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionFlags bundles the per-operation booleans threaded through
// a withdrawal or deposit.
type TransactionFlags struct {
	// IsRegularTransaction marks customer-initiated movements, which
	// must pass the account's allow-withdrawal/allow-deposit gates.
	IsRegularTransaction bool

	// ApplyWithdrawFee debits the account's withdrawal fee alongside.
	ApplyWithdrawFee bool

	// IsInterestTransfer marks movements between interest-bearing
	// products; forwarded to the interest recalculator.
	IsInterestTransfer bool

	// IsExceptionForBalanceCheck suppresses the non-negative-balance
	// validation (explicit caller override).
	IsExceptionForBalanceCheck bool

	// IsAccountTransfer tags the ledger propagation of inter-account
	// transfers.
	IsAccountTransfer bool
}

// Service is the transaction orchestrator.
type Service struct {
	Repo     Repository
	Config   Config
	Ledger   LedgerGateway
	Notifier Notifier
	Auth     AuthContext
	Interest InterestRecalculator

	// Clock supplies the business date; NewRef supplies correlation
	// references. Both are injectable for deterministic tests.
	Clock  func() TimePoint
	NewRef func() string

	mu    sync.Mutex
	locks map[AccountID]*sync.Mutex
}

// NewService wires a Service with production defaults.
func NewService(repo Repository, cfg Config, ledger LedgerGateway) *Service {
	return &Service{
		Repo:     repo,
		Config:   cfg,
		Ledger:   ledger,
		Notifier: LogNotifier{},
		Auth:     StaticAuth{User: "system"},
		Interest: &StandardRecalculator{},
		Clock:    Today,
		NewRef:   uuid.NewString,
	}
}

// lockAccount serializes operations against one account. Returns the
// unlock function.
func (s *Service) lockAccount(id AccountID) func() {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = make(map[AccountID]*sync.Mutex)
	}
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (s *Service) interestInput(isInterestTransfer, allowBackdating, postReversals bool) InterestInput {
	return InterestInput{
		Rounding:             s.Config.Rounding(),
		Today:                s.Clock(),
		IsInterestTransfer:   isInterestTransfer,
		PostingAtPeriodEnd:   s.Config.InterestPostingAtPeriodEnd(),
		FiscalYearStartMonth: s.Config.FinancialYearStartMonth(),
		AllowBackdating:      allowBackdating,
		PostReversals:        postReversals,
		NewRef:               s.NewRef,
	}
}

// recalculate applies the post-vs-calculate decision rule for a
// transaction dated at date.
func (s *Service) recalculate(a *Account, date TimePoint, in InterestInput) error {
	if a.IsBeforeLastPostingPeriod(date, in.AllowBackdating) {
		return s.Interest.PostInterest(a, in)
	}
	return s.Interest.CalculateInterest(a, in)
}

// rewrittenRows returns the rows a mutation may have touched: the pivot
// window plus any rows created this operation and not yet persisted.
// Interest re-posting can date a fresh posting on the day before the
// just-advanced boundary, which falls outside a zero-relaxing-days
// window; the empty-identifier check keeps such rows in the batch.
func rewrittenRows(a *Account, allowBackdating bool, relaxingDays int) []*Transaction {
	if !allowBackdating {
		return a.Transactions
	}
	pivot := a.PivotDate(true, relaxingDays)
	var out []*Transaction
	for _, tx := range a.Transactions {
		if tx.ID == "" || pivot.IsZero() || tx.Date.AfterOrEqual(pivot) {
			out = append(out, tx)
		}
	}
	return out
}

// persistOutcome writes the created transaction (obtaining its ID), the
// rewritten history, and the aggregate, in that order.
func (s *Service) persistOutcome(ctx context.Context, repo Repository, a *Account, created *Transaction, allowBackdating bool, relaxingDays int) error {
	if created != nil {
		if _, err := repo.SaveTransaction(ctx, created); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}
	// Backdating rewrites running balances and postings inside the
	// pivot window; without backdating the full history is in scope.
	if err := repo.SaveTransactions(ctx, rewrittenRows(a, allowBackdating, relaxingDays)); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	a.Touch()
	if err := repo.Save(ctx, a); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// propagate derives the accounting bridge data and submits journal
// entries. Exactly once per committed operation.
func (s *Service) propagate(ctx context.Context, a *Account, scope ReconciliationScope, isAccountTransfer, allowBackdating bool) error {
	bridge := s.Ledger.DeriveBridgeData(a, a.Currency, scope, isAccountTransfer, allowBackdating)
	if err := s.Ledger.SubmitJournalEntries(ctx, bridge); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerPropagation, err)
	}
	return nil
}

// =============================================================================
// WITHDRAWAL
// =============================================================================

func (s *Service) ApplyWithdrawal(ctx context.Context, id AccountID, date TimePoint, amount decimal.Decimal, payment *PaymentDetail, flags TransactionFlags, allowBackdating bool) (*Transaction, error) {
	if _, err := s.Auth.CurrentUser(ctx); err != nil {
		return nil, err
	}
	unlock := s.lockAccount(id)
	defer unlock()

	relaxingDays := s.Config.RelaxingDaysForPivotDate()
	postReversals := s.Config.ReversalTransactionAllowed()

	var created *Transaction
	err := s.Repo.WithUnit(ctx, func(ctx context.Context, repo Repository) error {
		a, err := repo.Load(ctx, id)
		if err != nil {
			return err
		}
		if err := a.ValidateForAccountBlock(); err != nil {
			return err
		}
		if err := a.ValidateForDebitBlock(); err != nil {
			return err
		}
		if flags.IsRegularTransaction && !a.AllowWithdrawal {
			return &OperationNotAllowedError{AccountID: a.ID, Action: "withdraw", Reason: "withdrawals not enabled for " + string(a.DepositType)}
		}

		scope := ScopeFor(a, allowBackdating, relaxingDays)

		money := NewMoney(amount, a.Currency)
		withdrawal, err := a.Withdraw(
			TransactionInput{Date: date, Amount: money, Payment: payment},
			flags.ApplyWithdrawFee, allowBackdating, relaxingDays, s.NewRef(),
		)
		if err != nil {
			return err
		}

		if err := s.recalculate(a, date, s.interestInput(flags.IsInterestTransfer, allowBackdating, postReversals)); err != nil {
			return err
		}

		var holds []*Transaction
		if a.OnHoldFunds.IsPositive() {
			if holds, err = repo.FindOnHoldTransactions(ctx, id); err != nil {
				return fmt.Errorf("%w: %v", ErrPersistence, err)
			}
		}
		if err := a.ValidateBalanceNonNegative(money, flags.IsExceptionForBalanceCheck, holds, allowBackdating); err != nil {
			return err
		}

		if err := s.persistOutcome(ctx, repo, a, withdrawal, allowBackdating, relaxingDays); err != nil {
			return err
		}
		if err := s.propagate(ctx, a, scope, flags.IsAccountTransfer, allowBackdating); err != nil {
			return err
		}
		created = withdrawal
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Notifier.Notify(ctx, WithdrawalPosted{Transaction: created})
	return created, nil
}

// =============================================================================
// DEPOSIT & DIVIDEND PAYOUT
// =============================================================================

func (s *Service) ApplyDeposit(ctx context.Context, id AccountID, date TimePoint, amount decimal.Decimal, payment *PaymentDetail, flags TransactionFlags, allowBackdating bool) (*Transaction, error) {
	return s.applyDeposit(ctx, id, date, amount, payment, flags, TxDeposit, allowBackdating)
}

// ApplyDividendPayout models a dividend as a deposit with a specialized
// type; it is always a regular transaction and never a transfer.
func (s *Service) ApplyDividendPayout(ctx context.Context, id AccountID, date TimePoint, amount decimal.Decimal, allowBackdating bool) (*Transaction, error) {
	flags := TransactionFlags{IsRegularTransaction: true}
	return s.applyDeposit(ctx, id, date, amount, nil, flags, TxDividendPayout, allowBackdating)
}

func (s *Service) applyDeposit(ctx context.Context, id AccountID, date TimePoint, amount decimal.Decimal, payment *PaymentDetail, flags TransactionFlags, typ TransactionType, allowBackdating bool) (*Transaction, error) {
	if _, err := s.Auth.CurrentUser(ctx); err != nil {
		return nil, err
	}
	unlock := s.lockAccount(id)
	defer unlock()

	relaxingDays := s.Config.RelaxingDaysForPivotDate()
	postReversals := s.Config.ReversalTransactionAllowed()

	var created *Transaction
	err := s.Repo.WithUnit(ctx, func(ctx context.Context, repo Repository) error {
		a, err := repo.Load(ctx, id)
		if err != nil {
			return err
		}
		if err := a.ValidateForAccountBlock(); err != nil {
			return err
		}
		if err := a.ValidateForCreditBlock(); err != nil {
			return err
		}
		if flags.IsRegularTransaction && !a.AllowDeposit {
			return &OperationNotAllowedError{AccountID: a.ID, Action: "deposit", Reason: "deposits not enabled for " + string(a.DepositType)}
		}

		scope := ScopeFor(a, allowBackdating, relaxingDays)

		deposit, err := a.Deposit(
			TransactionInput{Date: date, Amount: NewMoney(amount, a.Currency), Payment: payment},
			typ, allowBackdating, relaxingDays, s.NewRef(),
		)
		if err != nil {
			return err
		}

		// No balance-negativity check on the credit path; the same
		// interest branch applies.
		if err := s.recalculate(a, date, s.interestInput(flags.IsInterestTransfer, allowBackdating, postReversals)); err != nil {
			return err
		}

		if err := s.persistOutcome(ctx, repo, a, deposit, allowBackdating, relaxingDays); err != nil {
			return err
		}
		if err := s.propagate(ctx, a, scope, flags.IsAccountTransfer, allowBackdating); err != nil {
			return err
		}
		created = deposit
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Notifier.Notify(ctx, DepositPosted{Transaction: created})
	return created, nil
}

// =============================================================================
// HOLD & RELEASE
// =============================================================================

// ApplyHold earmarks funds against the account. Holds bypass
// reconciliation and interest recalculation: the simplest path.
func (s *Service) ApplyHold(ctx context.Context, id AccountID, amount decimal.Decimal, date TimePoint, lienAllowed bool) (*Transaction, error) {
	if _, err := s.Auth.CurrentUser(ctx); err != nil {
		return nil, err
	}
	unlock := s.lockAccount(id)
	defer unlock()

	var created *Transaction
	err := s.Repo.WithUnit(ctx, func(ctx context.Context, repo Repository) error {
		a, err := repo.Load(ctx, id)
		if err != nil {
			return err
		}
		if err := a.ValidateForAccountBlock(); err != nil {
			return err
		}
		hold, err := a.HoldAmount(NewMoney(amount, a.Currency), date, lienAllowed, s.NewRef())
		if err != nil {
			return err
		}
		if _, err := repo.SaveTransaction(ctx, hold); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		a.Touch()
		if err := repo.Save(ctx, a); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		created = hold
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ApplyRelease frees a previously held amount.
func (s *Service) ApplyRelease(ctx context.Context, id AccountID, holdID TransactionID, date TimePoint) (*Transaction, error) {
	if _, err := s.Auth.CurrentUser(ctx); err != nil {
		return nil, err
	}
	unlock := s.lockAccount(id)
	defer unlock()

	var created *Transaction
	err := s.Repo.WithUnit(ctx, func(ctx context.Context, repo Repository) error {
		a, err := repo.Load(ctx, id)
		if err != nil {
			return err
		}
		hold, err := a.FindTransaction(holdID)
		if err != nil {
			return err
		}
		release, err := a.ReleaseHold(hold, date, s.NewRef())
		if err != nil {
			return err
		}
		if _, err := repo.SaveTransaction(ctx, release); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if err := repo.SaveTransactions(ctx, []*Transaction{hold}); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		a.Touch()
		if err := repo.Save(ctx, a); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		created = release
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// =============================================================================
// REVERSAL
// =============================================================================

// ApplyReversal reverses the listed transactions in the caller-supplied
// order and replays the account. Returns the last-created reversal, or
// nil for an empty list (a benign no-op: no persistence, no ledger
// calls).
func (s *Service) ApplyReversal(ctx context.Context, id AccountID, txIDs []TransactionID, allowBackdating bool) (*Transaction, error) {
	if _, err := s.Auth.CurrentUser(ctx); err != nil {
		return nil, err
	}
	if len(txIDs) == 0 {
		return nil, nil
	}
	unlock := s.lockAccount(id)
	defer unlock()

	relaxingDays := s.Config.RelaxingDaysForPivotDate()
	// Reversal batches always write reversal records for interest
	// adjustments, regardless of the global toggle.
	const postReversals = true

	var last *Transaction
	err := s.Repo.WithUnit(ctx, func(ctx context.Context, repo Repository) error {
		a, err := repo.Load(ctx, id)
		if err != nil {
			return err
		}

		scope := ScopeFor(a, allowBackdating, relaxingDays)

		// Pass 1: create the linked reversal records and undo each
		// original's effect on the running state.
		originals := make([]*Transaction, 0, len(txIDs))
		for _, txID := range txIDs {
			orig, err := a.FindTransaction(txID)
			if err != nil {
				return err
			}
			if orig.Reversed {
				return fmt.Errorf("%w: %s", ErrAlreadyReversed, txID)
			}
			rev := a.NewReversal(orig, s.NewRef())
			if err := a.UndoTransaction(orig); err != nil {
				return err
			}
			originals = append(originals, orig)
			last = rev
		}

		// Pass 2: re-derive interest per reversed transaction, then
		// re-validate the window and the balance, and reactivate the
		// account if its balance permits.
		in := s.interestInput(false, allowBackdating, postReversals)
		for _, orig := range originals {
			if orig.RequiresInterestRecalc && a.IsBeforeLastPostingPeriod(orig.Date, allowBackdating) {
				if err := s.Interest.PostInterest(a, in); err != nil {
					return err
				}
			} else {
				if err := s.Interest.CalculateInterest(a, in); err != nil {
					return err
				}
			}
			if err := a.ValidatePivotDateTransaction(orig.Date, allowBackdating, relaxingDays); err != nil {
				return err
			}
			if err := a.ValidateBalanceNonNegativeMinimal(orig.Amount, false); err != nil {
				return err
			}
			a.ActivateBasedOnBalance()
		}

		a.Touch()
		if err := repo.Save(ctx, a); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		// The reversal records carry empty identifiers and are picked up
		// by rewrittenRows alongside the rewritten window.
		if err := repo.SaveTransactions(ctx, rewrittenRows(a, allowBackdating, relaxingDays)); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		// Reversal batches are never tagged as account transfers.
		return s.propagate(ctx, a, scope, false, allowBackdating)
	})
	if err != nil {
		return nil, err
	}
	return last, nil
}

// =============================================================================
// INTEREST POSTING SWEEP
// =============================================================================

// PostAccountInterest finalizes any posting periods that have ended for
// one account. Used by the periodic posting job and the admin endpoint.
func (s *Service) PostAccountInterest(ctx context.Context, id AccountID, allowBackdating bool) error {
	if _, err := s.Auth.CurrentUser(ctx); err != nil {
		return err
	}
	unlock := s.lockAccount(id)
	defer unlock()

	relaxingDays := s.Config.RelaxingDaysForPivotDate()
	postReversals := s.Config.ReversalTransactionAllowed()

	return s.Repo.WithUnit(ctx, func(ctx context.Context, repo Repository) error {
		a, err := repo.Load(ctx, id)
		if err != nil {
			return err
		}
		scope := ScopeFor(a, allowBackdating, relaxingDays)
		if err := s.Interest.PostInterest(a, s.interestInput(false, allowBackdating, postReversals)); err != nil {
			return err
		}
		if err := s.persistOutcome(ctx, repo, a, nil, allowBackdating, relaxingDays); err != nil {
			return err
		}
		return s.propagate(ctx, a, scope, false, allowBackdating)
	})
}
