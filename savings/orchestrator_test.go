package savings_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/savings-core/ledger"
	"github.com/warp/savings-core/savings"
	"github.com/warp/savings-core/store/memory"
)

// =============================================================================
// FIXTURE
// =============================================================================

type fixture struct {
	svc     *savings.Service
	repo    *memory.Memory
	journal *ledger.MemoryJournal
	gateway *countingGateway
	ctx     context.Context
}

// newFixture wires the orchestrator against the in-memory repository and
// journal, with a fixed business date of 2025-02-10 and 3 relaxing days.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.NewMemory()
	journal := ledger.NewMemoryJournal()
	gateway := &countingGateway{inner: ledger.NewWriter(journal)}

	cfg := savings.StaticConfig{
		RelaxingDays:     3,
		PostReversals:    true,
		FiscalYearStart:  time.January,
		InterestRounding: savings.DefaultRounding(),
	}
	svc := savings.NewService(repo, cfg, gateway)
	svc.Notifier = savings.NopNotifier{}
	svc.Clock = func() savings.TimePoint { return day(2025, time.February, 10) }

	return &fixture{svc: svc, repo: repo, journal: journal, gateway: gateway, ctx: context.Background()}
}

// seedAccount persists a fresh USD account and returns it.
func (f *fixture) seedAccount(t *testing.T, id savings.AccountID, mutate func(*savings.Account)) *savings.Account {
	t.Helper()
	a := savings.NewAccount(id, "USD", day(2025, time.January, 1))
	if mutate != nil {
		mutate(a)
	}
	require.NoError(t, f.repo.CreateAccount(f.ctx, a))
	return a
}

func (f *fixture) reload(t *testing.T, id savings.AccountID) *savings.Account {
	t.Helper()
	a, err := f.repo.Load(f.ctx, id)
	require.NoError(t, err)
	return a
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// countingGateway wraps the real journal writer and counts submissions,
// optionally failing them.
type countingGateway struct {
	inner   *ledger.Writer
	submits int
	fail    error
}

func (g *countingGateway) DeriveBridgeData(a *savings.Account, currencyCode string, scope savings.ReconciliationScope, isAccountTransfer, allowBackdating bool) savings.BridgeData {
	return g.inner.DeriveBridgeData(a, currencyCode, scope, isAccountTransfer, allowBackdating)
}

func (g *countingGateway) SubmitJournalEntries(ctx context.Context, data savings.BridgeData) error {
	g.submits++
	if g.fail != nil {
		return g.fail
	}
	return g.inner.SubmitJournalEntries(ctx, data)
}

// recordingRecalc records which interest flow ran for each operation
// and the input it received.
type recordingRecalc struct {
	calls  []string
	inputs []savings.InterestInput
}

func (r *recordingRecalc) PostInterest(_ *savings.Account, in savings.InterestInput) error {
	r.calls = append(r.calls, "post")
	r.inputs = append(r.inputs, in)
	return nil
}

func (r *recordingRecalc) CalculateInterest(_ *savings.Account, in savings.InterestInput) error {
	r.calls = append(r.calls, "calculate")
	r.inputs = append(r.inputs, in)
	return nil
}

var regular = savings.TransactionFlags{IsRegularTransaction: true}

// =============================================================================
// DEPOSIT & WITHDRAWAL
// =============================================================================

func TestApplyDepositPersistsAndPropagates(t *testing.T) {
	// GIVEN a fresh account
	f := newFixture(t)
	f.seedAccount(t, "acc-1", nil)

	// WHEN a deposit posts
	tx, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.February, 5), dec("100"), nil, regular, false)
	require.NoError(t, err)
	require.NotEmpty(t, tx.ID, "persistence must assign the identifier")

	// THEN the stored aggregate reflects it
	a := f.reload(t, "acc-1")
	assert.Equal(t, "100", a.Balance.Amount.String())
	assert.Equal(t, int64(1), a.Version)

	// AND exactly one balanced pair reached the journal
	entries, err := f.journal.Entries(f.ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.GLCash, entries[0].GLAccount)
	assert.Equal(t, ledger.Debit, entries[0].Type)
	assert.Equal(t, ledger.GLSavingsControl, entries[1].GLAccount)
	assert.Equal(t, ledger.Credit, entries[1].Type)
	assert.True(t, entries[0].Amount.Equal(entries[1].Amount))
	assert.Equal(t, 1, f.gateway.submits)
}

func TestApplyWithdrawalDebitsBalance(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "acc-1", nil)
	_, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.February, 5), dec("100"), nil, regular, false)
	require.NoError(t, err)

	tx, err := f.svc.ApplyWithdrawal(f.ctx, "acc-1", day(2025, time.February, 6), dec("30"),
		&savings.PaymentDetail{Method: "cash"}, regular, false)
	require.NoError(t, err)
	assert.Equal(t, savings.TxWithdrawal, tx.Type)

	a := f.reload(t, "acc-1")
	assert.Equal(t, "70", a.Balance.Amount.String())
	assert.Equal(t, 2, f.gateway.submits)
}

func TestInsufficientFundsLeavesNothingBehind(t *testing.T) {
	// GIVEN 100 on the account
	f := newFixture(t)
	f.seedAccount(t, "acc-1", nil)
	_, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.February, 5), dec("100"), nil, regular, false)
	require.NoError(t, err)

	// WHEN a withdrawal overdraws
	_, err = f.svc.ApplyWithdrawal(f.ctx, "acc-1", day(2025, time.February, 6), dec("150"), nil, regular, false)
	require.ErrorIs(t, err, savings.ErrInsufficientFunds)

	// THEN the unit rolled back: balance, history, and version untouched
	a := f.reload(t, "acc-1")
	assert.Equal(t, "100", a.Balance.Amount.String())
	assert.Len(t, a.Transactions, 1)
	assert.Equal(t, int64(1), a.Version)
	assert.Equal(t, 1, f.gateway.submits, "failed operation must not reach the ledger")
}

func TestDebitBlockedAccountRejectsWithdrawal(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "acc-1", func(a *savings.Account) { a.Status = savings.StatusDebitBlocked })
	_, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.February, 5), dec("100"), nil, regular, false)
	require.NoError(t, err, "credit side is unaffected by a debit block")

	_, err = f.svc.ApplyWithdrawal(f.ctx, "acc-1", day(2025, time.February, 6), dec("10"), nil, regular, false)
	require.ErrorIs(t, err, savings.ErrOperationNotAllowed)

	assert.Len(t, f.reload(t, "acc-1").Transactions, 1)
}

func TestBlockedAccountRejectsEverything(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "acc-1", func(a *savings.Account) { a.Status = savings.StatusBlocked })

	_, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.February, 5), dec("100"), nil, regular, false)
	assert.ErrorIs(t, err, savings.ErrOperationNotAllowed)
	_, err = f.svc.ApplyHold(f.ctx, "acc-1", dec("10"), day(2025, time.February, 5), false)
	assert.ErrorIs(t, err, savings.ErrOperationNotAllowed)
}

func TestCapabilityGateAppliesToRegularTransactionsOnly(t *testing.T) {
	// GIVEN a product that disables customer withdrawals
	f := newFixture(t)
	f.seedAccount(t, "acc-1", func(a *savings.Account) { a.AllowWithdrawal = false })
	_, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.February, 5), dec("100"), nil, regular, false)
	require.NoError(t, err)

	// THEN a customer-initiated withdrawal is rejected
	_, err = f.svc.ApplyWithdrawal(f.ctx, "acc-1", day(2025, time.February, 6), dec("10"), nil, regular, false)
	require.ErrorIs(t, err, savings.ErrOperationNotAllowed)

	// AND a system-driven one passes the gate
	_, err = f.svc.ApplyWithdrawal(f.ctx, "acc-1", day(2025, time.February, 6), dec("10"), nil, savings.TransactionFlags{}, false)
	require.NoError(t, err)
	assert.Equal(t, "90", f.reload(t, "acc-1").Balance.Amount.String())
}

func TestWithdrawalFeeDebitedAlongside(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "acc-1", func(a *savings.Account) {
		a.WithdrawalFee = savings.NewMoney(dec("5"), "USD")
	})
	_, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.February, 5), dec("100"), nil, regular, false)
	require.NoError(t, err)

	wd, err := f.svc.ApplyWithdrawal(f.ctx, "acc-1", day(2025, time.February, 6), dec("20"), nil,
		savings.TransactionFlags{IsRegularTransaction: true, ApplyWithdrawFee: true}, false)
	require.NoError(t, err)

	a := f.reload(t, "acc-1")
	assert.Equal(t, "75", a.Balance.Amount.String())
	require.Len(t, a.Transactions, 3)
	fee := a.Transactions[2]
	assert.Equal(t, savings.TxWithdrawalFee, fee.Type)
	assert.NotEmpty(t, fee.ID)
	assert.Equal(t, wd.Ref, fee.Ref)

	// The fee pair lands on the fee-income ledger account.
	entries, err := f.journal.Entries(f.ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, entries, 6)
	assert.Equal(t, ledger.GLFeeIncome, entries[5].GLAccount)
	assert.Equal(t, ledger.Credit, entries[5].Type)
}

// =============================================================================
// SCENARIO: HOLDS VS AVAILABLE BALANCE
// =============================================================================

func TestHeldFundsBlockWithdrawalUnlessOverridden(t *testing.T) {
	// GIVEN 500 on the account with 100 held
	f := newFixture(t)
	f.seedAccount(t, "acc-1", nil)
	_, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.February, 1), dec("500"), nil, regular, false)
	require.NoError(t, err)
	_, err = f.svc.ApplyHold(f.ctx, "acc-1", dec("100"), day(2025, time.February, 2), false)
	require.NoError(t, err)

	// WHEN 450 is withdrawn against 400 available
	_, err = f.svc.ApplyWithdrawal(f.ctx, "acc-1", day(2025, time.February, 6), dec("450"), nil, regular, false)
	require.ErrorIs(t, err, savings.ErrInsufficientFunds)

	// THEN the explicit override lets it through
	_, err = f.svc.ApplyWithdrawal(f.ctx, "acc-1", day(2025, time.February, 6), dec("450"), nil,
		savings.TransactionFlags{IsRegularTransaction: true, IsExceptionForBalanceCheck: true}, false)
	require.NoError(t, err)

	a := f.reload(t, "acc-1")
	assert.Equal(t, "50", a.Balance.Amount.String())
	assert.Equal(t, "100", a.OnHoldFunds.Amount.String())
}

func TestHoldAndReleaseLifecycle(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "acc-1", nil)
	_, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.February, 1), dec("100"), nil, regular, false)
	require.NoError(t, err)

	hold, err := f.svc.ApplyHold(f.ctx, "acc-1", dec("40"), day(2025, time.February, 2), false)
	require.NoError(t, err)
	require.NotEmpty(t, hold.ID)
	assert.Equal(t, "40", f.reload(t, "acc-1").OnHoldFunds.Amount.String())

	release, err := f.svc.ApplyRelease(f.ctx, "acc-1", hold.ID, day(2025, time.February, 3))
	require.NoError(t, err)
	assert.Equal(t, hold.ID, release.LinkedTo)

	a := f.reload(t, "acc-1")
	assert.True(t, a.OnHoldFunds.IsZero())
	stored, err := a.FindTransaction(hold.ID)
	require.NoError(t, err)
	assert.True(t, stored.Reversed)

	// Holds and releases never reach the journal.
	entries, err := f.journal.Entries(f.ctx, "acc-1")
	require.NoError(t, err)
	assert.Len(t, entries, 2) // the deposit pair only
}

func TestReleasedHoldStopsEarmarkingFunds(t *testing.T) {
	// GIVEN 100 on the account with holds of 60 and 30
	f := newFixture(t)
	f.seedAccount(t, "acc-1", nil)
	_, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.February, 1), dec("100"), nil, regular, false)
	require.NoError(t, err)
	h1, err := f.svc.ApplyHold(f.ctx, "acc-1", dec("60"), day(2025, time.February, 2), false)
	require.NoError(t, err)
	_, err = f.svc.ApplyHold(f.ctx, "acc-1", dec("30"), day(2025, time.February, 2), false)
	require.NoError(t, err)

	// WHEN the first hold is released
	_, err = f.svc.ApplyRelease(f.ctx, "acc-1", h1.ID, day(2025, time.February, 3))
	require.NoError(t, err)

	// THEN only the remaining hold earmarks funds
	assert.Equal(t, "30", f.reload(t, "acc-1").OnHoldFunds.Amount.String())

	// AND a withdrawal against the 70 available is still stopped by the
	// surviving hold
	_, err = f.svc.ApplyWithdrawal(f.ctx, "acc-1", day(2025, time.February, 6), dec("80"), nil, regular, false)
	require.ErrorIs(t, err, savings.ErrInsufficientFunds)
}

// =============================================================================
// REVERSAL
// =============================================================================

func TestApplyReversalRestoresBalanceAndFlipsJournal(t *testing.T) {
	// GIVEN a deposit and a withdrawal
	f := newFixture(t)
	f.seedAccount(t, "acc-1", nil)
	_, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.February, 1), dec("100"), nil, regular, false)
	require.NoError(t, err)
	wd, err := f.svc.ApplyWithdrawal(f.ctx, "acc-1", day(2025, time.February, 2), dec("30"), nil, regular, false)
	require.NoError(t, err)

	// WHEN the withdrawal is reversed
	rev, err := f.svc.ApplyReversal(f.ctx, "acc-1", []savings.TransactionID{wd.ID}, false)
	require.NoError(t, err)
	require.NotNil(t, rev)
	assert.Equal(t, wd.ID, rev.LinkedTo)

	// THEN the balance is exactly restored
	a := f.reload(t, "acc-1")
	assert.Equal(t, "100", a.Balance.Amount.String())
	stored, err := a.FindTransaction(wd.ID)
	require.NoError(t, err)
	assert.True(t, stored.Reversed)

	// AND the journal gained the flipped pair, nothing for the marker
	entries, err := f.journal.Entries(f.ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, entries, 6)
	flip := entries[4]
	assert.True(t, flip.Reversal)
	assert.Equal(t, ledger.GLCash, flip.GLAccount)
	assert.Equal(t, ledger.Debit, flip.Type)
	assert.Equal(t, wd.ID, flip.TransactionID)

	// AND reversing the same transaction again is rejected
	_, err = f.svc.ApplyReversal(f.ctx, "acc-1", []savings.TransactionID{wd.ID}, false)
	assert.ErrorIs(t, err, savings.ErrAlreadyReversed)
}

func TestApplyReversalEmptyBatchIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "acc-1", nil)

	rev, err := f.svc.ApplyReversal(f.ctx, "acc-1", nil, false)

	require.NoError(t, err)
	assert.Nil(t, rev)
	assert.Equal(t, 0, f.gateway.submits)
	assert.Equal(t, int64(0), f.reload(t, "acc-1").Version)
}

func TestReversalBatchAppliesInOrder(t *testing.T) {
	// GIVEN three movements
	f := newFixture(t)
	f.seedAccount(t, "acc-1", nil)
	d1, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.February, 1), dec("100"), nil, regular, false)
	require.NoError(t, err)
	w1, err := f.svc.ApplyWithdrawal(f.ctx, "acc-1", day(2025, time.February, 2), dec("30"), nil, regular, false)
	require.NoError(t, err)
	_, err = f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.February, 3), dec("50"), nil, regular, false)
	require.NoError(t, err)

	// WHEN the withdrawal and the first deposit are reversed in one batch
	rev, err := f.svc.ApplyReversal(f.ctx, "acc-1", []savings.TransactionID{w1.ID, d1.ID}, false)
	require.NoError(t, err)
	assert.Equal(t, d1.ID, rev.LinkedTo, "the last reversal of the batch is returned")

	// THEN only the untouched deposit remains effective
	a := f.reload(t, "acc-1")
	assert.Equal(t, "50", a.Balance.Amount.String())
}

// =============================================================================
// INTEREST DECISION & PIVOT WINDOW
// =============================================================================

func TestBackdatedTransactionForcesPostOtherwiseCalculate(t *testing.T) {
	// GIVEN an account posted through Feb 1 and a recording recalculator
	f := newFixture(t)
	rec := &recordingRecalc{}
	f.svc.Interest = rec
	f.seedAccount(t, "acc-1", func(a *savings.Account) {
		a.InterestPostedThrough = day(2025, time.February, 1)
	})

	// WHEN a deposit lands inside a finalized period (Jan 30, within the
	// 3 relaxing days of the boundary)
	_, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.January, 30), dec("100"), nil, regular, true)
	require.NoError(t, err)

	// AND another lands after the boundary
	_, err = f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.February, 5), dec("100"), nil, regular, true)
	require.NoError(t, err)

	// THEN the first forced a full re-post, the second a recalculation
	assert.Equal(t, []string{"post", "calculate"}, rec.calls)
}

func TestBackdatedTransactionOutsideWindowRejected(t *testing.T) {
	// GIVEN a boundary of Feb 1 with 3 relaxing days (pivot Jan 29)
	f := newFixture(t)
	f.seedAccount(t, "acc-1", func(a *savings.Account) {
		a.InterestPostedThrough = day(2025, time.February, 1)
	})

	// WHEN a deposit is dated Jan 25
	_, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.January, 25), dec("100"), nil, regular, true)

	// THEN it is rejected and nothing was persisted
	require.ErrorIs(t, err, savings.ErrInvalidPivotDate)
	assert.Empty(t, f.reload(t, "acc-1").Transactions)
	assert.Equal(t, 0, f.gateway.submits)
}

func TestBackdatingDisabledAcceptsAnyDate(t *testing.T) {
	// Without backdating there is no pivot: any date is accepted and the
	// full history is reconciled.
	f := newFixture(t)
	f.seedAccount(t, "acc-1", func(a *savings.Account) {
		a.InterestPostedThrough = day(2025, time.February, 1)
	})

	_, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2024, time.June, 1), dec("100"), nil, regular, false)
	require.NoError(t, err)
	assert.Equal(t, "100", f.reload(t, "acc-1").Balance.Amount.String())
}

func TestDepositThreadsInterestTransferFlag(t *testing.T) {
	// GIVEN a recording recalculator
	f := newFixture(t)
	rec := &recordingRecalc{}
	f.svc.Interest = rec
	f.seedAccount(t, "acc-1", nil)

	// WHEN a deposit is flagged as an interest transfer
	flags := savings.TransactionFlags{IsRegularTransaction: true, IsInterestTransfer: true}
	_, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.February, 5), dec("100"), nil, flags, false)
	require.NoError(t, err)

	// THEN the flag reaches the interest flow
	require.Len(t, rec.inputs, 1)
	assert.True(t, rec.inputs[0].IsInterestTransfer)
}

func TestPostAccountInterest(t *testing.T) {
	// GIVEN 1000 at 5% since Jan 1, business date Feb 10
	f := newFixture(t)
	f.seedAccount(t, "acc-1", func(a *savings.Account) {
		a.AnnualInterestRate = dec("0.05")
	})
	_, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.January, 1), dec("1000"), nil, regular, false)
	require.NoError(t, err)

	// WHEN the posting sweep runs for the account
	require.NoError(t, f.svc.PostAccountInterest(f.ctx, "acc-1", false))

	// THEN January is finalized and propagated
	a := f.reload(t, "acc-1")
	assert.True(t, a.InterestPostedThrough.Equal(day(2025, time.February, 1)))
	assert.Equal(t, "1004.25", a.Balance.Amount.String())

	entries, err := f.journal.Entries(f.ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, ledger.GLInterestExpense, entries[2].GLAccount)
	assert.Equal(t, ledger.Debit, entries[2].Type)
	assert.Equal(t, "4.25", entries[2].Amount.String())

	// AND running it again posts nothing new
	require.NoError(t, f.svc.PostAccountInterest(f.ctx, "acc-1", false))
	entries, err = f.journal.Entries(f.ctx, "acc-1")
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestZeroRelaxingDaysStillPersistsPostings(t *testing.T) {
	// GIVEN a zero-tolerance pivot window
	repo := memory.NewMemory()
	journal := ledger.NewMemoryJournal()
	cfg := savings.StaticConfig{
		RelaxingDays:     0,
		PostReversals:    true,
		FiscalYearStart:  time.January,
		InterestRounding: savings.DefaultRounding(),
	}
	svc := savings.NewService(repo, cfg, ledger.NewWriter(journal))
	svc.Notifier = savings.NopNotifier{}
	svc.Clock = func() savings.TimePoint { return day(2025, time.February, 10) }
	ctx := context.Background()

	a := savings.NewAccount("acc-1", "USD", day(2025, time.January, 1))
	a.AnnualInterestRate = dec("0.05")
	require.NoError(t, repo.CreateAccount(ctx, a))
	_, err := svc.ApplyDeposit(ctx, "acc-1", day(2025, time.January, 1), dec("1000"), nil, regular, true)
	require.NoError(t, err)

	// WHEN January is finalized with backdating on
	require.NoError(t, svc.PostAccountInterest(ctx, "acc-1", true))

	// THEN the posting row created by the sweep survives persistence even
	// though its date sits at the edge of the empty window
	b, err := repo.Load(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, b.InterestPostedThrough.Equal(day(2025, time.February, 1)))
	assert.Equal(t, "1004.25", b.Balance.Amount.String())

	var posting *savings.Transaction
	for _, tx := range b.Transactions {
		if tx.Type == savings.TxInterestPosting && !tx.Reversed {
			posting = tx
		}
	}
	require.NotNil(t, posting, "the interest posting must be durable")
	assert.NotEmpty(t, posting.ID)

	entries, err := journal.Entries(ctx, "acc-1")
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

// =============================================================================
// DIVIDEND PAYOUT
// =============================================================================

func TestApplyDividendPayout(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "acc-1", nil)

	tx, err := f.svc.ApplyDividendPayout(f.ctx, "acc-1", day(2025, time.February, 5), dec("25"), false)
	require.NoError(t, err)
	assert.Equal(t, savings.TxDividendPayout, tx.Type)
	assert.Equal(t, "25", f.reload(t, "acc-1").Balance.Amount.String())

	// Dividends post to cash/savings-control like deposits.
	entries, err := f.journal.Entries(f.ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.GLCash, entries[0].GLAccount)
}

// =============================================================================
// COLLABORATOR FAILURES & AUTH
// =============================================================================

func TestLedgerFailureRollsBackTheUnit(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "acc-1", nil)
	f.gateway.fail = errors.New("journal store down")

	_, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.February, 5), dec("100"), nil, regular, false)

	require.ErrorIs(t, err, savings.ErrLedgerPropagation)
	a := f.reload(t, "acc-1")
	assert.True(t, a.Balance.IsZero())
	assert.Empty(t, a.Transactions)
	assert.Equal(t, int64(0), a.Version)
}

func TestUnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ApplyDeposit(f.ctx, "ghost", day(2025, time.February, 5), dec("100"), nil, regular, false)
	assert.True(t, savings.IsNotFound(err))
}

func TestOperationsRequireAuthenticatedUser(t *testing.T) {
	// GIVEN context-based auth
	f := newFixture(t)
	f.svc.Auth = savings.ContextAuth{}
	f.seedAccount(t, "acc-1", nil)

	// THEN a bare context is rejected before anything is touched
	_, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.February, 5), dec("100"), nil, regular, false)
	require.ErrorIs(t, err, savings.ErrUnauthenticated)
	assert.Equal(t, 0, f.gateway.submits)

	// AND a stamped context passes
	ctx := savings.WithUser(f.ctx, "teller-7")
	_, err = f.svc.ApplyDeposit(ctx, "acc-1", day(2025, time.February, 5), dec("100"), nil, regular, false)
	require.NoError(t, err)
}

func TestNotifierReceivesCommittedEvents(t *testing.T) {
	f := newFixture(t)
	sink := &recordingNotifier{}
	f.svc.Notifier = sink
	f.seedAccount(t, "acc-1", nil)

	_, err := f.svc.ApplyDeposit(f.ctx, "acc-1", day(2025, time.February, 5), dec("100"), nil, regular, false)
	require.NoError(t, err)
	_, err = f.svc.ApplyWithdrawal(f.ctx, "acc-1", day(2025, time.February, 6), dec("150"), nil, regular, false)
	require.ErrorIs(t, err, savings.ErrInsufficientFunds)

	// Only the committed operation produced an event.
	require.Len(t, sink.events, 1)
	assert.Equal(t, "savings.deposit.posted", sink.events[0].EventName())
}

type recordingNotifier struct{ events []savings.Event }

func (n *recordingNotifier) Notify(_ context.Context, e savings.Event) {
	n.events = append(n.events, e)
}
