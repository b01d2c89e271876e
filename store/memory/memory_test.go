package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/savings-core/savings"
	"github.com/warp/savings-core/store/memory"
)

func day(y int, m time.Month, d int) savings.TimePoint {
	return savings.NewTimePoint(y, m, d)
}

func usd(v string) savings.Money {
	m, err := savings.MoneyFromString(v, "USD")
	if err != nil {
		panic(err)
	}
	return m
}

// seed creates an account with one persisted deposit and returns the store.
func seed(t *testing.T) *memory.Memory {
	t.Helper()
	store := memory.NewMemory()
	a := savings.NewAccount("acc-1", "USD", day(2025, time.January, 1))
	_, err := a.Deposit(
		savings.TransactionInput{Date: day(2025, time.January, 2), Amount: usd("100")},
		savings.TxDeposit, false, 0, "ref-seed",
	)
	require.NoError(t, err)
	require.NoError(t, store.CreateAccount(context.Background(), a))
	return store
}

func TestCreateAndLoadRoundTrip(t *testing.T) {
	store := seed(t)

	a, err := store.Load(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "100", a.Balance.Amount.String())
	require.Len(t, a.Transactions, 1)
	assert.NotEmpty(t, a.Transactions[0].ID, "create must assign row identifiers")
}

func TestCreateDuplicateFails(t *testing.T) {
	store := seed(t)
	dup := savings.NewAccount("acc-1", "USD", day(2025, time.January, 1))

	err := store.CreateAccount(context.Background(), dup)

	assert.ErrorIs(t, err, savings.ErrPersistence)
}

func TestLoadUnknownAccount(t *testing.T) {
	store := memory.NewMemory()
	_, err := store.Load(context.Background(), "ghost")
	assert.ErrorIs(t, err, savings.ErrAccountNotFound)
}

func TestLoadReturnsPrivateCopy(t *testing.T) {
	// GIVEN a loaded aggregate
	store := seed(t)
	ctx := context.Background()
	a, err := store.Load(ctx, "acc-1")
	require.NoError(t, err)

	// WHEN the caller mutates it without saving
	a.Transactions[0].Reversed = true
	a.Replay()
	a.Status = savings.StatusBlocked

	// THEN stored state is untouched
	b, err := store.Load(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "100", b.Balance.Amount.String())
	assert.False(t, b.Transactions[0].Reversed)
	assert.Equal(t, "active", b.Status.String())
}

func TestSaveTransactionAssignsID(t *testing.T) {
	store := seed(t)
	tx := &savings.Transaction{
		AccountID: "acc-1",
		Type:      savings.TxDeposit,
		Amount:    usd("50"),
		Date:      day(2025, time.January, 5),
		Seq:       2,
	}

	id, err := store.SaveTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, tx.ID, "the identifier is stamped onto the caller's row")

	a, err := store.Load(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "150", a.Balance.Amount.String())
}

func TestSaveTransactionsUpsertsByID(t *testing.T) {
	// GIVEN a persisted deposit
	store := seed(t)
	ctx := context.Background()
	a, err := store.Load(ctx, "acc-1")
	require.NoError(t, err)
	tx := a.Transactions[0]

	// WHEN the same row is saved again with the reversed flag set
	tx.Reversed = true
	require.NoError(t, store.SaveTransactions(ctx, []*savings.Transaction{tx}))

	// THEN it replaced the stored row instead of appending
	b, err := store.Load(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, b.Transactions, 1)
	assert.True(t, b.Transactions[0].Reversed)
	assert.Equal(t, "0", b.Balance.Amount.String())
}

func TestFindOnHoldTransactions(t *testing.T) {
	store := seed(t)
	ctx := context.Background()
	a, err := store.Load(ctx, "acc-1")
	require.NoError(t, err)

	active, err := a.HoldAmount(usd("30"), day(2025, time.January, 3), false, "ref-h1")
	require.NoError(t, err)
	released, err := a.HoldAmount(usd("20"), day(2025, time.January, 4), false, "ref-h2")
	require.NoError(t, err)
	released.Reversed = true
	require.NoError(t, store.SaveTransactions(ctx, []*savings.Transaction{active, released}))

	holds, err := store.FindOnHoldTransactions(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, holds, 1, "released holds are excluded")
	assert.Equal(t, "30", holds[0].Amount.Amount.String())
}

func TestListAccountsSorted(t *testing.T) {
	store := memory.NewMemory()
	ctx := context.Background()
	for _, id := range []savings.AccountID{"charlie", "alpha", "bravo"} {
		require.NoError(t, store.CreateAccount(ctx, savings.NewAccount(id, "USD", day(2025, time.January, 1))))
	}

	ids, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []savings.AccountID{"alpha", "bravo", "charlie"}, ids)
}

func TestWithUnitCommitsOnSuccess(t *testing.T) {
	store := seed(t)
	ctx := context.Background()

	err := store.WithUnit(ctx, func(ctx context.Context, repo savings.Repository) error {
		a, err := repo.Load(ctx, "acc-1")
		if err != nil {
			return err
		}
		a.Status = savings.StatusDormant
		return repo.Save(ctx, a)
	})
	require.NoError(t, err)

	a, err := store.Load(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, a.Status.Has(savings.StatusDormant))
}

func TestWithUnitRollsBackOnError(t *testing.T) {
	// GIVEN a unit that mutates and then fails
	store := seed(t)
	ctx := context.Background()
	boom := errors.New("downstream failure")

	err := store.WithUnit(ctx, func(ctx context.Context, repo savings.Repository) error {
		a, err := repo.Load(ctx, "acc-1")
		if err != nil {
			return err
		}
		a.Status = savings.StatusBlocked
		a.Touch()
		if err := repo.Save(ctx, a); err != nil {
			return err
		}
		if _, err := repo.SaveTransaction(ctx, &savings.Transaction{
			AccountID: "acc-1", Type: savings.TxDeposit, Amount: usd("999"),
			Date: day(2025, time.January, 9), Seq: 9,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// THEN every write inside the unit was discarded
	a, err := store.Load(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "active", a.Status.String())
	assert.Equal(t, int64(0), a.Version)
	assert.Len(t, a.Transactions, 1)
}

func TestNestedUnitsShareTheAmbientOne(t *testing.T) {
	store := seed(t)
	ctx := context.Background()

	err := store.WithUnit(ctx, func(ctx context.Context, repo savings.Repository) error {
		return repo.WithUnit(ctx, func(ctx context.Context, inner savings.Repository) error {
			a, err := inner.Load(ctx, "acc-1")
			if err != nil {
				return err
			}
			a.Status = savings.StatusDormant
			return inner.Save(ctx, a)
		})
	})
	require.NoError(t, err)

	a, err := store.Load(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, a.Status.Has(savings.StatusDormant))
}
