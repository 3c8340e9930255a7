package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/internal/testutil"
)

func TestLedger_DebitInsufficientLeavesBalance(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	ledger := service.NewLedger(store)
	u := testutil.SeedUser(t, store, testutil.UserOpts{Points: 20})

	_, err := ledger.Debit(ctx, u.ID, 30, model.ReasonUnlock, "p1")
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)

	bal, err := ledger.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 20, bal)

	history, err := ledger.History(ctx, u.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLedger_CreditAndDebitRecordHistory(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	ledger := service.NewLedger(store)
	u := testutil.SeedUser(t, store, testutil.UserOpts{})

	bal, err := ledger.Credit(ctx, u.ID, 25, model.ReasonActivityCompleted, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 25, bal)

	bal, err = ledger.Debit(ctx, u.ID, 25, model.ReasonUnlock, "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, bal)

	history, err := ledger.History(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	var deltas []int64
	for _, h := range history {
		deltas = append(deltas, h.Delta)
	}
	assert.ElementsMatch(t, []int64{25, -25}, deltas)
}

func TestLedger_RejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	ledger := service.NewLedger(store)
	u := testutil.SeedUser(t, store, testutil.UserOpts{Points: 5})

	_, err := ledger.Credit(ctx, u.ID, 0, model.ReasonAdminGrant, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = ledger.Debit(ctx, u.ID, -1, model.ReasonUnlock, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestLedger_ConcurrentUpdatesAreNotLost(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	ledger := service.NewLedger(store)
	u := testutil.SeedUser(t, store, testutil.UserOpts{})

	var wg sync.WaitGroup
	for _, amount := range []int64{10, 5} {
		wg.Add(1)
		go func(amount int64) {
			defer wg.Done()
			_, err := ledger.Credit(ctx, u.ID, amount, model.ReasonActivityCompleted, "a1")
			assert.NoError(t, err)
		}(amount)
	}
	wg.Wait()

	bal, err := ledger.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 15, bal)
}

func TestLedger_HooksFireAfterCommitOnly(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	ledger := service.NewLedger(store)
	u := testutil.SeedUser(t, store, testutil.UserOpts{Points: 5})

	var calls []int64
	ledger.OnChange(func(_ context.Context, userID string, balance int64) {
		assert.Equal(t, u.ID, userID)
		calls = append(calls, balance)
	})

	_, err := ledger.Credit(ctx, u.ID, 5, model.ReasonAdminGrant, "")
	require.NoError(t, err)
	_, err = ledger.Debit(ctx, u.ID, 100, model.ReasonUnlock, "p1")
	require.Error(t, err)

	assert.Equal(t, []int64{10}, calls)
}
