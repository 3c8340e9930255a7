package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/internal/testutil"
)

func TestIsVisible(t *testing.T) {
	post := &model.HomeworkPost{UserID: "author", PointsRequired: 10}
	free := &model.HomeworkPost{UserID: "author"}

	assert.True(t, service.IsVisible("author", post, false))
	assert.True(t, service.IsVisible("reader", free, false))
	assert.True(t, service.IsVisible("reader", post, true))
	assert.False(t, service.IsVisible("reader", post, false))
	assert.False(t, service.IsVisible("", post, false))
}

func TestUnlock_InsufficientThenSufficient(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	ledger := service.NewLedger(store)
	engine := service.NewUnlockEngine(store, ledger)

	author := testutil.SeedUser(t, store, testutil.UserOpts{})
	reader := testutil.SeedUser(t, store, testutil.UserOpts{Points: 20})
	post := seedPost(t, store, author.ID, 30)

	_, err := engine.Purchase(ctx, reader.ID, post.ID, 30)
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)

	bal, err := ledger.Balance(ctx, reader.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 20, bal)
	n, err := store.Count(ctx, "user_unlocked_posts", repository.Query{})
	require.NoError(t, err)
	assert.Zero(t, n)

	visible, err := engine.Visible(ctx, reader.ID, post)
	require.NoError(t, err)
	assert.False(t, visible)

	_, err = ledger.Credit(ctx, reader.ID, 10, model.ReasonAdminGrant, "")
	require.NoError(t, err)

	res, err := engine.Purchase(ctx, reader.ID, post.ID, 30)
	require.NoError(t, err)
	assert.EqualValues(t, 30, res.Charged)
	assert.EqualValues(t, 0, res.Balance)

	visible, err = engine.Visible(ctx, reader.ID, post)
	require.NoError(t, err)
	assert.True(t, visible)

	_, err = engine.Purchase(ctx, reader.ID, post.ID, 30)
	assert.ErrorIs(t, err, apperr.ErrAlreadyUnlocked)
}

func TestUnlock_AuthorAndFreePostsNeverCharge(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	ledger := service.NewLedger(store)
	engine := service.NewUnlockEngine(store, ledger)

	author := testutil.SeedUser(t, store, testutil.UserOpts{Points: 50})
	reader := testutil.SeedUser(t, store, testutil.UserOpts{Points: 50})
	paid := seedPost(t, store, author.ID, 10)
	free := seedPost(t, store, author.ID, 0)

	_, err := engine.Purchase(ctx, author.ID, paid.ID, 10)
	assert.ErrorIs(t, err, apperr.ErrAlreadyUnlocked)
	_, err = engine.Purchase(ctx, reader.ID, free.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrAlreadyUnlocked)

	for _, id := range []string{author.ID, reader.ID} {
		bal, err := ledger.Balance(ctx, id)
		require.NoError(t, err)
		assert.EqualValues(t, 50, bal)
	}
}

func TestUnlock_PriceMismatchIsRejected(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	ledger := service.NewLedger(store)
	engine := service.NewUnlockEngine(store, ledger)

	author := testutil.SeedUser(t, store, testutil.UserOpts{})
	reader := testutil.SeedUser(t, store, testutil.UserOpts{Points: 100})
	post := seedPost(t, store, author.ID, 30)

	_, err := engine.Purchase(ctx, reader.ID, post.ID, 20)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	bal, err := ledger.Balance(ctx, reader.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 100, bal)
}

func TestUnlock_MissingPost(t *testing.T) {
	store := testutil.NewStore(t)
	engine := service.NewUnlockEngine(store, service.NewLedger(store))
	reader := testutil.SeedUser(t, store, testutil.UserOpts{Points: 100})

	_, err := engine.Purchase(context.Background(), reader.ID, "missing", 10)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUnlock_ConcurrentPurchaseChargesOnce(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	ledger := service.NewLedger(store)
	engine := service.NewUnlockEngine(store, ledger)

	author := testutil.SeedUser(t, store, testutil.UserOpts{})
	reader := testutil.SeedUser(t, store, testutil.UserOpts{Points: 100})
	post := seedPost(t, store, author.ID, 30)

	var ok, already atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Purchase(ctx, reader.ID, post.ID, 30)
			switch {
			case err == nil:
				ok.Add(1)
			case apperr.KindOf(err) == apperr.KindAlreadyUnlocked:
				already.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, 4, already.Load())

	bal, err := ledger.Balance(ctx, reader.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 70, bal)
	n, err := store.Count(ctx, "user_unlocked_posts", repository.Query{Filter: repository.Filter{"user_id": reader.ID}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
