package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/internal/testutil"
)

func TestLeaderboard_CachesAndInvalidatesOnLedgerChange(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	_, client := testutil.NewRedis(t)
	ledger := service.NewLedger(store)
	board := service.NewLeaderboard(store, client, 10, 0)
	ledger.OnChange(func(ctx context.Context, _ string, _ int64) { board.Invalidate(ctx) })

	a := testutil.SeedUser(t, store, testutil.UserOpts{Username: "a", Points: 30})
	b := testutil.SeedUser(t, store, testutil.UserOpts{Username: "b", Points: 20})
	testutil.SeedUser(t, store, testutil.UserOpts{Username: "c", Points: 10})

	top, err := board.Top(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, a.ID, top[0].ID)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, b.ID, top[1].ID)

	_, err = board.Top(ctx, 3)
	require.NoError(t, err)
	c := board.Counters()
	assert.EqualValues(t, 1, c.StoreLoads)
	assert.EqualValues(t, 1, c.CacheHits)

	_, err = ledger.Credit(ctx, b.ID, 100, model.ReasonAdminGrant, "")
	require.NoError(t, err)

	top, err = board.Top(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, b.ID, top[0].ID)
	assert.EqualValues(t, 120, top[0].Points)
	assert.EqualValues(t, 2, board.Counters().StoreLoads)

	rank, err := board.Rank(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rank)
}

func TestLeaderboard_WithoutCache(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	board := service.NewLeaderboard(store, nil, 5, 0)
	testutil.SeedUser(t, store, testutil.UserOpts{Points: 1})

	top, err := board.Top(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, top, 1)
	board.Invalidate(ctx)
	assert.EqualValues(t, 0, board.Counters().CacheHits)
}

// afterProfilesSelect 第一次读完积分榜后执行 fn，模拟加载与写回之间的积分变动
type afterProfilesSelect struct {
	repository.Store
	once sync.Once
	fn   func()
}

func (s *afterProfilesSelect) Select(ctx context.Context, collection string, q repository.Query, dest interface{}) error {
	err := s.Store.Select(ctx, collection, q, dest)
	if err == nil && collection == "profiles" && s.fn != nil {
		s.once.Do(s.fn)
	}
	return err
}

func TestLeaderboard_InvalidateDuringLoadSkipsWriteBack(t *testing.T) {
	ctx := context.Background()
	inner := testutil.NewStore(t)
	_, client := testutil.NewRedis(t)
	store := &afterProfilesSelect{Store: inner}
	ledger := service.NewLedger(inner)
	board := service.NewLeaderboard(store, client, 10, 0)
	ledger.OnChange(func(ctx context.Context, _ string, _ int64) { board.Invalidate(ctx) })

	a := testutil.SeedUser(t, inner, testutil.UserOpts{Username: "a", Points: 30})
	b := testutil.SeedUser(t, inner, testutil.UserOpts{Username: "b", Points: 20})
	store.fn = func() {
		_, err := ledger.Credit(ctx, b.ID, 100, model.ReasonAdminGrant, "")
		require.NoError(t, err)
	}

	// 这一次拿到的是变动前的数据，但不能写进缓存
	stale, err := board.Top(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, a.ID, stale[0].ID)
	assert.Zero(t, client.Exists(ctx, "nexus:leaderboard:top").Val())

	top, err := board.Top(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, b.ID, top[0].ID)
	assert.EqualValues(t, 120, top[0].Points)
	assert.EqualValues(t, 2, board.Counters().StoreLoads)

	// 没有并发失效时照常写回
	_, err = board.Top(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, board.Counters().CacheHits)
}
