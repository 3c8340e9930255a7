package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
	"github.com/jchs-nexus/nexus-portal/internal/testutil"
)

func newMessage(room, content string, at time.Time) *model.ChatMessage {
	return &model.ChatMessage{ID: uuid.NewString(), RoomID: room, UserID: "u1", AuthorName: "u1", Content: content, CreatedAt: at}
}

func TestStore_InsertGetSelect(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)

	base := time.Now().UTC()
	for i, c := range []string{"a", "b", "c"} {
		require.NoError(t, store.Insert(ctx, "chat_messages", newMessage("global", c, base.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, store.Insert(ctx, "chat_messages", newMessage("other", "x", base)))

	var rows []model.ChatMessage
	err := store.Select(ctx, "chat_messages", repository.Query{
		Filter: repository.Filter{"room_id": "global"},
		Order:  []repository.Order{{Field: "created_at", Ascending: false}},
		Limit:  2,
	}, &rows)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "c", rows[0].Content)
	assert.Equal(t, "b", rows[1].Content)

	var got model.ChatMessage
	require.NoError(t, store.Get(ctx, "chat_messages", rows[0].ID, &got))
	assert.Equal(t, "c", got.Content)

	err = store.Get(ctx, "chat_messages", "missing", &got)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	n, err := store.Count(ctx, "chat_messages", repository.Query{Filter: repository.Filter{"room_id": "global"}})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestStore_GetReusesDestination(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	first := testutil.SeedUser(t, store, testutil.UserOpts{Points: 7})
	second := testutil.SeedUser(t, store, testutil.UserOpts{})

	var u model.User
	require.NoError(t, store.Get(ctx, "profiles", first.ID, &u))
	assert.EqualValues(t, 7, u.Points)

	require.NoError(t, store.Get(ctx, "profiles", second.ID, &u))
	assert.Equal(t, second.ID, u.ID)
	assert.Zero(t, u.Points)

	assert.ErrorIs(t, store.Get(ctx, "profiles", "missing", &u), repository.ErrNotFound)
}

func TestStore_RejectsUnknownCollectionAndBadFields(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)

	var rows []model.ChatMessage
	err := store.Select(ctx, "users; drop table profiles", repository.Query{}, &rows)
	assert.ErrorIs(t, err, repository.ErrUnknownCollection)

	err = store.Select(ctx, "chat_messages", repository.Query{Order: []repository.Order{{Field: "created_at desc; --"}}}, &rows)
	assert.ErrorIs(t, err, repository.ErrInvalidField)
}

func TestStore_InsertDuplicate(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)

	rec := &model.UnlockRecord{ID: uuid.NewString(), UserID: "u1", PostID: "p1", UnlockedAt: time.Now()}
	require.NoError(t, store.Insert(ctx, "user_unlocked_posts", rec))

	dup := &model.UnlockRecord{ID: uuid.NewString(), UserID: "u1", PostID: "p1", UnlockedAt: time.Now()}
	err := store.Insert(ctx, "user_unlocked_posts", dup)
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestStore_UpdateIncrWithCondition(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	u := testutil.SeedUser(t, store, testutil.UserOpts{Points: 20})

	err := store.Update(ctx, "profiles", u.ID, repository.Patch{
		Incr:  map[string]int64{"points": -30},
		Conds: []repository.Cond{{Field: "points", Op: ">=", Value: 30}},
	})
	assert.ErrorIs(t, err, repository.ErrConditionFailed)

	err = store.Update(ctx, "profiles", u.ID, repository.Patch{
		Incr:  map[string]int64{"points": -15},
		Conds: []repository.Cond{{Field: "points", Op: ">=", Value: 15}},
	})
	require.NoError(t, err)

	var got model.User
	require.NoError(t, store.Get(ctx, "profiles", u.ID, &got))
	assert.EqualValues(t, 5, got.Points)

	err = store.Update(ctx, "profiles", "missing", repository.Patch{Incr: map[string]int64{"points": 1}})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = store.Update(ctx, "profiles", u.ID, repository.Patch{})
	assert.ErrorIs(t, err, repository.ErrEmptyPatch)
}

func TestStore_ConcurrentIncrementsAreNotLost(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	u := testutil.SeedUser(t, store, testutil.UserOpts{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Update(ctx, "profiles", u.ID, repository.Patch{Incr: map[string]int64{"points": 1}}))
		}()
	}
	wg.Wait()

	var got model.User
	require.NoError(t, store.Get(ctx, "profiles", u.ID, &got))
	assert.EqualValues(t, 20, got.Points)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	m := newMessage("global", "bye", time.Now())
	require.NoError(t, store.Insert(ctx, "chat_messages", m))

	require.NoError(t, store.Delete(ctx, "chat_messages", m.ID))
	assert.ErrorIs(t, store.Delete(ctx, "chat_messages", m.ID), repository.ErrNotFound)
}

func TestStore_TransactionRollbackPublishesNothing(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)

	var mu sync.Mutex
	var seen []string
	sub, err := store.SubscribeToInserts(ctx, "chat_messages", nil, func(ev repository.InsertEvent) {
		mu.Lock()
		seen = append(seen, ev.ID)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Close()

	boom := errors.New("boom")
	rolledBack := newMessage("global", "never", time.Now())
	err = store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Insert(ctx, "chat_messages", rolledBack); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var got model.ChatMessage
	assert.ErrorIs(t, store.Get(ctx, "chat_messages", rolledBack.ID, &got), repository.ErrNotFound)

	committed := newMessage("global", "kept", time.Now())
	require.NoError(t, store.Transaction(ctx, func(tx repository.Store) error {
		return tx.Insert(ctx, "chat_messages", committed)
	}))

	testutil.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, "committed insert delivered")
	mu.Lock()
	assert.Equal(t, []string{committed.ID}, seen)
	mu.Unlock()
}

func TestStore_SubscribeFilters(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)

	got := make(chan model.ChatMessage, 4)
	sub, err := store.SubscribeToInserts(ctx, "chat_messages", repository.Filter{"room_id": "global"}, func(ev repository.InsertEvent) {
		var m model.ChatMessage
		if ev.Decode(&m) == nil {
			got <- m
		}
	})
	require.NoError(t, err)

	require.NoError(t, store.Insert(ctx, "chat_messages", newMessage("other", "skip", time.Now())))
	require.NoError(t, store.Insert(ctx, "chat_messages", newMessage("global", "hello", time.Now())))

	select {
	case m := <-got:
		assert.Equal(t, "hello", m.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	require.NoError(t, store.Insert(ctx, "chat_messages", newMessage("global", "late", time.Now())))
	select {
	case m := <-got:
		t.Fatalf("event after close: %s", m.Content)
	case <-time.After(100 * time.Millisecond):
	}
}
