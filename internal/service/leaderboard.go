package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
	"github.com/jchs-nexus/nexus-portal/pkg/logger"
)

const (
	leaderboardKey = "nexus:leaderboard:top"
	// 每次失效自增；写回前比对，加载期间发生过失效就不写
	leaderboardGenKey = "nexus:leaderboard:gen"
)

var errStaleLeaderboard = errors.New("leaderboard generation changed")

// LeaderboardEntry contains the public fields shown on the leaderboard.
type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	Points    int64  `json:"points"`
}

// Leaderboard 积分榜：redis list 缓存前 size 名，账本变动时失效
type Leaderboard struct {
	store repository.Store
	cache *redis.Client
	size  int
	ttl   time.Duration

	storeLoads atomic.Int64
	cacheHits  atomic.Int64
}

// NewLeaderboard builds a leaderboard over store. cache may be nil, in
// which case every read goes to the store.
func NewLeaderboard(store repository.Store, cache *redis.Client, size int, ttl time.Duration) *Leaderboard {
	if size <= 0 {
		size = 50
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Leaderboard{store: store, cache: cache, size: size, ttl: ttl}
}

func (l *Leaderboard) clamp(n int) int {
	if n <= 0 || n > l.size {
		return l.size
	}
	return n
}

func (l *Leaderboard) TopNoCache(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	return l.load(ctx, l.clamp(n))
}

// Top 先读缓存；未命中时加载完整的前 size 名并写回
func (l *Leaderboard) Top(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	n = l.clamp(n)
	if l.cache == nil {
		return l.load(ctx, n)
	}

	if vals, err := l.cache.LRange(ctx, leaderboardKey, 0, int64(n-1)).Result(); err == nil && len(vals) > 0 {
		out := make([]LeaderboardEntry, 0, len(vals))
		for _, v := range vals {
			var e LeaderboardEntry
			if uErr := json.Unmarshal([]byte(v), &e); uErr != nil {
				out = nil
				break
			}
			out = append(out, e)
		}
		if out != nil {
			l.cacheHits.Add(1)
			return out, nil
		}
	}

	gen, err := l.cache.Get(ctx, leaderboardGenKey).Int64()
	if err != nil && err != redis.Nil {
		logger.Warn("leaderboard generation read failed", zap.Error(err))
	}
	cacheable := err == nil || err == redis.Nil

	all, err := l.load(ctx, l.size)
	if err != nil {
		return nil, err
	}
	if cacheable && len(all) > 0 {
		l.writeBack(ctx, gen, all)
	}
	if n < len(all) {
		all = all[:n]
	}
	return all, nil
}

func (l *Leaderboard) writeBack(ctx context.Context, gen int64, all []LeaderboardEntry) {
	payload := make([]interface{}, 0, len(all))
	for _, e := range all {
		if b, err := json.Marshal(e); err == nil {
			payload = append(payload, b)
		}
	}
	err := l.cache.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, leaderboardGenKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != gen {
			return errStaleLeaderboard
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, leaderboardKey)
			pipe.RPush(ctx, leaderboardKey, payload...)
			pipe.Expire(ctx, leaderboardKey, l.ttl)
			return nil
		})
		return err
	}, leaderboardGenKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleLeaderboard), errors.Is(err, redis.TxFailedErr):
		logger.Debug("leaderboard invalidated during load, skip write back")
	default:
		logger.Warn("leaderboard cache write failed", zap.Error(err))
	}
}

func (l *Leaderboard) load(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	l.storeLoads.Add(1)
	var users []model.User
	err := l.store.Select(ctx, "profiles", repository.Query{
		Fields: []string{"id", "username", "avatar_url", "points"},
		Order:  []repository.Order{{Field: "points"}, {Field: "id", Ascending: true}},
		Limit:  n,
	}, &users)
	if err != nil {
		return nil, storeErr(err, "leaderboard")
	}
	out := make([]LeaderboardEntry, len(users))
	for i, u := range users {
		out[i] = LeaderboardEntry{Rank: i + 1, ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL, Points: u.Points}
	}
	return out, nil
}

// Rank returns the 1-based position of userID by points.
func (l *Leaderboard) Rank(ctx context.Context, userID string) (int, error) {
	var u model.User
	if err := l.store.Get(ctx, "profiles", userID, &u); err != nil {
		return 0, storeErr(err, "user")
	}
	ahead, err := l.store.Count(ctx, "profiles", repository.Query{
		Conds: []repository.Cond{{Field: "points", Op: ">", Value: u.Points}},
	})
	if err != nil {
		return 0, storeErr(err, "leaderboard")
	}
	return int(ahead) + 1, nil
}

// Invalidate drops the cached ranking.
func (l *Leaderboard) Invalidate(ctx context.Context) {
	if l.cache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	_, err := l.cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, leaderboardGenKey)
		pipe.Del(ctx, leaderboardKey)
		return nil
	})
	if err != nil {
		logger.Warn("leaderboard invalidate failed", zap.Error(err))
	}
}

// LeaderboardCounters summarises store loads and cache hits.
type LeaderboardCounters struct {
	StoreLoads int64
	CacheHits  int64
}

func (l *Leaderboard) Counters() LeaderboardCounters {
	return LeaderboardCounters{StoreLoads: l.storeLoads.Load(), CacheHits: l.cacheHits.Load()}
}

func (l *Leaderboard) ResetCounters() {
	l.storeLoads.Store(0)
	l.cacheHits.Store(0)
}
