// leaderboardbench 对比排行榜直查数据库和 redis 列表缓存的延迟
package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc"

	"github.com/jchs-nexus/nexus-portal/config"
	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/pkg/database"
)

func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	mustDo(database.AutoMigrate(db))

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = cfg.Redis.Addr
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis at %s: %v", addr, err))
	}

	users := envInt("USERS", 20000)
	reqs := envInt("REQS", 5000)
	workers := envInt("CONC", 8)

	fmt.Println("Setting up test data...")
	rnd := rand.New(rand.NewSource(42))
	batch := make([]model.User, 0, 1000)
	for i := 0; i < users; i++ {
		id := uuid.NewString()
		batch = append(batch, model.User{ID: id, Username: "lb-" + id[:8], Email: id + "@bench.local", Points: rnd.Int63n(100000)})
		if len(batch) == cap(batch) {
			mustDo(db.CreateInBatches(&batch, 1000).Error)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		mustDo(db.CreateInBatches(&batch, 1000).Error)
	}
	fmt.Printf("Test data ready: %d profiles\n", users)

	store := repository.NewGormStore(db, repository.NewLocalNotifier(0))
	board := service.NewLeaderboard(store, client, cfg.Leaderboard.Size, cfg.Leaderboard.CacheTTL)

	noCache := run(ctx, board, reqs, workers, board.TopNoCache)
	board.Invalidate(ctx)
	cached := run(ctx, board, reqs, workers, board.Top)

	fmt.Printf("\nLeaderboard latency (%d req, %d workers, %d profiles)\n", reqs, workers, users)
	for _, r := range []struct {
		name string
		res  result
	}{{"No cache", noCache}, {"Redis list cache", cached}} {
		fmt.Printf("%-18s avg=%v p95=%v p99=%v store_loads=%d cache_hits=%d\n",
			r.name, avg(r.res.durations), pct(r.res.durations, 0.95), pct(r.res.durations, 0.99),
			r.res.counters.StoreLoads, r.res.counters.CacheHits)
	}
}

type result struct {
	durations []time.Duration
	counters  service.LeaderboardCounters
}

func run(ctx context.Context, board *service.Leaderboard, reqs, workers int, call func(context.Context, int) ([]service.LeaderboardEntry, error)) result {
	board.ResetCounters()
	per := reqs / workers
	out := make([][]time.Duration, workers)
	var wg conc.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Go(func() {
			ds := make([]time.Duration, 0, per)
			for i := 0; i < per; i++ {
				st := time.Now()
				if _, err := call(ctx, 0); err != nil {
					panic(err)
				}
				ds = append(ds, time.Since(st))
			}
			out[w] = ds
		})
	}
	wg.Wait()
	var all []time.Duration
	for _, ds := range out {
		all = append(all, ds...)
	}
	return result{durations: all, counters: board.Counters()}
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
