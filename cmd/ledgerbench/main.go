// ledgerbench 压测积分账本：大量并发解锁同一批帖子，校验余额从不为负且积分守恒
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/jchs-nexus/nexus-portal/config"
	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/pkg/database"
)

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

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	mustDo(database.AutoMigrate(db))

	store := repository.NewGormStore(db, repository.NewLocalNotifier(0))
	ledger := service.NewLedger(store)
	unlock := service.NewUnlockEngine(store, ledger)
	ctx := context.Background()

	users := envInt("USERS", 200)
	posts := envInt("POSTS", 20)
	conc := envInt("CONC", 16)
	const (
		startBalance = 100
		price        = 15
	)

	fmt.Println("Seeding...")
	author := model.User{ID: uuid.NewString(), Username: "bench-author", Email: uuid.NewString()[:8] + "@bench.local"}
	mustDo(store.Insert(ctx, "profiles", &author))
	buyers := make([]string, users)
	for i := range buyers {
		u := model.User{ID: uuid.NewString(), Email: uuid.NewString()[:12] + "@bench.local", Points: startBalance}
		u.Username = "bench-" + u.ID[:8]
		mustDo(store.Insert(ctx, "profiles", &u))
		buyers[i] = u.ID
	}
	postIDs := make([]string, posts)
	for i := range postIDs {
		p := model.HomeworkPost{ID: uuid.NewString(), UserID: author.ID, Title: fmt.Sprintf("post %d", i), PointsRequired: price, CreatedAt: time.Now()}
		mustDo(store.Insert(ctx, "homework_posts", &p))
		postIDs[i] = p.ID
	}

	// 每个用户对每个帖子各尝试两次，第二次应得到 already unlocked
	var ok, insufficient, already, failed atomic.Int64
	durations := make(chan time.Duration, users*posts*2)
	p := pool.New().WithMaxGoroutines(conc)
	t0 := time.Now()
	for round := 0; round < 2; round++ {
		for _, b := range buyers {
			for _, pid := range postIDs {
				b, pid := b, pid
				p.Go(func() {
					st := time.Now()
					_, err := unlock.Purchase(ctx, b, pid, price)
					durations <- time.Since(st)
					switch {
					case err == nil:
						ok.Add(1)
					case errors.Is(err, apperr.ErrInsufficientBalance):
						insufficient.Add(1)
					case errors.Is(err, apperr.ErrAlreadyUnlocked):
						already.Add(1)
					default:
						failed.Add(1)
					}
				})
			}
		}
	}
	p.Wait()
	total := time.Since(t0)
	close(durations)
	recs := make([]time.Duration, 0, users*posts*2)
	for d := range durations {
		recs = append(recs, d)
	}

	// 校验
	var negative int
	var remaining int64
	for _, b := range buyers {
		bal := must(ledger.Balance(ctx, b))
		if bal < 0 {
			negative++
		}
		remaining += bal
	}
	unlocks := must(store.Count(ctx, "user_unlocked_posts", repository.Query{Filter: repository.Filter{"user_id": buyers}}))
	spent := int64(users)*startBalance - remaining

	fmt.Printf("USERS=%d POSTS=%d CONC=%d price=%d start=%d\n", users, posts, conc, price, startBalance)
	fmt.Printf("Purchase total: %v, avg: %v, p50: %v, p95: %v, p99: %v\n",
		total, avg(recs), pct(recs, 0.50), pct(recs, 0.95), pct(recs, 0.99))
	fmt.Printf("ok=%d insufficient=%d already=%d failed=%d\n", ok.Load(), insufficient.Load(), already.Load(), failed.Load())
	fmt.Printf("unlock rows=%d spent=%d expected=%d negative balances=%d\n", unlocks, spent, unlocks*price, negative)
	if negative > 0 || spent != unlocks*price || unlocks != ok.Load() {
		fmt.Println("INVARIANT VIOLATED")
		os.Exit(1)
	}
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
