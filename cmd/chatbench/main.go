// chatbench 测聊天推送扇出：FEEDS 个订阅者同时在线，逐条发消息，统计送达延迟并校验每条只送达一次
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/jchs-nexus/nexus-portal/config"
	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/pkg/cache"
	"github.com/jchs-nexus/nexus-portal/pkg/database"
)

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	db, err := database.InitDB(cfg)
	if err != nil {
		panic(err)
	}
	if err := database.AutoMigrate(db); err != nil {
		panic(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var notifier repository.Notifier = repository.NewLocalNotifier(0)
	rdb, err := cache.NewRedis(ctx, cfg)
	if err != nil {
		panic(err)
	}
	if rdb != nil {
		notifier = repository.NewRedisNotifier(rdb)
		defer rdb.Close()
	}
	store := repository.NewGormStore(db, notifier)

	feeds := envInt("FEEDS", 100)
	messages := envInt("MESSAGES", 200)
	room := "bench-" + uuid.NewString()[:8]
	chat := service.NewChatService(store, config.ChatConfig{FeedBuffer: messages + 1, MaxHistoryLimit: 1})

	author := &model.User{ID: uuid.NewString(), Username: "bench-author", Email: uuid.NewString()[:12] + "@bench.local"}
	if err := store.Insert(ctx, "profiles", author); err != nil {
		panic(err)
	}

	// 每条消息的发送时间，订阅端据此算延迟
	var sentAt sync.Map
	var (
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, feeds*messages)
		dupes     atomic.Int64
		missing   atomic.Int64
	)

	opened := make([]*service.Feed, feeds)
	for i := range opened {
		f, err := chat.OpenFeed(ctx, author.ID, room, 1)
		if err != nil {
			panic(err)
		}
		opened[i] = f
	}

	var wg conc.WaitGroup
	for _, f := range opened {
		f := f
		wg.Go(func() {
			seen := make(map[string]bool, messages)
			local := make([]time.Duration, 0, messages)
			timeout := time.NewTimer(30 * time.Second)
			defer timeout.Stop()
			for len(seen) < messages {
				select {
				case ev, ok := <-f.Events():
					if !ok {
						missing.Add(int64(messages - len(seen)))
						return
					}
					if ev.Type != service.EventMessage {
						continue
					}
					if seen[ev.Message.ID] {
						dupes.Add(1)
						continue
					}
					seen[ev.Message.ID] = true
					if v, ok := sentAt.Load(ev.Message.ID); ok {
						local = append(local, time.Since(v.(time.Time)))
					}
				case <-timeout.C:
					missing.Add(int64(messages - len(seen)))
					return
				}
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
		})
	}

	fmt.Printf("Posting %d messages to %d feeds (room %s)...\n", messages, feeds, room)
	start := time.Now()
	postLat := make([]time.Duration, 0, messages)
	for i := 0; i < messages; i++ {
		st := time.Now()
		msg, err := chat.Post(ctx, author, room, fmt.Sprintf("bench %d", i))
		if err != nil {
			panic(err)
		}
		postLat = append(postLat, time.Since(st))
		sentAt.Store(msg.ID, st)
	}
	wg.Wait()
	elapsed := time.Since(start)
	for _, f := range opened {
		_ = f.Close()
	}

	fmt.Printf("FEEDS=%d MESSAGES=%d elapsed=%v\n", feeds, messages, elapsed)
	fmt.Printf("Post: avg=%v p95=%v p99=%v\n", avg(postLat), pct(postLat, 0.95), pct(postLat, 0.99))
	fmt.Printf("Delivery: n=%d avg=%v p95=%v p99=%v\n", len(latencies), avg(latencies), pct(latencies, 0.95), pct(latencies, 0.99))
	fmt.Printf("duplicates=%d missing=%d\n", dupes.Load(), missing.Load())
	if dupes.Load() > 0 || missing.Load() > 0 {
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
