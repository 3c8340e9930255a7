package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jchs-nexus/nexus-portal/pkg/logger"
)

// Notifier 负责把插入事件扇出给订阅者
type Notifier interface {
	Publish(ctx context.Context, ev InsertEvent) error
	Subscribe(ctx context.Context, collection string, fn func(InsertEvent)) (Subscription, error)
}

// LocalNotifier 进程内扇出：每个订阅者一个有界队列和一个 goroutine，
// 队列满时丢弃并告警，发布方永不阻塞
type LocalNotifier struct {
	mu        sync.RWMutex
	subs      map[string]map[uint64]*localSub
	nextID    uint64
	queueSize int
}

func NewLocalNotifier(queueSize int) *LocalNotifier {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &LocalNotifier{subs: make(map[string]map[uint64]*localSub), queueSize: queueSize}
}

type localSub struct {
	n          *LocalNotifier
	id         uint64
	collection string
	ch         chan InsertEvent
	done       chan struct{}
	once       sync.Once
}

func (n *LocalNotifier) Publish(_ context.Context, ev InsertEvent) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, sub := range n.subs[ev.Collection] {
		select {
		case sub.ch <- ev:
		default:
			logger.Warn("insert subscriber queue full, drop event",
				zap.String("collection", ev.Collection),
				zap.String("id", ev.ID),
				zap.Uint64("subscriber", sub.id),
			)
		}
	}
	return nil
}

func (n *LocalNotifier) Subscribe(_ context.Context, collection string, fn func(InsertEvent)) (Subscription, error) {
	n.mu.Lock()
	n.nextID++
	sub := &localSub{
		n:          n,
		id:         n.nextID,
		collection: collection,
		ch:         make(chan InsertEvent, n.queueSize),
		done:       make(chan struct{}),
	}
	if n.subs[collection] == nil {
		n.subs[collection] = make(map[uint64]*localSub)
	}
	n.subs[collection][sub.id] = sub
	n.mu.Unlock()

	go func() {
		for {
			select {
			case ev := <-sub.ch:
				fn(ev)
			case <-sub.done:
				return
			}
		}
	}()
	return sub, nil
}

// Subscribers reports the live subscriber count for a collection.
func (n *LocalNotifier) Subscribers(collection string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[collection])
}

func (s *localSub) Close() error {
	s.once.Do(func() {
		s.n.mu.Lock()
		delete(s.n.subs[s.collection], s.id)
		s.n.mu.Unlock()
		close(s.done)
	})
	return nil
}

// RedisNotifier 通过 redis PUBLISH/SUBSCRIBE 跨实例扇出
type RedisNotifier struct {
	client *redis.Client
	prefix string
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client, prefix: "nexus:inserts:"}
}

func (n *RedisNotifier) channel(collection string) string { return n.prefix + collection }

func (n *RedisNotifier) Publish(ctx context.Context, ev InsertEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.channel(ev.Collection), payload).Err()
}

// Subscribe 在收到 SUBSCRIBE 确认后才返回，保证返回时订阅已生效
func (n *RedisNotifier) Subscribe(ctx context.Context, collection string, fn func(InsertEvent)) (Subscription, error) {
	ps := n.client.Subscribe(ctx, n.channel(collection))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}
	ch := ps.Channel()
	go func() {
		for msg := range ch {
			var ev InsertEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("bad insert event payload", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			fn(ev)
		}
	}()
	return &redisSub{ps: ps}, nil
}

type redisSub struct {
	ps   *redis.PubSub
	once sync.Once
	err  error
}

func (s *redisSub) Close() error {
	s.once.Do(func() { s.err = s.ps.Close() })
	return s.err
}
