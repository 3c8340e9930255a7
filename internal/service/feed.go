package service

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
	"github.com/jchs-nexus/nexus-portal/pkg/logger"
)

type FeedState int

const (
	FeedDisconnected FeedState = iota
	FeedSubscribing
	FeedLive
)

func (s FeedState) String() string {
	switch s {
	case FeedSubscribing:
		return "subscribing"
	case FeedLive:
		return "live"
	default:
		return "disconnected"
	}
}

const (
	EventSnapshot = "snapshot"
	EventMessage  = "message"
)

// ErrFeedOverflow is reported by Err when the consumer fell behind.
var ErrFeedOverflow = errors.New("feed consumer too slow")

// FeedEvent is either the baseline snapshot or one live message.
type FeedEvent struct {
	Type     string              `json:"type"`
	Messages []model.ChatMessage `json:"messages,omitempty"`
	Message  *model.ChatMessage  `json:"message,omitempty"`
}

// Feed 单个会话的房间实时订阅
type Feed struct {
	room string

	mu      sync.Mutex
	state   FeedState
	sub     repository.Subscription
	pending []model.ChatMessage
	seen    map[string]struct{}
	err     error

	out  chan FeedEvent
	done chan struct{}
}

func newFeed(room string, buffer int) *Feed {
	return &Feed{
		room:  room,
		state: FeedDisconnected,
		seen:  make(map[string]struct{}),
		out:   make(chan FeedEvent, buffer),
		done:  make(chan struct{}),
	}
}

// Events is closed when the feed disconnects.
func (f *Feed) Events() <-chan FeedEvent { return f.out }

// Done is closed when the feed disconnects.
func (f *Feed) Done() <-chan struct{} { return f.done }

func (f *Feed) Room() string { return f.room }

func (f *Feed) State() FeedState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Err returns why the feed closed, nil after a normal Close.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *Feed) setState(s FeedState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *Feed) attach(sub repository.Subscription) {
	f.mu.Lock()
	if f.state == FeedDisconnected {
		f.mu.Unlock()
		_ = sub.Close()
		return
	}
	f.sub = sub
	f.mu.Unlock()
}

func (f *Feed) onInsert(ev repository.InsertEvent) {
	var m model.ChatMessage
	if err := ev.Decode(&m); err != nil {
		logger.Warn("undecodable chat event", zap.String("id", ev.ID), zap.Error(err))
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case FeedSubscribing:
		f.pending = append(f.pending, m)
	case FeedLive:
		if _, dup := f.seen[m.ID]; dup {
			delete(f.seen, m.ID)
			return
		}
		f.emit(FeedEvent{Type: EventMessage, Message: &m})
	}
}

// goLive 发出快照，再补发快照里没有的缓存消息
func (f *Feed) goLive(snapshot []model.ChatMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != FeedSubscribing {
		return
	}
	for _, m := range snapshot {
		f.seen[m.ID] = struct{}{}
	}
	f.emit(FeedEvent{Type: EventSnapshot, Messages: snapshot})
	for i := range f.pending {
		m := f.pending[i]
		if _, dup := f.seen[m.ID]; dup {
			delete(f.seen, m.ID)
			continue
		}
		f.emit(FeedEvent{Type: EventMessage, Message: &m})
	}
	f.pending = nil
	if f.state == FeedSubscribing {
		f.state = FeedLive
	}
}

// emit must be called with f.mu held.
func (f *Feed) emit(ev FeedEvent) {
	if f.state == FeedDisconnected || f.err != nil {
		return
	}
	select {
	case f.out <- ev:
	default:
		f.err = ErrFeedOverflow
		logger.Warn("chat feed overflow, disconnecting", zap.String("room", f.room))
		go f.Close()
	}
}

// Close 断开订阅，幂等
func (f *Feed) Close() error {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		return nil
	default:
	}
	f.state = FeedDisconnected
	sub := f.sub
	f.sub = nil
	f.pending = nil
	close(f.done)
	close(f.out)
	f.mu.Unlock()

	if sub != nil {
		return sub.Close()
	}
	return nil
}
