package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/jchs-nexus/nexus-portal/pkg/logger"
)

// Hub 记录本实例上所有 websocket 连接；消息分发由各自的 Feed 完成
type Hub struct {
	clients    map[string]map[*Client]bool // userID -> connections
	register   chan *Client
	unregister chan *Client
	count      chan chan int
	stop       chan struct{}
	stopped    chan struct{}
	once       sync.Once
}

func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan chan int),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.stopped)
	for {
		select {
		case c := <-h.register:
			if _, ok := h.clients[c.userID]; !ok {
				h.clients[c.userID] = make(map[*Client]bool)
			}
			h.clients[c.userID][c] = true
			logger.Debug("ws client registered", zap.String("user", c.userID), zap.String("room", c.room))
		case c := <-h.unregister:
			if conns, ok := h.clients[c.userID]; ok {
				delete(conns, c)
				if len(conns) == 0 {
					delete(h.clients, c.userID)
				}
			}
		case reply := <-h.count:
			n := 0
			for _, conns := range h.clients {
				n += len(conns)
			}
			reply <- n
		case <-h.stop:
			for _, conns := range h.clients {
				for c := range conns {
					c.Close()
				}
			}
			h.clients = map[string]map[*Client]bool{}
			return
		}
	}
}

func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// Connections returns the number of live connections.
func (h *Hub) Connections() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.stopped:
		return 0
	}
}

// Shutdown closes every connection and stops the hub.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.once.Do(func() { close(h.stop) })
	select {
	case <-h.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
