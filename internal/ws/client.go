package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// inbound 客户端发来的帧
type inbound struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	TempID  string `json:"temp_id"`
}

type outbound struct {
	Type     string      `json:"type"`
	TempID   string      `json:"temp_id,omitempty"`
	ID       string      `json:"id,omitempty"`
	Error    string      `json:"error,omitempty"`
	Message  interface{} `json:"message,omitempty"`
	Messages interface{} `json:"messages,omitempty"`
	Time     *time.Time  `json:"created_at,omitempty"`
}

type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	chat    *service.ChatService
	session *service.Session
	userID  string
	room    string

	cancel    context.CancelFunc
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, chat *service.ChatService, sess *service.Session, room string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 64),
		chat:    chat,
		session: sess,
		userID:  sess.UserID(),
		room:    room,
	}
}

// Serve 打开房间 feed 并运行读写泵，连接关闭时返回
func (c *Client) Serve(ctx context.Context, history int) {
	ctx, c.cancel = context.WithCancel(ctx)
	defer c.Close()

	feed, err := c.chat.OpenFeed(ctx, c.userID, c.room, history)
	if err != nil {
		logger.Warn("open chat feed failed", zap.String("user", c.userID), zap.String("room", c.room), zap.Error(err))
		c.writeClose(websocket.CloseInternalServerErr, apperr.Message(err))
		return
	}
	defer feed.Close()

	if !c.hub.Register(c) {
		return
	}
	defer c.hub.Unregister(c)

	go c.writePump(ctx, feed)
	c.readPump(ctx)
}

// Close cancels the feed and closes the connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		_ = c.conn.Close()
	})
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("ws read error", zap.String("user", c.userID), zap.Error(err))
			}
			return
		}
		var in inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			c.reply(outbound{Type: "error", Error: "invalid_json"})
			continue
		}
		switch in.Type {
		case "send":
			// 先在边缘快速拒绝，Post 内部会再校验一次
			if _, err := c.chat.ValidateContent(in.Content); err != nil {
				c.reply(outbound{Type: "error", TempID: in.TempID, Error: apperr.Message(err)})
				continue
			}
			msg, err := c.chat.Post(ctx, c.session.User, c.room, in.Content)
			if err != nil {
				c.reply(outbound{Type: "error", TempID: in.TempID, Error: apperr.Message(err)})
				continue
			}
			at := msg.CreatedAt
			c.reply(outbound{Type: "ack", TempID: in.TempID, ID: msg.ID, Time: &at})
		case "ping":
			c.reply(outbound{Type: "pong"})
		default:
			c.reply(outbound{Type: "error", TempID: in.TempID, Error: "unsupported_type"})
		}
	}
}

func (c *Client) reply(o outbound) {
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	default:
		logger.Warn("ws send queue full, closing", zap.String("user", c.userID))
		c.Close()
	}
}

func (c *Client) writePump(ctx context.Context, feed *service.Feed) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	events := feed.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				reason := "feed closed"
				if err := feed.Err(); err != nil {
					reason = err.Error()
				}
				c.writeClose(websocket.CloseTryAgainLater, reason)
				return
			}
			o := outbound{Type: ev.Type}
			if ev.Type == service.EventSnapshot {
				o.Messages = ev.Messages
			} else {
				o.Message = ev.Message
			}
			if err := c.writeJSON(o); err != nil {
				return
			}
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeJSON(o outbound) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(o)
}

func (c *Client) writeClose(code int, reason string) {
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}
