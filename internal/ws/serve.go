package ws

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/pkg/logger"
)

// NewUpgrader allows the listed origins; an empty list allows any origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			return allowed[r.Header.Get("Origin")]
		},
	}
}

// Serve upgrades an already authorized request and blocks until the
// connection ends. The connection's lifetime is detached from the HTTP
// request context but still carries its values.
func Serve(ctx context.Context, up *websocket.Upgrader, hub *Hub, chat *service.ChatService, sess *service.Session, room string, history int, w http.ResponseWriter, r *http.Request) {
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	client := NewClient(hub, conn, chat, sess, room)
	client.Serve(context.WithoutCancel(ctx), history)
}
