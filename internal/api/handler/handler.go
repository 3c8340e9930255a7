package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/internal/ws"
)

// Deps 汇总 handler 依赖的服务
type Deps struct {
	Gate          *service.SessionGate
	Ledger        *service.Ledger
	Unlock        *service.UnlockEngine
	Chat          *service.ChatService
	Activities    *service.ActivityService
	Merch         *service.MerchService
	Music         *service.MusicService
	Homework      *service.HomeworkService
	Profiles      *service.ProfileService
	Leaderboard   *service.Leaderboard
	Subscriptions *service.SubscriptionService
	Helper        *service.HelperService
	Admin         *service.AdminService
	Hub           *ws.Hub
	Upgrader      *websocket.Upgrader
	WebhookSecret string
	MaxUpload     int64
}

type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	if d.Upgrader == nil {
		d.Upgrader = ws.NewUpgrader(nil)
	}
	if d.MaxUpload <= 0 {
		d.MaxUpload = 5 << 20
	}
	return &Handler{Deps: d}
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}
