package api

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/jchs-nexus/nexus-portal/docs"
	"github.com/jchs-nexus/nexus-portal/internal/api/handler"
	"github.com/jchs-nexus/nexus-portal/internal/api/middleware"
	"github.com/jchs-nexus/nexus-portal/pkg/monitor"
	"github.com/jchs-nexus/nexus-portal/pkg/response"
)

const wsPath = "/api/v1/chat/ws"

type Options struct {
	ServiceName string
	Tracing     bool
	Swagger     bool
	// Uploads 为空时不挂载 /uploads
	Uploads afero.Fs
}

// NewRouter 组装全部路由：公开 -> 登录 -> 订阅 -> 管理员，逐层加门禁
func NewRouter(h *handler.Handler, gate middleware.Gate, opts Options) *gin.Engine {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		response.RegisterValidator(v)
	}

	r := gin.New()
	r.Use(middleware.Logger(), monitor.Recovery())
	if opts.Tracing {
		r.Use(otelgin.Middleware(opts.ServiceName))
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{wsPath})))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if opts.Swagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if opts.Uploads != nil {
		r.StaticFS("/uploads", afero.NewHttpFs(opts.Uploads))
	}

	v1 := r.Group("/api/v1")
	v1.POST("/auth/register", h.Register)
	v1.POST("/auth/login", h.Login)
	v1.POST("/webhooks/subscription", h.SubscriptionWebhook)

	authed := v1.Group("", middleware.RequireSession(gate))
	authed.POST("/auth/logout", h.Logout)
	authed.GET("/session", h.Session)
	authed.GET("/profile", h.GetProfile)
	authed.PATCH("/profile", h.UpdateProfile)
	authed.GET("/subscription", h.SubscriptionStatus)
	authed.POST("/subscription/checkout", h.Checkout)

	member := authed.Group("", middleware.RequireSubscription(gate))
	member.GET("/points", h.Balance)
	member.GET("/points/history", h.PointHistory)
	member.GET("/leaderboard", h.TopLeaderboard)
	member.GET("/leaderboard/me", h.MyRank)

	member.GET("/homework", h.ListHomework)
	member.POST("/homework", h.CreateHomework)
	member.GET("/homework/:id", h.GetHomework)
	member.DELETE("/homework/:id", h.DeleteHomework)
	member.POST("/homework/:id/unlock", h.UnlockHomework)
	member.POST("/homework/:id/like", h.LikeHomework)
	member.GET("/homework/:id/replies", h.ListReplies)
	member.POST("/homework/:id/replies", h.CreateReply)

	member.GET("/chat/messages", h.ChatHistory)
	member.POST("/chat/messages", h.PostMessage)
	member.GET("/chat/ws", h.ChatSocket)

	member.GET("/activities", h.ListActivities)
	member.POST("/activities/:id/complete", h.CompleteActivity)
	member.GET("/merch", h.ListMerch)
	member.GET("/music", h.ListMusic)
	member.POST("/music", h.CreateMusic)
	member.DELETE("/music/:id", h.DeleteMusic)
	member.POST("/ai/ask", h.Ask)

	admin := authed.Group("/admin", middleware.RequireAdmin(gate))
	admin.GET("/overview", h.AdminOverview)
	admin.POST("/activities", h.CreateActivity)
	admin.DELETE("/activities/:id", h.DeleteActivity)
	admin.POST("/merch", h.CreateMerch)
	admin.DELETE("/merch/:id", h.DeleteMerch)
	admin.POST("/points", h.GrantPoints)
	admin.POST("/roles", h.GrantRole)

	return r
}
