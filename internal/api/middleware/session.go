package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/pkg/response"
)

const sessionKey = "nexus.session"

// Gate is the part of the session gate the middleware needs.
type Gate interface {
	CurrentSession(ctx context.Context, token string) (*service.Session, error)
	RequireSubscription(s *service.Session) error
	VerifyAdmin(ctx context.Context, s *service.Session) error
}

// BearerToken 优先读 Authorization 头，浏览器 websocket 只能走 access_token 参数
func BearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("access_token")
}

// RequireSession 解析并加载会话；失败返回 401 并要求跳转 /auth
func RequireSession(gate Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := gate.CurrentSession(c.Request.Context(), BearerToken(c))
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func RequireSubscription(gate Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := SessionFrom(c)
		if err := gate.RequireSubscription(sess); err != nil {
			response.Error(c, err)
			return
		}
		c.Next()
	}
}

// RequireAdmin 每个请求都重新查询权威角色
func RequireAdmin(gate Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := gate.VerifyAdmin(c.Request.Context(), SessionFrom(c)); err != nil {
			response.Error(c, err)
			return
		}
		c.Next()
	}
}

// SessionFrom returns the session set by RequireSession, or nil.
func SessionFrom(c *gin.Context) *service.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*service.Session)
	return sess
}

// MustSession aborts with 401 when no session is present.
func MustSession(c *gin.Context) (*service.Session, bool) {
	sess := SessionFrom(c)
	if sess == nil {
		response.Error(c, apperr.ErrAuthRequired)
		return nil, false
	}
	return sess, true
}
