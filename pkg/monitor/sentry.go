package monitor

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jchs-nexus/nexus-portal/config"
	"github.com/jchs-nexus/nexus-portal/pkg/logger"
)

var enabled bool

// Init 初始化 Sentry；DSN 为空时只记录本地日志
func Init(cfg config.SentryConfig) error {
	if cfg.DSN == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate,
		AttachStacktrace: true,
	}); err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	enabled = true
	return nil
}

// CaptureError reports err with optional tags. Safe to call when Sentry is off.
func CaptureError(err error, tags map[string]string) {
	if err == nil || !enabled {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

func Flush(timeout time.Duration) {
	if enabled {
		sentry.Flush(timeout)
	}
}

// Recovery 捕获 handler panic：上报 Sentry，记录日志，返回 500，进程不退出
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(c.Request)
		defer func() {
			if rec := recover(); rec != nil {
				if enabled {
					hub.RecoverWithContext(c.Request.Context(), rec)
				}
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "internal error"})
			}
		}()
		c.Next()

		if enabled {
			for _, ge := range c.Errors {
				hub.CaptureException(ge.Err)
			}
		}
	}
}
