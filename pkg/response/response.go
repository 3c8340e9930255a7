package response

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/pkg/logger"
)

// Response 统一响应结构
type Response struct {
	Code     int                 `json:"code"`
	Message  string              `json:"message"`
	Data     interface{}         `json:"data,omitempty"`
	Fields   []apperr.FieldError `json:"fields,omitempty"`
	Redirect string              `json:"redirect,omitempty"`
}

const (
	RedirectAuth         = "/auth"
	RedirectSubscription = "/subscription"
	RedirectHome         = "/"
)

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Code: 0, Message: "created", Data: data})
}

// BadRequest 参数错误
func BadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Response{Code: http.StatusBadRequest, Message: msg})
}

// BindError reports a binding failure. validator errors become field errors.
func BindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]apperr.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, apperr.FieldError{Field: jsonName(fe), Message: fe.Translate(translator)})
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, Response{Code: http.StatusBadRequest, Message: "validation failed", Fields: fields})
		return
	}
	BadRequest(c, "invalid request body")
}

func InternalError(c *gin.Context, err error) {
	logger.Error("internal error", zap.String("path", c.FullPath()), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, Response{Code: http.StatusInternalServerError, Message: "internal error"})
}

// Error writes err using its apperr kind. Gate failures carry the redirect
// the client should follow.
func Error(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status, redirect := StatusOf(kind)
	if kind == apperr.KindAlreadyUnlocked {
		c.JSON(http.StatusOK, Response{Code: 0, Message: apperr.Message(err), Data: gin.H{"already_unlocked": true}})
		return
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.String("kind", string(kind)), zap.Error(err))
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, Response{
		Code:     status,
		Message:  apperr.Message(err),
		Fields:   apperr.FieldsOf(err),
		Redirect: redirect,
	})
}

// StatusOf maps an error kind to its HTTP status and redirect target.
func StatusOf(kind apperr.Kind) (int, string) {
	switch kind {
	case apperr.KindAuthRequired:
		return http.StatusUnauthorized, RedirectAuth
	case apperr.KindSubscriptionRequired:
		return http.StatusPaymentRequired, RedirectSubscription
	case apperr.KindPermissionDenied:
		return http.StatusForbidden, RedirectHome
	case apperr.KindValidation:
		return http.StatusBadRequest, ""
	case apperr.KindInsufficientBalance:
		return http.StatusConflict, ""
	case apperr.KindAlreadyUnlocked:
		return http.StatusOK, ""
	case apperr.KindNotFound:
		return http.StatusNotFound, ""
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests, ""
	case apperr.KindNetwork:
		return http.StatusBadGateway, ""
	default:
		return http.StatusInternalServerError, ""
	}
}

func jsonName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	if ns == "" {
		ns = fe.Field()
	}
	return ns
}
