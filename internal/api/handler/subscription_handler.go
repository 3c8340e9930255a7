package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jchs-nexus/nexus-portal/internal/api/middleware"
	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/pkg/logger"
	"github.com/jchs-nexus/nexus-portal/pkg/response"
)

const signatureHeader = "X-Signature"

type checkoutRequest struct {
	SuccessURL string `json:"success_url" binding:"required,url"`
	CancelURL  string `json:"cancel_url" binding:"required,url"`
}

// SubscriptionStatus 订阅状态
// @Summary 当前订阅状态
// @Tags 订阅
// @Security BearerAuth
// @Success 200 {object} response.Response{data=service.SubscriptionStatus}
// @Router /api/v1/subscription [get]
func (h *Handler) SubscriptionStatus(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	response.Success(c, h.Subscriptions.Status(sess))
}

// Checkout 创建支付会话
// @Summary 创建订阅支付会话
// @Tags 订阅
// @Security BearerAuth
// @Accept json
// @Param request body checkoutRequest true "回跳地址"
// @Success 200 {object} response.Response{data=service.CheckoutSession}
// @Failure 502 {object} response.Response
// @Router /api/v1/subscription/checkout [post]
func (h *Handler) Checkout(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	out, err := h.Subscriptions.Checkout(c.Request.Context(), sess, req.SuccessURL, req.CancelURL)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, out)
}

// SubscriptionWebhook 支付方回调，签名为 body 的 HMAC-SHA256 十六进制
// @Summary 支付回调
// @Tags 订阅
// @Accept json
// @Param X-Signature header string true "HMAC-SHA256"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/webhooks/subscription [post]
func (h *Handler) SubscriptionWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}
	if !validSignature(h.WebhookSecret, body, c.GetHeader(signatureHeader)) {
		logger.Warn("webhook signature mismatch", zap.String("ip", c.ClientIP()))
		response.Error(c, apperr.New(apperr.KindAuthRequired, "invalid signature"))
		return
	}
	var ev service.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		response.BadRequest(c, "invalid json")
		return
	}
	if err := h.Subscriptions.ApplyWebhook(c.Request.Context(), ev); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func validSignature(secret string, body []byte, sig string) bool {
	if secret == "" || sig == "" {
		return false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// Sign is used by tests and local tooling to produce a webhook signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
