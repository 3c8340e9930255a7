package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jchs-nexus/nexus-portal/internal/api/middleware"
	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/internal/ws"
	"github.com/jchs-nexus/nexus-portal/pkg/response"
)

type postMessageRequest struct {
	Content string `json:"content"`
}

func room(c *gin.Context) string {
	return c.DefaultQuery("room", service.GlobalRoom)
}

// ChatHistory 房间最近消息
// @Summary 聊天记录（时间升序）
// @Tags 聊天
// @Security BearerAuth
// @Param room query string false "房间" default(global)
// @Param limit query int false "条数" default(50)
// @Success 200 {object} response.Response{data=[]model.ChatMessage}
// @Router /api/v1/chat/messages [get]
func (h *Handler) ChatHistory(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	rows, err := h.Chat.History(c.Request.Context(), sess.UserID(), room(c), queryInt(c, "limit", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rows)
}

// PostMessage 发送消息
// @Summary 发送聊天消息
// @Tags 聊天
// @Security BearerAuth
// @Accept json
// @Param room query string false "房间" default(global)
// @Param request body postMessageRequest true "消息"
// @Success 201 {object} response.Response{data=model.ChatMessage}
// @Failure 400 {object} response.Response
// @Failure 429 {object} response.Response
// @Router /api/v1/chat/messages [post]
func (h *Handler) PostMessage(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	msg, err := h.Chat.Post(c.Request.Context(), sess.User, room(c), req.Content)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// ChatSocket 升级为 websocket，先推送快照再推送实时消息
// @Summary 聊天实时连接
// @Tags 聊天
// @Param room query string false "房间" default(global)
// @Param access_token query string false "token"
// @Router /api/v1/chat/ws [get]
func (h *Handler) ChatSocket(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	r := room(c)
	if err := h.Chat.CanAccess(sess.UserID(), r); err != nil {
		response.Error(c, err)
		return
	}
	ws.Serve(c.Request.Context(), h.Upgrader, h.Hub, h.Chat, sess, r, queryInt(c, "limit", 0), c.Writer, c.Request)
}
