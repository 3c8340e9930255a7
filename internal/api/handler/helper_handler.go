package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jchs-nexus/nexus-portal/internal/api/middleware"
	"github.com/jchs-nexus/nexus-portal/pkg/response"
)

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

// Ask 作业助手
// @Summary 向 AI 作业助手提问
// @Tags 助手
// @Security BearerAuth
// @Accept json
// @Param request body askRequest true "问题"
// @Success 200 {object} response.Response{data=service.Answer}
// @Failure 429 {object} response.Response
// @Router /api/v1/ai/ask [post]
func (h *Handler) Ask(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	ans, err := h.Helper.Ask(c.Request.Context(), sess.UserID(), req.Question)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ans)
}
