package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jchs-nexus/nexus-portal/internal/api/middleware"
	"github.com/jchs-nexus/nexus-portal/pkg/response"
)

// Balance 积分余额
// @Summary 查询积分余额
// @Tags 积分
// @Security BearerAuth
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/points [get]
func (h *Handler) Balance(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	bal, err := h.Ledger.Balance(c.Request.Context(), sess.UserID())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"points": bal})
}

// PointHistory 积分流水
// @Summary 最近的积分变动
// @Tags 积分
// @Security BearerAuth
// @Param limit query int false "条数" default(50)
// @Success 200 {object} response.Response{data=[]model.PointTransaction}
// @Router /api/v1/points/history [get]
func (h *Handler) PointHistory(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	rows, err := h.Ledger.History(c.Request.Context(), sess.UserID(), queryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rows)
}
