package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jchs-nexus/nexus-portal/internal/api/middleware"
	"github.com/jchs-nexus/nexus-portal/pkg/response"
)

// TopLeaderboard 积分排行
// @Summary 积分排行榜
// @Tags 积分
// @Security BearerAuth
// @Param limit query int false "条数" default(10)
// @Success 200 {object} response.Response{data=[]service.LeaderboardEntry}
// @Router /api/v1/leaderboard [get]
func (h *Handler) TopLeaderboard(c *gin.Context) {
	rows, err := h.Leaderboard.Top(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rows)
}

// MyRank 我的排名
// @Summary 我的排名
// @Tags 积分
// @Security BearerAuth
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/leaderboard/me [get]
func (h *Handler) MyRank(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	rank, err := h.Leaderboard.Rank(c.Request.Context(), sess.UserID())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"rank": rank, "points": sess.User.Points})
}
