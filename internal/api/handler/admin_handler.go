package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jchs-nexus/nexus-portal/internal/api/middleware"
	"github.com/jchs-nexus/nexus-portal/pkg/response"
)

type grantPointsRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Amount int64  `json:"amount" binding:"required,gt=0"`
}

type grantRoleRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required,oneof=user admin"`
}

// AdminOverview 后台概览
// @Summary 后台统计
// @Tags 管理
// @Security BearerAuth
// @Success 200 {object} response.Response{data=service.Overview}
// @Failure 403 {object} response.Response
// @Router /api/v1/admin/overview [get]
func (h *Handler) AdminOverview(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	out, err := h.Admin.Overview(c.Request.Context(), sess)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, out)
}

// GrantPoints 发放积分
// @Summary 给用户发放积分
// @Tags 管理
// @Security BearerAuth
// @Accept json
// @Param request body grantPointsRequest true "发放"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/admin/points [post]
func (h *Handler) GrantPoints(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	var req grantPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	bal, err := h.Admin.GrantPoints(c.Request.Context(), sess, req.UserID, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"user_id": req.UserID, "points": bal})
}

// GrantRole 授予角色
// @Summary 授予角色
// @Tags 管理
// @Security BearerAuth
// @Accept json
// @Param request body grantRoleRequest true "角色"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/roles [post]
func (h *Handler) GrantRole(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	var req grantRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	if err := h.Admin.GrantRole(c.Request.Context(), sess, req.UserID, req.Role); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
