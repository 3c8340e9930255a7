package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jchs-nexus/nexus-portal/internal/api/middleware"
	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/pkg/response"
)

// GetProfile 我的资料
// @Summary 获取个人资料
// @Tags 资料
// @Security BearerAuth
// @Success 200 {object} response.Response{data=model.User}
// @Router /api/v1/profile [get]
func (h *Handler) GetProfile(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	u, err := h.Profiles.Get(c.Request.Context(), sess.UserID())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, u)
}

// UpdateProfile 修改资料
// @Summary 修改用户名/头像/音乐服务
// @Tags 资料
// @Security BearerAuth
// @Accept json
// @Param request body service.ProfileUpdate true "修改内容"
// @Success 200 {object} response.Response{data=model.User}
// @Failure 400 {object} response.Response
// @Router /api/v1/profile [patch]
func (h *Handler) UpdateProfile(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	var req service.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	u, err := h.Profiles.Update(c.Request.Context(), sess.UserID(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, u)
}
