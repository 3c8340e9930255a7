package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jchs-nexus/nexus-portal/internal/api/middleware"
	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/pkg/response"
)

// ListActivities 活动列表
// @Summary 活动/游戏列表
// @Tags 活动
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]service.ActivityView}
// @Router /api/v1/activities [get]
func (h *Handler) ListActivities(c *gin.Context) {
	rows, err := h.Activities.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rows)
}

// CompleteActivity 完成活动，首次完成时奖励积分
// @Summary 完成活动
// @Tags 活动
// @Security BearerAuth
// @Param id path string true "活动 ID"
// @Success 200 {object} response.Response{data=service.CompletionResult}
// @Router /api/v1/activities/{id}/complete [post]
func (h *Handler) CompleteActivity(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	res, err := h.Activities.Complete(c.Request.Context(), sess.UserID(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// CreateActivity 新建活动
// @Summary 新建活动（管理员）
// @Tags 管理
// @Security BearerAuth
// @Accept json
// @Param request body service.NewActivity true "活动"
// @Success 201 {object} response.Response{data=service.ActivityView}
// @Failure 403 {object} response.Response
// @Router /api/v1/admin/activities [post]
func (h *Handler) CreateActivity(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	var in service.NewActivity
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BindError(c, err)
		return
	}
	a, err := h.Activities.Create(c.Request.Context(), sess, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, a)
}

// DeleteActivity 删除活动
// @Summary 删除活动（管理员）
// @Tags 管理
// @Security BearerAuth
// @Param id path string true "活动 ID"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/activities/{id} [delete]
func (h *Handler) DeleteActivity(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	if err := h.Activities.Delete(c.Request.Context(), sess, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// ListMerch 周边商品
// @Summary 周边列表
// @Tags 周边
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]model.MerchItem}
// @Router /api/v1/merch [get]
func (h *Handler) ListMerch(c *gin.Context) {
	rows, err := h.Merch.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rows)
}

// CreateMerch 新建周边
// @Summary 新建周边（管理员）
// @Tags 管理
// @Security BearerAuth
// @Accept json
// @Param request body service.NewMerchItem true "商品"
// @Success 201 {object} response.Response{data=model.MerchItem}
// @Router /api/v1/admin/merch [post]
func (h *Handler) CreateMerch(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	var in service.NewMerchItem
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BindError(c, err)
		return
	}
	m, err := h.Merch.Create(c.Request.Context(), sess, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, m)
}

// DeleteMerch 删除周边
// @Summary 删除周边（管理员）
// @Tags 管理
// @Security BearerAuth
// @Param id path string true "商品 ID"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/merch/{id} [delete]
func (h *Handler) DeleteMerch(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	if err := h.Merch.Delete(c.Request.Context(), sess, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// ListMusic 音乐嵌入
// @Summary 音乐列表（含渲染好的 iframe）
// @Tags 音乐
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]service.MusicView}
// @Router /api/v1/music [get]
func (h *Handler) ListMusic(c *gin.Context) {
	rows, err := h.Music.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rows)
}

// CreateMusic 添加音乐嵌入
// @Summary 添加音乐
// @Tags 音乐
// @Security BearerAuth
// @Accept json
// @Param request body service.NewMusicEmbed true "嵌入信息"
// @Success 201 {object} response.Response{data=service.MusicView}
// @Failure 400 {object} response.Response
// @Router /api/v1/music [post]
func (h *Handler) CreateMusic(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	var in service.NewMusicEmbed
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BindError(c, err)
		return
	}
	v, err := h.Music.Create(c.Request.Context(), sess, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, v)
}

// DeleteMusic 删除音乐
// @Summary 删除音乐（添加者或管理员）
// @Tags 音乐
// @Security BearerAuth
// @Param id path string true "ID"
// @Success 200 {object} response.Response
// @Router /api/v1/music/{id} [delete]
func (h *Handler) DeleteMusic(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	if err := h.Music.Delete(c.Request.Context(), sess, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
