package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jchs-nexus/nexus-portal/internal/api/middleware"
	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/pkg/response"
)

type unlockRequest struct {
	// 客户端看到的价格，和当前价格不一致时拒绝
	Price int64 `json:"price" binding:"gte=0"`
}

// ListHomework 作业列表
// @Summary 作业列表（未解锁的帖子会被脱敏）
// @Tags 作业
// @Security BearerAuth
// @Param limit query int false "每页条数" default(20)
// @Param offset query int false "偏移" default(0)
// @Success 200 {object} response.Response{data=[]service.HomeworkView}
// @Router /api/v1/homework [get]
func (h *Handler) ListHomework(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	rows, err := h.Homework.List(c.Request.Context(), sess.UserID(), queryInt(c, "limit", 20), queryInt(c, "offset", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rows)
}

// GetHomework 作业详情
// @Summary 作业详情
// @Tags 作业
// @Security BearerAuth
// @Param id path string true "帖子 ID"
// @Success 200 {object} response.Response{data=service.HomeworkView}
// @Failure 404 {object} response.Response
// @Router /api/v1/homework/{id} [get]
func (h *Handler) GetHomework(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	v, err := h.Homework.Get(c.Request.Context(), sess.UserID(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, v)
}

// CreateHomework 发布作业帖，可附带一张图片
// @Summary 发布作业
// @Tags 作业
// @Security BearerAuth
// @Accept multipart/form-data
// @Param title formData string true "标题"
// @Param description formData string false "内容"
// @Param points_required formData int false "解锁所需积分"
// @Param image formData file false "图片"
// @Success 201 {object} response.Response{data=service.HomeworkView}
// @Failure 400 {object} response.Response
// @Router /api/v1/homework [post]
func (h *Handler) CreateHomework(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	var in service.NewHomework
	if err := c.ShouldBind(&in); err != nil {
		response.BindError(c, err)
		return
	}
	upload, err := h.readUpload(c, "image")
	if err != nil {
		response.Error(c, err)
		return
	}
	v, err := h.Homework.Create(c.Request.Context(), sess, in, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, v)
}

func (h *Handler) readUpload(c *gin.Context, field string) (*service.Upload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, apperr.Validation("invalid upload", apperr.FieldError{Field: field, Message: err.Error()})
	}
	if fh.Size > h.MaxUpload {
		return nil, apperr.Validation("file too large", apperr.FieldError{Field: field, Message: "exceeds upload limit"})
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperr.Validation("invalid upload", apperr.FieldError{Field: field, Message: err.Error()})
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.MaxUpload+1))
	if err != nil {
		return nil, apperr.Validation("invalid upload", apperr.FieldError{Field: field, Message: err.Error()})
	}
	return &service.Upload{Filename: fh.Filename, Data: data}, nil
}

// DeleteHomework 删除作业帖
// @Summary 删除作业（作者或管理员）
// @Tags 作业
// @Security BearerAuth
// @Param id path string true "帖子 ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /api/v1/homework/{id} [delete]
func (h *Handler) DeleteHomework(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	if err := h.Homework.Delete(c.Request.Context(), sess, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// UnlockHomework 用积分解锁
// @Summary 解锁作业
// @Tags 作业
// @Security BearerAuth
// @Accept json
// @Param id path string true "帖子 ID"
// @Param request body unlockRequest true "看到的价格"
// @Success 200 {object} response.Response{data=service.PurchaseResult}
// @Failure 409 {object} response.Response
// @Router /api/v1/homework/{id}/unlock [post]
func (h *Handler) UnlockHomework(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	var req unlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	res, err := h.Unlock.Purchase(c.Request.Context(), sess.UserID(), c.Param("id"), req.Price)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// LikeHomework 点赞
// @Summary 点赞
// @Tags 作业
// @Security BearerAuth
// @Param id path string true "帖子 ID"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/homework/{id}/like [post]
func (h *Handler) LikeHomework(c *gin.Context) {
	likes, err := h.Homework.Like(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"likes": likes})
}

// ListReplies 回复列表
// @Summary 回复列表
// @Tags 作业
// @Security BearerAuth
// @Param id path string true "帖子 ID"
// @Success 200 {object} response.Response{data=[]model.HomeworkReply}
// @Router /api/v1/homework/{id}/replies [get]
func (h *Handler) ListReplies(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	rows, err := h.Homework.Replies(c.Request.Context(), sess.UserID(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rows)
}

// CreateReply 回复
// @Summary 回复作业
// @Tags 作业
// @Security BearerAuth
// @Accept json
// @Param id path string true "帖子 ID"
// @Param request body service.NewReply true "回复内容"
// @Success 201 {object} response.Response{data=model.HomeworkReply}
// @Router /api/v1/homework/{id}/replies [post]
func (h *Handler) CreateReply(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	var in service.NewReply
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BindError(c, err)
		return
	}
	r, err := h.Homework.Reply(c.Request.Context(), sess, c.Param("id"), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, r)
}
