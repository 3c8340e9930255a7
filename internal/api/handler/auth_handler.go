package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jchs-nexus/nexus-portal/internal/api/middleware"
	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/pkg/response"
)

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token   string           `json:"token"`
	Session *service.Session `json:"session"`
}

// Register 注册
// @Summary 注册新用户
// @Tags 身份
// @Accept json
// @Produce json
// @Param request body registerRequest true "注册信息"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	user, err := h.Gate.Register(c.Request.Context(), service.NewUser{Username: req.Username, Email: req.Email, Password: req.Password})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// Login 登录
// @Summary 登录并获取 token
// @Tags 身份
// @Accept json
// @Produce json
// @Param request body loginRequest true "登录信息"
// @Success 200 {object} response.Response{data=loginResponse}
// @Failure 401 {object} response.Response
// @Router /api/v1/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	token, sess, err := h.Gate.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, loginResponse{Token: token, Session: sess})
}

// Logout 注销当前 token
// @Summary 注销
// @Tags 身份
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /api/v1/auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	if err := h.Gate.Logout(c.Request.Context(), sess); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Session 当前会话
// @Summary 当前会话信息
// @Tags 身份
// @Security BearerAuth
// @Success 200 {object} response.Response{data=service.Session}
// @Failure 401 {object} response.Response
// @Router /api/v1/session [get]
func (h *Handler) Session(c *gin.Context) {
	sess, ok := middleware.MustSession(c)
	if !ok {
		return
	}
	response.Success(c, sess)
}
