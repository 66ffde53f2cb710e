package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"okitegami/backend/internal/auth"
	"okitegami/backend/internal/middleware"
)

// AuthHandler 处理认证相关的 HTTP 请求
type AuthHandler struct {
	authService *auth.Service // 认证业务服务
	log         *zap.Logger   // 结构化日志记录器
}

// NewAuthHandler 创建新的认证处理器实例
func NewAuthHandler(authService *auth.Service, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         log.Named("auth"),
	}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Nickname string `json:"nickname" binding:"required"`
}

type loginRequest struct {
	// Identifier 邮箱或昵称
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Register 处理用户注册请求
// @Summary 用户注册
// @Description 创建新用户账户，返回用户信息和认证令牌；欢迎邮件异步发送
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body registerRequest true "注册信息"
// @Success 201 {object} Response{data=auth.AuthResponse} "注册成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 409 {object} Response "邮箱或昵称已存在"
// @Failure 500 {object} Response "服务器内部错误"
// @Router /v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Nickname: req.Nickname,
	})
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	CreatedWithMsg(c, "登録しました", resp)
}

// Login 处理用户登录请求
// @Summary 用户登录
// @Description 使用邮箱或昵称加密码登录
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body loginRequest true "登录信息"
// @Success 200 {object} Response{data=auth.AuthResponse} "登录成功"
// @Failure 401 {object} Response "用户名或密码错误"
// @Router /v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), auth.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
	})
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "ログインしました", resp)
}

// Refresh 刷新访问令牌
// @Summary 刷新令牌
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body refreshRequest true "刷新令牌"
// @Success 200 {object} Response{data=auth.AuthResponse}
// @Failure 401 {object} Response
// @Router /v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	resp, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Success(c, resp)
}

// Me 获取当前用户信息
// @Summary 当前用户
// @Tags 认证
// @Produce json
// @Success 200 {object} Response{data=object{user=domain.User,isAdmin=bool}}
// @Failure 401 {object} Response
// @Security BearerAuth
// @Router /v1/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	viewer := middleware.ViewerFrom(c)
	user, err := h.authService.Me(c.Request.Context(), viewer)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Success(c, gin.H{"user": user, "isAdmin": viewer.IsAdmin})
}
