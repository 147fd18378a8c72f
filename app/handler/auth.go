package handler

import (
	"net/http"
	"strings"

	"media-grab/app/auth"
	"media-grab/app/logger"

	"github.com/gin-gonic/gin"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	credentials *auth.Credentials
	jwtService  *auth.JWTService
	logger      *logger.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(credentials *auth.Credentials, jwtService *auth.JWTService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		credentials: credentials,
		jwtService:  jwtService,
		logger:      log,
	}
}

// LoginRequest 登录请求结构
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应结构
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	ExpireAt int64  `json:"expire_at"`
}

// Login 用户登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	if !h.credentials.Verify(req.Username, req.Password) {
		h.logger.Warnf("登录失败: %s (%s)", req.Username, c.ClientIP())
		fail(c, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	token, err := h.jwtService.GenerateToken(req.Username)
	if err != nil {
		fail(c, http.StatusInternalServerError, "生成令牌失败")
		return
	}

	success(c, http.StatusOK, LoginResponse{
		Token:    token,
		Username: req.Username,
		ExpireAt: h.jwtService.ExpireAt().Unix(),
	}, "登录成功")
}

// RefreshToken 刷新令牌
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !found || token == "" {
		fail(c, http.StatusUnauthorized, "Authorization header is required")
		return
	}

	newToken, err := h.jwtService.RefreshToken(token)
	if err != nil {
		fail(c, http.StatusUnauthorized, "刷新令牌失败: "+err.Error())
		return
	}

	success(c, http.StatusOK, gin.H{
		"token":     newToken,
		"expire_at": h.jwtService.ExpireAt().Unix(),
	}, "刷新成功")
}
