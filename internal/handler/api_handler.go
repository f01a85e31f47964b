package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/supportbot/storebot-go/internal/auth"
	"github.com/supportbot/storebot-go/internal/service"
	"go.uber.org/zap"
)

// APIHandler 健康检查与登录
type APIHandler struct {
	serviceName    string
	sessionService *service.SessionService
	identity       *auth.IdentityService
	logger         *zap.Logger
}

// NewAPIHandler 创建 API 处理器
func NewAPIHandler(serviceName string, sessionService *service.SessionService, identity *auth.IdentityService, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		serviceName:    serviceName,
		sessionService: sessionService,
		identity:       identity,
		logger:         logger,
	}
}

// Health 健康检查
func (h *APIHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "UP",
		"service":      h.serviceName,
		"online_users": h.sessionService.OnlineCount(),
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 邮箱密码登录，返回访问令牌
func (h *APIHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, service.ValidationError(errors.New("邮箱和密码不能为空")))
		return
	}

	result, err := h.identity.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondError(c, service.AuthError(auth.ErrInvalidCredentials.Error(), err))
			return
		}
		h.logger.Error("登录失败", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}
