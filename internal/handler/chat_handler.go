package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/supportbot/storebot-go/internal/middleware"
	"github.com/supportbot/storebot-go/internal/model"
	"github.com/supportbot/storebot-go/internal/service"
	"go.uber.org/zap"
)

// ChatHandler 聊天 REST 接口
type ChatHandler struct {
	chatService *service.ChatService
	logger      *zap.Logger
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(chatService *service.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// Register 挂载路由，调用方负责鉴权中间件
func (h *ChatHandler) Register(r gin.IRoutes) {
	r.POST("/send", h.Send)
	r.GET("/history", h.History)
	r.DELETE("/clear", h.Clear)
	r.GET("/suggestions", h.Suggestions)
	r.GET("/export", h.Export)
}

// currentOwner 当前登录用户 ID
func currentOwner(c *gin.Context) (int64, bool) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		respondError(c, service.AuthError("未登录", nil))
		return 0, false
	}
	return user.ID, true
}

// Send 发送消息并同步返回机器人回复
func (h *ChatHandler) Send(c *gin.Context) {
	userID, ok := currentOwner(c)
	if !ok {
		return
	}

	var req model.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, service.ValidationError(err))
		return
	}

	exchange, err := h.chatService.HandleSend(c.Request.Context(), userID, req)
	if err != nil {
		h.logger.Warn("处理聊天消息失败",
			zap.Int64("userId", userID),
			zap.String("kind", string(service.KindOf(err))),
			zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SendResponse{
		Success:     true,
		UserMessage: exchange.UserMessage,
		BotMessage:  exchange.BotMessage,
		Timestamp:   exchange.Timestamp,
	})
}

// History 聊天记录，limit 可选
func (h *ChatHandler) History(c *gin.Context) {
	userID, ok := currentOwner(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, service.ValidationError(errInvalidLimit))
			return
		}
		limit = n
	}

	messages, err := h.chatService.History(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.Error("获取聊天记录失败", zap.Int64("userId", userID), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": messages})
}

// Clear 清空聊天记录
func (h *ChatHandler) Clear(c *gin.Context) {
	userID, ok := currentOwner(c)
	if !ok {
		return
	}

	deleted, err := h.chatService.Clear(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("清空聊天记录失败", zap.Int64("userId", userID), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Chat history cleared",
		"deleted": deleted,
	})
}

// Suggestions 推荐问题
func (h *ChatHandler) Suggestions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "suggestions": h.chatService.Suggestions()})
}

// Export 导出聊天记录
func (h *ChatHandler) Export(c *gin.Context) {
	userID, ok := currentOwner(c)
	if !ok {
		return
	}

	export, err := h.chatService.Export(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("导出聊天记录失败", zap.Int64("userId", userID), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": export})
}
