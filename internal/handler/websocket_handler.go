package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/supportbot/storebot-go/internal/auth"
	"github.com/supportbot/storebot-go/internal/config"
	"github.com/supportbot/storebot-go/internal/middleware"
	"github.com/supportbot/storebot-go/internal/model"
	"github.com/supportbot/storebot-go/internal/service"
	"go.uber.org/zap"
)

var errOwnerMismatch = errors.New("用户标识与登录身份不一致")

// WebSocketHandler WebSocket 处理器
type WebSocketHandler struct {
	sessionService *service.SessionService
	chatService    *service.ChatService
	identity       middleware.IdentityResolver
	upgrader       websocket.Upgrader
	welcomeDelay   time.Duration
	logger         *zap.Logger
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler(
	sessionService *service.SessionService,
	chatService *service.ChatService,
	identity middleware.IdentityResolver,
	allowedOrigins []string,
	cfg config.ChatConfig,
	logger *zap.Logger,
) *WebSocketHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}
	return &WebSocketHandler{
		sessionService: sessionService,
		chatService:    chatService,
		identity:       identity,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return middleware.OriginAllowed(allowed, r.Header.Get("Origin"))
			},
		},
		welcomeDelay: cfg.WelcomeDelay,
		logger:       logger,
	}
}

// HandleWebSocket WebSocket 连接入口，令牌取自 token 参数或 Authorization 头
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = auth.BearerToken(c.GetHeader("Authorization"))
	}
	user, err := h.identity.Resolve(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			respondError(c, service.AuthError(auth.ErrInvalidToken.Error(), err))
			return
		}
		h.logger.Error("身份解析失败", zap.Error(err))
		respondError(c, err)
		return
	}

	// 升级为 WebSocket 连接
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket 升级失败", zap.Error(err))
		return
	}
	defer conn.Close()

	// 注册会话
	session := &model.UserSession{
		UserID:    user.ID,
		Username:  user.Email,
		Conn:      conn,
		SessionID: uuid.New().String(),
		ClientIP:  c.ClientIP(),
	}
	h.sessionService.Register(session)
	defer h.sessionService.Leave(session.SessionID)

	// 连接级上下文，断开后取消欢迎语等延迟任务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.logger.Info("WebSocket 连接建立",
		zap.Int64("userId", user.ID),
		zap.String("sessionId", session.SessionID))

	// 消息循环
	for {
		var env model.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Error("WebSocket 读取错误", zap.Error(err))
			}
			break
		}
		h.handleEnvelope(ctx, session, &env)
	}

	h.logger.Info("WebSocket 连接断开",
		zap.Int64("userId", user.ID),
		zap.String("sessionId", session.SessionID))
}

// handleEnvelope 处理客户端事件
func (h *WebSocketHandler) handleEnvelope(ctx context.Context, session *model.UserSession, env *model.Envelope) {
	switch env.Type {
	case model.EventHeartbeat:
		h.sessionService.UpdateHeartbeat(session.SessionID)
		return
	case model.EventJoinChat:
		h.handleJoin(ctx, session, env.Data)
		return
	}

	owner, joined := h.sessionService.JoinedChannel(session.SessionID)
	if !joined {
		h.sendError(session.SessionID, service.ValidationError(service.ErrNotJoined))
		return
	}

	switch env.Type {
	case model.EventSendMessage:
		var payload model.SendPayload
		if err := decodeData(env.Data, &payload); err != nil {
			h.sendError(session.SessionID, service.ValidationError(err))
			return
		}
		if payload.UserID != 0 && payload.UserID != owner {
			h.sendError(session.SessionID, service.AuthError(errOwnerMismatch.Error(), errOwnerMismatch))
			return
		}
		// 独立 goroutine 处理，读循环继续转发输入状态与心跳
		go h.handleSend(owner, session.SessionID, model.SendRequest{
			Message: payload.Message,
			Context: payload.Context,
		})

	case model.EventTypingStart, model.EventTypingStop:
		h.sessionService.Publish(owner, model.OutboundEvent{
			Type: model.EventUserTyping,
			Data: model.TypingPayload{Typing: env.Type == model.EventTypingStart},
		}, session.SessionID)

	case model.EventGetChatHistory:
		messages, err := h.chatService.SocketHistory(ctx, owner)
		if err != nil {
			h.logger.Error("获取聊天记录失败", zap.Int64("userId", owner), zap.Error(err))
			h.sendError(session.SessionID, err)
			return
		}
		h.sessionService.SendToSession(session.SessionID, model.OutboundEvent{
			Type: model.EventChatHistory,
			Data: model.HistoryPayload{Messages: messages},
		})

	default:
		h.logger.Warn("未知消息类型",
			zap.Int64("userId", owner),
			zap.String("type", env.Type))
		h.sendError(session.SessionID, service.ValidationError(fmt.Errorf("未知事件类型: %s", env.Type)))
	}
}

// handleJoin 加入本人频道，必要时延迟发送欢迎语
func (h *WebSocketHandler) handleJoin(ctx context.Context, session *model.UserSession, data json.RawMessage) {
	owner, err := decodeJoin(data)
	if err != nil {
		h.sendError(session.SessionID, service.ValidationError(err))
		return
	}
	if owner != session.UserID {
		h.sendError(session.SessionID, service.AuthError(errOwnerMismatch.Error(), errOwnerMismatch))
		return
	}
	if err := h.sessionService.Join(session.SessionID, owner); err != nil {
		h.sendError(session.SessionID, service.ValidationError(err))
		return
	}

	h.sessionService.SendToSession(session.SessionID, model.OutboundEvent{
		Type: model.EventJoined,
		Data: model.JoinPayload{UserID: owner},
	})
	go h.welcome(ctx, owner, session.SessionID)
}

// welcome 最近无消息时发送欢迎语，不落库
func (h *WebSocketHandler) welcome(ctx context.Context, owner int64, sessionID string) {
	timer := time.NewTimer(h.welcomeDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	should, err := h.chatService.ShouldWelcome(ctx, owner)
	if err != nil {
		h.logger.Warn("查询欢迎状态失败", zap.Int64("userId", owner), zap.Error(err))
		return
	}
	if !should {
		return
	}
	h.sessionService.SendToSession(sessionID, model.OutboundEvent{
		Type: model.EventReceiveMessage,
		Data: h.chatService.Welcome(),
	})
}

// handleSend 用户消息与机器人回复依次推送给频道内全部会话
func (h *WebSocketHandler) handleSend(owner int64, sessionID string, req model.SendRequest) {
	notify := func(turn *model.ChatMessage) {
		h.sessionService.Publish(owner, model.OutboundEvent{
			Type: model.EventReceiveMessage,
			Data: model.NewTurnPayload(turn),
		}, "")
	}

	if _, err := h.chatService.HandleSocketSend(context.Background(), owner, req, notify); err != nil {
		h.logger.Warn("处理聊天消息失败",
			zap.Int64("userId", owner),
			zap.String("kind", string(service.KindOf(err))),
			zap.Error(err))
		h.sendError(sessionID, err)
	}
}

func (h *WebSocketHandler) sendError(sessionID string, err error) {
	h.sessionService.SendToSession(sessionID, model.OutboundEvent{
		Type: model.EventChatError,
		Data: model.ErrorPayload{
			Error: service.ReasonOf(err),
			Kind:  string(service.KindOf(err)),
		},
	})
}

func decodeData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return errors.New("缺少事件数据")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("事件数据格式错误: %w", err)
	}
	return nil
}

// decodeJoin 兼容 {"userId": 1} 与裸 ID 两种写法
func decodeJoin(data json.RawMessage) (int64, error) {
	var owner int64
	if err := json.Unmarshal(data, &owner); err == nil {
		return owner, nil
	}
	var payload model.JoinPayload
	if err := decodeData(data, &payload); err != nil {
		return 0, err
	}
	return payload.UserID, nil
}
