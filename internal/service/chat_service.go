package service

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/supportbot/storebot-go/internal/config"
	"github.com/supportbot/storebot-go/internal/metrics"
	"github.com/supportbot/storebot-go/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	TransportHTTP   = "http"
	TransportSocket = "socket"
)

var tracer = otel.Tracer("github.com/supportbot/storebot-go/internal/service")

// MessageStore 聊天记录存储
type MessageStore interface {
	// Append 写入一条消息，回填 ID
	Append(ctx context.Context, msg *model.ChatMessage) error
	// ListByOwner 按时间升序返回消息，limit > 0 时只取最近 limit 条
	ListByOwner(ctx context.Context, owner int64, limit int) ([]model.ChatMessage, error)
	// CountSince 统计 since 之后的消息数
	CountSince(ctx context.Context, owner int64, since time.Time) (int64, error)
	// DeleteByOwner 删除用户全部消息，返回删除条数
	DeleteByOwner(ctx context.Context, owner int64) (int64, error)
	// LatestAt 用户最后一条消息的时间，没有消息时返回零值
	LatestAt(ctx context.Context, owner int64) (time.Time, error)
}

// TurnNotifier 消息落库后的推送回调
type TurnNotifier func(turn *model.ChatMessage)

// Exchange 一次完整的对话：用户消息 + 机器人回复
type Exchange struct {
	UserMessage *model.ChatMessage
	BotMessage  *model.ChatMessage
	Intent      model.Intent
	Timestamp   time.Time
}

// ChatService 聊天服务：两种传输方式共用的对话流水线
type ChatService struct {
	store       MessageStore
	classifier  *ClassifierService
	contexts    *ContextService
	responses   *ResponseService
	locker      OwnerLocker
	suggestions []string
	cfg         config.ChatConfig
	now         func() time.Time
	logger      *zap.Logger
}

// NewChatService 创建聊天服务
func NewChatService(
	store MessageStore,
	classifier *ClassifierService,
	contexts *ContextService,
	responses *ResponseService,
	locker OwnerLocker,
	suggestions []string,
	cfg config.ChatConfig,
	logger *zap.Logger,
) *ChatService {
	if locker == nil || cfg.ConcurrentSends {
		locker = NoopLocker{}
	}
	return &ChatService{
		store:       store,
		classifier:  classifier,
		contexts:    contexts,
		responses:   responses,
		locker:      locker,
		suggestions: suggestions,
		cfg:         cfg,
		now:         time.Now,
		logger:      logger,
	}
}

// WithClock 替换时钟（测试用）
func (s *ChatService) WithClock(now func() time.Time) *ChatService {
	s.now = now
	return s
}

// HandleSend 同步请求入口：返回落库后的两条消息
func (s *ChatService) HandleSend(ctx context.Context, owner int64, req model.SendRequest) (*Exchange, error) {
	return s.exchange(ctx, TransportHTTP, owner, req, nil)
}

// HandleSocketSend 长连接入口：用户消息落库后立即推送，回复落库后再推送
func (s *ChatService) HandleSocketSend(ctx context.Context, owner int64, req model.SendRequest, notify TurnNotifier) (*Exchange, error) {
	return s.exchange(ctx, TransportSocket, owner, req, notify)
}

// exchange 校验 -> 用户消息落库 -> 分类 -> 生成回复 -> 回复落库，每步严格先后
func (s *ChatService) exchange(ctx context.Context, transport string, owner int64, req model.SendRequest, notify TurnNotifier) (ex *Exchange, err error) {
	started := time.Now()
	defer func() {
		if err != nil {
			metrics.RecordExchangeFailure(transport, string(KindOf(err)))
		}
	}()

	text := strings.TrimSpace(req.Message)
	if owner <= 0 {
		return nil, ValidationError(ErrNoOwner)
	}
	if text == "" {
		return nil, ValidationError(ErrEmptyText)
	}
	aux, err := encodeAux(req.Context)
	if err != nil {
		return nil, ValidationError(err)
	}

	// 调用方断开不影响本轮处理，回复仍会落库
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "chat.exchange", trace.WithAttributes(
		attribute.Int64("chat.owner", owner),
		attribute.String("chat.transport", transport),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	unlock, err := s.locker.Lock(ctx, owner)
	if err != nil {
		return nil, newChatError(KindPersistence, "消息处理繁忙，请稍后重试", err)
	}
	defer unlock()

	// 持锁读取上一条消息时间，新消息必须排在其后
	last, err := s.store.LatestAt(ctx, owner)
	if err != nil {
		s.logger.Error("查询最近消息时间失败", zap.Int64("userId", owner), zap.Error(err))
		return nil, newChatError(KindPersistence, "消息保存失败", err)
	}

	userTurn := &model.ChatMessage{
		UserID:    owner,
		Message:   text,
		Origin:    model.OriginUser,
		Context:   aux,
		CreatedAt: s.after(last),
	}
	if err := s.persist(ctx, userTurn); err != nil {
		return nil, err
	}
	if notify != nil {
		notify(userTurn)
	}

	conv := s.contexts.Get(ctx, owner)
	intent := s.classifier.Classify(text, conv)
	conv = s.contexts.Touch(ctx, owner, text, intent)
	span.SetAttributes(attribute.String("chat.intent", string(intent)))

	reply := s.generate(ctx, intent, text, owner, conv)

	botTurn := &model.ChatMessage{
		UserID:    owner,
		Message:   reply,
		Response:  &reply,
		Origin:    model.OriginBot,
		Context:   aux,
		CreatedAt: s.after(userTurn.CreatedAt),
	}
	if err := s.persist(ctx, botTurn); err != nil {
		return nil, err
	}
	if notify != nil {
		notify(botTurn)
	}

	metrics.RecordExchange(transport, string(intent), started)
	s.logger.Info("对话处理完成",
		zap.Int64("userId", owner),
		zap.String("transport", transport),
		zap.String("intent", string(intent)),
		zap.Duration("elapsed", time.Since(started)))

	return &Exchange{
		UserMessage: userTurn,
		BotMessage:  botTurn,
		Intent:      intent,
		Timestamp:   s.now(),
	}, nil
}

func (s *ChatService) persist(ctx context.Context, msg *model.ChatMessage) error {
	ctx, span := tracer.Start(ctx, "chat.persist", trace.WithAttributes(
		attribute.String("chat.origin", string(msg.Origin)),
	))
	defer span.End()

	if err := s.store.Append(ctx, msg); err != nil {
		span.RecordError(err)
		s.logger.Error("消息落库失败",
			zap.Int64("userId", msg.UserID),
			zap.String("origin", string(msg.Origin)),
			zap.Error(err))
		return newChatError(KindPersistence, "消息保存失败", err)
	}
	return nil
}

func (s *ChatService) generate(ctx context.Context, intent model.Intent, text string, owner int64, conv model.ConversationContext) string {
	ctx, span := tracer.Start(ctx, "chat.generate", trace.WithAttributes(
		attribute.String("chat.intent", string(intent)),
	))
	defer span.End()
	return s.responses.Generate(ctx, intent, text, owner, conv)
}

// after 保证同一用户的消息时间严格递增，精度与数据库一致取微秒
func (s *ChatService) after(prev time.Time) time.Time {
	now := s.now().Truncate(time.Microsecond)
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}

// History 按时间升序返回聊天记录，limit <= 0 表示不限
func (s *ChatService) History(ctx context.Context, owner int64, limit int) ([]model.ChatMessage, error) {
	if owner <= 0 {
		return nil, ValidationError(ErrNoOwner)
	}
	messages, err := s.store.ListByOwner(ctx, owner, limit)
	if err != nil {
		return nil, newChatError(KindPersistence, "获取聊天记录失败", err)
	}
	if messages == nil {
		messages = []model.ChatMessage{}
	}
	return messages, nil
}

// SocketHistory 长连接历史，只取最近若干条
func (s *ChatService) SocketHistory(ctx context.Context, owner int64) ([]model.ChatMessage, error) {
	return s.History(ctx, owner, s.cfg.SocketHistory)
}

// Clear 清空用户聊天记录
func (s *ChatService) Clear(ctx context.Context, owner int64) (int64, error) {
	if owner <= 0 {
		return 0, ValidationError(ErrNoOwner)
	}
	deleted, err := s.store.DeleteByOwner(ctx, owner)
	if err != nil {
		return 0, newChatError(KindPersistence, "清空聊天记录失败", err)
	}
	s.logger.Info("聊天记录已清空",
		zap.Int64("userId", owner),
		zap.Int64("deleted", deleted))
	return deleted, nil
}

// Export 导出用户聊天记录
func (s *ChatService) Export(ctx context.Context, owner int64) (*model.ChatExport, error) {
	messages, err := s.History(ctx, owner, 0)
	if err != nil {
		return nil, err
	}

	exported := make([]model.ExportedMessage, 0, len(messages))
	for _, m := range messages {
		exported = append(exported, model.ExportedMessage{
			Timestamp:   m.CreatedAt,
			UserMessage: m.Message,
			BotResponse: m.Response,
		})
	}
	return &model.ChatExport{
		Format:       "json",
		GeneratedAt:  s.now(),
		MessageCount: len(exported),
		Messages:     exported,
	}, nil
}

// Suggestions 推荐问题
func (s *ChatService) Suggestions() []string {
	out := make([]string, len(s.suggestions))
	copy(out, s.suggestions)
	return out
}

// ShouldWelcome 最近一段时间内没有任何消息时需要发送欢迎语
func (s *ChatService) ShouldWelcome(ctx context.Context, owner int64) (bool, error) {
	count, err := s.store.CountSince(ctx, owner, s.now().Add(-s.cfg.WelcomeWindow))
	if err != nil {
		return false, newChatError(KindPersistence, "查询最近消息失败", err)
	}
	return count == 0, nil
}

// Welcome 欢迎语载荷（不落库）
func (s *ChatService) Welcome() model.TurnPayload {
	return model.TurnPayload{
		Text:      s.responses.Welcome(),
		IsBot:     true,
		Timestamp: s.now(),
		IsWelcome: true,
	}
}

// encodeAux 附加上下文可以是任意 JSON 值，null 视为未提供
func encodeAux(aux json.RawMessage) (datatypes.JSON, error) {
	trimmed := bytes.TrimSpace(aux)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return nil, ErrInvalidContext
	}
	out := make(datatypes.JSON, len(trimmed))
	copy(out, trimmed)
	return out, nil
}
