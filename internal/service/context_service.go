package service

import (
	"context"
	"time"

	"github.com/supportbot/storebot-go/internal/metrics"
	"github.com/supportbot/storebot-go/internal/model"
	"go.uber.org/zap"
)

// ContextService 用户会话上下文服务
type ContextService struct {
	store       ContextStore
	transitions map[model.Intent]model.Stage
	now         func() time.Time
	logger      *zap.Logger
}

// NewContextService 创建会话上下文服务
func NewContextService(store ContextStore, transitions map[model.Intent]model.Stage, logger *zap.Logger) *ContextService {
	return &ContextService{
		store:       store,
		transitions: transitions,
		now:         time.Now,
		logger:      logger,
	}
}

// WithClock 替换时钟（测试用）
func (s *ContextService) WithClock(now func() time.Time) *ContextService {
	s.now = now
	return s
}

// Get 读取上下文，不存在或读取失败时视为 new 阶段
func (s *ContextService) Get(ctx context.Context, owner int64) model.ConversationContext {
	if owner <= 0 {
		return model.NewConversationContext(owner)
	}

	conv, ok, err := s.store.Get(ctx, owner)
	if err != nil {
		s.logger.Warn("读取会话上下文失败，按新会话处理",
			zap.Int64("userId", owner),
			zap.Error(err))
		return model.NewConversationContext(owner)
	}
	if !ok {
		return model.NewConversationContext(owner)
	}
	return conv
}

// Touch 记录最近一条消息并按意图推进阶段
func (s *ContextService) Touch(ctx context.Context, owner int64, utterance string, intent model.Intent) model.ConversationContext {
	now := s.now()
	apply := func(conv *model.ConversationContext) {
		conv.UserID = owner
		conv.LastMessage = Normalize(utterance)
		conv.LastActivity = now
		if stage, ok := s.transitions[intent]; ok {
			conv.Stage = stage
		}
	}

	if owner <= 0 {
		conv := model.NewConversationContext(owner)
		apply(&conv)
		return conv
	}

	conv, err := s.store.Update(ctx, owner, apply)
	if err != nil {
		s.logger.Warn("更新会话上下文失败",
			zap.Int64("userId", owner),
			zap.Error(err))
		fallback := s.Get(ctx, owner)
		apply(&fallback)
		return fallback
	}
	return conv
}

// Sweep 清理空闲超过 maxIdle 的上下文
func (s *ContextService) Sweep(ctx context.Context, now time.Time, maxIdle time.Duration) int {
	removed, err := s.store.Sweep(ctx, now.Add(-maxIdle))
	if err != nil {
		s.logger.Error("清理会话上下文失败", zap.Error(err))
		return 0
	}

	metrics.ContextsEvicted.Add(float64(removed))
	if n, err := s.store.Len(ctx); err == nil {
		metrics.Contexts.Set(float64(n))
	}

	if removed > 0 {
		s.logger.Info("已清理空闲会话上下文",
			zap.Int("removed", removed),
			zap.Duration("maxIdle", maxIdle))
	}
	return removed
}

// Len 当前上下文数量
func (s *ContextService) Len(ctx context.Context) int {
	n, err := s.store.Len(ctx)
	if err != nil {
		s.logger.Warn("统计会话上下文失败", zap.Error(err))
		return 0
	}
	return n
}
