package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/supportbot/storebot-go/internal/model"
	"go.uber.org/zap"
)

// ResponseRequest 回复生成请求
type ResponseRequest struct {
	Intent       model.Intent
	Utterance    string // 已归一化
	Owner        int64
	Conversation model.ConversationContext
}

// Responder 某个意图的回复生成函数
type Responder func(ctx context.Context, req ResponseRequest) string

// ResponderRegistry 意图 -> 回复生成函数注册中心
type ResponderRegistry struct {
	responders map[model.Intent]Responder
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewResponderRegistry 创建注册中心
func NewResponderRegistry(logger *zap.Logger) *ResponderRegistry {
	return &ResponderRegistry{
		responders: make(map[model.Intent]Responder),
		logger:     logger,
	}
}

// Register 注册回复生成函数
func (r *ResponderRegistry) Register(intent model.Intent, responder Responder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !intent.Valid() {
		return fmt.Errorf("未知意图: %s", intent)
	}
	if responder == nil {
		return fmt.Errorf("意图 %s 的回复函数为空", intent)
	}
	if _, exists := r.responders[intent]; exists {
		return fmt.Errorf("意图已注册: %s", intent)
	}

	r.responders[intent] = responder
	r.logger.Debug("回复函数已注册", zap.String("intent", string(intent)))
	return nil
}

// Get 获取回复生成函数
func (r *ResponderRegistry) Get(intent model.Intent) (Responder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	responder, ok := r.responders[intent]
	if !ok {
		return nil, fmt.Errorf("未注册的意图: %s", intent)
	}
	return responder, nil
}

// Count 已注册数量
func (r *ResponderRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.responders)
}
