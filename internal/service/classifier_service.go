package service

import (
	"strings"

	"github.com/supportbot/storebot-go/internal/config"
	"github.com/supportbot/storebot-go/internal/model"
	"go.uber.org/zap"
)

// ClassifierService 关键词意图分类服务
type ClassifierService struct {
	rules  []intentPredicate
	logger *zap.Logger
}

// intentPredicate 单条意图判定规则
type intentPredicate struct {
	intent   model.Intent
	keywords []string
	stages   map[model.Stage]bool
}

func (p intentPredicate) match(utterance string, stage model.Stage) bool {
	if p.stages[stage] {
		return true
	}
	return containsAny(utterance, p.keywords)
}

// NewClassifierService 创建意图分类服务，规则顺序即判定顺序
func NewClassifierService(rules *config.Rules, logger *zap.Logger) *ClassifierService {
	predicates := make([]intentPredicate, 0, len(rules.Intents))
	for _, rule := range rules.Intents {
		p := intentPredicate{
			intent:   rule.Intent,
			keywords: make([]string, 0, len(rule.Keywords)),
			stages:   make(map[model.Stage]bool, len(rule.Stages)),
		}
		for _, kw := range rule.Keywords {
			p.keywords = append(p.keywords, Normalize(kw))
		}
		for _, stage := range rule.Stages {
			p.stages[stage] = true
		}
		predicates = append(predicates, p)
	}

	return &ClassifierService{
		rules:  predicates,
		logger: logger,
	}
}

// Classify 对用户输入分类，第一条命中的规则胜出，均未命中时返回 fallback
func (s *ClassifierService) Classify(utterance string, conv model.ConversationContext) model.Intent {
	text := Normalize(utterance)
	for _, p := range s.rules {
		if p.match(text, conv.Stage) {
			s.logger.Debug("意图分类完成",
				zap.Int64("userId", conv.UserID),
				zap.String("intent", string(p.intent)))
			return p.intent
		}
	}
	return model.IntentFallback
}

// Normalize 统一小写并去除首尾空白
func Normalize(utterance string) string {
	return strings.ToLower(strings.TrimSpace(utterance))
}

// containsAny 子串匹配（"hi" 同样命中 "shipping"）
func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
