package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/supportbot/storebot-go/internal/model"
	"go.uber.org/zap"
)

func TestClassify(t *testing.T) {
	classifier := NewClassifierService(testRules(t), zap.NewNop())
	fresh := model.NewConversationContext(1)

	tests := []struct {
		name      string
		utterance string
		want      model.Intent
	}{
		{"greeting", "Hello there", model.IntentGreeting},
		{"greeting wins over order", "hi, where is my order?", model.IntentGreeting},
		{"greeting wins over refund", "I want a refund, hello?", model.IntentGreeting},
		{"substring hi inside shipping", "shipping options", model.IntentGreeting},
		{"human handoff", "let me talk to someone real", model.IntentHumanHandoff},
		{"product", "I want to buy a gift", model.IntentProductInquiry},
		{"order", "track my order", model.IntentOrderInquiry},
		{"delivery resolves to order first", "delivery estimate", model.IntentOrderInquiry},
		{"shipping without order terms", "when does it arrive", model.IntentShippingInquiry},
		{"return", "I need a refund", model.IntentReturnInquiry},
		{"account", "reset my password", model.IntentAccountInquiry},
		{"price", "headphone price", model.IntentPriceInquiry},
		{"fallback", "asdf qwerty", model.IntentFallback},
		{"empty", "", model.IntentFallback},
		{"case and padding", "   GOOD MORNING   ", model.IntentGreeting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifier.Classify(tt.utterance, fresh))
		})
	}
}

func TestClassifyProductDiscussionStage(t *testing.T) {
	classifier := NewClassifierService(testRules(t), zap.NewNop())

	conv := model.NewConversationContext(1)
	conv.Stage = model.StageProductDiscussion

	assert.Equal(t, model.IntentProductInquiry, classifier.Classify("tell me more", conv))
	// greeting 与 human_handoff 仍然优先
	assert.Equal(t, model.IntentGreeting, classifier.Classify("hey", conv))
	assert.Equal(t, model.IntentHumanHandoff, classifier.Classify("get me an agent", conv))
}

func TestClassifyIsDeterministic(t *testing.T) {
	classifier := NewClassifierService(testRules(t), zap.NewNop())
	conv := model.NewConversationContext(7)

	first := classifier.Classify("what is your return policy", conv)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, classifier.Classify("what is your return policy", conv))
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "hello world", Normalize("  Hello World \n"))
	assert.Equal(t, "", Normalize("   "))
}
