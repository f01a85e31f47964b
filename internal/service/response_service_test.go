package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supportbot/storebot-go/internal/model"
	"go.uber.org/zap"
)

func newResponseService(t *testing.T, products *fakeProductFinder, orders *fakeOrderFinder, picker Picker) *ResponseService {
	t.Helper()
	svc, err := NewResponseService(testRules(t), products, orders, picker, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func product(id int64, name, price string, stock int) model.Product {
	return model.Product{
		ID:            id,
		Name:          name,
		Description:   name + " description",
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
	}
}

func TestGenerateProductWithoutKeywordSkipsLookup(t *testing.T) {
	products := &fakeProductFinder{}
	svc := newResponseService(t, products, &fakeOrderFinder{}, fixedPicker(0))
	rules := testRules(t)

	reply := svc.Generate(context.Background(), model.IntentProductInquiry, "What products do you have?", 1, model.NewConversationContext(1))

	assert.Equal(t, rules.Templates.ProductGeneral, reply)
	assert.Contains(t, reply, "wide range of items")
	assert.Equal(t, 0, products.calls)
}

func TestGenerateSingleProduct(t *testing.T) {
	products := &fakeProductFinder{products: []model.Product{
		{ID: 1, Name: "Wireless Headphones", Description: "Noise cancelling", Price: decimal.RequireFromString("199.99"), StockQuantity: 50},
	}}
	svc := newResponseService(t, products, &fakeOrderFinder{}, fixedPicker(0))

	reply := svc.Generate(context.Background(), model.IntentProductInquiry, "headphone price", 1, model.NewConversationContext(1))

	assert.Contains(t, reply, "Wireless Headphones")
	assert.Contains(t, reply, "199.99")
	assert.Contains(t, reply, "in stock")
	assert.Equal(t, `I found "Wireless Headphones" - Noise cancelling. It's priced at $199.99 and is currently in stock. Would you like to know more about this product?`, reply)
	require.Equal(t, 1, products.calls)
	assert.Equal(t, []string{"headphone", "phone"}, products.keywords[0])
}

func TestGenerateSingleProductOutOfStock(t *testing.T) {
	products := &fakeProductFinder{products: []model.Product{product(2, "Smart Watch", "299.9", 0)}}
	svc := newResponseService(t, products, &fakeOrderFinder{}, fixedPicker(0))

	reply := svc.Generate(context.Background(), model.IntentProductInquiry, "smart watch", 1, model.ConversationContext{})
	assert.Contains(t, reply, "$299.90")
	assert.Contains(t, reply, "currently out of stock")
}

func TestGenerateProductList(t *testing.T) {
	products := &fakeProductFinder{products: []model.Product{
		product(3, "Running Shoes", "89.99", 100),
		product(1, "Wireless Headphones", "199.99", 0),
	}}
	svc := newResponseService(t, products, &fakeOrderFinder{}, fixedPicker(0))

	reply := svc.Generate(context.Background(), model.IntentProductInquiry, "shoe or headphone", 1, model.ConversationContext{})

	want := "I found several products that might interest you:\n" +
		"\n1. Running Shoes - $89.99 (In Stock)" +
		"\n2. Wireless Headphones - $199.99 (Out of Stock)" +
		"\n\nYou can view these products on our website or let me know if you'd like details about a specific one."
	assert.Equal(t, want, reply)
}

func TestGenerateProductListCapsAtThree(t *testing.T) {
	products := &fakeProductFinder{products: []model.Product{
		product(1, "A", "1", 1),
		product(2, "B", "2", 1),
		product(3, "C", "3", 1),
		product(4, "D", "4", 1),
	}}
	svc := newResponseService(t, products, &fakeOrderFinder{}, fixedPicker(0))

	reply := svc.Generate(context.Background(), model.IntentProductInquiry, "kitchen", 1, model.ConversationContext{})
	assert.Contains(t, reply, "3. C")
	assert.NotContains(t, reply, "4. D")
}

func TestGenerateProductNotFound(t *testing.T) {
	svc := newResponseService(t, &fakeProductFinder{}, &fakeOrderFinder{}, fixedPicker(0))

	reply := svc.Generate(context.Background(), model.IntentProductInquiry, "any laptop?", 1, model.ConversationContext{})
	assert.Equal(t, testRules(t).Templates.ProductNotFound, reply)
}

func TestGenerateProductLookupFailureDegrades(t *testing.T) {
	svc := newResponseService(t, &fakeProductFinder{err: errBoom}, &fakeOrderFinder{}, fixedPicker(0))

	reply := svc.Generate(context.Background(), model.IntentProductInquiry, "camera", 1, model.ConversationContext{})
	assert.Equal(t, testRules(t).Templates.ProductLookupFailed, reply)
}

func TestGenerateOrder(t *testing.T) {
	rules := testRules(t)

	t.Run("anonymous owner asked to log in", func(t *testing.T) {
		orders := &fakeOrderFinder{}
		svc := newResponseService(t, &fakeProductFinder{}, orders, fixedPicker(0))
		reply := svc.Generate(context.Background(), model.IntentOrderInquiry, "track my order", 0, model.ConversationContext{})
		assert.Equal(t, rules.Templates.OrderLogin, reply)
		assert.Equal(t, 0, orders.calls)
	})

	t.Run("no orders", func(t *testing.T) {
		svc := newResponseService(t, &fakeProductFinder{}, &fakeOrderFinder{}, fixedPicker(0))
		reply := svc.Generate(context.Background(), model.IntentOrderInquiry, "track my order", 5, model.ConversationContext{})
		assert.Equal(t, rules.Templates.OrderNone, reply)
		assert.NotEqual(t, rules.Templates.OrderLookupFailed, reply)
	})

	t.Run("known status", func(t *testing.T) {
		orders := &fakeOrderFinder{order: &model.Order{ID: 17, UserID: 5, Status: "shipped"}}
		svc := newResponseService(t, &fakeProductFinder{}, orders, fixedPicker(0))
		reply := svc.Generate(context.Background(), model.IntentOrderInquiry, "order status", 5, model.ConversationContext{})
		assert.Equal(t, `Your most recent order #17 is currently "shipped". Your order is on its way! You should receive tracking information shortly. You can view all your orders in the 'My Orders' section of your account.`, reply)
	})

	t.Run("unknown status uses generic phrase", func(t *testing.T) {
		orders := &fakeOrderFinder{order: &model.Order{ID: 3, UserID: 5, Status: "on_hold"}}
		svc := newResponseService(t, &fakeProductFinder{}, orders, fixedPicker(0))
		reply := svc.Generate(context.Background(), model.IntentOrderInquiry, "order status", 5, model.ConversationContext{})
		assert.Contains(t, reply, `#3 is currently "on_hold". Your order is being processed.`)
	})

	t.Run("lookup failure degrades", func(t *testing.T) {
		svc := newResponseService(t, &fakeProductFinder{}, &fakeOrderFinder{err: errBoom}, fixedPicker(0))
		reply := svc.Generate(context.Background(), model.IntentOrderInquiry, "order status", 5, model.ConversationContext{})
		assert.Equal(t, rules.Templates.OrderLookupFailed, reply)
	})
}

func TestGenerateFixedTemplates(t *testing.T) {
	rules := testRules(t)
	svc := newResponseService(t, &fakeProductFinder{}, &fakeOrderFinder{}, fixedPicker(0))
	ctx := context.Background()

	assert.Equal(t, rules.Templates.HumanHandoff, svc.Generate(ctx, model.IntentHumanHandoff, "agent", 1, model.ConversationContext{}))
	assert.Equal(t, rules.Templates.Shipping, svc.Generate(ctx, model.IntentShippingInquiry, "shipping", 1, model.ConversationContext{}))
	assert.Equal(t, rules.Templates.Returns, svc.Generate(ctx, model.IntentReturnInquiry, "refund", 1, model.ConversationContext{}))
	assert.Equal(t, rules.Templates.Account, svc.Generate(ctx, model.IntentAccountInquiry, "login", 1, model.ConversationContext{}))
	assert.Equal(t, rules.Templates.Pricing, svc.Generate(ctx, model.IntentPriceInquiry, "discount", 1, model.ConversationContext{}))
	assert.Contains(t, rules.Templates.HumanHandoff, "1-800-123-4567")
}

func TestGenerateGreetingAndFallbackVariants(t *testing.T) {
	rules := testRules(t)
	ctx := context.Background()

	svc := newResponseService(t, &fakeProductFinder{}, &fakeOrderFinder{}, fixedPicker(1))
	assert.Equal(t, rules.Templates.Greeting[1], svc.Generate(ctx, model.IntentGreeting, "hi", 1, model.ConversationContext{}))
	assert.Equal(t, rules.Templates.Fallback[1], svc.Generate(ctx, model.IntentFallback, "???", 1, model.NewConversationContext(1)))

	greeted := model.ConversationContext{UserID: 1, Stage: model.StageGreeted}
	assert.Equal(t, rules.Templates.FallbackGreeted, svc.Generate(ctx, model.IntentFallback, "???", 1, greeted))

	seeded := newResponseService(t, &fakeProductFinder{}, &fakeOrderFinder{}, NewPicker(99))
	for i := 0; i < 10; i++ {
		assert.Contains(t, rules.Templates.Greeting, seeded.Generate(ctx, model.IntentGreeting, "hello", 1, model.ConversationContext{}))
	}
}

func TestSeededPickerIsReproducible(t *testing.T) {
	a, b := NewPicker(7), NewPicker(7)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Intn(3), b.Intn(3))
	}
}

func TestExtractProductKeywords(t *testing.T) {
	svc := newResponseService(t, &fakeProductFinder{}, &fakeOrderFinder{}, fixedPicker(0))

	assert.Equal(t, []string{"shoe", "sports"}, svc.ExtractProductKeywords("Sports SHOES please"))
	assert.Empty(t, svc.ExtractProductKeywords("what products do you have?"))
}
