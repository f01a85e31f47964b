package model

// Intent 意图
type Intent string

const (
	IntentGreeting        Intent = "greeting"
	IntentHumanHandoff    Intent = "human_handoff"
	IntentProductInquiry  Intent = "product_inquiry"
	IntentOrderInquiry    Intent = "order_inquiry"
	IntentShippingInquiry Intent = "shipping_inquiry"
	IntentReturnInquiry   Intent = "return_inquiry"
	IntentAccountInquiry  Intent = "account_inquiry"
	IntentPriceInquiry    Intent = "price_inquiry"
	IntentFallback        Intent = "fallback"
)

// Intents 全部意图，按分类器求值顺序排列
var Intents = []Intent{
	IntentGreeting,
	IntentHumanHandoff,
	IntentProductInquiry,
	IntentOrderInquiry,
	IntentShippingInquiry,
	IntentReturnInquiry,
	IntentAccountInquiry,
	IntentPriceInquiry,
	IntentFallback,
}

// Valid 是否为已知意图
func (i Intent) Valid() bool {
	for _, known := range Intents {
		if i == known {
			return true
		}
	}
	return false
}
