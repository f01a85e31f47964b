package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"text/template"

	"github.com/supportbot/storebot-go/internal/config"
	"github.com/supportbot/storebot-go/internal/metrics"
	"github.com/supportbot/storebot-go/internal/model"
	"go.uber.org/zap"
)

// productSearchLimit 单次商品查询最多返回条数
const productSearchLimit = 3

// ProductFinder 商品查询
type ProductFinder interface {
	// SearchProducts 按关键词（名称/描述/分类，大小写不敏感子串）查询，结果顺序由实现决定
	SearchProducts(ctx context.Context, keywords []string, limit int) ([]model.Product, error)
}

// OrderFinder 订单查询
type OrderFinder interface {
	// MostRecentOrder 返回用户最近一笔订单，没有订单时返回 nil, nil
	MostRecentOrder(ctx context.Context, owner int64) (*model.Order, error)
}

// Picker 随机选择模板
type Picker interface {
	Intn(n int) int
}

// lockedRand 并发安全的随机源
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (r *lockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Intn(n)
}

// NewPicker 创建随机源，seed 固定时结果可复现
func NewPicker(seed int64) Picker {
	return &lockedRand{rnd: rand.New(rand.NewSource(seed))}
}

// productView 商品模板数据
type productView struct {
	Index       int
	Name        string
	Description string
	Price       string
	Stock       string
}

// orderView 订单模板数据
type orderView struct {
	ID      int64
	Status  string
	Details string
}

// ResponseService 回复生成服务
type ResponseService struct {
	templates  config.Templates
	vocabulary []string
	products   ProductFinder
	orders     OrderFinder
	picker     Picker
	registry   *ResponderRegistry
	logger     *zap.Logger

	productSingle *template.Template
	productItem   *template.Template
	orderSummary  *template.Template
}

// NewResponseService 创建回复生成服务
func NewResponseService(
	rules *config.Rules,
	products ProductFinder,
	orders OrderFinder,
	picker Picker,
	logger *zap.Logger,
) (*ResponseService, error) {
	s := &ResponseService{
		templates:  rules.Templates,
		vocabulary: make([]string, 0, len(rules.ProductVocabulary)),
		products:   products,
		orders:     orders,
		picker:     picker,
		registry:   NewResponderRegistry(logger),
		logger:     logger,
	}
	for _, term := range rules.ProductVocabulary {
		s.vocabulary = append(s.vocabulary, Normalize(term))
	}

	var err error
	if s.productSingle, err = template.New("productSingle").Parse(rules.Templates.ProductSingle); err != nil {
		return nil, fmt.Errorf("解析商品模板失败: %w", err)
	}
	if s.productItem, err = template.New("productListItem").Parse(rules.Templates.ProductListItem); err != nil {
		return nil, fmt.Errorf("解析商品列表模板失败: %w", err)
	}
	if s.orderSummary, err = template.New("orderSummary").Parse(rules.Templates.OrderSummary); err != nil {
		return nil, fmt.Errorf("解析订单模板失败: %w", err)
	}

	if err := s.registerResponders(); err != nil {
		return nil, err
	}
	return s, nil
}

// registerResponders 注册全部意图的回复函数
func (s *ResponseService) registerResponders() error {
	t := s.templates
	responders := map[model.Intent]Responder{
		model.IntentGreeting:        s.pick(t.Greeting),
		model.IntentHumanHandoff:    s.fixed(t.HumanHandoff),
		model.IntentProductInquiry:  s.respondProduct,
		model.IntentOrderInquiry:    s.respondOrder,
		model.IntentShippingInquiry: s.fixed(t.Shipping),
		model.IntentReturnInquiry:   s.fixed(t.Returns),
		model.IntentAccountInquiry:  s.fixed(t.Account),
		model.IntentPriceInquiry:    s.fixed(t.Pricing),
		model.IntentFallback:        s.respondFallback,
	}
	for _, intent := range model.Intents {
		if err := s.registry.Register(intent, responders[intent]); err != nil {
			return err
		}
	}
	return nil
}

// Generate 按意图生成回复文本，查询失败时返回降级文案而不是错误
func (s *ResponseService) Generate(ctx context.Context, intent model.Intent, utterance string, owner int64, conv model.ConversationContext) string {
	responder, err := s.registry.Get(intent)
	if err != nil {
		s.logger.Warn("意图未注册，使用兜底回复",
			zap.String("intent", string(intent)),
			zap.Error(err))
		responder = s.respondFallback
	}

	return responder(ctx, ResponseRequest{
		Intent:       intent,
		Utterance:    Normalize(utterance),
		Owner:        owner,
		Conversation: conv,
	})
}

// Welcome 连接欢迎语
func (s *ResponseService) Welcome() string {
	return s.templates.Welcome
}

func (s *ResponseService) fixed(text string) Responder {
	return func(ctx context.Context, req ResponseRequest) string {
		return text
	}
}

func (s *ResponseService) pick(variants []string) Responder {
	return func(ctx context.Context, req ResponseRequest) string {
		return variants[s.picker.Intn(len(variants))]
	}
}

func (s *ResponseService) respondFallback(ctx context.Context, req ResponseRequest) string {
	if req.Conversation.Stage == model.StageGreeted {
		return s.templates.FallbackGreeted
	}
	return s.pick(s.templates.Fallback)(ctx, req)
}

// ExtractProductKeywords 提取输入中出现的商品词，保持词表顺序
func (s *ResponseService) ExtractProductKeywords(utterance string) []string {
	text := Normalize(utterance)
	var keywords []string
	for _, term := range s.vocabulary {
		if strings.Contains(text, term) {
			keywords = append(keywords, term)
		}
	}
	return keywords
}

func (s *ResponseService) respondProduct(ctx context.Context, req ResponseRequest) string {
	t := s.templates

	keywords := s.ExtractProductKeywords(req.Utterance)
	if len(keywords) == 0 {
		return t.ProductGeneral
	}

	products, err := s.products.SearchProducts(ctx, keywords, productSearchLimit)
	if err != nil {
		metrics.RecordLookupFailure("product")
		s.logger.Warn("商品查询失败，返回降级回复",
			zap.Int64("userId", req.Owner),
			zap.Strings("keywords", keywords),
			zap.Error(err))
		return t.ProductLookupFailed
	}
	if len(products) > productSearchLimit {
		products = products[:productSearchLimit]
	}

	switch len(products) {
	case 0:
		return t.ProductNotFound
	case 1:
		return s.render(s.productSingle, s.productView(1, products[0], t.Stock), t.ProductNotFound)
	}

	var b strings.Builder
	b.WriteString(t.ProductListHeader)
	for i, p := range products {
		b.WriteString(s.render(s.productItem, s.productView(i+1, p, t.ListStock), ""))
	}
	b.WriteString(t.ProductListFooter)
	return b.String()
}

func (s *ResponseService) productView(index int, p model.Product, phrases config.StockPhrases) productView {
	stock := phrases.OutOfStock
	if p.InStock() {
		stock = phrases.InStock
	}
	return productView{
		Index:       index,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Stock:       stock,
	}
}

func (s *ResponseService) respondOrder(ctx context.Context, req ResponseRequest) string {
	t := s.templates

	if req.Owner <= 0 {
		return t.OrderLogin
	}

	order, err := s.orders.MostRecentOrder(ctx, req.Owner)
	if err != nil {
		metrics.RecordLookupFailure("order")
		s.logger.Warn("订单查询失败，返回降级回复",
			zap.Int64("userId", req.Owner),
			zap.Error(err))
		return t.OrderLookupFailed
	}
	if order == nil {
		return t.OrderNone
	}

	details, ok := t.OrderStatus[strings.ToLower(order.Status)]
	if !ok {
		details = t.OrderStatusDefault
	}
	return s.render(s.orderSummary, orderView{
		ID:      order.ID,
		Status:  order.Status,
		Details: details,
	}, t.OrderLookupFailed)
}

// render 执行模板，失败时返回 fallback
func (s *ResponseService) render(tmpl *template.Template, data interface{}, fallback string) string {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		s.logger.Error("渲染回复模板失败",
			zap.String("template", tmpl.Name()),
			zap.Error(err))
		return fallback
	}
	return b.String()
}
