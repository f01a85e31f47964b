package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/supportbot/storebot-go/internal/model"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rules 聊天机器人规则表
type Rules struct {
	Intents           []IntentRule                 `yaml:"intents"`
	StageTransitions  map[model.Intent]model.Stage `yaml:"stageTransitions"`
	ProductVocabulary []string                     `yaml:"productVocabulary"`
	Templates         Templates                    `yaml:"templates"`
	Suggestions       []string                     `yaml:"suggestions"`
}

// IntentRule 单个意图的匹配规则
type IntentRule struct {
	Intent   model.Intent  `yaml:"intent"`
	Keywords []string      `yaml:"keywords"`
	Stages   []model.Stage `yaml:"stages"` // 处于这些阶段时同样命中
}

// StockPhrases 库存描述
type StockPhrases struct {
	InStock    string `yaml:"inStock"`
	OutOfStock string `yaml:"outOfStock"`
}

// Templates 回复模板（部分为 text/template 语法）
type Templates struct {
	Greeting     []string `yaml:"greeting"`
	HumanHandoff string   `yaml:"humanHandoff"`

	ProductGeneral      string       `yaml:"productGeneral"`
	ProductNotFound     string       `yaml:"productNotFound"`
	ProductSingle       string       `yaml:"productSingle"`
	ProductListHeader   string       `yaml:"productListHeader"`
	ProductListItem     string       `yaml:"productListItem"`
	ProductListFooter   string       `yaml:"productListFooter"`
	ProductLookupFailed string       `yaml:"productLookupFailed"`
	Stock               StockPhrases `yaml:"stock"`
	ListStock           StockPhrases `yaml:"listStock"`

	OrderLogin         string            `yaml:"orderLogin"`
	OrderNone          string            `yaml:"orderNone"`
	OrderSummary       string            `yaml:"orderSummary"`
	OrderLookupFailed  string            `yaml:"orderLookupFailed"`
	OrderStatus        map[string]string `yaml:"orderStatus"`
	OrderStatusDefault string            `yaml:"orderStatusDefault"`

	Shipping string `yaml:"shipping"`
	Returns  string `yaml:"returns"`
	Account  string `yaml:"account"`
	Pricing  string `yaml:"pricing"`

	FallbackGreeted string   `yaml:"fallbackGreeted"`
	Fallback        []string `yaml:"fallback"`

	Welcome string `yaml:"welcome"`
}

// DefaultRules 返回内置规则表
func DefaultRules() (*Rules, error) {
	return parseRules(defaultRules)
}

// LoadRules 加载规则表，path 为空时使用内置规则
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取规则文件失败: %w", err)
	}
	return parseRules(data)
}

func parseRules(data []byte) (*Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("解析规则文件失败: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &rules, nil
}

// Validate 校验规则表：每个非兜底意图恰好出现一次，模板不能为空
func (r *Rules) Validate() error {
	var errs []error

	seen := make(map[model.Intent]bool)
	for _, rule := range r.Intents {
		switch {
		case !rule.Intent.Valid():
			errs = append(errs, fmt.Errorf("未知意图: %s", rule.Intent))
		case rule.Intent == model.IntentFallback:
			errs = append(errs, errors.New("fallback 为兜底意图，不能配置关键词"))
		case seen[rule.Intent]:
			errs = append(errs, fmt.Errorf("意图重复配置: %s", rule.Intent))
		case len(rule.Keywords) == 0 && len(rule.Stages) == 0:
			errs = append(errs, fmt.Errorf("意图 %s 缺少关键词", rule.Intent))
		}
		seen[rule.Intent] = true
	}
	for _, intent := range model.Intents {
		if intent != model.IntentFallback && !seen[intent] {
			errs = append(errs, fmt.Errorf("缺少意图规则: %s", intent))
		}
	}

	t := r.Templates
	if len(t.Greeting) == 0 {
		errs = append(errs, errors.New("templates.greeting 不能为空"))
	}
	if len(t.Fallback) == 0 {
		errs = append(errs, errors.New("templates.fallback 不能为空"))
	}
	required := map[string]string{
		"humanHandoff":        t.HumanHandoff,
		"productGeneral":      t.ProductGeneral,
		"productNotFound":     t.ProductNotFound,
		"productSingle":       t.ProductSingle,
		"productListItem":     t.ProductListItem,
		"productLookupFailed": t.ProductLookupFailed,
		"orderLogin":          t.OrderLogin,
		"orderNone":           t.OrderNone,
		"orderSummary":        t.OrderSummary,
		"orderLookupFailed":   t.OrderLookupFailed,
		"orderStatusDefault":  t.OrderStatusDefault,
		"shipping":            t.Shipping,
		"returns":             t.Returns,
		"account":             t.Account,
		"pricing":             t.Pricing,
		"fallbackGreeted":     t.FallbackGreeted,
		"welcome":             t.Welcome,
	}
	for name, value := range required {
		if value == "" {
			errs = append(errs, fmt.Errorf("templates.%s 不能为空", name))
		}
	}

	return errors.Join(errs...)
}
