package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/supportbot/storebot-go/internal/config"
	"github.com/supportbot/storebot-go/internal/model"
	"go.uber.org/zap"
)

// productsResponse 商品服务返回
type productsResponse struct {
	Products []model.Product `json:"products"`
}

// orderResponse 交易服务返回
type orderResponse struct {
	Order *model.Order `json:"order"`
}

// CatalogClient 商城商品/交易服务 HTTP 客户端
type CatalogClient struct {
	products *resty.Client
	trade    *resty.Client
	logger   *zap.Logger
}

// NewCatalogClient 创建商城服务客户端
func NewCatalogClient(cfg config.CatalogConfig, logger *zap.Logger) *CatalogClient {
	return &CatalogClient{
		products: resty.New().
			SetBaseURL(cfg.ProductService).
			SetTimeout(cfg.Timeout).
			SetHeader("User-Agent", "storebot/1.0"),
		trade: resty.New().
			SetBaseURL(cfg.TradeService).
			SetTimeout(cfg.Timeout).
			SetHeader("User-Agent", "storebot/1.0"),
		logger: logger,
	}
}

// SearchProducts 逐个关键词查询，按关键词顺序合并、按 id 去重，最多 limit 条
func (c *CatalogClient) SearchProducts(ctx context.Context, keywords []string, limit int) ([]model.Product, error) {
	seen := make(map[int64]bool)
	products := make([]model.Product, 0, limit)

	for _, kw := range keywords {
		var result productsResponse
		resp, err := c.products.R().
			SetContext(ctx).
			SetQueryParam("search", kw).
			SetResult(&result).
			Get("/api/products")
		if err != nil {
			return nil, fmt.Errorf("调用商品服务失败: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("商品服务返回错误: %d", resp.StatusCode())
		}

		for _, p := range result.Products {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			products = append(products, p)
			if limit > 0 && len(products) >= limit {
				return products, nil
			}
		}
	}

	c.logger.Debug("商品服务查询完成",
		zap.Strings("keywords", keywords),
		zap.Int("count", len(products)))
	return products, nil
}

// MostRecentOrder 查询用户最近订单，404 视为没有订单
func (c *CatalogClient) MostRecentOrder(ctx context.Context, owner int64) (*model.Order, error) {
	var result orderResponse
	resp, err := c.trade.R().
		SetContext(ctx).
		SetQueryParam("userId", strconv.FormatInt(owner, 10)).
		SetResult(&result).
		Get("/api/orders/recent")
	if err != nil {
		return nil, fmt.Errorf("调用交易服务失败: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("交易服务返回错误: %d", resp.StatusCode())
	}
	return result.Order, nil
}
