package client

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/supportbot/storebot-go/internal/model"
)

// ProductSource 被缓存的商品查询
type ProductSource interface {
	SearchProducts(ctx context.Context, keywords []string, limit int) ([]model.Product, error)
}

type productCacheEntry struct {
	products  []model.Product
	expiresAt time.Time
}

// CachedProductFinder 带 TTL 的 LRU 商品查询缓存，查询失败不缓存
// lru.Cache 自带锁，可并发使用
type CachedProductFinder struct {
	source ProductSource
	cache  *lru.Cache
	ttl    time.Duration
	now    func() time.Time
}

// NewCachedProductFinder 创建商品查询缓存
func NewCachedProductFinder(source ProductSource, size int, ttl time.Duration) (*CachedProductFinder, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("创建商品缓存失败: %w", err)
	}
	return &CachedProductFinder{
		source: source,
		cache:  cache,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

func (c *CachedProductFinder) SearchProducts(ctx context.Context, keywords []string, limit int) ([]model.Product, error) {
	key := cacheKey(keywords, limit)

	if val, found := c.cache.Get(key); found {
		entry := val.(productCacheEntry)
		if c.now().Before(entry.expiresAt) {
			return entry.products, nil
		}
		c.cache.Remove(key)
	}

	products, err := c.source.SearchProducts(ctx, keywords, limit)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, productCacheEntry{products: products, expiresAt: c.now().Add(c.ttl)})
	return products, nil
}

// cacheKey 关键词集合排序后作为键
func cacheKey(keywords []string, limit int) string {
	sorted := append([]string(nil), keywords...)
	sort.Strings(sorted)
	return fmt.Sprintf("%d|%s", limit, strings.Join(sorted, ","))
}
