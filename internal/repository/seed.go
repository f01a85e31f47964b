package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/supportbot/storebot-go/internal/model"
	"go.uber.org/zap"
)

// SampleProducts 示例商品
func SampleProducts() []*model.Product {
	return []*model.Product{
		{Name: "Wireless Headphones", Description: "High-quality wireless headphones with noise cancellation", Price: decimal.RequireFromString("199.99"), StockQuantity: 50, Category: "Electronics"},
		{Name: "Smart Watch", Description: "Feature-rich smartwatch with health monitoring", Price: decimal.RequireFromString("299.99"), StockQuantity: 30, Category: "Electronics"},
		{Name: "Running Shoes", Description: "Comfortable running shoes for all terrains", Price: decimal.RequireFromString("89.99"), StockQuantity: 100, Category: "Sports"},
		{Name: "Coffee Maker", Description: "Automatic coffee maker with programmable settings", Price: decimal.RequireFromString("149.99"), StockQuantity: 25, Category: "Home"},
		{Name: "Backpack", Description: "Durable backpack with laptop compartment", Price: decimal.RequireFromString("79.99"), StockQuantity: 75, Category: "Accessories"},
	}
}

// SeedCatalog 商品表为空时写入示例商品
func SeedCatalog(ctx context.Context, products *ProductRepository, logger *zap.Logger) error {
	count, err := products.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		logger.Info("商品表已有数据，跳过初始化", zap.Int64("count", count))
		return nil
	}

	samples := SampleProducts()
	if err := products.Create(ctx, samples...); err != nil {
		return err
	}
	logger.Info("示例商品已写入", zap.Int("count", len(samples)))
	return nil
}

// SeedUser 用户不存在时创建，passwordHash 需预先生成
func SeedUser(ctx context.Context, users *UserRepository, email, passwordHash string, logger *zap.Logger) (*model.User, error) {
	user, err := users.FindByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user = &model.User{
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    "Demo",
		LastName:     "Shopper",
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("创建示例用户失败: %w", err)
	}
	logger.Info("示例用户已创建", zap.Int64("userId", user.ID), zap.String("email", user.Email))
	return user, nil
}
