package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/supportbot/storebot-go/internal/model"
	"gorm.io/gorm"
)

// ProductRepository 商品仓储
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓储
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// SearchProducts 名称/描述/分类任一包含任一关键词（大小写不敏感），按 id 排序
func (r *ProductRepository) SearchProducts(ctx context.Context, keywords []string, limit int) ([]model.Product, error) {
	if len(keywords) == 0 {
		return []model.Product{}, nil
	}

	const match = "LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(description) LIKE ? ESCAPE '\\' OR LOWER(category) LIKE ? ESCAPE '\\'"
	var cond *gorm.DB
	for _, kw := range keywords {
		pattern := "%" + escapeLike(strings.ToLower(kw)) + "%"
		if cond == nil {
			cond = r.db.Where(match, pattern, pattern, pattern)
		} else {
			cond = cond.Or(match, pattern, pattern, pattern)
		}
	}

	var products []model.Product
	q := r.db.WithContext(ctx).Where(cond).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&products).Error; err != nil {
		return nil, fmt.Errorf("查询商品失败: %w", err)
	}
	return products, nil
}

// Create 新增商品
func (r *ProductRepository) Create(ctx context.Context, products ...*model.Product) error {
	for _, p := range products {
		if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
			return fmt.Errorf("新增商品失败: %w", err)
		}
	}
	return nil
}

// Count 商品总数
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Product{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计商品失败: %w", err)
	}
	return count, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// OrderRepository 订单仓储
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// MostRecentOrder 用户最近一笔订单，没有时返回 nil, nil
func (r *OrderRepository) MostRecentOrder(ctx context.Context, owner int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ?", owner).
		Order("created_at DESC, id DESC").
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}
	return &order, nil
}

// Create 新增订单
func (r *OrderRepository) Create(ctx context.Context, order *model.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("新增订单失败: %w", err)
	}
	return nil
}

// UserRepository 用户仓储
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID 按 id 查询
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &user, nil
}

// FindByEmail 按邮箱查询
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &user, nil
}

// Create 新增用户
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	user.Email = strings.ToLower(user.Email)
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("新增用户失败: %w", err)
	}
	return nil
}
