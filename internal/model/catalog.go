package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product 商品
type Product struct {
	ID            int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	Name          string          `json:"name" gorm:"type:varchar(255);not null"`
	Description   string          `json:"description" gorm:"type:text"`
	Price         decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	Category      string          `json:"category" gorm:"type:varchar(100)"`
	ImageURL      string          `json:"image_url" gorm:"type:varchar(500)"`
	StockQuantity int             `json:"stock_quantity" gorm:"not null;default:0"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TableName 表名
func (Product) TableName() string {
	return "products"
}

// InStock 是否有库存
func (p Product) InStock() bool {
	return p.StockQuantity > 0
}

// Order 订单
type Order struct {
	ID              int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID          int64           `json:"user_id" gorm:"not null;index"`
	TotalAmount     decimal.Decimal `json:"total_amount" gorm:"type:decimal(10,2);not null"`
	Status          string          `json:"status" gorm:"type:varchar(50);not null;default:pending"`
	ShippingAddress string          `json:"shipping_address" gorm:"type:text"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TableName 表名
func (Order) TableName() string {
	return "orders"
}

// User 用户
type User struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Email        string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"column:password_hash;type:varchar(255);not null"`
	FirstName    string    `json:"firstName" gorm:"type:varchar(100)"`
	LastName     string    `json:"lastName" gorm:"type:varchar(100)"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName 表名
func (User) TableName() string {
	return "users"
}
