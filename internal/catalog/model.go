package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a marketplace listing. Stock and sold counters are owned by the
// catalog; checkout updates them inside its own transaction.
type Product struct {
	ID            int64           `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Slug          string          `json:"slug" db:"slug"`
	SKU           string          `json:"sku" db:"sku"`
	Category      string          `json:"category" db:"category"`
	Price         decimal.Decimal `json:"price" db:"price"`
	StockQuantity int             `json:"stock_quantity" db:"stock_quantity"`
	SoldCount     int             `json:"sold_count" db:"sold_count"`
	InStock       bool            `json:"in_stock" db:"in_stock"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}
