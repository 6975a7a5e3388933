package report

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const (
	DefaultPerPage  = 20
	maxPerPage      = 100
	topProductLimit = 10
)

type Filter struct {
	Status  string
	Page    int
	PerPage int
}

// Normalize fills in paging defaults.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultPerPage
	}
	f.PerPage = min(f.PerPage, maxPerPage)
	return f
}

func (f Filter) Offset() int {
	return (f.Page - 1) * f.PerPage
}

type OrderSummary struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	OrderNumber   string          `json:"order_number" db:"order_number"`
	CustomerID    uuid.UUID       `json:"customer_id" db:"customer_id"`
	CustomerName  string          `json:"customer_name" db:"customer_name"`
	Status        string          `json:"status" db:"status"`
	PaymentStatus string          `json:"payment_status" db:"payment_status"`
	PaymentMethod string          `json:"payment_method" db:"payment_method"`
	TotalAmount   decimal.Decimal `json:"total_amount" db:"total_amount"`
	ItemCount     int             `json:"item_count" db:"item_count"`
	OrderDate     time.Time       `json:"order_date" db:"order_date"`
}

type Page struct {
	Orders  []OrderSummary `json:"orders"`
	Status  string         `json:"status,omitempty"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
	Total   int            `json:"total"`
}

type TopProduct struct {
	ID            int64  `json:"id" db:"id"`
	Name          string `json:"name" db:"name"`
	SoldCount     int    `json:"sold_count" db:"sold_count"`
	StockQuantity int    `json:"stock_quantity" db:"stock_quantity"`
}

type Stats struct {
	TotalOrders   int             `json:"total_orders" db:"total_orders"`
	PendingOrders int             `json:"pending_orders" db:"pending_orders"`
	TotalRevenue  decimal.Decimal `json:"total_revenue" db:"total_revenue"`
	TopProducts   []TopProduct    `json:"top_products" db:"-"`
}

// Repository serves the admin order dashboard.
type Repository interface {
	ListOrders(ctx context.Context, filter Filter) (*Page, error)
	// Stats counts all orders; revenue excludes cancelled ones.
	Stats(ctx context.Context) (*Stats, error)
}

type sqlxRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &sqlxRepository{db: db}
}

func (r *sqlxRepository) ListOrders(ctx context.Context, filter Filter) (*Page, error) {
	filter = filter.Normalize()
	page := &Page{
		Orders:  make([]OrderSummary, 0),
		Status:  filter.Status,
		Page:    filter.Page,
		PerPage: filter.PerPage,
	}

	countQuery := `SELECT COUNT(*) FROM orders WHERE ($1 = '' OR status = $1)`
	if err := r.db.GetContext(ctx, &page.Total, countQuery, filter.Status); err != nil {
		return nil, fmt.Errorf("report: failed to count orders: %w", err)
	}

	listQuery := `
		SELECT o.id, o.order_number, o.customer_id,
			COALESCE(NULLIF(u.full_name, ''), u.username, '') AS customer_name,
			o.status, o.payment_status, o.payment_method, o.total_amount, o.order_date,
			COALESCE((SELECT SUM(i.quantity) FROM order_items i WHERE i.order_id = o.id), 0) AS item_count
		FROM orders o
		LEFT JOIN users u ON u.id = o.customer_id
		WHERE ($1 = '' OR o.status = $1)
		ORDER BY o.order_date DESC, o.id
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &page.Orders, listQuery, filter.Status, filter.PerPage, filter.Offset()); err != nil {
		return nil, fmt.Errorf("report: failed to list orders: %w", err)
	}

	return page, nil
}

func (r *sqlxRepository) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{TopProducts: make([]TopProduct, 0)}

	query := `
		SELECT COUNT(*) AS total_orders,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending_orders,
			COALESCE(SUM(total_amount) FILTER (WHERE status <> 'cancelled'), 0) AS total_revenue
		FROM orders
	`
	if err := r.db.GetContext(ctx, stats, query); err != nil {
		return nil, fmt.Errorf("report: failed to aggregate orders: %w", err)
	}

	topQuery := `
		SELECT id, name, sold_count, stock_quantity
		FROM products
		WHERE is_active
		ORDER BY sold_count DESC, id
		LIMIT $1
	`
	if err := r.db.SelectContext(ctx, &stats.TopProducts, topQuery, topProductLimit); err != nil {
		return nil, fmt.Errorf("report: failed to select top products: %w", err)
	}

	return stats, nil
}
