package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/catalog"
)

var (
	ErrOrderNotFound            = errors.New("order not found")
	ErrInvalidStatusTransition  = errors.New("invalid order status transition")
	ErrInvalidPaymentTransition = errors.New("invalid payment status transition")
	ErrUnknownStatus            = errors.New("unknown order status")
	ErrUnknownPaymentStatus     = errors.New("unknown payment status")
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrDuplicateOrderNumber     = errors.New("order number already exists")
)

const orderNumberConstraint = "uq_orders_order_number"

type Repository interface {
	// CreateWithItems stores the order, its items and the stock commitment
	// for every item as one unit. On error nothing is persisted.
	CreateWithItems(ctx context.Context, o *Order, policy StockPolicy) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error)
	// UpdateLifecycle persists status, payment and fulfilment fields. Lifecycle
	// timestamps already stored are never overwritten.
	UpdateLifecycle(ctx context.Context, o *Order) error
}

// DB is satisfied by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresRepository struct {
	db DB
}

func NewRepository(db DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateWithItems(ctx context.Context, o *Order, policy StockPolicy) (err error) {
	if o.ID == uuid.Nil {
		if o.ID, err = uuid.NewV4(); err != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Stringer("order_id", o.ID).Msg("repository: panic recovered during order creation, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("repository: failed to rollback transaction after panic")
			}
			panic(p)
		} else if err != nil {
			log.Warn().Err(err).Stringer("order_id", o.ID).Str("order_number", o.OrderNumber).Msg("repository: order creation failed, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("repository: failed to rollback transaction")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			log.Error().Err(commitErr).Stringer("order_id", o.ID).Msg("repository: failed to commit transaction")
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	queryOrder := `
		INSERT INTO orders (
			id, order_number, customer_id,
			subtotal, tax_amount, shipping_fee, discount_amount, total_amount,
			status, payment_status, payment_method,
			shipping_name, shipping_address, shipping_city, shipping_state, shipping_postal_code, shipping_phone,
			customer_notes, order_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, queryOrder,
		o.ID,
		o.OrderNumber,
		o.CustomerID,
		o.Subtotal,
		o.TaxAmount,
		o.ShippingFee,
		o.DiscountAmount,
		o.TotalAmount,
		string(o.Status),
		string(o.PaymentStatus),
		string(o.PaymentMethod),
		o.Shipping.Name,
		o.Shipping.Address,
		o.Shipping.City,
		o.Shipping.State,
		o.Shipping.PostalCode,
		o.Shipping.Phone,
		o.CustomerNotes,
		o.OrderDate,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == orderNumberConstraint {
			return ErrDuplicateOrderNumber
		}
		return fmt.Errorf("repository: failed to insert order %s: %w", o.OrderNumber, err)
	}

	for i := range o.Items {
		item := &o.Items[i]
		if item.ID == uuid.Nil {
			if item.ID, err = uuid.NewV4(); err != nil {
				return fmt.Errorf("repository: failed to generate order item ID: %w", err)
			}
		}
		item.OrderID = o.ID

		queryItem := `
			INSERT INTO order_items (id, order_id, product_id, product_name, product_sku, quantity, unit_price, total_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at
		`
		err = tx.QueryRow(ctx, queryItem,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.ProductName,
			item.ProductSKU,
			item.Quantity,
			item.UnitPrice,
			item.TotalPrice,
		).Scan(&item.CreatedAt)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for product %d: %w", item.ProductID, err)
		}

		if err = commitStock(ctx, tx, item.ProductID, item.Quantity, policy); err != nil {
			return err
		}
	}

	return nil
}

// commitStock locks the product row, applies the stock policy and records the
// sale. Items arrive sorted by product id so concurrent checkouts lock rows in
// the same order.
func commitStock(ctx context.Context, tx pgx.Tx, productID int64, quantity int, policy StockPolicy) error {
	var (
		stock    int
		isActive bool
	)
	err := tx.QueryRow(ctx, `SELECT stock_quantity, is_active FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&stock, &isActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %d", catalog.ErrProductNotFound, productID)
		}
		return fmt.Errorf("repository: failed to lock product %d: %w", productID, err)
	}
	if !isActive {
		return fmt.Errorf("%w: %d", catalog.ErrProductNotFound, productID)
	}

	remaining, err := CommitStock(productID, stock, quantity, policy)
	if err != nil {
		return err
	}

	queryStock := `
		UPDATE products
		SET stock_quantity = $2, sold_count = sold_count + $3, in_stock = $2 > 0, updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, queryStock, productID, remaining, quantity); err != nil {
		return fmt.Errorf("repository: failed to update stock for product %d: %w", productID, err)
	}

	return nil
}

const orderColumns = `
	id, order_number, customer_id,
	subtotal, tax_amount, shipping_fee, discount_amount, total_amount,
	status, payment_status, payment_method,
	shipping_name, shipping_address, shipping_city, shipping_state, shipping_postal_code, shipping_phone,
	tracking_number, carrier, customer_notes, admin_notes,
	order_date, paid_at, shipped_at, delivered_at, cancelled_at, created_at, updated_at
`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.CustomerID,
		&o.Subtotal,
		&o.TaxAmount,
		&o.ShippingFee,
		&o.DiscountAmount,
		&o.TotalAmount,
		&o.Status,
		&o.PaymentStatus,
		&o.PaymentMethod,
		&o.Shipping.Name,
		&o.Shipping.Address,
		&o.Shipping.City,
		&o.Shipping.State,
		&o.Shipping.PostalCode,
		&o.Shipping.Phone,
		&o.TrackingNumber,
		&o.Carrier,
		&o.CustomerNotes,
		&o.AdminNotes,
		&o.OrderDate,
		&o.PaidAt,
		&o.ShippedAt,
		&o.DeliveredAt,
		&o.CancelledAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Items = make([]Item, 0)
	return &o, nil
}

const itemColumns = `id, order_id, product_id, product_name, product_sku, quantity, unit_price, total_price, created_at`

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(
		&item.ID,
		&item.OrderID,
		&item.ProductID,
		&item.ProductName,
		&item.ProductSKU,
		&item.Quantity,
		&item.UnitPrice,
		&item.TotalPrice,
		&item.CreatedAt,
	)
	return item, err
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}

	rows, err := r.db.Query(ctx, `SELECT `+itemColumns+` FROM order_items WHERE order_id = $1 ORDER BY product_id`, id)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for order id %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for order id %s: %w", id, err)
		}
		o.Items = append(o.Items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for order id %s: %w", id, err)
	}

	return o, nil
}

func (r *postgresRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error) {
	orderRows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 ORDER BY order_date DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for customer %s: %w", customerID, err)
	}
	defer orderRows.Close()

	ordersMap := make(map[uuid.UUID]*Order)
	var orderIDs []uuid.UUID

	for orderRows.Next() {
		o, err := scanOrder(orderRows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order for customer %s: %w", customerID, err)
		}
		ordersMap[o.ID] = o
		orderIDs = append(orderIDs, o.ID)
	}

	if err = orderRows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders for customer %s: %w", customerID, err)
	}

	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	itemRows, err := r.db.Query(ctx, `SELECT `+itemColumns+` FROM order_items WHERE order_id = ANY($1) ORDER BY product_id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for customer %s: %w", customerID, err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		item, err := scanItem(itemRows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for customer %s: %w", customerID, err)
		}
		if o, ok := ordersMap[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	if err = itemRows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating order items for customer %s: %w", customerID, err)
	}

	result := make([]Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		result = append(result, *ordersMap[id])
	}

	return result, nil
}

func (r *postgresRepository) UpdateLifecycle(ctx context.Context, o *Order) error {
	query := `
		UPDATE orders
		SET status = $2,
			payment_status = $3,
			tracking_number = $4,
			carrier = $5,
			admin_notes = $6,
			paid_at = COALESCE(paid_at, $7),
			shipped_at = COALESCE(shipped_at, $8),
			delivered_at = COALESCE(delivered_at, $9),
			cancelled_at = COALESCE(cancelled_at, $10),
			updated_at = $11
		WHERE id = $1
	`

	updatedAt := o.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	cmdTag, err := r.db.Exec(ctx, query,
		o.ID,
		string(o.Status),
		string(o.PaymentStatus),
		o.TrackingNumber,
		o.Carrier,
		o.AdminNotes,
		o.PaidAt,
		o.ShippedAt,
		o.DeliveredAt,
		o.CancelledAt,
		updatedAt,
	)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", o.ID).Stringer("new_status", o.Status).Msg("repository: failed to update order lifecycle")
		return fmt.Errorf("repository: failed to update order %s: %w", o.ID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		log.Warn().Stringer("order_id", o.ID).Msg("repository: order not found for lifecycle update")
		return ErrOrderNotFound
	}

	return nil
}
