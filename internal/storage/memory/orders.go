package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/order"
)

type orderRecord struct {
	ID         string
	Number     string
	CustomerID string
	Order      order.Order
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneOrder(o *order.Order) *order.Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	if c.Items == nil {
		c.Items = make([]order.Item, 0)
	}
	c.PaidAt = cloneTime(o.PaidAt)
	c.ShippedAt = cloneTime(o.ShippedAt)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	return &c
}

type orderRepository struct {
	db *memdb.MemDB
}

func (r *orderRepository) CreateWithItems(_ context.Context, o *order.Order, policy order.StockPolicy) (err error) {
	if o.ID == uuid.Nil {
		if o.ID, err = uuid.NewV4(); err != nil {
			return fmt.Errorf("memory: failed to generate order ID: %w", err)
		}
	}

	txn := r.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tableOrders, indexNumber, o.OrderNumber)
	if err != nil {
		return fmt.Errorf("memory: failed to look up order number %s: %w", o.OrderNumber, err)
	}
	if existing != nil {
		return order.ErrDuplicateOrderNumber
	}

	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now

	for i := range o.Items {
		item := &o.Items[i]
		if item.ID == uuid.Nil {
			if item.ID, err = uuid.NewV4(); err != nil {
				return fmt.Errorf("memory: failed to generate order item ID: %w", err)
			}
		}
		item.OrderID = o.ID
		item.CreatedAt = now

		if err := commitStock(txn, item.ProductID, item.Quantity, policy, now); err != nil {
			return err
		}
	}

	record := &orderRecord{
		ID:         o.ID.String(),
		Number:     o.OrderNumber,
		CustomerID: o.CustomerID.String(),
		Order:      *cloneOrder(o),
	}
	if err := txn.Insert(tableOrders, record); err != nil {
		return fmt.Errorf("memory: failed to insert order %s: %w", o.OrderNumber, err)
	}

	txn.Commit()
	return nil
}

func commitStock(txn *memdb.Txn, productID int64, quantity int, policy order.StockPolicy, now time.Time) error {
	p, err := getProduct(txn, productID)
	if err != nil {
		return err
	}
	if !p.IsActive {
		return fmt.Errorf("%w: %d", catalog.ErrProductNotFound, productID)
	}

	remaining, err := order.CommitStock(productID, p.StockQuantity, quantity, policy)
	if err != nil {
		return err
	}

	p.StockQuantity = remaining
	p.SoldCount += quantity
	p.InStock = remaining > 0
	p.UpdatedAt = now

	if err := txn.Insert(tableProducts, p); err != nil {
		return fmt.Errorf("memory: failed to update stock for product %d: %w", productID, err)
	}
	return nil
}

func (r *orderRepository) GetByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableOrders, indexID, id.String())
	if err != nil {
		return nil, fmt.Errorf("memory: failed to look up order %s: %w", id, err)
	}
	if raw == nil {
		return nil, order.ErrOrderNotFound
	}

	return cloneOrder(&raw.(*orderRecord).Order), nil
}

func (r *orderRepository) ListByCustomer(_ context.Context, customerID uuid.UUID) ([]order.Order, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableOrders, indexCustomer, customerID.String())
	if err != nil {
		return nil, fmt.Errorf("memory: failed to query orders for customer %s: %w", customerID, err)
	}

	orders := make([]order.Order, 0)
	for raw := it.Next(); raw != nil; raw = it.Next() {
		orders = append(orders, *cloneOrder(&raw.(*orderRecord).Order))
	}

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].OrderDate.After(orders[j].OrderDate)
	})

	return orders, nil
}

func (r *orderRepository) UpdateLifecycle(_ context.Context, o *order.Order) error {
	txn := r.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tableOrders, indexID, o.ID.String())
	if err != nil {
		return fmt.Errorf("memory: failed to look up order %s: %w", o.ID, err)
	}
	if raw == nil {
		return order.ErrOrderNotFound
	}

	current := raw.(*orderRecord)
	updated := cloneOrder(&current.Order)
	updated.Status = o.Status
	updated.PaymentStatus = o.PaymentStatus
	updated.TrackingNumber = o.TrackingNumber
	updated.Carrier = o.Carrier
	updated.AdminNotes = o.AdminNotes
	updated.PaidAt = firstSet(updated.PaidAt, o.PaidAt)
	updated.ShippedAt = firstSet(updated.ShippedAt, o.ShippedAt)
	updated.DeliveredAt = firstSet(updated.DeliveredAt, o.DeliveredAt)
	updated.CancelledAt = firstSet(updated.CancelledAt, o.CancelledAt)
	updated.UpdatedAt = o.UpdatedAt
	if updated.UpdatedAt.IsZero() {
		updated.UpdatedAt = time.Now().UTC()
	}

	record := &orderRecord{
		ID:         current.ID,
		Number:     current.Number,
		CustomerID: current.CustomerID,
		Order:      *updated,
	}
	if err := txn.Insert(tableOrders, record); err != nil {
		return fmt.Errorf("memory: failed to update order %s: %w", o.ID, err)
	}

	txn.Commit()
	return nil
}

// firstSet keeps an already stored timestamp.
func firstSet(stored, incoming *time.Time) *time.Time {
	if stored != nil {
		return stored
	}
	return cloneTime(incoming)
}
