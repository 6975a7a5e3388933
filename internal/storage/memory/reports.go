package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/order"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/report"
)

const topProductLimit = 10

type reportRepository struct {
	db *memdb.MemDB
}

func (r *reportRepository) ListOrders(_ context.Context, filter report.Filter) (*report.Page, error) {
	filter = filter.Normalize()

	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableOrders, indexID)
	if err != nil {
		return nil, fmt.Errorf("memory: failed to iterate orders: %w", err)
	}

	var matched []*order.Order
	for raw := it.Next(); raw != nil; raw = it.Next() {
		o := &raw.(*orderRecord).Order
		if filter.Status != "" && string(o.Status) != filter.Status {
			continue
		}
		matched = append(matched, o)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].OrderDate.Equal(matched[j].OrderDate) {
			return matched[i].OrderDate.After(matched[j].OrderDate)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	page := &report.Page{
		Orders:  make([]report.OrderSummary, 0, filter.PerPage),
		Status:  filter.Status,
		Page:    filter.Page,
		PerPage: filter.PerPage,
		Total:   len(matched),
	}

	start := min(filter.Offset(), len(matched))
	end := min(start+filter.PerPage, len(matched))
	for _, o := range matched[start:end] {
		page.Orders = append(page.Orders, report.OrderSummary{
			ID:            o.ID,
			OrderNumber:   o.OrderNumber,
			CustomerID:    o.CustomerID,
			CustomerName:  customerName(txn, o.CustomerID),
			Status:        string(o.Status),
			PaymentStatus: string(o.PaymentStatus),
			PaymentMethod: string(o.PaymentMethod),
			TotalAmount:   o.TotalAmount,
			ItemCount:     o.ItemCount(),
			OrderDate:     o.OrderDate,
		})
	}

	return page, nil
}

func customerName(txn *memdb.Txn, id uuid.UUID) string {
	p, err := getProfile(txn, id)
	if err != nil {
		return ""
	}
	if p.FullName != "" {
		return p.FullName
	}
	return p.Username
}

func (r *reportRepository) Stats(_ context.Context) (*report.Stats, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	stats := &report.Stats{TotalRevenue: decimal.Zero, TopProducts: make([]report.TopProduct, 0)}

	orders, err := txn.Get(tableOrders, indexID)
	if err != nil {
		return nil, fmt.Errorf("memory: failed to iterate orders: %w", err)
	}
	for raw := orders.Next(); raw != nil; raw = orders.Next() {
		o := &raw.(*orderRecord).Order
		stats.TotalOrders++
		if o.Status == order.StatusPending {
			stats.PendingOrders++
		}
		if o.Status != order.StatusCancelled {
			stats.TotalRevenue = stats.TotalRevenue.Add(o.TotalAmount)
		}
	}

	products, err := txn.Get(tableProducts, indexID)
	if err != nil {
		return nil, fmt.Errorf("memory: failed to iterate products: %w", err)
	}
	var active []*catalog.Product
	for raw := products.Next(); raw != nil; raw = products.Next() {
		if p := raw.(*catalog.Product); p.IsActive {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].SoldCount != active[j].SoldCount {
			return active[i].SoldCount > active[j].SoldCount
		}
		return active[i].ID < active[j].ID
	})
	for _, p := range active[:min(topProductLimit, len(active))] {
		stats.TopProducts = append(stats.TopProducts, report.TopProduct{
			ID:            p.ID,
			Name:          p.Name,
			SoldCount:     p.SoldCount,
			StockQuantity: p.StockQuantity,
		})
	}

	return stats, nil
}
