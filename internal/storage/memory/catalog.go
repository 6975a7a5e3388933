package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/catalog"
)

type productRepository struct {
	store *Store
}

func getProduct(txn *memdb.Txn, id int64) (*catalog.Product, error) {
	raw, err := txn.First(tableProducts, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("memory: failed to look up product %d: %w", id, err)
	}
	if raw == nil {
		return nil, catalog.ErrProductNotFound
	}
	p := *raw.(*catalog.Product)
	return &p, nil
}

func (r *productRepository) GetActiveByID(ctx context.Context, id int64) (*catalog.Product, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, catalog.ErrProductNotFound
	}
	return p, nil
}

func (r *productRepository) GetByID(_ context.Context, id int64) (*catalog.Product, error) {
	txn := r.store.db.Txn(false)
	defer txn.Abort()
	return getProduct(txn, id)
}

func (r *productRepository) ListActive(_ context.Context) ([]catalog.Product, error) {
	txn := r.store.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableProducts, indexID)
	if err != nil {
		return nil, fmt.Errorf("memory: failed to iterate products: %w", err)
	}

	products := make([]catalog.Product, 0)
	for raw := it.Next(); raw != nil; raw = it.Next() {
		if p := raw.(*catalog.Product); p.IsActive {
			products = append(products, *p)
		}
	}

	sort.Slice(products, func(i, j int) bool {
		if !products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].CreatedAt.After(products[j].CreatedAt)
		}
		return products[i].ID > products[j].ID
	})

	return products, nil
}

func (r *productRepository) Create(_ context.Context, p *catalog.Product) error {
	txn := r.store.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tableProducts, indexSlug, p.Slug)
	if err != nil {
		return fmt.Errorf("memory: failed to look up product slug %q: %w", p.Slug, err)
	}
	if existing != nil {
		return fmt.Errorf("memory: product slug %q already exists", p.Slug)
	}

	now := time.Now().UTC()
	p.ID = r.store.nextProductID.Add(1)
	p.InStock = p.StockQuantity > 0
	p.CreatedAt, p.UpdatedAt = now, now

	record := *p
	if err := txn.Insert(tableProducts, &record); err != nil {
		return fmt.Errorf("memory: failed to insert product %q: %w", p.Slug, err)
	}
	txn.Commit()

	return nil
}
