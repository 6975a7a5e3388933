package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/catalog"
)

var ErrOutOfStock = errors.New("product is out of stock")

type Service interface {
	Add(ctx context.Context, cc *Context, productID int64, quantity int) (*catalog.Product, int, error)
	Update(ctx context.Context, cc *Context, quantities map[int64]int) error
	Remove(ctx context.Context, cc *Context, productID int64)
	Clear(ctx context.Context, cc *Context)
	Restore(ctx context.Context, cc *Context) error
}

type service struct {
	products catalog.Repository
	mirror   MirrorRepository
}

// NewService wires the cart store. mirror may be nil, in which case signed-in
// carts live in the session only.
func NewService(products catalog.Repository, mirror MirrorRepository) Service {
	return &service{
		products: products,
		mirror:   mirror,
	}
}

// Add puts quantity units of an active product into the cart and returns the
// product together with the resulting cart quantity. The requested quantity is
// clamped to [1,100]; the total is capped by available stock and by 100.
func (s *service) Add(ctx context.Context, cc *Context, productID int64, quantity int) (*catalog.Product, int, error) {
	product, err := s.products.GetActiveByID(ctx, productID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			log.Warn().Int64("product_id", productID).Msg("service: add to cart for unknown or inactive product")
			return nil, 0, catalog.ErrProductNotFound
		}
		return nil, 0, fmt.Errorf("service: failed to load product %d: %w", productID, err)
	}

	if product.StockQuantity <= 0 {
		return product, 0, ErrOutOfStock
	}

	quantity = clamp(quantity, MinQuantity, MaxQuantity)
	newQuantity := min(capToStock(cc.Items[productID]+quantity, product.StockQuantity), MaxQuantity)
	cc.Items[productID] = newQuantity

	s.mirrorUpsert(ctx, cc, productID, newQuantity)

	return product, newQuantity, nil
}

// Update applies a batch of quantity changes. Zero removes the entry, unknown
// products are skipped so stale carts heal themselves.
func (s *service) Update(ctx context.Context, cc *Context, quantities map[int64]int) error {
	for productID, quantity := range quantities {
		quantity = clamp(quantity, 0, MaxQuantity)
		if quantity == 0 {
			delete(cc.Items, productID)
			s.mirrorDelete(ctx, cc, productID)
			continue
		}

		product, err := s.products.GetByID(ctx, productID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				continue
			}
			return fmt.Errorf("service: failed to load product %d: %w", productID, err)
		}

		quantity = capToStock(quantity, product.StockQuantity)
		cc.Items[productID] = quantity
		s.mirrorUpsert(ctx, cc, productID, quantity)
	}

	return nil
}

func (s *service) Remove(ctx context.Context, cc *Context, productID int64) {
	delete(cc.Items, productID)
	s.mirrorDelete(ctx, cc, productID)
}

func (s *service) Clear(ctx context.Context, cc *Context) {
	clear(cc.Items)

	if s.mirror == nil || !cc.Authenticated() {
		return
	}
	if err := s.mirror.DeleteAll(ctx, cc.UserID); err != nil {
		log.Warn().Err(err).Stringer("user_id", cc.UserID).Msg("service: failed to clear persisted cart")
	}
}

// Restore fills an empty session cart from the signed-in user's persisted
// cart. A non-empty session cart wins and is left untouched.
func (s *service) Restore(ctx context.Context, cc *Context) error {
	if s.mirror == nil || !cc.Authenticated() || len(cc.Items) > 0 {
		return nil
	}

	saved, err := s.mirror.List(ctx, cc.UserID)
	if err != nil {
		return fmt.Errorf("service: failed to load persisted cart for user %s: %w", cc.UserID, err)
	}

	for productID, quantity := range saved {
		if quantity <= 0 {
			continue
		}
		cc.Items[productID] = clamp(quantity, MinQuantity, MaxQuantity)
	}

	if len(saved) > 0 {
		log.Info().Stringer("user_id", cc.UserID).Int("items", len(cc.Items)).Msg("service: restored persisted cart")
	}

	return nil
}

func (s *service) mirrorUpsert(ctx context.Context, cc *Context, productID int64, quantity int) {
	if s.mirror == nil || !cc.Authenticated() {
		return
	}
	if err := s.mirror.Upsert(ctx, cc.UserID, productID, quantity); err != nil {
		log.Warn().Err(err).Stringer("user_id", cc.UserID).Int64("product_id", productID).Msg("service: failed to persist cart item")
	}
}

func (s *service) mirrorDelete(ctx context.Context, cc *Context, productID int64) {
	if s.mirror == nil || !cc.Authenticated() {
		return
	}
	if err := s.mirror.Delete(ctx, cc.UserID, productID); err != nil {
		log.Warn().Err(err).Stringer("user_id", cc.UserID).Int64("product_id", productID).Msg("service: failed to delete persisted cart item")
	}
}
