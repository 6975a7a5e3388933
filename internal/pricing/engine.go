package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/cart"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/catalog"
)

const moneyPlaces = 2

// Policy supplies the tax and shipping charges for a subtotal. The zero value
// charges neither.
type Policy struct {
	TaxRate     decimal.Decimal
	ShippingFee decimal.Decimal
}

func (p Policy) tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(p.TaxRate).Round(moneyPlaces)
}

func (p Policy) shipping(itemCount int) decimal.Decimal {
	if itemCount == 0 {
		return decimal.Zero
	}
	return p.ShippingFee.Round(moneyPlaces)
}

type Line struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	Stock     int             `json:"stock_quantity"`
}

type Quote struct {
	Lines       []Line          `json:"lines"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"item_count"`
}

func (q *Quote) Empty() bool {
	return len(q.Lines) == 0
}

type Engine interface {
	// Quote prices the cart against the current catalog. It never mutates the
	// cart or the catalog.
	Quote(ctx context.Context, items cart.Cart) (*Quote, error)
}

type engine struct {
	products catalog.Repository
	policy   Policy
}

func NewEngine(products catalog.Repository, policy Policy) Engine {
	return &engine{
		products: products,
		policy:   policy,
	}
}

func (e *engine) Quote(ctx context.Context, items cart.Cart) (*Quote, error) {
	quote := &Quote{
		Lines:    make([]Line, 0, len(items)),
		Subtotal: decimal.Zero,
	}

	for _, productID := range items.ProductIDs() {
		quantity := items[productID]
		if quantity <= 0 {
			continue
		}

		product, err := e.products.GetActiveByID(ctx, productID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				log.Debug().Int64("product_id", productID).Msg("pricing: dropping line for unavailable product")
				continue
			}
			return nil, fmt.Errorf("pricing: failed to load product %d: %w", productID, err)
		}

		lineTotal := product.Price.Mul(decimal.NewFromInt(int64(quantity))).Round(moneyPlaces)
		quote.Lines = append(quote.Lines, Line{
			ProductID: product.ID,
			Name:      product.Name,
			SKU:       product.SKU,
			Quantity:  quantity,
			UnitPrice: product.Price,
			LineTotal: lineTotal,
			Stock:     product.StockQuantity,
		})
		quote.Subtotal = quote.Subtotal.Add(lineTotal).Round(moneyPlaces)
		quote.ItemCount += quantity
	}

	quote.TaxAmount = e.policy.tax(quote.Subtotal)
	quote.ShippingFee = e.policy.shipping(quote.ItemCount)
	quote.Total = quote.Subtotal.Add(quote.TaxAmount).Add(quote.ShippingFee).Round(moneyPlaces)

	return quote, nil
}
