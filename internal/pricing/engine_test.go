package pricing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/cart"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/pricing"
)

type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) GetActiveByID(ctx context.Context, id int64) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) GetByID(ctx context.Context, id int64) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) ListActive(ctx context.Context) ([]catalog.Product, error) {
	args := m.Called(ctx)
	return args.Get(0).([]catalog.Product), args.Error(1)
}

func (m *MockProductRepository) Create(ctx context.Context, p *catalog.Product) error {
	return m.Called(ctx, p).Error(0)
}

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestEngine_Quote_EndToEndCart(t *testing.T) {
	products := new(MockProductRepository)
	products.On("GetActiveByID", mock.Anything, int64(1)).
		Return(&catalog.Product{ID: 1, Name: "Maize Seeds", SKU: "MZ-1", Price: dec("100"), StockQuantity: 5, IsActive: true}, nil)
	products.On("GetActiveByID", mock.Anything, int64(2)).
		Return(&catalog.Product{ID: 2, Name: "Hoe", SKU: "HOE-2", Price: dec("50"), StockQuantity: 1, IsActive: true}, nil)

	quote, err := pricing.NewEngine(products, pricing.Policy{}).Quote(context.Background(), cart.Cart{2: 1, 1: 2})
	require.NoError(t, err)

	want := &pricing.Quote{
		Lines: []pricing.Line{
			{ProductID: 1, Name: "Maize Seeds", SKU: "MZ-1", Quantity: 2, UnitPrice: dec("100"), LineTotal: dec("200"), Stock: 5},
			{ProductID: 2, Name: "Hoe", SKU: "HOE-2", Quantity: 1, UnitPrice: dec("50"), LineTotal: dec("50"), Stock: 1},
		},
		Subtotal:    dec("250"),
		TaxAmount:   decimal.Zero,
		ShippingFee: decimal.Zero,
		Total:       dec("250"),
		ItemCount:   3,
	}
	if diff := cmp.Diff(want, quote, decimalEqual); diff != "" {
		t.Errorf("Quote() mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_Quote_DropsUnavailableProducts(t *testing.T) {
	products := new(MockProductRepository)
	products.On("GetActiveByID", mock.Anything, int64(1)).
		Return(&catalog.Product{ID: 1, Name: "Fertilizer", Price: dec("12.50"), StockQuantity: 10, IsActive: true}, nil)
	products.On("GetActiveByID", mock.Anything, int64(2)).Return(nil, catalog.ErrProductNotFound)

	items := cart.Cart{1: 2, 2: 4}
	quote, err := pricing.NewEngine(products, pricing.Policy{}).Quote(context.Background(), items)
	require.NoError(t, err)

	require.Len(t, quote.Lines, 1)
	assert.True(t, dec("25").Equal(quote.Total))
	assert.Equal(t, cart.Cart{1: 2, 2: 4}, items, "pricing must not touch the cart")
}

func TestEngine_Quote_EmptyCart(t *testing.T) {
	quote, err := pricing.NewEngine(new(MockProductRepository), pricing.Policy{ShippingFee: dec("15")}).
		Quote(context.Background(), cart.Cart{})
	require.NoError(t, err)

	assert.True(t, quote.Empty())
	assert.True(t, quote.Total.IsZero(), "an empty cart carries no shipping fee")
}

func TestEngine_Quote_CatalogFailure(t *testing.T) {
	products := new(MockProductRepository)
	products.On("GetActiveByID", mock.Anything, int64(1)).Return(nil, errors.New("connection reset"))

	_, err := pricing.NewEngine(products, pricing.Policy{}).Quote(context.Background(), cart.Cart{1: 1})
	require.Error(t, err)
}

func TestEngine_Quote_RoundsEachStep(t *testing.T) {
	products := new(MockProductRepository)
	products.On("GetActiveByID", mock.Anything, int64(1)).
		Return(&catalog.Product{ID: 1, Name: "Twine", Price: dec("0.335"), StockQuantity: 100, IsActive: true}, nil)
	products.On("GetActiveByID", mock.Anything, int64(2)).
		Return(&catalog.Product{ID: 2, Name: "Pegs", Price: dec("0.105"), StockQuantity: 100, IsActive: true}, nil)

	quote, err := pricing.NewEngine(products, pricing.Policy{}).Quote(context.Background(), cart.Cart{1: 3, 2: 1})
	require.NoError(t, err)

	// 1.005 -> 1.01 and 0.105 -> 0.11
	assert.Equal(t, "1.01", quote.Lines[0].LineTotal.StringFixed(2))
	assert.Equal(t, "0.11", quote.Lines[1].LineTotal.StringFixed(2))
	assert.Equal(t, "1.12", quote.Subtotal.StringFixed(2))
}

func TestEngine_Quote_TotalIsSumOfParts(t *testing.T) {
	policies := []pricing.Policy{
		{},
		{TaxRate: dec("0.075")},
		{ShippingFee: dec("9.99")},
		{TaxRate: dec("0.16"), ShippingFee: dec("4.5")},
	}
	carts := []cart.Cart{
		{1: 1},
		{1: 7, 2: 3},
		{1: 100, 2: 99, 3: 13},
	}
	prices := map[int64]string{1: "19.99", 2: "0.07", 3: "1234.56"}

	products := new(MockProductRepository)
	for id, price := range prices {
		products.On("GetActiveByID", mock.Anything, id).
			Return(&catalog.Product{ID: id, Name: "p", Price: dec(price), StockQuantity: 1000, IsActive: true}, nil)
	}

	for _, policy := range policies {
		for _, items := range carts {
			quote, err := pricing.NewEngine(products, policy).Quote(context.Background(), items)
			require.NoError(t, err)

			sum := decimal.Zero
			for _, line := range quote.Lines {
				sum = sum.Add(line.LineTotal)
			}
			assert.True(t, sum.Equal(quote.Subtotal), "subtotal %s != sum of lines %s", quote.Subtotal, sum)
			assert.True(t, quote.Total.Equal(quote.Subtotal.Add(quote.TaxAmount).Add(quote.ShippingFee)))
		}
	}
}
