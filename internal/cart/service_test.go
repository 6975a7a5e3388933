package cart_test

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/cart"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/catalog"
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
	args := m.Called(ctx, p)
	return args.Error(0)
}

type MockMirrorRepository struct {
	mock.Mock
}

func (m *MockMirrorRepository) Upsert(ctx context.Context, userID uuid.UUID, productID int64, quantity int) error {
	args := m.Called(ctx, userID, productID, quantity)
	return args.Error(0)
}

func (m *MockMirrorRepository) Delete(ctx context.Context, userID uuid.UUID, productID int64) error {
	args := m.Called(ctx, userID, productID)
	return args.Error(0)
}

func (m *MockMirrorRepository) DeleteAll(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockMirrorRepository) List(ctx context.Context, userID uuid.UUID) (cart.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(cart.Cart), args.Error(1)
}

func product(id int64, stock int) *catalog.Product {
	return &catalog.Product{
		ID:            id,
		Name:          "Wheat Seeds",
		Price:         decimal.RequireFromString("100"),
		StockQuantity: stock,
		InStock:       stock > 0,
		IsActive:      true,
	}
}

func TestCartService_Add_Clamping(t *testing.T) {
	tests := []struct {
		name      string
		stock     int
		existing  int
		requested int
		want      int
	}{
		{name: "over_request_capped_by_stock", stock: 3, requested: 10, want: 3},
		{name: "zero_request_becomes_one", stock: 5, requested: 0, want: 1},
		{name: "negative_request_becomes_one", stock: 5, requested: -7, want: 1},
		{name: "request_above_hundred", stock: 500, requested: 1000, want: 100},
		{name: "accumulates_existing", stock: 10, existing: 2, requested: 3, want: 5},
		{name: "accumulated_total_capped_by_stock", stock: 4, existing: 3, requested: 3, want: 4},
		{name: "accumulated_total_capped_by_hundred", stock: 500, existing: 90, requested: 50, want: 100},
		{name: "existing_above_new_stock_drops_to_stock", stock: 2, existing: 5, requested: 1, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			products := new(MockProductRepository)
			products.On("GetActiveByID", mock.Anything, int64(7)).Return(product(7, tt.stock), nil).Once()
			svc := cart.NewService(products, nil)

			cc := cart.NewContext(uuid.Nil, nil)
			if tt.existing > 0 {
				cc.Items[7] = tt.existing
			}

			_, got, err := svc.Add(context.Background(), cc, 7, tt.requested)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, cc.Items[7])
			assert.GreaterOrEqual(t, cc.Items[7], cart.MinQuantity)
			assert.LessOrEqual(t, cc.Items[7], min(cart.MaxQuantity, tt.stock))
			products.AssertExpectations(t)
		})
	}
}

func TestCartService_Add_NotFound(t *testing.T) {
	products := new(MockProductRepository)
	products.On("GetActiveByID", mock.Anything, int64(9)).Return(nil, catalog.ErrProductNotFound).Once()
	svc := cart.NewService(products, nil)

	cc := cart.NewContext(uuid.Nil, nil)
	_, _, err := svc.Add(context.Background(), cc, 9, 1)

	require.ErrorIs(t, err, catalog.ErrProductNotFound)
	assert.Empty(t, cc.Items)
}

func TestCartService_Add_OutOfStock(t *testing.T) {
	products := new(MockProductRepository)
	products.On("GetActiveByID", mock.Anything, int64(3)).Return(product(3, 0), nil).Once()
	svc := cart.NewService(products, nil)

	cc := cart.NewContext(uuid.Nil, nil)
	p, _, err := svc.Add(context.Background(), cc, 3, 1)

	require.ErrorIs(t, err, cart.ErrOutOfStock)
	require.NotNil(t, p)
	assert.Empty(t, cc.Items)
}

func TestCartService_Add_MirrorsForSignedInUser(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	products := new(MockProductRepository)
	mirror := new(MockMirrorRepository)
	products.On("GetActiveByID", mock.Anything, int64(1)).Return(product(1, 10), nil).Once()
	mirror.On("Upsert", mock.Anything, userID, int64(1), 2).Return(errors.New("db is down")).Once()

	svc := cart.NewService(products, mirror)
	cc := cart.NewContext(userID, nil)

	_, qty, err := svc.Add(context.Background(), cc, 1, 2)

	require.NoError(t, err, "mirror failures must not fail the session cart")
	assert.Equal(t, 2, qty)
	mirror.AssertExpectations(t)
}

func TestCartService_Add_AnonymousSkipsMirror(t *testing.T) {
	products := new(MockProductRepository)
	mirror := new(MockMirrorRepository)
	products.On("GetActiveByID", mock.Anything, int64(1)).Return(product(1, 10), nil).Once()

	svc := cart.NewService(products, mirror)
	_, _, err := svc.Add(context.Background(), cart.NewContext(uuid.Nil, nil), 1, 2)

	require.NoError(t, err)
	mirror.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCartService_Update(t *testing.T) {
	products := new(MockProductRepository)
	products.On("GetByID", mock.Anything, int64(1)).Return(product(1, 4), nil)
	products.On("GetByID", mock.Anything, int64(2)).Return(product(2, 0), nil)
	products.On("GetByID", mock.Anything, int64(404)).Return(nil, catalog.ErrProductNotFound)

	svc := cart.NewService(products, nil)
	cc := cart.NewContext(uuid.Nil, cart.Cart{1: 1, 2: 1, 3: 5})

	err := svc.Update(context.Background(), cc, map[int64]int{
		1:   50,  // capped by stock 4
		2:   3,   // stock 0 keeps a single unit
		3:   0,   // removed
		404: 2,   // unknown, ignored
	})
	require.NoError(t, err)

	assert.Equal(t, cart.Cart{1: 4, 2: 1}, cc.Items)
}

func TestCartService_Update_NegativeRemoves(t *testing.T) {
	products := new(MockProductRepository)
	svc := cart.NewService(products, nil)
	cc := cart.NewContext(uuid.Nil, cart.Cart{5: 2})

	require.NoError(t, svc.Update(context.Background(), cc, map[int64]int{5: -3}))

	assert.Empty(t, cc.Items)
	products.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestCartService_Update_CatalogFailure(t *testing.T) {
	products := new(MockProductRepository)
	products.On("GetByID", mock.Anything, int64(1)).Return(nil, errors.New("connection refused"))
	svc := cart.NewService(products, nil)

	err := svc.Update(context.Background(), cart.NewContext(uuid.Nil, nil), map[int64]int{1: 2})
	require.Error(t, err)
	assert.NotErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestCartService_RemoveIsIdempotent(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	mirror := new(MockMirrorRepository)
	mirror.On("Delete", mock.Anything, userID, int64(8)).Return(nil).Twice()

	svc := cart.NewService(new(MockProductRepository), mirror)
	cc := cart.NewContext(userID, cart.Cart{8: 1})

	svc.Remove(context.Background(), cc, 8)
	svc.Remove(context.Background(), cc, 8)

	assert.Empty(t, cc.Items)
	mirror.AssertExpectations(t)
}

func TestCartService_ClearKeepsMapIdentity(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	mirror := new(MockMirrorRepository)
	mirror.On("DeleteAll", mock.Anything, userID).Return(nil).Once()

	items := cart.Cart{1: 1, 2: 2}
	svc := cart.NewService(new(MockProductRepository), mirror)
	svc.Clear(context.Background(), cart.NewContext(userID, items))

	assert.Empty(t, items, "clear must empty the caller's map in place")
	mirror.AssertExpectations(t)
}

func TestCartService_Restore(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())

	t.Run("fills_empty_cart", func(t *testing.T) {
		mirror := new(MockMirrorRepository)
		mirror.On("List", mock.Anything, userID).Return(cart.Cart{1: 3, 2: 250}, nil).Once()
		svc := cart.NewService(new(MockProductRepository), mirror)

		cc := cart.NewContext(userID, nil)
		require.NoError(t, svc.Restore(context.Background(), cc))
		assert.Equal(t, cart.Cart{1: 3, 2: 100}, cc.Items)
	})

	t.Run("session_cart_wins", func(t *testing.T) {
		mirror := new(MockMirrorRepository)
		svc := cart.NewService(new(MockProductRepository), mirror)

		cc := cart.NewContext(userID, cart.Cart{9: 1})
		require.NoError(t, svc.Restore(context.Background(), cc))
		assert.Equal(t, cart.Cart{9: 1}, cc.Items)
		mirror.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	})
}

func TestParseUpdateForm(t *testing.T) {
	form := url.Values{
		"qty_1":      {"3"},
		"qty_2":      {"abc"},
		"qty_x":      {"4"},
		"csrf_token": {"t"},
	}

	assert.Equal(t, map[int64]int{1: 3, 2: 1}, cart.ParseUpdateForm(form))
}

func TestParseQuantity(t *testing.T) {
	assert.Equal(t, 4, cart.ParseQuantity(" 4 "))
	assert.Equal(t, 1, cart.ParseQuantity(""))
	assert.Equal(t, 1, cart.ParseQuantity("two"))
	assert.Equal(t, -2, cart.ParseQuantity("-2"))
}

func TestCart_ProductIDsSorted(t *testing.T) {
	c := cart.Cart{30: 1, 2: 1, 15: 4}
	assert.Equal(t, []int64{2, 15, 30}, c.ProductIDs())
	assert.Equal(t, 6, c.Count())
}
