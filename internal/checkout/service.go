package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/cart"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/events"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/order"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/pricing"
)

var (
	ErrEmptyCart              = errors.New("cart is empty")
	ErrAuthenticationRequired = errors.New("checkout requires a signed-in customer")
	ErrInvalidPaymentMethod   = errors.New("unsupported payment method")
)

const (
	DefaultNumberAttempts = 5
	DefaultResubmitWindow = 2 * time.Minute
)

type Request struct {
	Shipping      order.ShippingDetails
	PaymentMethod order.PaymentMethod
	Notes         string
}

type Options struct {
	StockPolicy order.StockPolicy
	// NumberAttempts bounds retries after an order number collision.
	NumberAttempts int
	NumberGenerator order.NumberGenerator
	// ResubmitWindow is how long a pending order absorbs a repeated checkout
	// of the same cart. Negative disables the check.
	ResubmitWindow time.Duration
	Now            func() time.Time
}

type Service interface {
	// Quote prices the cart for the checkout page.
	Quote(ctx context.Context, cc *cart.Context) (*pricing.Quote, error)
	// PlaceOrder turns the cart into a pending order. The order, its items and
	// the stock commitment are stored together or not at all; the cart is
	// cleared only after the order is stored.
	PlaceOrder(ctx context.Context, cc *cart.Context, req Request) (*order.Order, error)
}

type service struct {
	pricing   pricing.Engine
	orders    order.Repository
	carts     cart.Service
	publisher events.Publisher
	opts      Options
}

func NewService(engine pricing.Engine, orders order.Repository, carts cart.Service, publisher events.Publisher, opts Options) Service {
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}
	if !opts.StockPolicy.Valid() {
		opts.StockPolicy = order.StockStrict
	}
	if opts.NumberAttempts <= 0 {
		opts.NumberAttempts = DefaultNumberAttempts
	}
	if opts.NumberGenerator == nil {
		opts.NumberGenerator = order.GenerateNumber
	}
	if opts.ResubmitWindow == 0 {
		opts.ResubmitWindow = DefaultResubmitWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &service{
		pricing:   engine,
		orders:    orders,
		carts:     carts,
		publisher: publisher,
		opts:      opts,
	}
}

func (s *service) Quote(ctx context.Context, cc *cart.Context) (*pricing.Quote, error) {
	quote, err := s.pricing.Quote(ctx, cc.Items)
	if err != nil {
		return nil, fmt.Errorf("checkout: failed to price cart: %w", err)
	}
	return quote, nil
}

func (s *service) PlaceOrder(ctx context.Context, cc *cart.Context, req Request) (*order.Order, error) {
	if !cc.Authenticated() {
		return nil, ErrAuthenticationRequired
	}
	if !req.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, req.PaymentMethod)
	}

	quote, err := s.Quote(ctx, cc)
	if err != nil {
		return nil, err
	}
	if quote.Empty() {
		return nil, ErrEmptyCart
	}

	now := s.opts.Now().UTC()

	recent, err := s.resubmitted(ctx, cc, quote, now)
	if err != nil {
		return nil, err
	}
	if recent != nil {
		s.carts.Clear(ctx, cc)
		log.Warn().
			Stringer("order_id", recent.ID).
			Str("order_number", recent.OrderNumber).
			Stringer("user_id", cc.UserID).
			Msg("checkout: cart matches a recent order, not placing it again")
		return recent, nil
	}

	o := newPendingOrder(cc, req, quote, now)

	for attempt := 1; ; attempt++ {
		o.OrderNumber = s.opts.NumberGenerator(now)

		err = s.orders.CreateWithItems(ctx, o, s.opts.StockPolicy)
		if err == nil {
			break
		}
		if !errors.Is(err, order.ErrDuplicateOrderNumber) {
			log.Warn().Err(err).Stringer("user_id", cc.UserID).Msg("checkout: order was not placed")
			return nil, fmt.Errorf("checkout: failed to place order: %w", err)
		}
		if attempt >= s.opts.NumberAttempts {
			log.Error().Int("attempts", attempt).Stringer("user_id", cc.UserID).Msg("checkout: gave up generating a unique order number")
			return nil, fmt.Errorf("checkout: failed to place order after %d attempts: %w", attempt, err)
		}
		log.Warn().Str("order_number", o.OrderNumber).Int("attempt", attempt).Msg("checkout: order number collision, retrying")
	}

	s.carts.Clear(ctx, cc)

	log.Info().
		Stringer("order_id", o.ID).
		Str("order_number", o.OrderNumber).
		Stringer("user_id", o.CustomerID).
		Str("total_amount", o.TotalAmount.StringFixed(2)).
		Int("items", len(o.Items)).
		Msg("checkout: order placed")

	lines := make([]events.OrderLine, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, events.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice.StringFixed(2)})
	}
	order.Publish(ctx, s.publisher, events.TypeOrderPlaced, o, events.OrderPlaced{
		OrderID:       o.ID.String(),
		OrderNumber:   o.OrderNumber,
		CustomerID:    o.CustomerID.String(),
		PaymentMethod: string(o.PaymentMethod),
		TotalAmount:   o.TotalAmount.StringFixed(2),
		Items:         lines,
	})

	return o, nil
}

// resubmitted returns the customer's latest order when it is still pending,
// was placed within the resubmit window and holds exactly the quoted lines.
// A checkout whose session save failed leaves the old cart behind, so the
// same cart arrives a second time.
func (s *service) resubmitted(ctx context.Context, cc *cart.Context, quote *pricing.Quote, now time.Time) (*order.Order, error) {
	if s.opts.ResubmitWindow < 0 {
		return nil, nil
	}

	orders, err := s.orders.ListByCustomer(ctx, cc.UserID)
	if err != nil {
		return nil, fmt.Errorf("checkout: failed to look up recent orders: %w", err)
	}
	if len(orders) == 0 {
		return nil, nil
	}

	latest := &orders[0]
	if latest.Status != order.StatusPending || now.Sub(latest.OrderDate) > s.opts.ResubmitWindow {
		return nil, nil
	}
	if !sameLines(latest.Items, quote.Lines) || !latest.Subtotal.Equal(quote.Subtotal) {
		return nil, nil
	}
	return latest, nil
}

func sameLines(items []order.Item, lines []pricing.Line) bool {
	if len(items) != len(lines) {
		return false
	}
	want := make(map[int64]int, len(lines))
	for _, line := range lines {
		want[line.ProductID] = line.Quantity
	}
	for _, item := range items {
		if qty, ok := want[item.ProductID]; !ok || qty != item.Quantity {
			return false
		}
	}
	return true
}

func newPendingOrder(cc *cart.Context, req Request, quote *pricing.Quote, now time.Time) *order.Order {
	o := &order.Order{
		CustomerID:     cc.UserID,
		Subtotal:       quote.Subtotal,
		TaxAmount:      quote.TaxAmount,
		ShippingFee:    quote.ShippingFee,
		DiscountAmount: decimal.Zero,
		Status:         order.StatusPending,
		PaymentStatus:  order.PaymentUnpaid,
		PaymentMethod:  req.PaymentMethod,
		Shipping:       req.Shipping,
		CustomerNotes:  req.Notes,
		OrderDate:      now,
		Items:          make([]order.Item, 0, len(quote.Lines)),
	}
	o.ComputeTotal()

	for _, line := range quote.Lines {
		o.Items = append(o.Items, order.Item{
			ProductID:   line.ProductID,
			ProductName: line.Name,
			ProductSKU:  line.SKU,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			TotalPrice:  line.LineTotal,
		})
	}

	return o
}
