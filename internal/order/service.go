package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/events"
)

const EventProducer = "marketplace-service"

// StatusUpdate is an admin fulfilment change. An empty status keeps the
// current one; empty tracking number, carrier or note leave the stored value
// alone.
type StatusUpdate struct {
	Status         Status
	TrackingNumber string
	Carrier        string
	AdminNote      string
}

type Service interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// GetForCustomer hides orders owned by someone else behind ErrOrderNotFound.
	GetForCustomer(ctx context.Context, customerID, id uuid.UUID) (*Order, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) (*Order, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, next PaymentStatus) (*Order, error)
}

type service struct {
	orderRepo Repository
	publisher events.Publisher
	now       func() time.Time
}

func NewService(orderRepo Repository, publisher events.Publisher) Service {
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}
	return &service{
		orderRepo: orderRepo,
		publisher: publisher,
		now:       time.Now,
	}
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", id).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id in repository")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	return o, nil
}

func (s *service) GetForCustomer(ctx context.Context, customerID, id uuid.UUID) (*Order, error) {
	o, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != customerID {
		log.Warn().Stringer("order_id", id).Stringer("user_id", customerID).Msg("service: order requested by non-owner")
		return nil, ErrOrderNotFound
	}

	return o, nil
}

func (s *service) ListForCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error) {
	orders, err := s.orderRepo.ListByCustomer(ctx, customerID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", customerID).Msg("service: failed to fetch customer orders in repository")
		return nil, fmt.Errorf("service: failed to fetch customer orders: %w", err)
	}

	return orders, nil
}

func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) (*Order, error) {
	o, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	previousStatus, previousPayment := o.Status, o.PaymentStatus
	now := s.now()

	if update.Status == "" {
		update.Status = o.Status
	}

	changed, err := o.TransitionTo(update.Status, now)
	if err != nil {
		log.Warn().
			Err(err).
			Stringer("order_id", o.ID).
			Stringer("current_status", previousStatus).
			Stringer("new_status", update.Status).
			Msg("service: invalid status transition attempt")
		return nil, fmt.Errorf("service: cannot move order %s from %s to %s: %w", o.OrderNumber, previousStatus, update.Status, err)
	}

	if update.TrackingNumber != "" && update.TrackingNumber != o.TrackingNumber {
		o.TrackingNumber = update.TrackingNumber
		changed = true
	}
	if update.Carrier != "" && update.Carrier != o.Carrier {
		o.Carrier = update.Carrier
		changed = true
	}
	if update.AdminNote != "" && update.AdminNote != o.AdminNotes {
		o.AdminNotes = update.AdminNote
		changed = true
	}

	if !changed {
		log.Info().Stringer("order_id", o.ID).Stringer("status", o.Status).Msg("service: order status is already the same, no update needed")
		return o, nil
	}
	o.UpdatedAt = now.UTC()

	if err := s.orderRepo.UpdateLifecycle(ctx, o); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", o.ID).Stringer("new_status", update.Status).Msg("service: failed to update order status in repository")
		return nil, fmt.Errorf("service: failed to update order status: %w", err)
	}

	log.Info().Stringer("order_id", o.ID).Stringer("old_status", previousStatus).Stringer("new_status", o.Status).Msg("service: order status updated successfully")

	if previousStatus != o.Status {
		s.publish(ctx, events.TypeOrderStatusChanged, o, events.OrderStatusChanged{
			OrderID:     o.ID.String(),
			OrderNumber: o.OrderNumber,
			From:        previousStatus.String(),
			To:          o.Status.String(),
		})
	}
	if previousPayment != o.PaymentStatus {
		s.publish(ctx, events.TypeOrderPaymentChanged, o, events.OrderPaymentChanged{
			OrderID:     o.ID.String(),
			OrderNumber: o.OrderNumber,
			From:        previousPayment.String(),
			To:          o.PaymentStatus.String(),
		})
	}

	return o, nil
}

func (s *service) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, next PaymentStatus) (*Order, error) {
	o, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := o.PaymentStatus
	changed, err := o.MarkPayment(next, s.now())
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", o.ID).Stringer("current_payment", previous).Stringer("new_payment", next).Msg("service: invalid payment transition attempt")
		return nil, fmt.Errorf("service: cannot move payment of order %s from %s to %s: %w", o.OrderNumber, previous, next, err)
	}
	if !changed {
		return o, nil
	}

	if err := s.orderRepo.UpdateLifecycle(ctx, o); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", o.ID).Msg("service: failed to update payment status in repository")
		return nil, fmt.Errorf("service: failed to update payment status: %w", err)
	}

	log.Info().Stringer("order_id", o.ID).Stringer("old_payment", previous).Stringer("new_payment", next).Msg("service: payment status updated successfully")

	s.publish(ctx, events.TypeOrderPaymentChanged, o, events.OrderPaymentChanged{
		OrderID:     o.ID.String(),
		OrderNumber: o.OrderNumber,
		From:        previous.String(),
		To:          next.String(),
	})

	return o, nil
}

func (s *service) publish(ctx context.Context, eventType string, o *Order, payload any) {
	Publish(ctx, s.publisher, eventType, o, payload)
}

// Publish sends an order event and logs instead of failing; the order is
// already committed when this runs.
func Publish(ctx context.Context, publisher events.Publisher, eventType string, o *Order, payload any) {
	env, err := events.NewEnvelope(eventType, EventProducer, o.ID.String(), payload)
	if err == nil {
		err = publisher.Publish(ctx, env)
	}
	if err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Stringer("order_id", o.ID).Msg("service: failed to publish order event")
	}
}
