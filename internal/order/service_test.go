package order_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/events"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/order"
)

type mockOrderRepository struct {
	getByIDFunc         func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	listByCustomerFunc  func(ctx context.Context, customerID uuid.UUID) ([]order.Order, error)
	updateLifecycleFunc func(ctx context.Context, o *order.Order) error
	updates             []order.Order
}

func (m *mockOrderRepository) CreateWithItems(ctx context.Context, o *order.Order, policy order.StockPolicy) error {
	return errors.New("not expected")
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockOrderRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]order.Order, error) {
	return m.listByCustomerFunc(ctx, customerID)
}

func (m *mockOrderRepository) UpdateLifecycle(ctx context.Context, o *order.Order) error {
	m.updates = append(m.updates, *o)
	if m.updateLifecycleFunc != nil {
		return m.updateLifecycleFunc(ctx, o)
	}
	return nil
}

func storedOrder(status order.Status, payment order.PaymentStatus, method order.PaymentMethod) func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
		return &order.Order{
			ID:            id,
			OrderNumber:   "AF-20250101-000001",
			CustomerID:    uuid.FromStringOrNil("123e4567-e89b-12d3-a456-426614174000"),
			Status:        status,
			PaymentStatus: payment,
			PaymentMethod: method,
		}, nil
	}
}

func TestOrderService_UpdateStatus(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())

	tests := []struct {
		name        string
		getByIDFunc func(ctx context.Context, id uuid.UUID) (*order.Order, error)
		update      order.StatusUpdate
		updateErr   error
		wantErrIs   error
		wantWrites  int
		wantEvents  []string
	}{
		{
			name:        "pending_to_processing",
			getByIDFunc: storedOrder(order.StatusPending, order.PaymentUnpaid, order.PaymentBankTransfer),
			update:      order.StatusUpdate{Status: order.StatusProcessing},
			wantWrites:  1,
			wantEvents:  []string{events.TypeOrderStatusChanged},
		},
		{
			name:        "cod_delivery_marks_paid",
			getByIDFunc: storedOrder(order.StatusShipped, order.PaymentUnpaid, order.PaymentCashOnDelivery),
			update:      order.StatusUpdate{Status: order.StatusDelivered},
			wantWrites:  1,
			wantEvents:  []string{events.TypeOrderStatusChanged, events.TypeOrderPaymentChanged},
		},
		{
			name:        "same_status_without_changes_skips_write",
			getByIDFunc: storedOrder(order.StatusShipped, order.PaymentUnpaid, order.PaymentBankTransfer),
			update:      order.StatusUpdate{Status: order.StatusShipped},
		},
		{
			name:        "same_status_with_tracking_writes",
			getByIDFunc: storedOrder(order.StatusShipped, order.PaymentUnpaid, order.PaymentBankTransfer),
			update:      order.StatusUpdate{Status: order.StatusShipped, TrackingNumber: "TRK-1", Carrier: "DHL"},
			wantWrites:  1,
		},
		{
			name:        "invalid_transition",
			getByIDFunc: storedOrder(order.StatusDelivered, order.PaymentPaid, order.PaymentBankTransfer),
			update:      order.StatusUpdate{Status: order.StatusCancelled},
			wantErrIs:   order.ErrInvalidStatusTransition,
		},
		{
			name: "not_found",
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
				return nil, order.ErrOrderNotFound
			},
			update:    order.StatusUpdate{Status: order.StatusProcessing},
			wantErrIs: order.ErrOrderNotFound,
		},
		{
			name:        "repository_failure",
			getByIDFunc: storedOrder(order.StatusPending, order.PaymentUnpaid, order.PaymentBankTransfer),
			update:      order.StatusUpdate{Status: order.StatusCancelled},
			updateErr:   errors.New("connection reset"),
			wantWrites:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockOrderRepository{getByIDFunc: tt.getByIDFunc}
			if tt.updateErr != nil {
				repo.updateLifecycleFunc = func(ctx context.Context, o *order.Order) error { return tt.updateErr }
			}
			recorder := &events.Recorder{}
			svc := order.NewService(repo, recorder)

			o, err := svc.UpdateStatus(context.Background(), orderID, tt.update)

			assert.Len(t, repo.updates, tt.wantWrites)
			if tt.wantErrIs != nil || tt.updateErr != nil {
				require.Error(t, err)
				if tt.wantErrIs != nil {
					assert.ErrorIs(t, err, tt.wantErrIs)
				}
				assert.Empty(t, recorder.Types())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.update.Status, o.Status)
			if tt.wantEvents == nil {
				assert.Empty(t, recorder.Types())
			} else {
				assert.Equal(t, tt.wantEvents, recorder.Types())
			}
		})
	}
}

func TestOrderService_UpdateStatus_KeepsTrackingWhenOmitted(t *testing.T) {
	repo := &mockOrderRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return &order.Order{ID: id, Status: order.StatusShipped, TrackingNumber: "TRK-9", Carrier: "JNE"}, nil
		},
	}
	svc := order.NewService(repo, nil)

	o, err := svc.UpdateStatus(context.Background(), uuid.Must(uuid.NewV4()), order.StatusUpdate{Status: order.StatusDelivered})
	require.NoError(t, err)

	assert.Equal(t, "TRK-9", o.TrackingNumber)
	assert.Equal(t, "JNE", o.Carrier)
	require.Len(t, repo.updates, 1)
	assert.NotNil(t, repo.updates[0].DeliveredAt)
}

func TestOrderService_UpdateStatus_EmptyStatusKeepsCurrent(t *testing.T) {
	repo := &mockOrderRepository{getByIDFunc: storedOrder(order.StatusShipped, order.PaymentUnpaid, order.PaymentBankTransfer)}
	recorder := &events.Recorder{}
	svc := order.NewService(repo, recorder)

	o, err := svc.UpdateStatus(context.Background(), uuid.Must(uuid.NewV4()), order.StatusUpdate{TrackingNumber: "JNE-7", Carrier: "JNE"})
	require.NoError(t, err)

	assert.Equal(t, order.StatusShipped, o.Status)
	assert.Equal(t, "JNE-7", o.TrackingNumber)
	assert.Equal(t, "JNE", o.Carrier)
	require.Len(t, repo.updates, 1)
	assert.Equal(t, order.StatusShipped, repo.updates[0].Status)
	assert.Empty(t, recorder.Types(), "no status or payment event for a tracking-only change")

	repo.updates = nil
	o, err = svc.UpdateStatus(context.Background(), uuid.Must(uuid.NewV4()), order.StatusUpdate{})
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, o.Status)
	assert.Empty(t, repo.updates, "an empty update writes nothing")
}

func TestOrderService_UpdatePaymentStatus(t *testing.T) {
	repo := &mockOrderRepository{getByIDFunc: storedOrder(order.StatusProcessing, order.PaymentUnpaid, order.PaymentBankTransfer)}
	recorder := &events.Recorder{}
	svc := order.NewService(repo, recorder)

	o, err := svc.UpdatePaymentStatus(context.Background(), uuid.Must(uuid.NewV4()), order.PaymentPaid)
	require.NoError(t, err)

	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
	assert.WithinDuration(t, time.Now(), *o.PaidAt, time.Minute)
	assert.Equal(t, []string{events.TypeOrderPaymentChanged}, recorder.Types())

	var payload events.OrderPaymentChanged
	require.NoError(t, json.Unmarshal(recorder.Envelopes()[0].Payload, &payload))
	assert.Equal(t, "unpaid", payload.From)
	assert.Equal(t, "paid", payload.To)

	_, err = svc.UpdatePaymentStatus(context.Background(), uuid.Must(uuid.NewV4()), order.PaymentRefunded)
	assert.ErrorIs(t, err, order.ErrInvalidPaymentTransition, "a fresh unpaid order cannot be refunded")
}

func TestOrderService_GetForCustomer(t *testing.T) {
	owner := uuid.FromStringOrNil("123e4567-e89b-12d3-a456-426614174000")
	repo := &mockOrderRepository{getByIDFunc: storedOrder(order.StatusPending, order.PaymentUnpaid, order.PaymentCashOnDelivery)}
	svc := order.NewService(repo, nil)
	orderID := uuid.Must(uuid.NewV4())

	o, err := svc.GetForCustomer(context.Background(), owner, orderID)
	require.NoError(t, err)
	assert.Equal(t, orderID, o.ID)

	_, err = svc.GetForCustomer(context.Background(), uuid.Must(uuid.NewV4()), orderID)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestOrderService_ListForCustomer(t *testing.T) {
	repo := &mockOrderRepository{
		listByCustomerFunc: func(ctx context.Context, customerID uuid.UUID) ([]order.Order, error) {
			return nil, errors.New("timeout")
		},
	}
	svc := order.NewService(repo, nil)

	_, err := svc.ListForCustomer(context.Background(), uuid.Must(uuid.NewV4()))
	assert.Error(t, err)
}
