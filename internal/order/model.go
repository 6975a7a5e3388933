package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) String() string {
	return string(s)
}

func (s PaymentStatus) Valid() bool {
	_, ok := allowedPaymentTransitions[s]
	return ok
}

type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cod"
	PaymentBankTransfer   PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCashOnDelivery || m == PaymentBankTransfer
}

// ShippingDetails is captured from the checkout form and never changes after
// the order is placed.
type ShippingDetails struct {
	Name       string `json:"name" db:"shipping_name"`
	Address    string `json:"address" db:"shipping_address"`
	City       string `json:"city" db:"shipping_city"`
	State      string `json:"state" db:"shipping_state"`
	PostalCode string `json:"postal_code" db:"shipping_postal_code"`
	Phone      string `json:"phone" db:"shipping_phone"`
}

// Item is the price and name snapshot of one purchased product.
type Item struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	OrderID     uuid.UUID       `json:"order_id" db:"order_id"`
	ProductID   int64           `json:"product_id" db:"product_id"`
	ProductName string          `json:"product_name" db:"product_name"`
	ProductSKU  string          `json:"product_sku" db:"product_sku"`
	Quantity    int             `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price" db:"total_price"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

type Order struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	OrderNumber    string          `json:"order_number" db:"order_number"`
	CustomerID     uuid.UUID       `json:"customer_id" db:"customer_id"`
	Subtotal       decimal.Decimal `json:"subtotal" db:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	ShippingFee    decimal.Decimal `json:"shipping_fee" db:"shipping_fee"`
	DiscountAmount decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount" db:"total_amount"`
	Status         Status          `json:"status" db:"status"`
	PaymentStatus  PaymentStatus   `json:"payment_status" db:"payment_status"`
	PaymentMethod  PaymentMethod   `json:"payment_method" db:"payment_method"`
	Shipping       ShippingDetails `json:"shipping" db:"-"`
	TrackingNumber string          `json:"tracking_number,omitempty" db:"tracking_number"`
	Carrier        string          `json:"carrier,omitempty" db:"carrier"`
	CustomerNotes  string          `json:"customer_notes,omitempty" db:"customer_notes"`
	AdminNotes     string          `json:"admin_notes,omitempty" db:"admin_notes"`
	Items          []Item          `json:"items" db:"-"`
	OrderDate      time.Time       `json:"order_date" db:"order_date"`
	PaidAt         *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
	ShippedAt      *time.Time      `json:"shipped_at,omitempty" db:"shipped_at"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty" db:"delivered_at"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// ComputeTotal applies the total_amount = subtotal + tax + shipping - discount law.
func (o *Order) ComputeTotal() {
	o.TotalAmount = o.Subtotal.Add(o.TaxAmount).Add(o.ShippingFee).Sub(o.DiscountAmount).Round(2)
}

func (o *Order) ItemCount() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusProcessing: true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusShipped:   true,
		StatusCancelled: true,
	},
	StatusShipped: {
		StatusDelivered: true,
		StatusCancelled: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

var allowedPaymentTransitions = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentUnpaid: {
		PaymentPaid: true,
	},
	PaymentPaid: {
		PaymentRefunded: true,
	},
	PaymentRefunded: {},
}

// TransitionTo moves the order to next. Re-entering the current status is a
// no-op and reports changed=false. Lifecycle timestamps are written only when
// still unset.
func (o *Order) TransitionTo(next Status, now time.Time) (changed bool, err error) {
	if !next.Valid() {
		return false, ErrUnknownStatus
	}
	if o.Status == next {
		return false, nil
	}
	if !allowedTransitions[o.Status][next] {
		return false, ErrInvalidStatusTransition
	}

	o.Status = next
	switch next {
	case StatusShipped:
		setOnce(&o.ShippedAt, now)
	case StatusDelivered:
		setOnce(&o.DeliveredAt, now)
		if o.PaymentMethod == PaymentCashOnDelivery && o.PaymentStatus == PaymentUnpaid {
			o.PaymentStatus = PaymentPaid
			setOnce(&o.PaidAt, now)
		}
	case StatusCancelled:
		setOnce(&o.CancelledAt, now)
	}
	o.UpdatedAt = now

	return true, nil
}

// MarkPayment moves the payment status independently of fulfilment.
func (o *Order) MarkPayment(next PaymentStatus, now time.Time) (changed bool, err error) {
	if !next.Valid() {
		return false, ErrUnknownPaymentStatus
	}
	if o.PaymentStatus == next {
		return false, nil
	}
	if !allowedPaymentTransitions[o.PaymentStatus][next] {
		return false, ErrInvalidPaymentTransition
	}

	o.PaymentStatus = next
	if next == PaymentPaid {
		setOnce(&o.PaidAt, now)
	}
	o.UpdatedAt = now

	return true, nil
}

func setOnce(field **time.Time, now time.Time) {
	if *field != nil {
		return
	}
	t := now.UTC()
	*field = &t
}
