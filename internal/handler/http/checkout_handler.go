package http

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/checkout"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/customer"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/order"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/pricing"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/session"
)

type CheckoutForm struct {
	ShippingName       string `form:"shipping_name" validate:"required,max=100"`
	ShippingAddress    string `form:"shipping_address" validate:"required,max=500"`
	ShippingCity       string `form:"shipping_city" validate:"required,max=50"`
	ShippingState      string `form:"shipping_state" validate:"max=50"`
	ShippingPostalCode string `form:"shipping_postal_code" validate:"max=10"`
	ShippingPhone      string `form:"shipping_phone" validate:"required,max=20"`
	PaymentMethod      string `form:"payment_method" validate:"required,oneof=cod bank_transfer"`
	Notes              string `form:"notes" validate:"max=1000"`
}

func checkoutFormFromRequest(r *http.Request) CheckoutForm {
	field := func(name string) string { return strings.TrimSpace(r.PostFormValue(name)) }
	return CheckoutForm{
		ShippingName:       field("shipping_name"),
		ShippingAddress:    field("shipping_address"),
		ShippingCity:       field("shipping_city"),
		ShippingState:      field("shipping_state"),
		ShippingPostalCode: field("shipping_postal_code"),
		ShippingPhone:      field("shipping_phone"),
		PaymentMethod:      field("payment_method"),
		Notes:              field("notes"),
	}
}

func (f CheckoutForm) toRequest() checkout.Request {
	return checkout.Request{
		Shipping: order.ShippingDetails{
			Name:       f.ShippingName,
			Address:    f.ShippingAddress,
			City:       f.ShippingCity,
			State:      f.ShippingState,
			PostalCode: f.ShippingPostalCode,
			Phone:      f.ShippingPhone,
		},
		PaymentMethod: order.PaymentMethod(f.PaymentMethod),
		Notes:         f.Notes,
	}
}

type PaymentMethodOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var paymentMethodOptions = []PaymentMethodOption{
	{Value: string(order.PaymentCashOnDelivery), Label: "Cash on Delivery"},
	{Value: string(order.PaymentBankTransfer), Label: "Bank Transfer"},
}

type CheckoutPageResponse struct {
	Quote          *pricing.Quote        `json:"cart"`
	Shipping       order.ShippingDetails `json:"shipping"`
	PaymentMethods []PaymentMethodOption `json:"payment_methods"`
	Flashes        []session.Flash       `json:"flashes"`
}

type CheckoutErrorResponse struct {
	ValidationErrorResponse
	Quote *pricing.Quote `json:"cart"`
}

type CheckoutHandler struct {
	checkout  checkout.Service
	customers customer.Repository
	sessions  session.Store
	validate  *validator.Validate
}

func NewCheckoutHandler(checkoutService checkout.Service, customers customer.Repository, sessions session.Store) *CheckoutHandler {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &CheckoutHandler{
		checkout:  checkoutService,
		customers: customers,
		sessions:  sessions,
		validate:  validate,
	}
}

func (h *CheckoutHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/checkout", h.handleView)
		r.Post("/checkout", h.handlePlaceOrder)
	})
}

func (h *CheckoutHandler) handleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	quote, err := h.checkout.Quote(ctx, sess.CartContext())
	if err != nil {
		log.Error().Err(err).Str("session_id", sess.ID).Msg("handler: failed to price checkout")
		respondWithError(w, http.StatusInternalServerError, "Failed to load checkout")
		return
	}
	if quote.Empty() {
		redirectWithFlash(w, r, h.sessions, sess, session.FlashWarning, "Your cart is empty.", "/products")
		return
	}

	var shipping order.ShippingDetails
	profile, err := h.customers.GetByID(ctx, sess.UserID)
	switch {
	case err == nil:
		shipping = profile.ShippingDefaults()
	case errors.Is(err, customer.ErrCustomerNotFound):
	default:
		log.Warn().Err(err).Stringer("user_id", sess.UserID).Msg("handler: failed to load customer profile for checkout")
	}

	response := CheckoutPageResponse{
		Quote:          quote,
		Shipping:       shipping,
		PaymentMethods: paymentMethodOptions,
		Flashes:        sess.PopFlashes(),
	}
	if !saveSession(w, r, h.sessions, sess) {
		return
	}
	respondWithJSON(w, http.StatusOK, response)
}

func (h *CheckoutHandler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid form")
		return
	}

	form := checkoutFormFromRequest(r)
	if err := h.validate.Struct(form); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			log.Error().Err(err).Msg("handler: unexpected validation error")
			respondWithError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		quote, qerr := h.checkout.Quote(ctx, sess.CartContext())
		if qerr != nil {
			log.Warn().Err(qerr).Str("session_id", sess.ID).Msg("handler: failed to re-price cart for checkout form")
		}
		respondWithJSON(w, http.StatusUnprocessableEntity, CheckoutErrorResponse{
			ValidationErrorResponse: ValidationErrorResponse{
				Error:   "Please correct the highlighted fields",
				Details: formatValidationErrors(validationErrors),
			},
			Quote: quote,
		})
		return
	}

	placed, err := h.checkout.PlaceOrder(ctx, sess.CartContext(), form.toRequest())
	switch {
	case err == nil:
		sess.AddFlash(session.FlashSuccess, fmt.Sprintf("Order %s placed successfully.", placed.OrderNumber))
		if err := h.sessions.Save(ctx, sess); err != nil {
			// The order is committed. Resubmitting the stale cart resolves to
			// the same order, so the customer still goes to it.
			log.Error().Err(err).
				Str("session_id", sess.ID).
				Str("order_number", placed.OrderNumber).
				Msg("handler: order placed but session was not saved")
		}
		http.Redirect(w, r, "/orders/"+placed.ID.String(), http.StatusSeeOther)
	case errors.Is(err, checkout.ErrEmptyCart):
		redirectWithFlash(w, r, h.sessions, sess, session.FlashWarning, "Your cart is empty.", "/products")
	case errors.Is(err, order.ErrInsufficientStock):
		redirectWithFlash(w, r, h.sessions, sess, session.FlashDanger, "Some items no longer have enough stock. Please review your cart.", "/cart")
	case errors.Is(err, catalog.ErrProductNotFound):
		redirectWithFlash(w, r, h.sessions, sess, session.FlashDanger, "Some items are no longer available. Please review your cart.", "/cart")
	default:
		log.Error().Err(err).Str("session_id", sess.ID).Msg("handler: failed to place order")
		redirectWithFlash(w, r, h.sessions, sess, session.FlashDanger, "We could not place your order. Please try again.", "/cart")
	}
}
