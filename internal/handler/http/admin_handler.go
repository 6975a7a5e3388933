package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/order"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/report"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/session"
)

type AdminHandler struct {
	orders   order.Service
	reports  report.Repository
	sessions session.Store
}

func NewAdminHandler(orders order.Service, reports report.Repository, sessions session.Store) *AdminHandler {
	return &AdminHandler{
		orders:   orders,
		reports:  reports,
		sessions: sessions,
	}
}

func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Route("/admin", func(r chi.Router) {
		r.Use(requireAdmin)
		r.Get("/stats", h.handleStats)
		r.Get("/orders", h.handleListOrders)
		r.Get("/orders/{orderID}", h.handleGetOrder)
		r.Post("/orders/{orderID}/status", h.handleUpdateStatus)
		r.Post("/orders/{orderID}/payment", h.handleUpdatePayment)
	})
}

func (h *AdminHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reports.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to load order stats")
		respondWithError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := report.Filter{Status: strings.TrimSpace(query.Get("status"))}
	if filter.Status != "" && !order.Status(filter.Status).Valid() {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unknown status %q", filter.Status))
		return
	}
	// Bad paging values fall back to defaults.
	filter.Page, _ = strconv.Atoi(query.Get("page"))
	filter.PerPage, _ = strconv.Atoi(query.Get("per_page"))

	page, err := h.reports.ListOrders(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Str("status", filter.Status).Msg("handler: failed to list orders for admin")
		respondWithError(w, http.StatusInternalServerError, "Failed to list orders")
		return
	}
	respondWithJSON(w, http.StatusOK, page)
}

func (h *AdminHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	id, err := orderIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Order not found")
		return
	}

	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("handler: failed to get order for admin")
		respondWithError(w, http.StatusInternalServerError, "Failed to get order")
		return
	}

	response := OrderResponse{Order: o, Flashes: sess.PopFlashes()}
	if !saveSession(w, r, h.sessions, sess) {
		return
	}
	respondWithJSON(w, http.StatusOK, response)
}

func (h *AdminHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	id, err := orderIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Order not found")
		return
	}
	if err := r.ParseForm(); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid form")
		return
	}

	update := order.StatusUpdate{
		Status:         order.Status(strings.TrimSpace(r.PostFormValue("status"))),
		TrackingNumber: strings.TrimSpace(r.PostFormValue("tracking_number")),
		Carrier:        strings.TrimSpace(r.PostFormValue("carrier")),
		AdminNote:      strings.TrimSpace(r.PostFormValue("admin_notes")),
	}
	back := "/admin/orders/" + id.String()

	o, err := h.orders.UpdateStatus(r.Context(), id, update)
	switch {
	case err == nil:
		msg := fmt.Sprintf("Order %s is now %s.", o.OrderNumber, o.Status)
		if update.Status == "" {
			msg = fmt.Sprintf("Order %s updated.", o.OrderNumber)
		}
		redirectWithFlash(w, r, h.sessions, sess, session.FlashSuccess, msg, back)
	case errors.Is(err, order.ErrOrderNotFound):
		respondWithError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, order.ErrInvalidStatusTransition), errors.Is(err, order.ErrUnknownStatus):
		msg := fmt.Sprintf("Cannot change order status to %q.", update.Status)
		redirectWithFlash(w, r, h.sessions, sess, session.FlashDanger, msg, back)
	default:
		log.Error().Err(err).Stringer("order_id", id).Msg("handler: failed to update order status")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to update order status")
	}
}

func (h *AdminHandler) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	id, err := orderIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Order not found")
		return
	}
	if err := r.ParseForm(); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid form")
		return
	}

	next := order.PaymentStatus(strings.TrimSpace(r.PostFormValue("payment_status")))
	back := "/admin/orders/" + id.String()

	o, err := h.orders.UpdatePaymentStatus(r.Context(), id, next)
	switch {
	case err == nil:
		msg := fmt.Sprintf("Payment for order %s is now %s.", o.OrderNumber, o.PaymentStatus)
		redirectWithFlash(w, r, h.sessions, sess, session.FlashSuccess, msg, back)
	case errors.Is(err, order.ErrOrderNotFound):
		respondWithError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, order.ErrInvalidPaymentTransition), errors.Is(err, order.ErrUnknownPaymentStatus):
		msg := fmt.Sprintf("Cannot change payment status to %q.", next)
		redirectWithFlash(w, r, h.sessions, sess, session.FlashDanger, msg, back)
	default:
		log.Error().Err(err).Stringer("order_id", id).Msg("handler: failed to update payment status")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to update payment status")
	}
}
