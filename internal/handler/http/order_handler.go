package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/order"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/session"
)

type OrderResponse struct {
	Order   *order.Order    `json:"order"`
	Flashes []session.Flash `json:"flashes"`
}

type OrderHandler struct {
	orders   order.Service
	sessions session.Store
}

func NewOrderHandler(orders order.Service, sessions session.Store) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		sessions: sessions,
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/orders", h.handleList)
		r.Get("/orders/{orderID}", h.handleGet)
	})
}

// orderIDParam reads the order id path parameter. Malformed ids are reported
// as not found.
func orderIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.FromString(chi.URLParam(r, "orderID"))
	if err != nil {
		return uuid.Nil, order.ErrOrderNotFound
	}
	return id, nil
}

func (h *OrderHandler) handleList(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	orders, err := h.orders.ListForCustomer(r.Context(), sess.UserID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", sess.UserID).Msg("handler: failed to list orders")
		respondWithError(w, http.StatusInternalServerError, "Failed to list orders")
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *OrderHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	id, err := orderIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Order not found")
		return
	}

	o, err := h.orders.GetForCustomer(r.Context(), sess.UserID, id)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("handler: failed to get order")
		respondWithError(w, http.StatusInternalServerError, "Failed to get order")
		return
	}

	response := OrderResponse{Order: o, Flashes: sess.PopFlashes()}
	if !saveSession(w, r, h.sessions, sess) {
		return
	}
	respondWithJSON(w, http.StatusOK, response)
}
