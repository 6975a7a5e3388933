package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/cart"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/pricing"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/session"
)

type CartResponse struct {
	Quote   *pricing.Quote  `json:"cart"`
	Flashes []session.Flash `json:"flashes"`
}

type ProductListResponse struct {
	Products  []catalog.Product `json:"products"`
	CartCount int               `json:"cart_count"`
}

type CartHandler struct {
	carts    cart.Service
	pricing  pricing.Engine
	sessions session.Store
}

func NewCartHandler(carts cart.Service, engine pricing.Engine, sessions session.Store) *CartHandler {
	return &CartHandler{
		carts:    carts,
		pricing:  engine,
		sessions: sessions,
	}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Get("/cart", h.handleView)
	router.Post("/cart/add/{productID:[0-9]+}", h.handleAdd)
	router.Post("/cart/update", h.handleUpdate)
	router.Post("/cart/remove/{productID:[0-9]+}", h.handleRemove)
}

func productIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
}

func (h *CartHandler) handleView(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	quote, err := h.pricing.Quote(r.Context(), sess.Cart)
	if err != nil {
		log.Error().Err(err).Str("session_id", sess.ID).Msg("handler: failed to price cart")
		respondWithError(w, http.StatusInternalServerError, "Failed to load cart")
		return
	}

	response := CartResponse{Quote: quote, Flashes: sess.PopFlashes()}
	if !saveSession(w, r, h.sessions, sess) {
		return
	}
	respondWithJSON(w, http.StatusOK, response)
}

func (h *CartHandler) handleAdd(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	back := safeReferer(r, "/cart")

	productID, err := productIDParam(r)
	if err != nil {
		redirectWithFlash(w, r, h.sessions, sess, session.FlashWarning, "Product is not available.", back)
		return
	}
	if err := r.ParseForm(); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid form")
		return
	}

	product, quantity, err := h.carts.Add(r.Context(), sess.CartContext(), productID, cart.ParseQuantity(r.PostFormValue("quantity")))
	switch {
	case err == nil:
		msg := fmt.Sprintf("%s added to cart (%d in cart).", product.Name, quantity)
		redirectWithFlash(w, r, h.sessions, sess, session.FlashSuccess, msg, back)
	case errors.Is(err, catalog.ErrProductNotFound):
		redirectWithFlash(w, r, h.sessions, sess, session.FlashWarning, "Product is not available.", back)
	case errors.Is(err, cart.ErrOutOfStock):
		redirectWithFlash(w, r, h.sessions, sess, session.FlashWarning, fmt.Sprintf("%s is out of stock.", product.Name), back)
	default:
		log.Error().Err(err).Int64("product_id", productID).Msg("handler: failed to add to cart")
		respondWithError(w, http.StatusInternalServerError, "Failed to update cart")
	}
}

func (h *CartHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid form")
		return
	}

	if err := h.carts.Update(r.Context(), sess.CartContext(), cart.ParseUpdateForm(r.PostForm)); err != nil {
		log.Error().Err(err).Str("session_id", sess.ID).Msg("handler: failed to update cart")
		respondWithError(w, http.StatusInternalServerError, "Failed to update cart")
		return
	}

	redirectWithFlash(w, r, h.sessions, sess, session.FlashSuccess, "Cart updated.", "/cart")
}

func (h *CartHandler) handleRemove(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	productID, err := productIDParam(r)
	if err != nil {
		redirectWithFlash(w, r, h.sessions, sess, "", "", "/cart")
		return
	}

	h.carts.Remove(r.Context(), sess.CartContext(), productID)
	redirectWithFlash(w, r, h.sessions, sess, session.FlashInfo, "Item removed from cart.", "/cart")
}

type ProductHandler struct {
	products catalog.Repository
}

func NewProductHandler(products catalog.Repository) *ProductHandler {
	return &ProductHandler{products: products}
}

func (h *ProductHandler) RegisterRoutes(router chi.Router) {
	router.Get("/products", h.handleList)
}

func (h *ProductHandler) handleList(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.ListActive(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to list products")
		respondWithError(w, http.StatusInternalServerError, "Failed to list products")
		return
	}

	// The listing carries the header cart badge: units in the session cart.
	count := 0
	if sess := session.FromContext(r.Context()); sess != nil {
		count = sess.Cart.Count()
	}

	respondWithJSON(w, http.StatusOK, ProductListResponse{Products: products, CartCount: count})
}
