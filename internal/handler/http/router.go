package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/cart"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/checkout"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/customer"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/order"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/pricing"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/report"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/session"
)

// Deps holds everything the HTTP layer talks to.
type Deps struct {
	Products  catalog.Repository
	Customers customer.Repository
	Reports   report.Repository
	Sessions  session.Store
	Carts     cart.Service
	Pricing   pricing.Engine
	Checkout  checkout.Service
	Orders    order.Service
	Cookie    session.CookieOptions
}

func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(session.Middleware(deps.Sessions, deps.Cookie))
		r.Use(bindIdentity(deps.Sessions, deps.Customers, deps.Carts))

		NewProductHandler(deps.Products).RegisterRoutes(r)
		NewCartHandler(deps.Carts, deps.Pricing, deps.Sessions).RegisterRoutes(r)
		NewCheckoutHandler(deps.Checkout, deps.Customers, deps.Sessions).RegisterRoutes(r)
		NewOrderHandler(deps.Orders, deps.Sessions).RegisterRoutes(r)
		NewAdminHandler(deps.Orders, deps.Reports, deps.Sessions).RegisterRoutes(r)
	})

	return r
}
