// Package handler exposes the HTTP API: offer validation and checkout on the
// public surface, offer and order administration behind API-key auth.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/grocerbay/wholesale-api/internal/domain/customer"
	"github.com/grocerbay/wholesale-api/internal/domain/offer"
	"github.com/grocerbay/wholesale-api/internal/domain/order"
)

// Handler holds the domain dependencies behind the HTTP API. Business logic
// lives in the offer engine and the order service; the handler only decodes,
// delegates, and maps errors to status codes.
type Handler struct {
	engine    *offer.Engine
	offers    offer.Repository
	orders    *order.Service
	customers customer.Repository
	metrics   *Metrics
}

// New constructs a Handler with the required domain dependencies.
func New(
	engine *offer.Engine,
	offers offer.Repository,
	orders *order.Service,
	customers customer.Repository,
	metrics *Metrics,
) *Handler {
	return &Handler{
		engine:    engine,
		offers:    offers,
		orders:    orders,
		customers: customers,
		metrics:   metrics,
	}
}

// NewRouter mounts the API routes. The authn middleware guards the /api/admin
// subtree.
func NewRouter(h *Handler, authn func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/offers/validate", h.ValidateOffer)

		r.Post("/orders", h.CreateOrder)
		r.Get("/orders/{id}", h.GetOrder)

		r.Route("/admin", func(r chi.Router) {
			r.Use(authn)

			r.Route("/offers", func(r chi.Router) {
				r.Get("/", h.ListOffers)
				r.Post("/", h.CreateOffer)
				r.Get("/{id}", h.GetOffer)
				r.Put("/{id}", h.UpdateOffer)
				r.Delete("/{id}", h.DeleteOffer)
			})

			r.Get("/orders", h.ListOrders)
			r.Get("/orders/stats", h.OrderStats)
			r.Put("/orders/{id}/status", h.TransitionOrder)
			r.Delete("/orders/{id}", h.DeleteOrder)
			r.Get("/customers/{id}/orders", h.ListCustomerOrders)
		})
	})

	return r
}
