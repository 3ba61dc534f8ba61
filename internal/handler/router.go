package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/middleware"
)

// SetupRouter configura as rotas HTTP e os middleware da API.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/staff/login", h.Login)

		r.Get("/products", h.Menu)
		r.Post("/orders", h.CreateOrder)
		r.Get("/orders/{id}/pix", h.PixPayload)
		r.Get("/payment-rates", h.PaymentRates)

		r.Post("/push/subscriptions", h.Subscribe)
		r.Delete("/push/subscriptions", h.Unsubscribe)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/orders", h.ListOrders)
			r.Post("/orders/{id}/status", h.AdvanceOrder)
			r.Delete("/orders/{id}", h.DeleteOrder)

			r.Get("/reports/summary", h.Report)
			r.Post("/push/notify", h.Notify)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
