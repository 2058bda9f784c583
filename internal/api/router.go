/**
 * @description
 * HTTP router setup for the economy-service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/transfa/economy-service/internal/config"
)

// NewRouter creates a new Chi router and registers the economy routes.
func NewRouter(h *Handlers, auth config.AuthConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-API-Key", ActorHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/admin", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(auth.InternalAPIKey))
		r.Post("/reload", h.handleReload)
		r.Post("/save", h.handleSave)
		r.Get("/accounts", h.handleListAccounts)
		r.Post("/accounts/{id}/deposit", h.handleDeposit)
		r.Post("/accounts/{id}/withdraw", h.handleWithdraw)
		r.Get("/charge-requests", h.handleListAllChargeRequests)
	})

	r.Group(func(r chi.Router) {
		r.Use(ActorAuthMiddleware(auth.JWTSecret, auth.AllowHeaderFallback))

		r.Get("/balance", h.handleGetOwnBalance)
		r.Get("/accounts/{id}/balance", h.handleGetBalance)
		r.Post("/pay", h.handlePay)

		r.Route("/charge-requests", func(r chi.Router) {
			r.Post("/", h.handleCreateChargeRequest)
			r.Get("/", h.handleListChargeRequests)
			r.Get("/{id}", h.handleGetChargeRequest)
			r.Post("/{id}/accept", h.handleAcceptChargeRequest)
			r.Post("/{id}/decline", h.handleDeclineChargeRequest)
			r.Post("/{id}/cancel", h.handleCancelChargeRequest)
		})

		r.Route("/pay-menu", func(r chi.Router) {
			r.Post("/", h.handleOpenPayMenu)
			r.Get("/", h.handleGetPayMenu)
			r.Delete("/", h.handleCancelPayMenu)
			r.Post("/target", h.handlePayMenuTarget)
			r.Post("/amount", h.handlePayMenuAmount)
			r.Post("/confirm", h.handlePayMenuConfirm)
		})
	})

	return r
}
