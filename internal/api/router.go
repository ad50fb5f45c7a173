/**
 * @description
 * HTTP router setup for the booking service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new Chi router and registers booking routes.
func NewRouter(h *Handler, webhook *WebhookHandler, jwtSecret string, internalKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Booking service is healthy"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/webhooks/stripe", webhook.ServeHTTP)

	r.Route("/internal/reconcile", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))
		r.Post("/run", h.handleRunReconcile)
		r.Post("/payment-intents/{id}", h.handleReplayPaymentIntent)
	})

	r.Group(func(r chi.Router) {
		r.Use(SupabaseAuthMiddleware(jwtSecret))
		r.Post("/bookings/quote", h.handleQuote)
		r.Post("/bookings/checkout", h.handleCheckout)
		r.Post("/bookings/direct", h.handleDirectBooking)
		r.Post("/bookings/confirm", h.handleConfirmBooking)
		r.Get("/bookings/{id}", h.handleGetBooking)
	})

	// Guests have no account; checkout and quotes are rate limited per contact.
	r.Route("/guest/bookings", func(r chi.Router) {
		r.Post("/quote", h.handleQuote)
		r.Post("/checkout", h.handleCheckout)
	})

	return r
}
