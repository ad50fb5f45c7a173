/**
 * @description
 * HTTP handlers for booking creation and reconciliation.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cutline/booking-service/internal/app"
	"github.com/cutline/booking-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// BookingService is the part of app.Service the handlers use.
type BookingService interface {
	QuoteBooking(ctx context.Context, req app.BookingRequest) (*app.Quote, error)
	InitiatePayment(ctx context.Context, req app.BookingRequest) (*app.CheckoutResult, error)
	IssueDirectBooking(ctx context.Context, req app.BookingRequest) (*domain.Booking, error)
	ConfirmBooking(ctx context.Context, match domain.IntentMatch) (*domain.Booking, error)
	GetBooking(ctx context.Context, bookingID, userID uuid.UUID) (*domain.Booking, error)
	ReconcileRecent(ctx context.Context, window time.Duration, match *domain.IntentMatch) (*app.ReconcileResult, error)
	ReplayPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Booking, string, error)
}

// RateLimiter decides whether a payer may start another booking attempt.
type RateLimiter interface {
	Allow(ctx context.Context, payer domain.Payer) (app.BookingAttemptDecision, error)
}

// Handler holds the application service that handlers will interact with.
type Handler struct {
	service BookingService
	limiter RateLimiter
}

// NewHandler creates a new Handler. A nil limiter disables rate limiting.
func NewHandler(service BookingService, limiter RateLimiter) *Handler {
	return &Handler{service: service, limiter: limiter}
}

type guestContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type bookingRequestBody struct {
	ServiceID   uuid.UUID     `json:"service_id"`
	AddonIDs    []uuid.UUID   `json:"addon_ids"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	Notes       string        `json:"notes"`
	Guest       *guestContact `json:"guest,omitempty"`
}

type confirmRequestBody struct {
	ServiceID   uuid.UUID `json:"service_id"`
	BarberID    uuid.UUID `json:"barber_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (h *Handler) decodeBookingRequest(w http.ResponseWriter, r *http.Request) (app.BookingRequest, bool) {
	var body bookingRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return app.BookingRequest{}, false
	}

	req := app.BookingRequest{
		ServiceID:      body.ServiceID,
		AddonIDs:       body.AddonIDs,
		ScheduledAt:    body.ScheduledAt,
		Notes:          strings.TrimSpace(body.Notes),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if userID, ok := UserFromContext(r.Context()); ok {
		req.Payer = domain.Payer{ClientID: &userID}
	} else if body.Guest != nil {
		req.Payer = domain.Payer{
			GuestName:  strings.TrimSpace(body.Guest.Name),
			GuestEmail: strings.ToLower(strings.TrimSpace(body.Guest.Email)),
			GuestPhone: strings.TrimSpace(body.Guest.Phone),
		}
	}
	return req, true
}

func (h *Handler) allowBookingAttempt(w http.ResponseWriter, r *http.Request, payer domain.Payer) bool {
	if h.limiter == nil {
		return true
	}

	decision, err := h.limiter.Allow(r.Context(), payer)
	if err != nil {
		log.Printf("level=warn component=api msg=\"rate limiter unavailable; allowing request\" err=%v", err)
		return true
	}
	if !decision.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds()))
		http.Error(w, "Too many booking attempts", http.StatusTooManyRequests)
		return false
	}
	return true
}

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBookingRequest(w, r)
	if !ok {
		return
	}

	quote, err := h.service.QuoteBooking(r.Context(), req)
	if err != nil {
		respondWithError(w, "quote booking", err)
		return
	}
	respondWithJSON(w, http.StatusOK, quote)
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBookingRequest(w, r)
	if !ok {
		return
	}
	if !h.allowBookingAttempt(w, r, req.Payer) {
		return
	}

	result, err := h.service.InitiatePayment(r.Context(), req)
	if err != nil {
		respondWithError(w, "initiate payment", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleDirectBooking(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBookingRequest(w, r)
	if !ok {
		return
	}
	if !h.allowBookingAttempt(w, r, req.Payer) {
		return
	}

	booking, err := h.service.IssueDirectBooking(r.Context(), req)
	if err != nil {
		respondWithError(w, "issue direct booking", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, booking)
}

func (h *Handler) handleConfirmBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var body confirmRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.ServiceID == uuid.Nil || body.BarberID == uuid.Nil {
		http.Error(w, "service_id and barber_id are required", http.StatusBadRequest)
		return
	}

	booking, err := h.service.ConfirmBooking(r.Context(), domain.IntentMatch{
		ClientID:    &userID,
		ServiceID:   body.ServiceID,
		BarberID:    body.BarberID,
		ScheduledAt: body.ScheduledAt,
	})
	if err != nil {
		respondWithError(w, "confirm booking", err)
		return
	}
	respondWithJSON(w, http.StatusOK, booking)
}

func (h *Handler) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	bookingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid booking id", http.StatusBadRequest)
		return
	}

	booking, err := h.service.GetBooking(r.Context(), bookingID, userID)
	if err != nil {
		respondWithError(w, "get booking", err)
		return
	}
	respondWithJSON(w, http.StatusOK, booking)
}

func (h *Handler) handleRunReconcile(w http.ResponseWriter, r *http.Request) {
	var window time.Duration
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid window", http.StatusBadRequest)
			return
		}
		window = parsed
	}

	result, err := h.service.ReconcileRecent(r.Context(), window, nil)
	if err != nil {
		respondWithError(w, "run reconcile", err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleReplayPaymentIntent(w http.ResponseWriter, r *http.Request) {
	paymentIntentID := chi.URLParam(r, "id")
	booking, outcome, err := h.service.ReplayPaymentIntent(r.Context(), paymentIntentID)
	if err != nil {
		respondWithError(w, "replay payment intent", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"outcome": outcome,
		"booking": booking,
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrForbidden), errors.Is(err, app.ErrNotEligible):
		return http.StatusForbidden
	case errors.Is(err, app.ErrPayeeNotPaymentReady), errors.Is(err, app.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, app.ErrUpstreamFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondWithError(w http.ResponseWriter, op string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("level=error component=api msg=\"%s failed\" err=%v", op, err)
		respondWithJSON(w, status, map[string]string{"error": "upstream service unavailable"})
		return
	}
	respondWithJSON(w, status, map[string]string{"error": err.Error()})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
