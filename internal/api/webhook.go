package api

import (
	"context"
	"io"
	"log"
	"net/http"

	"github.com/cutline/booking-service/internal/domain"
)

const maxWebhookBody = 64 << 10

// EventParser verifies and decodes processor webhook payloads.
type EventParser interface {
	ParseEvent(payload []byte, signature string) (*domain.PaymentEvent, error)
}

// PaymentEventHandler applies a verified payment outcome.
type PaymentEventHandler interface {
	HandlePaymentEvent(ctx context.Context, event domain.PaymentEvent) error
}

// WebhookHandler receives payment events pushed by Stripe.
type WebhookHandler struct {
	parser     EventParser
	reconciler PaymentEventHandler
}

func NewWebhookHandler(parser EventParser, reconciler PaymentEventHandler) *WebhookHandler {
	return &WebhookHandler{parser: parser, reconciler: reconciler}
}

// ServeHTTP answers 2xx once an event is applied or deliberately dropped and
// 5xx when it should be delivered again.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		log.Printf("level=warn component=webhook msg=\"cannot read body\" err=%v", err)
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}

	event, err := h.parser.ParseEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		log.Printf("level=warn component=webhook msg=\"rejected event\" err=%v", err)
		http.Error(w, "Invalid event", http.StatusBadRequest)
		return
	}

	if err := h.reconciler.HandlePaymentEvent(r.Context(), *event); err != nil {
		log.Printf("level=error component=webhook msg=\"reconciliation failed; awaiting redelivery\" event_id=%s type=%s err=%v", event.ID, event.Type, err)
		http.Error(w, "Reconciliation failed", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}
