package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	RecipientPayer  = "payer"
	RecipientBarber = "barber"
)

// BookingNotification is published once per recipient when a booking is confirmed.
// Delivery over SMS or email happens downstream.
type BookingNotification struct {
	EventID     string    `json:"event_id"`
	BookingID   uuid.UUID `json:"booking_id"`
	Recipient   string    `json:"recipient"`
	Contact     Contact   `json:"contact"`
	ServiceID   uuid.UUID `json:"service_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Price       int64     `json:"price"`
	Notes       string    `json:"notes,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NotificationResult is the per-recipient outcome of a confirmation send.
type NotificationResult struct {
	Recipient string `json:"recipient"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// BookingSettlementEvent announces a payment outcome for a booking.
type BookingSettlementEvent struct {
	BookingID       uuid.UUID `json:"booking_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	PaymentStatus   string    `json:"payment_status"`
	Price           int64     `json:"price"`
	BarberPayout    int64     `json:"barber_payout"`
	OccurredAt      time.Time `json:"occurred_at"`
}
