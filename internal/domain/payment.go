package domain

import "time"

const (
	PaymentEventSucceeded = "payment_intent.succeeded"
	PaymentEventFailed    = "payment_intent.payment_failed"

	ReservationStatusSucceeded = "succeeded"
)

// PaymentIntentRequest asks the processor to reserve funds for a booking.
type PaymentIntentRequest struct {
	Amount             int64
	Currency           string
	DestinationAccount string
	ApplicationFee     int64
	Description        string
	Metadata           map[string]string
	IdempotencyKey     string
}

// PaymentReservation is the processor-owned record of a payment intent.
type PaymentReservation struct {
	ID             string            `json:"id"`
	ClientSecret   string            `json:"client_secret,omitempty"`
	Status         string            `json:"status"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	FailureMessage string            `json:"failure_message,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// ProcessorAccount is the connected payout account of a barber.
type ProcessorAccount struct {
	ID             string `json:"id"`
	ChargesEnabled bool   `json:"charges_enabled"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

// PaymentEvent is a verified payment outcome pushed by the processor.
type PaymentEvent struct {
	ID          string             `json:"id"`
	Type        string             `json:"type"`
	Reservation PaymentReservation `json:"reservation"`
}
