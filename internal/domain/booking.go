/**
 * @description
 * Domain models for bookings and their add-on line items.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusCompleted = "completed"
	BookingStatusCancelled = "cancelled"

	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// DirectReferencePrefix marks payment references minted for fee-waived bookings
// that never touched the payment processor. The rest of the reference is the
// digest of the booked selection.
const DirectReferencePrefix = "direct_"

// Booking is one scheduled service instance between a payer and a barber.
type Booking struct {
	ID              uuid.UUID  `json:"id"`
	ServiceID       uuid.UUID  `json:"service_id"`
	BarberID        uuid.UUID  `json:"barber_id"`
	ClientID        *uuid.UUID `json:"client_id,omitempty"`
	GuestName       *string    `json:"guest_name,omitempty"`
	GuestEmail      *string    `json:"guest_email,omitempty"`
	GuestPhone      *string    `json:"guest_phone,omitempty"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	Notes           *string    `json:"notes,omitempty"`
	Status          string     `json:"status"`
	PaymentStatus   string     `json:"payment_status"`
	Price           int64      `json:"price"`
	AddonTotal      int64      `json:"addon_total"`
	PlatformFee     int64      `json:"platform_fee"`
	BarberPayout    int64      `json:"barber_payout"`
	PaymentIntentID string     `json:"payment_intent_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Addons []BookingAddon `json:"addons,omitempty"`
}

// BookingAddon captures an add-on price as it was when the booking was made.
type BookingAddon struct {
	BookingID uuid.UUID `json:"booking_id"`
	AddonID   uuid.UUID `json:"addon_id"`
	Price     int64     `json:"price"`
}

// Payer identifies who pays for a booking: a signed-in client or a guest contact.
type Payer struct {
	ClientID   *uuid.UUID `json:"client_id,omitempty"`
	GuestName  string     `json:"guest_name,omitempty"`
	GuestEmail string     `json:"guest_email,omitempty"`
	GuestPhone string     `json:"guest_phone,omitempty"`
}

// IsGuest reports whether the payer is a guest contact rather than a client account.
func (p Payer) IsGuest() bool {
	return p.ClientID == nil
}

// Valid reports whether the payer can be contacted about the booking.
func (p Payer) Valid() bool {
	if p.ClientID != nil {
		return *p.ClientID != uuid.Nil
	}
	return p.GuestName != "" && (p.GuestEmail != "" || p.GuestPhone != "")
}

// Key is a stable identifier for the payer used in idempotency keys and rate limits.
func (p Payer) Key() string {
	if p.ClientID != nil {
		return p.ClientID.String()
	}
	if p.GuestEmail != "" {
		return "guest:" + p.GuestEmail
	}
	return "guest:" + p.GuestPhone
}

// BookingLifecycleEvent is published by booking management when a booking
// is completed or cancelled.
type BookingLifecycleEvent struct {
	EventID    string    `json:"event_id"`
	BookingID  uuid.UUID `json:"booking_id"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
