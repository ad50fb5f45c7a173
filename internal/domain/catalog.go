package domain

import "github.com/google/uuid"

// Service is a catalog entry offered by a barber.
type Service struct {
	ID       uuid.UUID `json:"id"`
	BarberID uuid.UUID `json:"barber_id"`
	Name     string    `json:"name"`
	Price    *int64    `json:"price"`
	IsActive bool      `json:"is_active"`
}

// Addon is an optional extra a barber sells alongside services.
type Addon struct {
	ID       uuid.UUID `json:"id"`
	BarberID uuid.UUID `json:"barber_id"`
	Name     string    `json:"name"`
	Price    int64     `json:"price"`
	IsActive bool      `json:"is_active"`
}

// Barber is the payee side of a booking.
type Barber struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	StripeAccountID *string   `json:"stripe_account_id,omitempty"`
	IsDeveloper     bool      `json:"is_developer"`
}

// Contact is the reachable address of a notification recipient.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}
