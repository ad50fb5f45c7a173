package app

import "errors"

// Errors surfaced by booking operations. Handlers map them to HTTP statuses.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotFound             = errors.New("not found")
	ErrPayeeNotPaymentReady = errors.New("barber cannot accept payments")
	ErrNotEligible          = errors.New("account is not eligible for direct booking")
	ErrConflict             = errors.New("booking already settled")
	ErrUpstreamFailure      = errors.New("upstream failure")
	ErrForbidden            = errors.New("forbidden")
)
