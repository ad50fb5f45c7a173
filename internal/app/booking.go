package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cutline/booking-service/internal/domain"
	"github.com/cutline/booking-service/internal/store"
	"github.com/google/uuid"
)

const maxNotesLength = 500

// BookingRequest is a client's selection for a booking attempt.
type BookingRequest struct {
	ServiceID      uuid.UUID    `json:"service_id"`
	AddonIDs       []uuid.UUID  `json:"addon_ids"`
	Payer          domain.Payer `json:"payer"`
	ScheduledAt    time.Time    `json:"scheduled_at"`
	Notes          string       `json:"notes"`
	IdempotencyKey string       `json:"-"`
}

// Quote is a priced selection that has not been committed.
type Quote struct {
	ServiceID uuid.UUID               `json:"service_id"`
	BarberID  uuid.UUID               `json:"barber_id"`
	Breakdown domain.PricingBreakdown `json:"breakdown"`
}

// CheckoutResult is the handle a client needs to confirm payment.
type CheckoutResult struct {
	PaymentIntentID string                  `json:"payment_intent_id"`
	ClientSecret    string                  `json:"client_secret"`
	Breakdown       domain.PricingBreakdown `json:"breakdown"`
}

type bookingDraft struct {
	service   *domain.Service
	barber    *domain.Barber
	breakdown domain.PricingBreakdown
}

// QuoteBooking prices a selection without writing anything.
func (s Service) QuoteBooking(ctx context.Context, req BookingRequest) (*Quote, error) {
	if req.ServiceID == uuid.Nil {
		return nil, fmt.Errorf("%w: service_id is required", ErrInvalidInput)
	}
	draft, err := s.draft(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Quote{ServiceID: draft.service.ID, BarberID: draft.barber.ID, Breakdown: draft.breakdown}, nil
}

// InitiatePayment reserves the booking amount with the processor. No booking
// row is written here; the reconciler creates it once payment succeeds.
func (s Service) InitiatePayment(ctx context.Context, req BookingRequest) (*CheckoutResult, error) {
	if err := validateBookingRequest(req); err != nil {
		return nil, err
	}

	draft, err := s.draft(ctx, req)
	if err != nil {
		return nil, err
	}
	if draft.barber.IsDeveloper {
		return nil, fmt.Errorf("%w: fee-waived barbers take direct bookings", ErrPayeeNotPaymentReady)
	}
	accountID := strings.TrimSpace(deref(draft.barber.StripeAccountID))
	if accountID == "" {
		return nil, fmt.Errorf("%w: no payout account connected", ErrPayeeNotPaymentReady)
	}

	account, err := s.processor.RetrieveAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve account %s: %v", ErrUpstreamFailure, accountID, err)
	}
	if !account.ChargesEnabled {
		return nil, fmt.Errorf("%w: account %s cannot take charges", ErrPayeeNotPaymentReady, accountID)
	}

	intent := domain.PendingBookingIntent{
		ServiceID:   draft.service.ID,
		BarberID:    draft.barber.ID,
		Payer:       req.Payer,
		ScheduledAt: req.ScheduledAt.UTC(),
		Notes:       req.Notes,
		Breakdown:   draft.breakdown,
	}
	metadata := intent.Metadata()
	if !domain.MetadataWithinLimits(metadata) {
		return nil, fmt.Errorf("%w: too many add-ons selected", ErrInvalidInput)
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = "booking-" + selectionDigest(intent)
	}

	reservation, err := s.processor.CreatePaymentIntent(ctx, domain.PaymentIntentRequest{
		Amount:             draft.breakdown.TotalPrice,
		Currency:           s.currency,
		DestinationAccount: accountID,
		ApplicationFee:     draft.breakdown.PlatformShare,
		Description:        fmt.Sprintf("%s with %s", draft.service.Name, draft.barber.Name),
		Metadata:           metadata,
		IdempotencyKey:     key,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create payment intent: %v", ErrUpstreamFailure, err)
	}
	paymentIntentsCreated.Inc()

	s.logger.Info("payment intent created",
		"payment_intent_id", reservation.ID,
		"barber_id", draft.barber.ID,
		"service_id", draft.service.ID,
		"amount", draft.breakdown.TotalPrice,
	)

	return &CheckoutResult{
		PaymentIntentID: reservation.ID,
		ClientSecret:    reservation.ClientSecret,
		Breakdown:       draft.breakdown,
	}, nil
}

// IssueDirectBooking books a fee-waived barber without any payment step.
// The booking is written already settled under a synthetic reference.
func (s Service) IssueDirectBooking(ctx context.Context, req BookingRequest) (*domain.Booking, error) {
	if err := validateBookingRequest(req); err != nil {
		return nil, err
	}

	draft, err := s.draft(ctx, req)
	if err != nil {
		return nil, err
	}
	if !draft.barber.IsDeveloper {
		return nil, ErrNotEligible
	}

	intent := domain.PendingBookingIntent{
		ServiceID:   draft.service.ID,
		BarberID:    draft.barber.ID,
		Payer:       req.Payer,
		ScheduledAt: req.ScheduledAt.UTC(),
		Notes:       req.Notes,
		Breakdown:   draft.breakdown,
	}
	booking, addons := intent.Booking(domain.DirectReferencePrefix+selectionDigest(intent), domain.PaymentStatusSucceeded)

	created, err := s.writeBooking(ctx, booking, addons, "direct")
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, fmt.Errorf("%w: this selection is already booked for %s", ErrConflict, intent.ScheduledAt.UTC().Format(time.RFC3339))
	}
	return booking, nil
}

// GetBooking returns a booking with its add-on line items to its payer or its
// barber.
func (s Service) GetBooking(ctx context.Context, bookingID, userID uuid.UUID) (*domain.Booking, error) {
	booking, err := s.repo.FindBookingByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, store.ErrBookingNotFound) {
			return nil, fmt.Errorf("%w: booking %s", ErrNotFound, bookingID)
		}
		return nil, fmt.Errorf("%w: load booking: %v", ErrUpstreamFailure, err)
	}

	if booking.ClientID == nil || *booking.ClientID != userID {
		barber, err := s.repo.FindBarberByUserID(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrBarberNotFound) {
				return nil, ErrForbidden
			}
			return nil, fmt.Errorf("%w: load barber: %v", ErrUpstreamFailure, err)
		}
		if barber.ID != booking.BarberID {
			return nil, ErrForbidden
		}
	}

	booking.Addons, err = s.repo.ListBookingAddons(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: load booking add-ons: %v", ErrUpstreamFailure, err)
	}
	return booking, nil
}

// writeBooking persists a booking with its add-ons and, when the row is new,
// sends confirmations. created is false when the payment reference was
// already booked.
func (s Service) writeBooking(ctx context.Context, booking *domain.Booking, addons []domain.BookingAddon, path string) (bool, error) {
	created, err := s.repo.CreateBookingWithAddons(ctx, booking, addons)
	if err != nil {
		return false, fmt.Errorf("%w: write booking: %v", ErrUpstreamFailure, err)
	}
	if !created {
		return false, nil
	}

	bookingsCreated.WithLabelValues(path).Inc()
	s.logger.Info("booking created",
		"booking_id", booking.ID,
		"payment_intent_id", booking.PaymentIntentID,
		"path", path,
	)

	s.notifier.SendBookingConfirmation(ctx, booking)
	return true, nil
}

func (s Service) draft(ctx context.Context, req BookingRequest) (*bookingDraft, error) {
	svc, err := s.repo.FindServiceByID(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, store.ErrServiceNotFound) {
			return nil, fmt.Errorf("%w: service %s", ErrNotFound, req.ServiceID)
		}
		return nil, fmt.Errorf("%w: load service: %v", ErrUpstreamFailure, err)
	}
	if !svc.IsActive {
		return nil, fmt.Errorf("%w: service %s is not bookable", ErrNotFound, req.ServiceID)
	}

	barber, err := s.repo.FindBarberByID(ctx, svc.BarberID)
	if err != nil {
		if errors.Is(err, store.ErrBarberNotFound) {
			return nil, fmt.Errorf("%w: barber %s", ErrNotFound, svc.BarberID)
		}
		return nil, fmt.Errorf("%w: load barber: %v", ErrUpstreamFailure, err)
	}

	var candidates []domain.Addon
	if len(req.AddonIDs) > 0 {
		candidates, err = s.repo.ListAddonsByIDs(ctx, req.AddonIDs)
		if err != nil {
			return nil, fmt.Errorf("%w: load add-ons: %v", ErrUpstreamFailure, err)
		}
	}

	tariff := domain.TariffStandard
	if barber.IsDeveloper {
		tariff = domain.TariffFeeWaived
	}

	breakdown, err := s.pricing.Calculate(PricingInput{
		ServicePrice:     svc.Price,
		BarberID:         barber.ID,
		Tariff:           tariff,
		SelectedAddonIDs: req.AddonIDs,
		Candidates:       candidates,
	})
	if err != nil {
		return nil, err
	}

	return &bookingDraft{service: svc, barber: barber, breakdown: breakdown}, nil
}

func validateBookingRequest(req BookingRequest) error {
	if req.ServiceID == uuid.Nil {
		return fmt.Errorf("%w: service_id is required", ErrInvalidInput)
	}
	if req.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled_at is required", ErrInvalidInput)
	}
	if !req.Payer.Valid() {
		return fmt.Errorf("%w: a client or guest name with email or phone is required", ErrInvalidInput)
	}
	if len(req.Notes) > maxNotesLength {
		return fmt.Errorf("%w: notes exceed %d characters", ErrInvalidInput, maxNotesLength)
	}
	return nil
}

// selectionDigest identifies one priced selection for a payer and slot. Retries
// of the same selection share it; a different add-on set, price or note gives a
// different digest, and with it a different processor idempotency key.
func selectionDigest(intent domain.PendingBookingIntent) string {
	addonIDs := make([]string, 0, len(intent.Breakdown.Addons))
	for _, addon := range intent.Breakdown.Addons {
		addonIDs = append(addonIDs, addon.ID.String())
	}
	sort.Strings(addonIDs)

	sum := sha256.Sum256([]byte(strings.Join([]string{
		intent.Payer.Key(),
		intent.BarberID.String(),
		intent.ServiceID.String(),
		intent.ScheduledAt.UTC().Format(time.RFC3339Nano),
		strings.Join(addonIDs, ","),
		strconv.FormatInt(intent.Breakdown.TotalPrice, 10),
		intent.Notes,
	}, "|")))
	return hex.EncodeToString(sum[:])
}
