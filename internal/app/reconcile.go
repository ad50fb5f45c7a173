package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cutline/booking-service/internal/domain"
	"github.com/cutline/booking-service/internal/store"
)

const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
)

const (
	sourceWebhook = "webhook"
	sourcePoll    = "poll"
	sourceReplay  = "replay"
)

// ReconcileResult summarizes one polling sweep.
type ReconcileResult struct {
	Scanned   int               `json:"scanned"`
	Created   int               `json:"created"`
	Updated   int               `json:"updated"`
	Duplicate int               `json:"duplicate"`
	Skipped   int               `json:"skipped"`
	Failed    int               `json:"failed"`
	Bookings  []*domain.Booking `json:"bookings,omitempty"`
}

// HandlePaymentEvent applies a processor-pushed payment outcome. Events whose
// metadata cannot be resolved are logged and dropped; any other error is
// returned so the processor delivers the event again.
func (s Service) HandlePaymentEvent(ctx context.Context, event domain.PaymentEvent) error {
	var (
		outcome string
		err     error
	)
	switch event.Type {
	case domain.PaymentEventSucceeded:
		_, outcome, err = s.settleSuccess(ctx, event.Reservation, sourceWebhook)
	case domain.PaymentEventFailed:
		outcome, err = s.settleFailure(ctx, event.Reservation)
	default:
		s.logger.Debug("ignoring payment event", "event_id", event.ID, "type", event.Type)
		return nil
	}

	if errors.Is(err, ErrInvalidInput) {
		settlementOutcomes.WithLabelValues(sourceWebhook, event.Type, OutcomeRejected).Inc()
		s.logger.Error("payment event rejected",
			"event_id", event.ID,
			"payment_intent_id", event.Reservation.ID,
			"error", err,
		)
		return nil
	}
	if err != nil {
		return err
	}

	settlementOutcomes.WithLabelValues(sourceWebhook, event.Type, outcome).Inc()
	if outcome == OutcomeIgnored {
		s.logger.Debug("payment event needs no booking change",
			"event_id", event.ID,
			"type", event.Type,
			"payment_intent_id", event.Reservation.ID,
		)
		return nil
	}
	s.logger.Info("payment event reconciled",
		"event_id", event.ID,
		"type", event.Type,
		"payment_intent_id", event.Reservation.ID,
		"outcome", outcome,
	)
	return nil
}

// ReconcileRecent polls the processor for reservations created within window
// and settles every succeeded one that carries booking metadata. With a match,
// only reservations for that tuple are settled. This is the fallback for lost
// webhook deliveries.
func (s Service) ReconcileRecent(ctx context.Context, window time.Duration, match *domain.IntentMatch) (*ReconcileResult, error) {
	if window <= 0 {
		window = s.window
	}
	since := s.now().Add(-window)

	reservations, err := s.processor.ListPaymentIntentsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("%w: list payment intents: %v", ErrUpstreamFailure, err)
	}

	result := &ReconcileResult{}
	for _, reservation := range reservations {
		result.Scanned++
		if reservation.Status != domain.ReservationStatusSucceeded || !domain.IsBookingIntent(reservation.Metadata) {
			result.Skipped++
			continue
		}
		if match != nil {
			intent, err := domain.ParsePendingBookingIntent(reservation.Metadata)
			if err != nil || !intent.Matches(*match) {
				result.Skipped++
				continue
			}
		}

		booking, outcome, err := s.settleSuccess(ctx, reservation, sourcePoll)
		if err != nil {
			result.Failed++
			s.logger.Error("poll reconciliation failed", "payment_intent_id", reservation.ID, "error", err)
			continue
		}
		settlementOutcomes.WithLabelValues(sourcePoll, domain.PaymentEventSucceeded, outcome).Inc()

		switch outcome {
		case OutcomeCreated:
			result.Created++
		case OutcomeUpdated:
			result.Updated++
		case OutcomeIgnored:
			result.Skipped++
		default:
			result.Duplicate++
		}
		if match != nil && booking != nil {
			result.Bookings = append(result.Bookings, booking)
		}
	}

	return result, nil
}

// ConfirmBooking settles and returns the booking for a checkout the caller
// just completed, or ErrNotFound if no succeeded reservation matches yet.
func (s Service) ConfirmBooking(ctx context.Context, match domain.IntentMatch) (*domain.Booking, error) {
	result, err := s.ReconcileRecent(ctx, s.window, &match)
	if err != nil {
		return nil, err
	}
	if len(result.Bookings) == 0 {
		return nil, fmt.Errorf("%w: no settled payment for this booking yet", ErrNotFound)
	}
	return result.Bookings[0], nil
}

// ReplayPaymentIntent settles one reservation by id, regardless of age.
func (s Service) ReplayPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Booking, string, error) {
	reservation, err := s.processor.RetrievePaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: retrieve payment intent: %w", ErrUpstreamFailure, err)
	}
	if reservation.Status != domain.ReservationStatusSucceeded {
		return nil, OutcomeIgnored, fmt.Errorf("%w: payment intent %s is %s", ErrInvalidInput, reservation.ID, reservation.Status)
	}

	booking, outcome, err := s.settleSuccess(ctx, *reservation, sourceReplay)
	if err != nil {
		return nil, "", err
	}
	settlementOutcomes.WithLabelValues(sourceReplay, domain.PaymentEventSucceeded, outcome).Inc()
	return booking, outcome, nil
}

func (s Service) settleSuccess(ctx context.Context, reservation domain.PaymentReservation, source string) (*domain.Booking, string, error) {
	existing, err := s.repo.FindBookingByPaymentIntentID(ctx, reservation.ID)
	if err == nil {
		updated, err := s.repo.MarkBookingPaymentSucceeded(ctx, existing.ID)
		if err != nil {
			return nil, "", fmt.Errorf("%w: mark booking paid: %v", ErrUpstreamFailure, err)
		}
		if !updated {
			return existing, OutcomeDuplicate, nil
		}
		existing.PaymentStatus = domain.PaymentStatusSucceeded
		s.publishSettlement(ctx, routingKeyBookingSettled, existing)
		return existing, OutcomeUpdated, nil
	}
	if !errors.Is(err, store.ErrBookingNotFound) {
		return nil, "", fmt.Errorf("%w: lookup booking: %v", ErrUpstreamFailure, err)
	}
	if !domain.IsBookingIntent(reservation.Metadata) {
		return nil, OutcomeIgnored, nil
	}

	intent, err := domain.ParsePendingBookingIntent(reservation.Metadata)
	if err != nil {
		return nil, "", fmt.Errorf("%w: payment intent %s: %v", ErrInvalidInput, reservation.ID, err)
	}
	if reservation.Amount != 0 && reservation.Amount != intent.Breakdown.TotalPrice {
		return nil, "", fmt.Errorf("%w: payment intent %s charged %d, booking priced %d",
			ErrInvalidInput, reservation.ID, reservation.Amount, intent.Breakdown.TotalPrice)
	}

	booking, addons := intent.Booking(reservation.ID, domain.PaymentStatusSucceeded)
	created, err := s.writeBooking(ctx, booking, addons, source)
	if err != nil {
		return nil, "", err
	}
	if !created {
		winner, err := s.repo.FindBookingByPaymentIntentID(ctx, reservation.ID)
		if err != nil {
			return nil, "", fmt.Errorf("%w: reload booking: %v", ErrUpstreamFailure, err)
		}
		return winner, OutcomeDuplicate, nil
	}

	s.publishSettlement(ctx, routingKeyBookingSettled, booking)
	return booking, OutcomeCreated, nil
}

func (s Service) settleFailure(ctx context.Context, reservation domain.PaymentReservation) (string, error) {
	existing, err := s.repo.FindBookingByPaymentIntentID(ctx, reservation.ID)
	if err != nil {
		if errors.Is(err, store.ErrBookingNotFound) {
			s.logger.Info("payment failed before any booking was created",
				"payment_intent_id", reservation.ID,
				"reason", reservation.FailureMessage,
			)
			return OutcomeIgnored, nil
		}
		return "", fmt.Errorf("%w: lookup booking: %v", ErrUpstreamFailure, err)
	}

	updated, err := s.repo.MarkBookingPaymentFailed(ctx, existing.ID)
	if err != nil {
		return "", fmt.Errorf("%w: mark booking failed: %v", ErrUpstreamFailure, err)
	}
	if !updated {
		return OutcomeDuplicate, nil
	}
	existing.PaymentStatus = domain.PaymentStatusFailed
	s.publishSettlement(ctx, routingKeyBookingPaymentFailed, existing)
	return OutcomeUpdated, nil
}

func (s Service) publishSettlement(ctx context.Context, routingKey string, booking *domain.Booking) {
	s.publishEvent(ctx, routingKey, domain.BookingSettlementEvent{
		BookingID:       booking.ID,
		PaymentIntentID: booking.PaymentIntentID,
		PaymentStatus:   booking.PaymentStatus,
		Price:           booking.Price,
		BarberPayout:    booking.BarberPayout,
		OccurredAt:      s.now().UTC(),
	})
}
