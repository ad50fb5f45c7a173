package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cutline/booking-service/internal/domain"
	"github.com/cutline/booking-service/internal/store"
	"github.com/google/uuid"
)

// BookingLifecycleRepository is the subset of storage the lifecycle consumer uses.
type BookingLifecycleRepository interface {
	FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error)
	TransitionBookingStatus(ctx context.Context, bookingID uuid.UUID, from, to string) (bool, error)
}

// BookingLifecycleConsumer applies completed/cancelled transitions published
// by booking management.
type BookingLifecycleConsumer struct {
	repo   BookingLifecycleRepository
	logger *slog.Logger
}

func NewBookingLifecycleConsumer(repo BookingLifecycleRepository, logger *slog.Logger) *BookingLifecycleConsumer {
	return &BookingLifecycleConsumer{repo: repo, logger: logger}
}

// HandleMessage returns false only for errors worth redelivering.
func (c *BookingLifecycleConsumer) HandleMessage(body []byte) bool {
	var event domain.BookingLifecycleEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Warn("lifecycle-consumer: failed to unmarshal payload", "error", err)
		return true
	}
	if event.BookingID == uuid.Nil {
		c.logger.Warn("lifecycle-consumer: missing booking id", "event_id", event.EventID)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.processEvent(ctx, event); err != nil {
		c.logger.Error("lifecycle-consumer: processing error", "booking_id", event.BookingID, "error", err)
		return false
	}
	return true
}

func (c *BookingLifecycleConsumer) processEvent(ctx context.Context, event domain.BookingLifecycleEvent) error {
	target := normalizeLifecycleStatus(event.Status)
	if target != domain.BookingStatusCompleted && target != domain.BookingStatusCancelled {
		c.logger.Warn("lifecycle-consumer: unsupported status", "booking_id", event.BookingID, "status", event.Status)
		return nil
	}

	booking, err := c.repo.FindBookingByID(ctx, event.BookingID)
	if err != nil {
		if errors.Is(err, store.ErrBookingNotFound) {
			c.logger.Warn("lifecycle-consumer: no booking found; acknowledging", "booking_id", event.BookingID)
			return nil
		}
		return fmt.Errorf("lookup booking: %w", err)
	}

	if booking.Status == target {
		lifecycleTransitions.WithLabelValues(target, OutcomeDuplicate).Inc()
		return nil
	}
	if booking.Status != domain.BookingStatusConfirmed {
		lifecycleTransitions.WithLabelValues(target, OutcomeIgnored).Inc()
		c.logger.Warn("lifecycle-consumer: booking already final",
			"booking_id", booking.ID,
			"status", booking.Status,
			"requested", target,
		)
		return nil
	}

	changed, err := c.repo.TransitionBookingStatus(ctx, booking.ID, domain.BookingStatusConfirmed, target)
	if err != nil {
		return fmt.Errorf("transition booking: %w", err)
	}
	if !changed {
		lifecycleTransitions.WithLabelValues(target, OutcomeDuplicate).Inc()
		return nil
	}
	lifecycleTransitions.WithLabelValues(target, OutcomeUpdated).Inc()
	return nil
}

func normalizeLifecycleStatus(status string) string {
	status = strings.TrimSpace(strings.ToLower(status))
	switch status {
	case "completed", "complete", "done":
		return domain.BookingStatusCompleted
	case "cancelled", "canceled", "cancel":
		return domain.BookingStatusCancelled
	default:
		return status
	}
}
