/**
 * @description
 * Core business logic for pricing, creating and settling bookings.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/cutline/booking-service/internal/config"
	"github.com/cutline/booking-service/internal/domain"
	"github.com/google/uuid"
)

// Repository defines the database operations the service needs.
type Repository interface {
	FindServiceByID(ctx context.Context, serviceID uuid.UUID) (*domain.Service, error)
	ListAddonsByIDs(ctx context.Context, addonIDs []uuid.UUID) ([]domain.Addon, error)
	FindBarberByID(ctx context.Context, barberID uuid.UUID) (*domain.Barber, error)
	FindBarberByUserID(ctx context.Context, userID uuid.UUID) (*domain.Barber, error)
	FindClientContact(ctx context.Context, clientID uuid.UUID) (*domain.Contact, error)
	CreateBookingWithAddons(ctx context.Context, booking *domain.Booking, addons []domain.BookingAddon) (bool, error)
	FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error)
	FindBookingByPaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.Booking, error)
	ListBookingAddons(ctx context.Context, bookingID uuid.UUID) ([]domain.BookingAddon, error)
	MarkBookingPaymentSucceeded(ctx context.Context, bookingID uuid.UUID) (bool, error)
	MarkBookingPaymentFailed(ctx context.Context, bookingID uuid.UUID) (bool, error)
	TransitionBookingStatus(ctx context.Context, bookingID uuid.UUID, from, to string) (bool, error)
}

// PaymentProcessor is the external processor holding payment reservations.
type PaymentProcessor interface {
	CreatePaymentIntent(ctx context.Context, req domain.PaymentIntentRequest) (*domain.PaymentReservation, error)
	RetrieveAccount(ctx context.Context, accountID string) (*domain.ProcessorAccount, error)
	RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (*domain.PaymentReservation, error)
	ListPaymentIntentsSince(ctx context.Context, since time.Time) ([]domain.PaymentReservation, error)
}

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

const (
	routingKeyBookingSettled       = "booking.settled"
	routingKeyBookingPaymentFailed = "booking.payment_failed"
	routingKeyBookingConfirmed     = "notification.booking.confirmed"
)

// Service provides the booking settlement flow.
type Service struct {
	repo      Repository
	processor PaymentProcessor
	publisher EventPublisher
	notifier  *Notifier
	pricing   FeePolicy
	currency  string
	exchange  string
	window    time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new booking service.
func NewService(repo Repository, processor PaymentProcessor, publisher EventPublisher, cfg config.Config, logger *slog.Logger) Service {
	exchange := cfg.EventsExchange
	if exchange == "" {
		exchange = "cutline.events"
	}
	currency := cfg.PaymentCurrency
	if currency == "" {
		currency = "usd"
	}
	window := time.Duration(cfg.ReconcilePollWindowMin) * time.Minute
	if window <= 0 {
		window = time.Hour
	}

	return Service{
		repo:      repo,
		processor: processor,
		publisher: publisher,
		notifier:  NewNotifier(repo, publisher, exchange, logger),
		pricing:   NewFeePolicy(cfg),
		currency:  currency,
		exchange:  exchange,
		window:    window,
		logger:    logger,
		now:       time.Now,
	}
}

func (s Service) publishEvent(ctx context.Context, routingKey string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, s.exchange, routingKey, payload); err != nil {
		s.logger.Warn("failed to publish event", "routing_key", routingKey, "error", err)
	}
}
