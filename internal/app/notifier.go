package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cutline/booking-service/internal/domain"
	"github.com/google/uuid"
)

const notificationTimeout = 5 * time.Second

// ContactDirectory resolves who to notify about a booking.
type ContactDirectory interface {
	FindBarberByID(ctx context.Context, barberID uuid.UUID) (*domain.Barber, error)
	FindClientContact(ctx context.Context, clientID uuid.UUID) (*domain.Contact, error)
}

// Notifier publishes booking confirmations for the payer and the barber.
// SMS and email delivery happen in the consumers of these messages.
type Notifier struct {
	contacts  ContactDirectory
	publisher EventPublisher
	exchange  string
	logger    *slog.Logger
}

// NewNotifier creates a notifier publishing to exchange.
func NewNotifier(contacts ContactDirectory, publisher EventPublisher, exchange string, logger *slog.Logger) *Notifier {
	return &Notifier{contacts: contacts, publisher: publisher, exchange: exchange, logger: logger}
}

// SendBookingConfirmation notifies both sides of a booking. Failures are logged
// and reported per recipient, never returned as an error.
func (n *Notifier) SendBookingConfirmation(ctx context.Context, booking *domain.Booking) []domain.NotificationResult {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notificationTimeout)
	defer cancel()

	results := make([]domain.NotificationResult, 0, 2)

	payer, err := n.payerContact(ctx, booking)
	results = append(results, n.send(ctx, booking, domain.RecipientPayer, payer, err))

	var barber *domain.Contact
	profile, err := n.contacts.FindBarberByID(ctx, booking.BarberID)
	if err == nil {
		barber = &domain.Contact{Name: profile.Name, Email: profile.Email, Phone: profile.Phone}
	}
	results = append(results, n.send(ctx, booking, domain.RecipientBarber, barber, err))

	return results
}

func (n *Notifier) payerContact(ctx context.Context, booking *domain.Booking) (*domain.Contact, error) {
	if booking.ClientID != nil {
		return n.contacts.FindClientContact(ctx, *booking.ClientID)
	}
	contact := &domain.Contact{
		Name:  deref(booking.GuestName),
		Email: deref(booking.GuestEmail),
		Phone: deref(booking.GuestPhone),
	}
	if contact.Email == "" && contact.Phone == "" {
		return nil, fmt.Errorf("guest booking %s has no email or phone", booking.ID)
	}
	return contact, nil
}

func (n *Notifier) send(ctx context.Context, booking *domain.Booking, recipient string, contact *domain.Contact, lookupErr error) domain.NotificationResult {
	result := domain.NotificationResult{Recipient: recipient}
	if lookupErr != nil {
		return n.fail(booking, result, fmt.Errorf("resolve contact: %w", lookupErr))
	}
	if n.publisher == nil {
		return n.fail(booking, result, fmt.Errorf("no publisher configured"))
	}

	msg := domain.BookingNotification{
		EventID:     uuid.NewString(),
		BookingID:   booking.ID,
		Recipient:   recipient,
		Contact:     *contact,
		ServiceID:   booking.ServiceID,
		ScheduledAt: booking.ScheduledAt,
		Price:       booking.Price,
		Notes:       deref(booking.Notes),
		OccurredAt:  time.Now().UTC(),
	}
	if err := n.publisher.Publish(ctx, n.exchange, routingKeyBookingConfirmed, msg); err != nil {
		return n.fail(booking, result, err)
	}

	result.Delivered = true
	return result
}

func (n *Notifier) fail(booking *domain.Booking, result domain.NotificationResult, err error) domain.NotificationResult {
	notificationFailures.WithLabelValues(result.Recipient).Inc()
	n.logger.Warn("booking confirmation not sent",
		"booking_id", booking.ID,
		"recipient", result.Recipient,
		"error", err,
	)
	result.Error = err.Error()
	return result
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
