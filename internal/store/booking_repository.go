package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/cutline/booking-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const bookingColumns = `
	id, service_id, barber_id, client_id, guest_name, guest_email, guest_phone,
	scheduled_at, notes, status, payment_status, price, addon_total, platform_fee,
	barber_payout, payment_intent_id, created_at, updated_at
`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(
		&b.ID,
		&b.ServiceID,
		&b.BarberID,
		&b.ClientID,
		&b.GuestName,
		&b.GuestEmail,
		&b.GuestPhone,
		&b.ScheduledAt,
		&b.Notes,
		&b.Status,
		&b.PaymentStatus,
		&b.Price,
		&b.AddonTotal,
		&b.PlatformFee,
		&b.BarberPayout,
		&b.PaymentIntentID,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

// CreateBookingWithAddons inserts the booking and its add-on line items in one
// transaction. The unique index on payment_intent_id makes the insert a no-op
// when a booking already exists for the reference; created is false in that case
// and nothing is written.
func (r *Repository) CreateBookingWithAddons(ctx context.Context, booking *domain.Booking, addons []domain.BookingAddon) (created bool, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insertBooking := `
		INSERT INTO bookings (
			id, service_id, barber_id, client_id, guest_name, guest_email, guest_phone,
			scheduled_at, notes, status, payment_status, price, addon_total, platform_fee,
			barber_payout, payment_intent_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (payment_intent_id) DO NOTHING
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(
		ctx,
		insertBooking,
		booking.ID,
		booking.ServiceID,
		booking.BarberID,
		booking.ClientID,
		booking.GuestName,
		booking.GuestEmail,
		booking.GuestPhone,
		booking.ScheduledAt,
		booking.Notes,
		booking.Status,
		booking.PaymentStatus,
		booking.Price,
		booking.AddonTotal,
		booking.PlatformFee,
		booking.BarberPayout,
		booking.PaymentIntentID,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert booking: %w", err)
	}

	for _, addon := range addons {
		_, err := tx.Exec(ctx,
			"INSERT INTO booking_addons (booking_id, addon_id, price) VALUES ($1, $2, $3)",
			booking.ID,
			addon.AddonID,
			addon.Price,
		)
		if err != nil {
			return false, fmt.Errorf("insert booking add-on %s: %w", addon.AddonID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit booking tx: %w", err)
	}
	return true, nil
}

// FindBookingByID loads one booking.
func (r *Repository) FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	query := "SELECT " + bookingColumns + " FROM bookings WHERE id = $1"
	return scanBooking(r.db.QueryRow(ctx, query, bookingID))
}

// FindBookingByPaymentIntentID loads the booking settled by a payment reference.
func (r *Repository) FindBookingByPaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.Booking, error) {
	query := "SELECT " + bookingColumns + " FROM bookings WHERE payment_intent_id = $1"
	return scanBooking(r.db.QueryRow(ctx, query, paymentIntentID))
}

// ListBookingAddons returns the line items captured for a booking.
func (r *Repository) ListBookingAddons(ctx context.Context, bookingID uuid.UUID) ([]domain.BookingAddon, error) {
	rows, err := r.db.Query(ctx, "SELECT booking_id, addon_id, price FROM booking_addons WHERE booking_id = $1", bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addons []domain.BookingAddon
	for rows.Next() {
		var addon domain.BookingAddon
		if err := rows.Scan(&addon.BookingID, &addon.AddonID, &addon.Price); err != nil {
			return nil, err
		}
		addons = append(addons, addon)
	}
	return addons, rows.Err()
}

// MarkBookingPaymentSucceeded moves a booking to payment status succeeded.
// It reports false when the booking was already succeeded.
func (r *Repository) MarkBookingPaymentSucceeded(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	query := `
		UPDATE bookings
		SET payment_status = 'succeeded', updated_at = NOW()
		WHERE id = $1 AND payment_status <> 'succeeded'
	`
	tag, err := r.db.Exec(ctx, query, bookingID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkBookingPaymentFailed records a failed payment. Succeeded bookings are
// never downgraded and already-failed ones are left untouched.
func (r *Repository) MarkBookingPaymentFailed(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	query := `
		UPDATE bookings
		SET payment_status = 'failed', updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending'
	`
	tag, err := r.db.Exec(ctx, query, bookingID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// TransitionBookingStatus applies a lifecycle transition only if the booking is
// still in the from state.
func (r *Repository) TransitionBookingStatus(ctx context.Context, bookingID uuid.UUID, from, to string) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	tag, err := r.db.Exec(ctx, query, bookingID, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
