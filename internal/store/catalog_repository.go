package store

import (
	"context"
	"errors"

	"github.com/cutline/booking-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// FindServiceByID loads a catalog service. Price may be NULL for draft services.
func (r *Repository) FindServiceByID(ctx context.Context, serviceID uuid.UUID) (*domain.Service, error) {
	query := `
		SELECT id, barber_id, name, price_cents, is_active
		FROM services
		WHERE id = $1
	`
	var svc domain.Service
	err := r.db.QueryRow(ctx, query, serviceID).Scan(
		&svc.ID,
		&svc.BarberID,
		&svc.Name,
		&svc.Price,
		&svc.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &svc, nil
}

// ListAddonsByIDs returns the catalog rows for the given ids regardless of owner
// or active flag. Filtering is the caller's job.
func (r *Repository) ListAddonsByIDs(ctx context.Context, addonIDs []uuid.UUID) ([]domain.Addon, error) {
	if len(addonIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, barber_id, name, price_cents, is_active
		FROM service_addons
		WHERE id = ANY($1::uuid[])
	`
	ids := make([]string, 0, len(addonIDs))
	for _, id := range addonIDs {
		ids = append(ids, id.String())
	}

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addons []domain.Addon
	for rows.Next() {
		var addon domain.Addon
		if err := rows.Scan(&addon.ID, &addon.BarberID, &addon.Name, &addon.Price, &addon.IsActive); err != nil {
			return nil, err
		}
		addons = append(addons, addon)
	}
	return addons, rows.Err()
}

// FindBarberByID loads a barber profile together with its contact details.
func (r *Repository) FindBarberByID(ctx context.Context, barberID uuid.UUID) (*domain.Barber, error) {
	query := `
		SELECT b.id, b.user_id, COALESCE(p.name, ''), COALESCE(p.email, ''), COALESCE(p.phone, ''),
		       b.stripe_account_id, b.is_developer
		FROM barbers b
		JOIN profiles p ON p.id = b.user_id
		WHERE b.id = $1
	`
	var barber domain.Barber
	err := r.db.QueryRow(ctx, query, barberID).Scan(
		&barber.ID,
		&barber.UserID,
		&barber.Name,
		&barber.Email,
		&barber.Phone,
		&barber.StripeAccountID,
		&barber.IsDeveloper,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBarberNotFound
		}
		return nil, err
	}
	return &barber, nil
}

// FindBarberByUserID resolves the barber profile owned by an auth user.
func (r *Repository) FindBarberByUserID(ctx context.Context, userID uuid.UUID) (*domain.Barber, error) {
	var barberID uuid.UUID
	err := r.db.QueryRow(ctx, "SELECT id FROM barbers WHERE user_id = $1", userID).Scan(&barberID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBarberNotFound
		}
		return nil, err
	}
	return r.FindBarberByID(ctx, barberID)
}

// FindClientContact loads the contact details of a client profile.
func (r *Repository) FindClientContact(ctx context.Context, clientID uuid.UUID) (*domain.Contact, error) {
	query := `
		SELECT COALESCE(name, ''), COALESCE(email, ''), COALESCE(phone, '')
		FROM profiles
		WHERE id = $1
	`
	var contact domain.Contact
	if err := r.db.QueryRow(ctx, query, clientID).Scan(&contact.Name, &contact.Email, &contact.Phone); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return &contact, nil
}
