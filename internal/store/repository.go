/**
 * @description
 * Data access layer for the booking service.
 */
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrServiceNotFound = errors.New("service not found")
	ErrBarberNotFound  = errors.New("barber not found")
	ErrClientNotFound  = errors.New("client not found")
)

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository handles database operations for bookings and the catalog they reference.
type Repository struct {
	db DB
}

// NewRepository creates a new repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}
