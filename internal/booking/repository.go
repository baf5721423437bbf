package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nekogravitycat/campsite-booking-backend/internal/guest"
)

type Repository interface {
	// CreateWithGuest upserts the guest row and inserts the booking in one
	// transaction, returning the new booking id.
	CreateWithGuest(ctx context.Context, g *guest.Guest, b *Booking) (string, error)

	GetByID(ctx context.Context, id string) (*Booking, error)

	// UpdateWithGuest conditionally persists guest name changes and date
	// changes in one transaction. Either write may be skipped.
	UpdateWithGuest(ctx context.Context, b *Booking, updateGuest, updateDates bool) error

	// DeleteWithGuest removes the booking and its owning guest row in one
	// transaction.
	DeleteWithGuest(ctx context.Context, b *Booking) error

	// CountOverlapping counts bookings whose from_date falls in
	// [fromWindowStart, fromWindowEnd) and whose to_date is after
	// toLowerBound. excludeID (if non-empty) removes a booking from the
	// conflict set, so an update never conflicts with itself. The window
	// is exact because every committed booking is capped at the maximum
	// stay length.
	CountOverlapping(ctx context.Context, excludeID string, fromWindowStart, fromWindowEnd, toLowerBound time.Time) (int64, error)

	// ListByFromDateBetween returns bookings whose from_date falls in
	// [windowStart, windowEnd], used to subtract booked spans from an
	// availability window.
	ListByFromDateBetween(ctx context.Context, windowStart, windowEnd time.Time) ([]*Booking, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func (r *pgxRepository) CreateWithGuest(ctx context.Context, g *guest.Guest, b *Booking) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin create booking tx failed: %w", err)
	}
	defer tx.Rollback(ctx)

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	query, args, err := psql.Insert("public.guests").
		Columns("email", "first_name", "last_name").
		Values(g.Email, g.FirstName, g.LastName).
		Suffix(`ON CONFLICT (email) DO UPDATE
			SET first_name = EXCLUDED.first_name,
			    last_name = EXCLUDED.last_name,
			    updated_at = now()`).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build upsert guest query failed: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return "", fmt.Errorf("upsert guest failed: %w", err)
	}

	query, args, err = psql.Insert("public.bookings").
		Columns("guest_email", "from_date", "to_date").
		Values(g.Email, b.FromDate, b.ToDate).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build create booking query failed: %w", err)
	}
	if err := tx.QueryRow(ctx, query, args...).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return "", mapConstraintError(err, "create booking failed")
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit create booking tx failed: %w", err)
	}
	return b.ID, nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Booking, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"b.id", "b.guest_email", "g.first_name", "g.last_name",
		"b.from_date", "b.to_date", "b.created_at", "b.updated_at",
	).
		From("public.bookings b").
		Join("public.guests g ON b.guest_email = g.email").
		Where(squirrel.Eq{"b.id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get booking query failed: %w", err)
	}

	var b Booking
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&b.ID, &b.GuestEmail, &b.GuestFirstName, &b.GuestLastName,
		&b.FromDate, &b.ToDate, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking failed: %w", err)
	}
	return &b, nil
}

func (r *pgxRepository) UpdateWithGuest(ctx context.Context, b *Booking, updateGuest, updateDates bool) error {
	if !updateGuest && !updateDates {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update booking tx failed: %w", err)
	}
	defer tx.Rollback(ctx)

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	if updateGuest {
		query, args, err := psql.Update("public.guests").
			Set("first_name", b.GuestFirstName).
			Set("last_name", b.GuestLastName).
			Set("updated_at", squirrel.Expr("now()")).
			Where(squirrel.Eq{"email": b.GuestEmail}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build update guest query failed: %w", err)
		}
		ct, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update guest failed: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return guest.ErrNotFound
		}
	}

	if updateDates {
		query, args, err := psql.Update("public.bookings").
			Set("from_date", b.FromDate).
			Set("to_date", b.ToDate).
			Set("updated_at", squirrel.Expr("now()")).
			Where(squirrel.Eq{"id": b.ID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build update booking query failed: %w", err)
		}
		ct, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return mapConstraintError(err, "update booking failed")
		}
		if ct.RowsAffected() == 0 {
			return ErrNotFound
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update booking tx failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) DeleteWithGuest(ctx context.Context, b *Booking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete booking tx failed: %w", err)
	}
	defer tx.Rollback(ctx)

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	// The booking references the guest, so it goes first.
	query, args, err := psql.Delete("public.bookings").
		Where(squirrel.Eq{"id": b.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete booking query failed: %w", err)
	}
	ct, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete booking failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}

	query, args, err = psql.Delete("public.guests").
		Where(squirrel.Eq{"email": b.GuestEmail}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete guest query failed: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("delete guest failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete booking tx failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) CountOverlapping(ctx context.Context, excludeID string, fromWindowStart, fromWindowEnd, toLowerBound time.Time) (int64, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query := psql.Select("count(*)").
		From("public.bookings").
		Where(squirrel.GtOrEq{"from_date": fromWindowStart}).
		Where(squirrel.Lt{"from_date": fromWindowEnd}).
		Where(squirrel.Gt{"to_date": toLowerBound})

	if excludeID != "" {
		query = query.Where(squirrel.NotEq{"id": excludeID})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count overlapping query failed: %w", err)
	}

	var count int64
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count overlapping failed: %w", err)
	}
	return count, nil
}

func (r *pgxRepository) ListByFromDateBetween(ctx context.Context, windowStart, windowEnd time.Time) ([]*Booking, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"b.id", "b.guest_email", "g.first_name", "g.last_name",
		"b.from_date", "b.to_date", "b.created_at", "b.updated_at",
	).
		From("public.bookings b").
		Join("public.guests g ON b.guest_email = g.email").
		Where(squirrel.GtOrEq{"b.from_date": windowStart}).
		Where(squirrel.LtOrEq{"b.from_date": windowEnd}).
		OrderBy("b.from_date ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list bookings query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings failed: %w", err)
	}
	defer rows.Close()

	var bookings []*Booking
	for rows.Next() {
		var b Booking
		if err := rows.Scan(
			&b.ID, &b.GuestEmail, &b.GuestFirstName, &b.GuestLastName,
			&b.FromDate, &b.ToDate, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan booking failed: %w", err)
		}
		bookings = append(bookings, &b)
	}
	return bookings, rows.Err()
}

// mapConstraintError translates schema-level safety nets into the same
// domain errors the lock-protected checks produce. The exclusion
// constraint on the booking daterange backstops the overlap check; the
// unique constraint on guest_email backstops the one-booking-per-guest
// rule.
func mapConstraintError(err error, msg string) error {
	var e *pgconn.PgError
	if errors.As(err, &e) {
		switch e.Code {
		case pgerrcode.ExclusionViolation:
			return ErrDateRangeUnavailable
		case pgerrcode.UniqueViolation:
			return ErrGuestHasBooking
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
