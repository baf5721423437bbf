package guest

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines read access to guest records. Guest writes happen
// inside the booking repository's transactions, because a guest row is
// created and destroyed together with its booking.
type Repository interface {
	GetByEmail(ctx context.Context, email string) (*Guest, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func (r *pgxRepository) GetByEmail(ctx context.Context, email string) (*Guest, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select("email", "first_name", "last_name", "created_at", "updated_at").
		From("public.guests").
		Where(squirrel.Eq{"email": email}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get guest query failed: %w", err)
	}

	var g Guest
	if err := r.pool.QueryRow(ctx, query, args...).
		Scan(&g.Email, &g.FirstName, &g.LastName, &g.CreatedAt, &g.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get guest failed: %w", err)
	}
	return &g, nil
}
