package postgres

import (
	"context"
	"errors"
	"fmt"

	"bitquiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ProfileRepository reads and mutates the users table.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

func (r *ProfileRepository) Get(ctx context.Context, userID string) (domain.Profile, error) {
	var p domain.Profile
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, email, is_pro, COALESCE(favorite_school, ''), created_at
		 FROM users WHERE id=$1`, userID).
		Scan(&p.ID, &p.Username, &p.Email, &p.IsPro, &p.FavoriteSchool, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (r *ProfileRepository) Create(ctx context.Context, p domain.Profile) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, is_pro, favorite_school, created_at)
		 VALUES ($1,$2,$3,$4,NULLIF($5,''),$6)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Username, p.Email, p.IsPro, p.FavoriteSchool, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// GrantPro flips the entitlement flag. The purchase flow itself is a stub.
func (r *ProfileRepository) GrantPro(ctx context.Context, userID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_pro=TRUE WHERE id=$1`, userID)
	if err != nil {
		return fmt.Errorf("grant pro: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}
