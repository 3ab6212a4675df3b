package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CooldownRepository persists per-user action cooldowns so they survive
// restarts.
type CooldownRepository struct {
	pool *pgxpool.Pool
}

// NewCooldownRepository creates a new CooldownRepository instance.
func NewCooldownRepository(pool *pgxpool.Pool) *CooldownRepository {
	return &CooldownRepository{pool: pool}
}

// Set records that the user may not start the action again before expiresAt.
// An existing cooldown for the same user and action is replaced.
func (r *CooldownRepository) Set(ctx context.Context, userID int64, action string, expiresAt time.Time) error {
	const query = `
		INSERT INTO cooldowns (user_id, action, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, action) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`

	if _, err := r.pool.Exec(ctx, query, userID, action, expiresAt); err != nil {
		return fmt.Errorf("failed to set cooldown: %w", err)
	}

	return nil
}

// Remaining returns how long until the user may start the action again.
// A zero duration means no active cooldown.
func (r *CooldownRepository) Remaining(ctx context.Context, userID int64, action string) (time.Duration, error) {
	const query = `
		SELECT expires_at
		FROM cooldowns
		WHERE user_id = $1 AND action = $2
	`

	var expiresAt time.Time
	err := r.pool.QueryRow(ctx, query, userID, action).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get cooldown: %w", err)
	}

	remaining := time.Until(expiresAt)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// Clear removes the cooldown for a user and action if one exists.
func (r *CooldownRepository) Clear(ctx context.Context, userID int64, action string) error {
	const query = `DELETE FROM cooldowns WHERE user_id = $1 AND action = $2`

	if _, err := r.pool.Exec(ctx, query, userID, action); err != nil {
		return fmt.Errorf("failed to clear cooldown: %w", err)
	}

	return nil
}
