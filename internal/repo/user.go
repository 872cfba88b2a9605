package repo

import (
	"context"
	"errors"
	"fmt"

	"tracker-api/internal/auth"
	"tracker-api/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository reads the authorization attributes of users and resolves API keys.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetUser returns the authorization slice of a user.
func (r *UserRepository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, `SELECT id, is_system_admin, is_active FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.IsSystemAdmin, &u.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// LookupAPIKey resolves a key digest to its owner. Revoked keys are not found.
// A successful lookup bumps last_used_at.
func (r *UserRepository) LookupAPIKey(ctx context.Context, keyHash string) (auth.APIKeyRecord, bool, error) {
	var rec auth.APIKeyRecord
	err := r.pool.QueryRow(ctx, `
		UPDATE api_keys SET last_used_at = NOW()
		WHERE key_hash = $1 AND revoked_at IS NULL
		RETURNING id, user_id
	`, keyHash).Scan(&rec.ID, &rec.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.APIKeyRecord{}, false, nil
		}
		return auth.APIKeyRecord{}, false, fmt.Errorf("query api key: %w", err)
	}
	return rec, true, nil
}
