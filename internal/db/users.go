package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Guizzs26/go-meta-sync/internal/models"

	"github.com/jackc/pgx/v5"
)

// UserByEmail returns ErrNotFound for unknown or soft-deleted users
func (r *PostgresRepository) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, role_id, is_active, created_at
		FROM users
		WHERE lower(email) = lower($1) AND deleted_at IS NULL
	`

	var u models.User
	err := r.pool.QueryRow(ctx, query, strings.TrimSpace(email)).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.RoleID,
		&u.IsActive,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

// EnsureUser creates the user unless the email is already taken. It reports whether a row was created
func (r *PostgresRepository) EnsureUser(ctx context.Context, email, passwordHash string, roleID int64, actor string) (int64, bool, error) {
	query := `
		INSERT INTO users (email, password_hash, role_id, is_active, created_by, updated_by)
		VALUES ($1, $2, $3, TRUE, $4, $4)
		ON CONFLICT (email) DO NOTHING
		RETURNING id
	`

	var id int64
	err := r.pool.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email)), passwordHash, roleID, actor).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to create user: %w", classify(err))
	}

	existing, err := r.UserByEmail(ctx, email)
	if err != nil {
		return 0, false, err
	}
	return existing.ID, false, nil
}
