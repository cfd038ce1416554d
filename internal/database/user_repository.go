package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/servicehub/booking-engine/internal/models"
)

const userColumns = `id, phone, email, first_name, last_name, roles, status, created_at, updated_at`

// UserRepository handles user lookups
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindFirstByRole returns the oldest active user holding role
func (r *UserRepository) FindFirstByRole(ctx context.Context, role string) (*models.User, error) {
	var user models.User
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE $1 = ANY(roles) AND status = 'active'
		ORDER BY created_at
		LIMIT 1`
	if err := r.db.GetContext(ctx, &user, query, role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user with role %s: %w", role, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find user by role: %w", err)
	}
	return &user, nil
}
