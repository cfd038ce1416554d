package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/servicehub/booking-engine/internal/models"
)

const businessPartnerColumns = `id, owner_user_id, business_name, commission_rate, is_active, created_at, updated_at`

// BusinessPartnerRepository handles business partner persistence
type BusinessPartnerRepository struct {
	db *sqlx.DB
}

// NewBusinessPartnerRepository creates a new business partner repository
func NewBusinessPartnerRepository(db *sqlx.DB) *BusinessPartnerRepository {
	return &BusinessPartnerRepository{db: db}
}

// GetByID returns a business partner by id
func (r *BusinessPartnerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BusinessPartner, error) {
	var bp models.BusinessPartner
	query := `SELECT ` + businessPartnerColumns + ` FROM business_partners WHERE id = $1`
	if err := r.db.GetContext(ctx, &bp, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("business partner %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get business partner: %w", err)
	}
	return &bp, nil
}

// GetByOwnerUserID returns the business owned by a user
func (r *BusinessPartnerRepository) GetByOwnerUserID(ctx context.Context, userID uuid.UUID) (*models.BusinessPartner, error) {
	var bp models.BusinessPartner
	query := `SELECT ` + businessPartnerColumns + ` FROM business_partners WHERE owner_user_id = $1`
	if err := r.db.GetContext(ctx, &bp, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("business partner for user %s: %w", userID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get business partner: %w", err)
	}
	return &bp, nil
}
