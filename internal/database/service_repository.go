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

// ServiceRepository reads the service catalog
type ServiceRepository struct {
	db *sqlx.DB
}

// NewServiceRepository creates a new service catalog repository
func NewServiceRepository(db *sqlx.DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

// GetByID returns an active service
func (r *ServiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	var service models.Service
	query := `
		SELECT id, category_id, name, base_price, price_multiplier, duration_minutes, is_active, created_at, updated_at
		FROM services
		WHERE id = $1 AND is_active = TRUE`
	if err := r.db.GetContext(ctx, &service, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("service %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &service, nil
}
