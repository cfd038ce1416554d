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

const partnerColumns = `id, user_id, category_id, availability_status, kyc_status,
	current_latitude, current_longitude, location_updated_at, service_radius_km,
	avg_rating, total_ratings, total_bookings, completed_bookings, completion_rate,
	created_at, updated_at`

func prefixedPartnerColumns(alias string) string {
	return alias + `.id, ` + alias + `.user_id, ` + alias + `.category_id, ` + alias + `.availability_status, ` +
		alias + `.kyc_status, ` + alias + `.current_latitude, ` + alias + `.current_longitude, ` +
		alias + `.location_updated_at, ` + alias + `.service_radius_km, ` + alias + `.avg_rating, ` +
		alias + `.total_ratings, ` + alias + `.total_bookings, ` + alias + `.completed_bookings, ` +
		alias + `.completion_rate, ` + alias + `.created_at, ` + alias + `.updated_at`
}

// PartnerRepository handles service partner persistence
type PartnerRepository struct {
	db *sqlx.DB
}

// NewPartnerRepository creates a new partner repository
func NewPartnerRepository(db *sqlx.DB) *PartnerRepository {
	return &PartnerRepository{db: db}
}

// GetByID returns a partner by id
func (r *PartnerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ServicePartner, error) {
	return r.getOne(ctx, `SELECT `+partnerColumns+` FROM service_partners WHERE id = $1`, id)
}

// GetByUserID returns the partner profile of a user
func (r *PartnerRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.ServicePartner, error) {
	return r.getOne(ctx, `SELECT `+partnerColumns+` FROM service_partners WHERE user_id = $1`, userID)
}

func (r *PartnerRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.ServicePartner, error) {
	var partner models.ServicePartner
	if err := r.db.GetContext(ctx, &partner, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("partner %v: %w", arg, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get partner: %w", err)
	}
	return &partner, nil
}

// FindAvailableByCategory returns AVAILABLE, KYC-approved partners of the
// category that have reported a location. When businessPartnerID is set
// only active members of that business are returned.
func (r *PartnerRepository) FindAvailableByCategory(ctx context.Context, categoryID uuid.UUID, businessPartnerID *uuid.UUID) ([]models.ServicePartner, error) {
	partners := []models.ServicePartner{}

	if businessPartnerID == nil {
		query := `
			SELECT ` + partnerColumns + `
			FROM service_partners
			WHERE category_id = $1
			  AND availability_status = 'AVAILABLE'
			  AND kyc_status = 'APPROVED'
			  AND current_latitude IS NOT NULL
			  AND current_longitude IS NOT NULL`
		if err := r.db.SelectContext(ctx, &partners, query, categoryID); err != nil {
			return nil, fmt.Errorf("failed to find available partners: %w", err)
		}
		return partners, nil
	}

	query := `
		SELECT ` + prefixedPartnerColumns("sp") + `
		FROM service_partners sp
		JOIN partner_associations pa ON pa.service_partner_id = sp.id
		WHERE sp.category_id = $1
		  AND pa.business_partner_id = $2
		  AND pa.status = 'ACTIVE'
		  AND sp.availability_status = 'AVAILABLE'
		  AND sp.kyc_status = 'APPROVED'
		  AND sp.current_latitude IS NOT NULL
		  AND sp.current_longitude IS NOT NULL`
	if err := r.db.SelectContext(ctx, &partners, query, categoryID, *businessPartnerID); err != nil {
		return nil, fmt.Errorf("failed to find available team partners: %w", err)
	}
	return partners, nil
}

// GetActiveAssociation returns the ACTIVE membership of partnerID in the business
func (r *PartnerRepository) GetActiveAssociation(ctx context.Context, businessPartnerID, partnerID uuid.UUID) (*models.PartnerAssociation, error) {
	var assoc models.PartnerAssociation
	query := `
		SELECT id, business_partner_id, service_partner_id, status, joined_at, created_at, updated_at
		FROM partner_associations
		WHERE business_partner_id = $1 AND service_partner_id = $2 AND status = 'ACTIVE'`
	if err := r.db.GetContext(ctx, &assoc, query, businessPartnerID, partnerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("association of %s with %s: %w", partnerID, businessPartnerID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get partner association: %w", err)
	}
	return &assoc, nil
}

// UpdateAvailability sets the partner's availability status
func (r *PartnerRepository) UpdateAvailability(ctx context.Context, partnerID uuid.UUID, status models.AvailabilityStatus) error {
	query := `UPDATE service_partners SET availability_status = $1, updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, query, status, partnerID)
}

// UpdateLocation records the partner's current coordinates
func (r *PartnerRepository) UpdateLocation(ctx context.Context, partnerID uuid.UUID, lat, lng float64) error {
	query := `
		UPDATE service_partners
		SET current_latitude = $1, current_longitude = $2, location_updated_at = NOW(), updated_at = NOW()
		WHERE id = $3`
	return r.execOne(ctx, query, lat, lng, partnerID)
}

// UpdateKYCStatus records an admin's verification decision
func (r *PartnerRepository) UpdateKYCStatus(ctx context.Context, partnerID uuid.UUID, status models.KYCStatus) error {
	query := `UPDATE service_partners SET kyc_status = $1, updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, query, status, partnerID)
}

func (r *PartnerRepository) execOne(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update partner: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("partner: %w", models.ErrNotFound)
	}
	return nil
}

// ============================================================================
// STATS (run inside booking transactions; increments happen in SQL)
// ============================================================================

func incrementAcceptedTx(ctx context.Context, tx *sqlx.Tx, partnerID uuid.UUID) error {
	query := `
		UPDATE service_partners
		SET total_bookings = total_bookings + 1,
		    completion_rate = ROUND(completed_bookings * 100.0 / (total_bookings + 1), 2),
		    updated_at = NOW()
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, partnerID); err != nil {
		return fmt.Errorf("failed to update partner booking count: %w", err)
	}
	return nil
}

func incrementCompletedTx(ctx context.Context, tx *sqlx.Tx, partnerID uuid.UUID) error {
	query := `
		UPDATE service_partners
		SET completed_bookings = completed_bookings + 1,
		    completion_rate = LEAST(100, ROUND((completed_bookings + 1) * 100.0 / GREATEST(total_bookings, 1), 2)),
		    updated_at = NOW()
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, partnerID); err != nil {
		return fmt.Errorf("failed to update partner completion stats: %w", err)
	}
	return nil
}

// applyRatingTx adds one rating to the partner's exact star total and derives
// the displayed average from it, so rounding never compounds across ratings
func applyRatingTx(ctx context.Context, tx *sqlx.Tx, partnerID uuid.UUID, rating int) error {
	query := `
		UPDATE service_partners
		SET rating_sum = rating_sum + $1,
		    avg_rating = ROUND((rating_sum + $1)::numeric / (total_ratings + 1), 2),
		    total_ratings = total_ratings + 1,
		    updated_at = NOW()
		WHERE id = $2`
	if _, err := tx.ExecContext(ctx, query, rating, partnerID); err != nil {
		return fmt.Errorf("failed to update partner rating: %w", err)
	}
	return nil
}
