package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AvailabilityStatus is a service partner's willingness to take work
type AvailabilityStatus string

const (
	AvailabilityAvailable AvailabilityStatus = "AVAILABLE"
	AvailabilityBusy      AvailabilityStatus = "BUSY"
	AvailabilityOffline   AvailabilityStatus = "OFFLINE"
)

// IsValid reports whether s is a known availability status
func (s AvailabilityStatus) IsValid() bool {
	switch s {
	case AvailabilityAvailable, AvailabilityBusy, AvailabilityOffline:
		return true
	}
	return false
}

// KYCStatus is the verification state of a service partner
type KYCStatus string

const (
	KYCStatusPending   KYCStatus = "PENDING"
	KYCStatusSubmitted KYCStatus = "SUBMITTED"
	KYCStatusApproved  KYCStatus = "APPROVED"
	KYCStatusRejected  KYCStatus = "REJECTED"
)

// IsValid reports whether s is a known KYC status
func (s KYCStatus) IsValid() bool {
	switch s {
	case KYCStatusPending, KYCStatusSubmitted, KYCStatusApproved, KYCStatusRejected:
		return true
	}
	return false
}

// ServicePartner is an individual who performs services
type ServicePartner struct {
	ID                 uuid.UUID          `json:"id" db:"id"`
	UserID             uuid.UUID          `json:"user_id" db:"user_id"`
	CategoryID         uuid.UUID          `json:"category_id" db:"category_id"`
	AvailabilityStatus AvailabilityStatus `json:"availability_status" db:"availability_status"`
	KYCStatus          KYCStatus          `json:"kyc_status" db:"kyc_status"`
	CurrentLatitude    *float64           `json:"current_latitude,omitempty" db:"current_latitude"`
	CurrentLongitude   *float64           `json:"current_longitude,omitempty" db:"current_longitude"`
	LocationUpdatedAt  *time.Time         `json:"location_updated_at,omitempty" db:"location_updated_at"`
	ServiceRadiusKm    float64            `json:"service_radius_km" db:"service_radius_km"`
	AvgRating          float64            `json:"avg_rating" db:"avg_rating"`
	TotalRatings       int                `json:"total_ratings" db:"total_ratings"`
	TotalBookings      int                `json:"total_bookings" db:"total_bookings"`
	CompletedBookings  int                `json:"completed_bookings" db:"completed_bookings"`
	CompletionRate     float64            `json:"completion_rate" db:"completion_rate"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

// HasLocation reports whether the partner has reported coordinates
func (p *ServicePartner) HasLocation() bool {
	return p.CurrentLatitude != nil && p.CurrentLongitude != nil
}

// IsKYCApproved reports whether the partner passed verification
func (p *ServicePartner) IsKYCApproved() bool {
	return p.KYCStatus == KYCStatusApproved
}

// BusinessPartner is an organization that employs service partners and takes a commission
type BusinessPartner struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	OwnerUserID    uuid.UUID       `json:"owner_user_id" db:"owner_user_id"`
	BusinessName   string          `json:"business_name" db:"business_name"`
	CommissionRate decimal.Decimal `json:"commission_rate" db:"commission_rate"`
	IsActive       bool            `json:"is_active" db:"is_active"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// AssociationStatus is the state of a partner's membership in a business
type AssociationStatus string

const (
	AssociationPending  AssociationStatus = "PENDING"
	AssociationActive   AssociationStatus = "ACTIVE"
	AssociationInactive AssociationStatus = "INACTIVE"
	AssociationLeft     AssociationStatus = "LEFT"
)

// PartnerAssociation links a service partner to a business partner
type PartnerAssociation struct {
	ID                uuid.UUID         `json:"id" db:"id"`
	BusinessPartnerID uuid.UUID         `json:"business_partner_id" db:"business_partner_id"`
	ServicePartnerID  uuid.UUID         `json:"service_partner_id" db:"service_partner_id"`
	Status            AssociationStatus `json:"status" db:"status"`
	JoinedAt          *time.Time        `json:"joined_at,omitempty" db:"joined_at"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at" db:"updated_at"`
}

// Candidate is a partner eligible for a booking with its distance from the service location
type Candidate struct {
	Partner    ServicePartner `json:"partner"`
	DistanceKm float64        `json:"distance_km"`
}

// UpdateLocationRequest is a partner's GPS ping
type UpdateLocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// UpdateAvailabilityRequest toggles a partner's availability
type UpdateAvailabilityRequest struct {
	Status AvailabilityStatus `json:"status" binding:"required"`
}

// UpdateKYCRequest is an admin's verification decision
type UpdateKYCRequest struct {
	Status KYCStatus `json:"status" binding:"required"`
}
