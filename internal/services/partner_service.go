package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/servicehub/booking-engine/internal/models"
)

// PartnerService handles partner self-service and KYC decisions
type PartnerService struct {
	partners PartnerStore
	logger   *logrus.Logger
}

// NewPartnerService creates a new PartnerService
func NewPartnerService(partners PartnerStore, logger *logrus.Logger) *PartnerService {
	return &PartnerService{partners: partners, logger: logger}
}

// GetProfile returns the caller's partner profile
func (s *PartnerService) GetProfile(ctx context.Context, actor models.Actor) (*models.ServicePartner, error) {
	return s.partners.GetByUserID(ctx, actor.UserID)
}

// UpdateAvailability sets whether the caller takes new jobs
func (s *PartnerService) UpdateAvailability(ctx context.Context, actor models.Actor, status models.AvailabilityStatus) (*models.ServicePartner, error) {
	if !status.IsValid() {
		return nil, models.ValidationError("status", "status must be AVAILABLE, BUSY or OFFLINE")
	}
	partner, err := s.partners.GetByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if status == models.AvailabilityAvailable && !partner.IsKYCApproved() {
		return nil, models.PreconditionError("KYC_NOT_APPROVED", "complete KYC verification before going available")
	}
	if err := s.partners.UpdateAvailability(ctx, partner.ID, status); err != nil {
		return nil, err
	}
	partner.AvailabilityStatus = status

	s.logger.WithFields(logrus.Fields{
		"partner_id": partner.ID,
		"status":     status,
	}).Info("Partner availability updated")
	return partner, nil
}

// UpdateLocation records the caller's current position
func (s *PartnerService) UpdateLocation(ctx context.Context, actor models.Actor, req *models.UpdateLocationRequest) error {
	if err := inputValidator.ValidateCoordinates(req.Latitude, req.Longitude); err != nil {
		return models.ValidationError("location", err.Error())
	}
	partner, err := s.partners.GetByUserID(ctx, actor.UserID)
	if err != nil {
		return err
	}
	return s.partners.UpdateLocation(ctx, partner.ID, req.Latitude, req.Longitude)
}

// UpdateKYCStatus records an admin's verification decision. Rejected
// partners are taken offline.
func (s *PartnerService) UpdateKYCStatus(ctx context.Context, actor models.Actor, partnerID uuid.UUID, status models.KYCStatus) (*models.ServicePartner, error) {
	if !actor.IsAdmin() {
		return nil, models.UnauthorizedError("only admins can review KYC")
	}
	if !status.IsValid() {
		return nil, models.ValidationError("status", "unknown KYC status "+string(status))
	}
	partner, err := s.partners.GetByID(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if err := s.partners.UpdateKYCStatus(ctx, partner.ID, status); err != nil {
		return nil, err
	}
	partner.KYCStatus = status

	if status == models.KYCStatusRejected && partner.AvailabilityStatus != models.AvailabilityOffline {
		if err := s.partners.UpdateAvailability(ctx, partner.ID, models.AvailabilityOffline); err != nil {
			return nil, err
		}
		partner.AvailabilityStatus = models.AvailabilityOffline
	}

	s.logger.WithFields(logrus.Fields{
		"partner_id":  partner.ID,
		"kyc_status":  status,
		"reviewed_by": actor.UserID,
	}).Info("Partner KYC status updated")
	return partner, nil
}
