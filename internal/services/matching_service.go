package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/servicehub/booking-engine/internal/models"
	"github.com/servicehub/booking-engine/pkg/geo"
)

// MatchingService ranks partners who could serve a booking. It never
// mutates the booking; callers decide what to do with the result.
type MatchingService struct {
	partners      PartnerStore
	maxCandidates int
	logger        *logrus.Logger
}

// NewMatchingService creates a new MatchingService. maxCandidates <= 0 means no cap.
func NewMatchingService(partners PartnerStore, maxCandidates int, logger *logrus.Logger) *MatchingService {
	return &MatchingService{
		partners:      partners,
		maxCandidates: maxCandidates,
		logger:        logger,
	}
}

// FindCandidates returns available, KYC-approved partners in the booking's
// category whose service radius covers the service address, nearest first.
// Business bookings only consider that business's active team.
func (s *MatchingService) FindCandidates(ctx context.Context, booking *models.Booking) ([]models.Candidate, error) {
	item, ok := booking.PrimaryItem()
	if !ok {
		return nil, fmt.Errorf("booking %s has no items to derive a category from", booking.ID)
	}

	partners, err := s.partners.FindAvailableByCategory(ctx, item.CategoryID, booking.BusinessPartnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load partners: %w", err)
	}

	site := geo.Point{Lat: booking.ServiceLatitude, Lng: booking.ServiceLongitude}
	candidates := make([]models.Candidate, 0, len(partners))
	for _, p := range partners {
		if !eligible(&p, item.CategoryID) || booking.HasRejected(p.ID) {
			continue
		}
		distance := geo.DistanceKm(site, geo.Point{Lat: *p.CurrentLatitude, Lng: *p.CurrentLongitude})
		if distance > p.ServiceRadiusKm {
			continue
		}
		candidates = append(candidates, models.Candidate{Partner: p, DistanceKm: geo.RoundKm(distance)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].DistanceKm != candidates[j].DistanceKm {
			return candidates[i].DistanceKm < candidates[j].DistanceKm
		}
		return candidates[i].Partner.AvgRating > candidates[j].Partner.AvgRating
	})

	if s.maxCandidates > 0 && len(candidates) > s.maxCandidates {
		candidates = candidates[:s.maxCandidates]
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"category":   item.CategoryID,
		"scanned":    len(partners),
		"candidates": len(candidates),
	}).Debug("Matching completed")

	return candidates, nil
}

// eligible re-checks the store's filter so a stale or loose query never
// produces an ineligible candidate
func eligible(p *models.ServicePartner, categoryID uuid.UUID) bool {
	return p.AvailabilityStatus == models.AvailabilityAvailable &&
		p.IsKYCApproved() &&
		p.CategoryID == categoryID &&
		p.HasLocation()
}
