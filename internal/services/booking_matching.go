package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/servicehub/booking-engine/internal/database"
	"github.com/servicehub/booking-engine/internal/models"
)

// RunMatching finds candidates for a searching booking and invites them.
// With no candidates the booking moves to PARTNER_NOT_FOUND. It is invoked
// by the match dispatcher, never on the request path.
func (s *BookingService) RunMatching(ctx context.Context, bookingID uuid.UUID) error {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.Status != models.BookingStatusSearchingPartner || booking.IsAssigned() {
		s.logger.WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"status":     booking.Status,
		}).Debug("Skipping matching, booking no longer searching")
		return nil
	}

	candidates, err := s.matching.FindCandidates(ctx, booking)
	if err != nil {
		return fmt.Errorf("matching failed for booking %s: %w", booking.ID, err)
	}

	if len(candidates) == 0 {
		updated, err := s.transition(ctx, booking, OpNoPartnerFound, models.SystemActor(), database.TransitionParams{
			Notes:             "No available partners nearby",
			RequireUnassigned: true,
		})
		if err != nil {
			if errors.Is(err, models.ErrInvalidState) {
				return nil
			}
			return err
		}
		s.effects.emit(ctx, updated, notice{
			userID:  updated.CustomerID,
			kind:    models.NotificationPartnerNotFound,
			title:   "No partner available",
			message: "We could not find a partner for your booking right now. You can retry or cancel.",
		})
		return nil
	}

	notices := make([]notice, 0, len(candidates))
	for _, c := range candidates {
		notices = append(notices, notice{
			userID:  c.Partner.UserID,
			kind:    models.NotificationNewJob,
			title:   "New job nearby",
			message: fmt.Sprintf("A new job is available %.1f km away", c.DistanceKm),
			data:    map[string]interface{}{"distance_km": c.DistanceKm},
		})
	}
	s.effects.emit(ctx, booking, notices...)

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"candidates": len(candidates),
	}).Info("Partners notified of new job")
	return nil
}

// RetryMatching puts a booking back into the search and re-dispatches matching
func (s *BookingService) RetryMatching(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.load(ctx, id, OpRetryMatching)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && booking.CustomerID != actor.UserID {
		return nil, models.UnauthorizedError("only the customer or an admin can retry matching")
	}
	if booking.BusinessPartnerID != nil {
		return nil, models.NewDomainError(models.ErrInvalidState, "BUSINESS_BOOKING",
			"business bookings are assigned by the business", nil)
	}

	updated, err := s.transition(ctx, booking, OpRetryMatching, actor, database.TransitionParams{
		Notes:             "Matching retried",
		RequireUnassigned: true,
	})
	if err != nil {
		return nil, err
	}

	s.dispatchMatching(ctx, updated)
	return updated, nil
}

// RedispatchStale re-queues matching for bookings searching since before
// cutoff. It returns how many were dispatched.
func (s *BookingService) RedispatchStale(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	bookings, err := s.bookings.ListStale(ctx, models.BookingStatusSearchingPartner, cutoff, limit)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for i := range bookings {
		if err := s.dispatcher.Dispatch(ctx, bookings[i].ID); err != nil {
			s.logger.WithError(err).WithField("booking_id", bookings[i].ID).Warn("Failed to re-dispatch matching")
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

// dispatchMatching queues matching; a failure leaves the booking searching
// for the stale sweep to pick up
func (s *BookingService) dispatchMatching(ctx context.Context, booking *models.Booking) {
	if err := s.dispatcher.Dispatch(ctx, booking.ID); err != nil {
		s.logger.WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"error":      err.Error(),
		}).Warn("Failed to dispatch matching")
	}
}
