package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/servicehub/booking-engine/internal/database"
	"github.com/servicehub/booking-engine/internal/models"
	"github.com/servicehub/booking-engine/pkg/geo"
)

// Assign hands an unassigned booking to a specific partner. Admins may assign
// any booking; business owners may assign bookings routed to their business
// or open bookings, always to an active member of their own team.
func (s *BookingService) Assign(ctx context.Context, actor models.Actor, id, partnerID uuid.UUID) (*models.Booking, error) {
	booking, err := s.load(ctx, id, OpAssign)
	if err != nil {
		return nil, err
	}
	if booking.IsAssigned() {
		return nil, models.AlreadyClaimedError()
	}

	teamID, err := s.assigningTeam(ctx, actor, booking)
	if err != nil {
		return nil, err
	}

	partner, err := s.partners.GetByID(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if teamID != nil {
		if _, err := s.partners.GetActiveAssociation(ctx, *teamID, partner.ID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, models.UnauthorizedError("partner is not an active member of the business team")
			}
			return nil, err
		}
	}
	if !partner.IsKYCApproved() {
		return nil, models.PreconditionError("PARTNER_NOT_VERIFIED", "partner has not completed KYC verification")
	}
	if partner.AvailabilityStatus != models.AvailabilityAvailable {
		return nil, models.NewDomainError(models.ErrInvalidState, "PARTNER_UNAVAILABLE",
			"partner is not available", map[string]interface{}{
				"availability_status": string(partner.AvailabilityStatus),
			})
	}

	now := s.now()
	updated, err := s.transition(ctx, booking, OpAssign, actor, database.TransitionParams{
		RequireUnassigned: true,
		Notes:             "Partner assigned",
		Changes: models.BookingChanges{
			PartnerID:  &partner.ID,
			AssignedAt: &now,
		},
	})
	if err != nil {
		return nil, err
	}

	s.effects.emit(ctx, updated,
		notice{
			userID:  partner.UserID,
			kind:    models.NotificationPartnerAssigned,
			title:   "New job assigned",
			message: fmt.Sprintf("Booking %s has been assigned to you", updated.BookingNumber),
		},
		notice{
			userID:  updated.CustomerID,
			kind:    models.NotificationPartnerAssigned,
			title:   "Partner assigned",
			message: "A service partner has been assigned to your booking",
		},
	)
	return updated, nil
}

// assigningTeam checks the actor may assign the booking and returns the
// business whose team the partner must belong to, if any
func (s *BookingService) assigningTeam(ctx context.Context, actor models.Actor, booking *models.Booking) (*uuid.UUID, error) {
	if actor.IsAdmin() {
		return booking.BusinessPartnerID, nil
	}
	if !actor.HasRole(models.RoleBusinessPartner) {
		return nil, models.UnauthorizedError("only admins and business partners can assign bookings")
	}

	business, err := s.businesses.GetByOwnerUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.UnauthorizedError("caller does not own a business partner")
		}
		return nil, err
	}
	if booking.BusinessPartnerID != nil && *booking.BusinessPartnerID != business.ID {
		return nil, models.UnauthorizedError("booking belongs to another business")
	}
	return &business.ID, nil
}

// Claim lets the first partner to respond take an open booking. The store
// update is guarded by partner_id IS NULL, so concurrent claims produce one
// winner; the others get AlreadyClaimed.
func (s *BookingService) Claim(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	partner, err := s.partnerFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !partner.IsKYCApproved() {
		return nil, models.PreconditionError("KYC_NOT_APPROVED", "complete KYC verification before claiming jobs")
	}
	if partner.AvailabilityStatus != models.AvailabilityAvailable {
		return nil, models.NewDomainError(models.ErrInvalidState, "PARTNER_UNAVAILABLE",
			"set yourself available before claiming jobs", map[string]interface{}{
				"availability_status": string(partner.AvailabilityStatus),
			})
	}

	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.IsAssigned() {
		return nil, models.AlreadyClaimedError()
	}
	if _, err := NextStatus(OpClaim, booking.Status); err != nil {
		return nil, err
	}
	if booking.BusinessPartnerID != nil {
		return nil, models.UnauthorizedError("booking is reserved for a business team")
	}
	if item, ok := booking.PrimaryItem(); !ok || item.CategoryID != partner.CategoryID {
		return nil, models.UnauthorizedError("booking is outside your service category")
	}
	if booking.HasRejected(partner.ID) {
		return nil, models.NewDomainError(models.ErrInvalidState, "PREVIOUSLY_REJECTED",
			"you already declined this booking", nil)
	}

	startOTP, err := s.newOTP(s.policy.StartOTPLength)
	if err != nil {
		return nil, err
	}

	now := s.now()
	actorID := actor.UserID
	updated, err := s.bookings.Transition(ctx, database.TransitionParams{
		BookingID:         booking.ID,
		From:              AllowedFrom(OpClaim),
		To:                models.BookingStatusPartnerAccepted,
		ActorID:           &actorID,
		Notes:             "Claimed by partner",
		RequireUnassigned: true,
		Changes: models.BookingChanges{
			PartnerID:  &partner.ID,
			AssignedAt: &now,
			AcceptedAt: &now,
			StartOTP:   startOTP,
		},
		CountAcceptanceFor: &partner.ID,
	})
	if err != nil {
		if errors.Is(err, database.ErrTransitionRejected) {
			s.logger.WithFields(logrus.Fields{
				"booking_id": booking.ID,
				"partner_id": partner.ID,
			}).Info("Claim lost race")
			return nil, models.AlreadyClaimedError()
		}
		return nil, err
	}
	updated.Items = booking.Items

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"partner_id": partner.ID,
	}).Info("Booking claimed")

	s.effects.emit(ctx, updated, notice{
		userID:  updated.CustomerID,
		kind:    models.NotificationBookingAccepted,
		title:   "Partner on the way",
		message: "A service partner accepted your booking. Share the start code when they arrive.",
		data:    map[string]interface{}{"start_otp": *startOTP},
	})
	return updated, nil
}

// Accept confirms an assignment made by an admin or business owner
func (s *BookingService) Accept(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	booking, partner, err := s.assignedPartner(ctx, actor, id, OpAccept)
	if err != nil {
		return nil, err
	}

	startOTP, err := s.newOTP(s.policy.StartOTPLength)
	if err != nil {
		return nil, err
	}

	now := s.now()
	updated, err := s.transition(ctx, booking, OpAccept, actor, database.TransitionParams{
		RequirePartnerID: &partner.ID,
		Notes:            "Accepted by partner",
		Changes: models.BookingChanges{
			AcceptedAt: &now,
			StartOTP:   startOTP,
		},
		CountAcceptanceFor: &partner.ID,
	})
	if err != nil {
		return nil, err
	}

	s.effects.emit(ctx, updated, notice{
		userID:  updated.CustomerID,
		kind:    models.NotificationBookingAccepted,
		title:   "Partner confirmed",
		message: "Your service partner accepted the booking. Share the start code when they arrive.",
		data:    map[string]interface{}{"start_otp": *startOTP},
	})
	return updated, nil
}

// Reject releases the booking. Open bookings go back to matching, which is
// re-dispatched immediately without the rejecting partner; business bookings
// return to the business's assignment queue.
func (s *BookingService) Reject(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Booking, error) {
	booking, partner, err := s.assignedPartner(ctx, actor, id, OpReject)
	if err != nil {
		return nil, err
	}

	notes := "Rejected by partner"
	if reason != "" {
		notes += ": " + reason
	}

	updated, err := s.transition(ctx, booking, OpReject, actor, database.TransitionParams{
		To:               rejectTarget(booking),
		RequirePartnerID: &partner.ID,
		Notes:            notes,
		Changes: models.BookingChanges{
			ClearPartner:   true,
			ClearStartOTP:  true,
			AppendRejected: &partner.ID,
		},
	})
	if err != nil {
		return nil, err
	}

	if updated.BusinessPartnerID != nil {
		if business, err := s.businesses.GetByID(ctx, *updated.BusinessPartnerID); err == nil {
			s.effects.emit(ctx, updated, notice{
				userID:  business.OwnerUserID,
				kind:    models.NotificationBookingRejected,
				title:   "Assignment declined",
				message: fmt.Sprintf("Booking %s needs a new partner", updated.BookingNumber),
				data:    map[string]interface{}{"reason": reason},
			})
		} else {
			s.logger.WithError(err).WithField("booking_id", updated.ID).Warn("Failed to load business for rejection notice")
		}
		return updated, nil
	}

	s.dispatchMatching(ctx, updated)
	return updated, nil
}

// Arrive records the partner at the service address. The reported position
// must be inside the geofence; the error carries the measured distance.
func (s *BookingService) Arrive(ctx context.Context, actor models.Actor, id uuid.UUID, req *models.ArriveRequest) (*models.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	booking, partner, err := s.assignedPartner(ctx, actor, id, OpArrive)
	if err != nil {
		return nil, err
	}

	distance := geo.DistanceKm(
		geo.Point{Lat: req.Latitude, Lng: req.Longitude},
		geo.Point{Lat: booking.ServiceLatitude, Lng: booking.ServiceLongitude},
	)
	if distance > s.policy.GeofenceRadiusKm {
		return nil, models.NewDomainError(models.ErrGeofenceViolation, "TOO_FAR_FROM_LOCATION",
			fmt.Sprintf("you are %.2f km from the service location, must be within %.2f km", distance, s.policy.GeofenceRadiusKm),
			map[string]interface{}{
				"distance_km": geo.RoundKm(distance),
				"radius_km":   s.policy.GeofenceRadiusKm,
			})
	}

	now := s.now()
	updated, err := s.transition(ctx, booking, OpArrive, actor, database.TransitionParams{
		RequirePartnerID: &partner.ID,
		Notes:            fmt.Sprintf("Arrived %.0f m from service location", distance*1000),
		Changes:          models.BookingChanges{ArrivedAt: &now},
	})
	if err != nil {
		return nil, err
	}

	if err := s.partners.UpdateLocation(ctx, partner.ID, req.Latitude, req.Longitude); err != nil {
		s.logger.WithError(err).WithField("partner_id", partner.ID).Warn("Failed to record arrival location")
	}

	s.effects.emit(ctx, updated, notice{
		userID:  updated.CustomerID,
		kind:    models.NotificationPartnerArrived,
		title:   "Partner arrived",
		message: "Your service partner has arrived",
	})
	return updated, nil
}

// UploadBeforePhotos attaches evidence of the site before work starts
func (s *BookingService) UploadBeforePhotos(ctx context.Context, actor models.Actor, id uuid.UUID, req *models.PhotosRequest) (*models.Booking, error) {
	return s.uploadPhotos(ctx, actor, id, OpUploadBefore, req)
}

// UploadAfterPhotos attaches evidence of the finished work
func (s *BookingService) UploadAfterPhotos(ctx context.Context, actor models.Actor, id uuid.UUID, req *models.PhotosRequest) (*models.Booking, error) {
	return s.uploadPhotos(ctx, actor, id, OpUploadAfter, req)
}

func (s *BookingService) uploadPhotos(ctx context.Context, actor models.Actor, id uuid.UUID, op BookingOperation, req *models.PhotosRequest) (*models.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	booking, partner, err := s.assignedPartner(ctx, actor, id, op)
	if err != nil {
		return nil, err
	}

	changes := models.BookingChanges{}
	if op == OpUploadBefore {
		changes.AppendBeforeImages = req.URLs
	} else {
		changes.AppendAfterImages = req.URLs
	}

	return s.transition(ctx, booking, op, actor, database.TransitionParams{
		RequirePartnerID: &partner.ID,
		Changes:          changes,
	})
}

// Start begins the job. When a start code was issued the partner must
// present it; a completion code is issued to the customer.
func (s *BookingService) Start(ctx context.Context, actor models.Actor, id uuid.UUID, otp string) (*models.Booking, error) {
	booking, partner, err := s.assignedPartner(ctx, actor, id, OpStart)
	if err != nil {
		return nil, err
	}

	if booking.StartOTP != nil {
		if _, err := inputValidator.ValidateOTP(otp, s.policy.StartOTPLength); err != nil {
			return nil, models.ValidationError("otp", err.Error())
		}
		if !otpMatches(booking.StartOTP, otp) {
			return nil, models.PreconditionError("INVALID_START_OTP", "start code does not match")
		}
	}

	completionOTP, err := s.newOTP(s.policy.CompletionOTPLength)
	if err != nil {
		return nil, err
	}

	now := s.now()
	updated, err := s.transition(ctx, booking, OpStart, actor, database.TransitionParams{
		RequirePartnerID: &partner.ID,
		Notes:            "Service started",
		Changes: models.BookingChanges{
			StartedAt:     &now,
			ClearStartOTP: true,
			CompletionOTP: completionOTP,
		},
	})
	if err != nil {
		return nil, err
	}

	s.effects.emit(ctx, updated, notice{
		userID:  updated.CustomerID,
		kind:    models.NotificationServiceStarted,
		title:   "Service started",
		message: "Your service has started. Share the completion code once the work is done.",
		data:    map[string]interface{}{"completion_otp": *completionOTP},
	})
	return updated, nil
}

// MarkPaid records an advance payment confirmed by the payment gateway or an admin
func (s *BookingService) MarkPaid(ctx context.Context, actor models.Actor, id uuid.UUID, reference string) (*models.Booking, error) {
	if !actor.IsAdmin() {
		return nil, models.UnauthorizedError("only admins can confirm payments")
	}
	if reference == "" {
		return nil, models.ValidationError("reference", "payment reference is required")
	}

	booking, err := s.load(ctx, id, OpMarkPaid)
	if err != nil {
		return nil, err
	}
	if booking.PaymentStatus != models.PaymentStatusPending {
		return nil, models.NewDomainError(models.ErrInvalidState, "PAYMENT_ALREADY_RECORDED",
			"booking payment is already "+string(booking.PaymentStatus), map[string]interface{}{
				"payment_status": string(booking.PaymentStatus),
			})
	}

	paid := models.PaymentStatusCompleted
	updated, err := s.transition(ctx, booking, OpMarkPaid, actor, database.TransitionParams{
		Changes: models.BookingChanges{
			PaymentStatus:    &paid,
			PaymentReference: &reference,
		},
	})
	if err != nil {
		return nil, err
	}

	s.effects.emit(ctx, updated, notice{
		userID:  updated.CustomerID,
		kind:    models.NotificationPaymentReceived,
		title:   "Payment received",
		message: fmt.Sprintf("We received your payment for booking %s", updated.BookingNumber),
	})
	return updated, nil
}
