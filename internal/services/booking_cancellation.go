package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/servicehub/booking-engine/internal/database"
	"github.com/servicehub/booking-engine/internal/models"
)

// Cancel closes a booking on behalf of its customer, its assigned partner or
// an admin. Paid bookings are refunded by tier before the status changes; a
// failed provider refund aborts the cancellation.
func (s *BookingService) Cancel(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Booking, error) {
	booking, err := s.load(ctx, id, OpCancel)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeCancel(ctx, actor, booking); err != nil {
		return nil, err
	}

	return s.cancel(ctx, actor, booking, reason)
}

func (s *BookingService) authorizeCancel(ctx context.Context, actor models.Actor, booking *models.Booking) error {
	if actor.IsAdmin() || booking.CustomerID == actor.UserID {
		return nil
	}
	if booking.PartnerID != nil && actor.HasRole(models.RolePartner) {
		partner, err := s.partners.GetByUserID(ctx, actor.UserID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		if partner != nil && booking.AssignedTo(partner.ID) {
			return nil
		}
	}
	return models.UnauthorizedError("only the customer or the assigned partner can cancel this booking")
}

func (s *BookingService) cancel(ctx context.Context, actor models.Actor, booking *models.Booking, reason string) (*models.Booking, error) {
	now := s.now()
	params := database.TransitionParams{
		Notes: "Cancelled",
		Changes: models.BookingChanges{
			CancelledAt:        &now,
			CancellationReason: stringPtr(reason),
			ClearStartOTP:      true,
		},
	}
	if reason != "" {
		params.Notes = "Cancelled: " + reason
	}
	if !actor.IsSystem() {
		cancelledBy := actor.UserID
		params.Changes.CancelledBy = &cancelledBy
	}

	refund := decimal.Zero
	if booking.PaymentStatus == models.PaymentStatusCompleted {
		refund = RefundAmount(booking.TotalAmount, booking.ScheduledAt, now)
	}

	if refund.IsPositive() {
		status := models.PaymentStatusPartiallyRefunded
		if refund.Equal(booking.TotalAmount) {
			status = models.PaymentStatusRefunded
		}
		params.Changes.RefundAmount = &refund
		params.Changes.PaymentStatus = &status

		if booking.PaymentMethod == models.PaymentMethodWallet {
			bookingID := booking.ID
			params.Postings = []models.LedgerPosting{{
				UserID:      booking.CustomerID,
				Op:          models.LedgerCredit,
				Type:        models.TransactionRefund,
				Amount:      refund,
				Description: fmt.Sprintf("Refund for cancelled booking %s", booking.BookingNumber),
				BookingID:   &bookingID,
			}}
		} else {
			result, err := s.payments.Refund(ctx, RefundRequest{
				BookingID:        booking.ID,
				PaymentReference: derefString(booking.PaymentReference),
				Amount:           refund,
				Currency:         s.currency,
				Reason:           reason,
				IdempotencyKey:   RefundIdempotencyKey(booking.ID),
			})
			if err != nil {
				return nil, fmt.Errorf("refund for booking %s failed, booking not cancelled: %w", booking.BookingNumber, err)
			}
			params.Changes.PaymentReference = &result.Reference
		}
	}

	updated, err := s.transition(ctx, booking, OpCancel, actor, params)
	if err != nil {
		if refund.IsPositive() && booking.PaymentMethod != models.PaymentMethodWallet {
			s.logger.WithFields(logrus.Fields{
				"booking_id":       booking.ID,
				"refund":           refund.String(),
				"refund_reference": derefString(params.Changes.PaymentReference),
				"idempotency_key":  RefundIdempotencyKey(booking.ID),
				"error":            err.Error(),
			}).Error("Refund issued but cancellation was not recorded")
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"actor_id":   actor.UserID,
		"refund":     refund.String(),
	}).Info("Booking cancelled")

	message := fmt.Sprintf("Booking %s was cancelled", updated.BookingNumber)
	if refund.IsPositive() {
		message += fmt.Sprintf(". A refund of %s is on its way", refund.StringFixed(2))
	}
	notices := []notice{{
		userID:  updated.CustomerID,
		kind:    models.NotificationBookingCancelled,
		title:   "Booking cancelled",
		message: message,
		data:    map[string]interface{}{"refund_amount": refund.StringFixed(2)},
	}}
	if booking.PartnerID != nil {
		if partner, err := s.partners.GetByID(ctx, *booking.PartnerID); err == nil {
			notices = append(notices, notice{
				userID:  partner.UserID,
				kind:    models.NotificationBookingCancelled,
				title:   "Job cancelled",
				message: fmt.Sprintf("Booking %s was cancelled", updated.BookingNumber),
			})
		}
	}
	s.effects.emit(ctx, updated, notices...)

	return updated, nil
}

// ExpireAbandoned cancels PENDING bookings created before cutoff whose
// payment never arrived. It returns how many were cancelled.
func (s *BookingService) ExpireAbandoned(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	bookings, err := s.bookings.ListAbandoned(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for i := range bookings {
		booking := &bookings[i]
		if _, err := s.cancel(ctx, models.SystemActor(), booking, "No payment received"); err != nil {
			if errors.Is(err, models.ErrInvalidState) {
				continue
			}
			s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Failed to expire abandoned booking")
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
