package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/servicehub/booking-engine/internal/database"
	"github.com/servicehub/booking-engine/internal/models"
)

// Complete is the admin override that closes an in-progress job without the
// customer's completion code. Partners finish through VerifyCompletionOTP.
func (s *BookingService) Complete(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	if !actor.IsAdmin() {
		return nil, models.UnauthorizedError("only an admin can complete a booking without the completion code")
	}

	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := NextStatus(OpComplete, booking.Status); err != nil {
		return nil, err
	}
	if booking.PartnerID == nil {
		return nil, models.PreconditionError("NO_PARTNER", "booking has no assigned partner")
	}
	partner, err := s.partners.GetByID(ctx, *booking.PartnerID)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"admin_id":   actor.UserID,
	}).Warn("Booking completed by admin override")
	return s.complete(ctx, actor, booking, partner)
}

// VerifyCompletionOTP finishes the job once the customer's completion code
// matches and both photo sets are present
func (s *BookingService) VerifyCompletionOTP(ctx context.Context, actor models.Actor, id uuid.UUID, otp string) (*models.Booking, error) {
	if _, err := inputValidator.ValidateOTP(otp, s.policy.CompletionOTPLength); err != nil {
		return nil, models.ValidationError("otp", err.Error())
	}

	booking, partner, err := s.assignedPartner(ctx, actor, id, OpComplete)
	if err != nil {
		return nil, err
	}
	if len(booking.BeforeImages) == 0 {
		return nil, models.PreconditionError("BEFORE_PHOTOS_REQUIRED", "upload before-service photos first")
	}
	if len(booking.AfterImages) == 0 {
		return nil, models.PreconditionError("AFTER_PHOTOS_REQUIRED", "upload after-service photos first")
	}
	if !otpMatches(booking.CompletionOTP, otp) {
		return nil, models.PreconditionError("INVALID_COMPLETION_OTP", "completion code does not match")
	}

	return s.complete(ctx, actor, booking, partner)
}

// complete prices overtime, settles, invoices and closes the booking in one
// store transaction. Missing price data aborts: no booking reaches
// COMPLETED with its money unaccounted for.
func (s *BookingService) complete(ctx context.Context, actor models.Actor, booking *models.Booking, partner *models.ServicePartner) (*models.Booking, error) {
	if booking.StartedAt == nil {
		return nil, fmt.Errorf("booking %s is in progress without a start time", booking.ID)
	}
	item, ok := booking.PrimaryItem()
	if !ok {
		return nil, fmt.Errorf("booking %s has no items to price overtime from", booking.ID)
	}

	now := s.now()
	actual := ActualDurationMinutes(*booking.StartedAt, now)
	overtime := s.policy.OvertimeCharge(actual, booking.EstimatedDuration, item.BasePrice)
	finalTotal := booking.TotalAmount.Add(overtime)

	settlement, err := s.settlement.Settle(ctx, booking, finalTotal)
	if err != nil {
		return nil, fmt.Errorf("failed to settle booking %s: %w", booking.BookingNumber, err)
	}

	tax, grandTotal := s.policy.InvoiceAmounts(finalTotal)
	invoice := &models.Invoice{
		ID:             uuid.New(),
		InvoiceNumber:  s.ids.InvoiceNumber(),
		BookingID:      booking.ID,
		CustomerID:     booking.CustomerID,
		Subtotal:       finalTotal,
		OvertimeCharge: overtime,
		TaxRate:        s.policy.TaxRate,
		TaxAmount:      tax,
		GrandTotal:     grandTotal,
		IssuedAt:       now,
	}

	notes := "Service completed"
	if overtime.IsPositive() {
		notes = fmt.Sprintf("Service completed with %d minutes overtime", actual-booking.EstimatedDuration)
	}

	updated, err := s.bookings.Complete(ctx, database.CompletionParams{
		BookingID:        booking.ID,
		PartnerID:        partner.ID,
		ActorID:          actor.UserID,
		CompletedAt:      now,
		ActualDuration:   actual,
		OvertimeCharge:   overtime,
		TotalAmount:      finalTotal,
		RemainingAmount:  booking.RemainingAmount.Add(overtime),
		PlatformFee:      settlement.PlatformFee,
		CommissionAmount: settlement.PartnerEarnings,
		Postings:         settlement.Postings,
		Invoice:          invoice,
		Notes:            notes,
	})
	if err != nil {
		if errors.Is(err, database.ErrTransitionRejected) {
			return nil, s.rejected(ctx, booking.ID, OpComplete)
		}
		return nil, err
	}
	updated.Items = booking.Items

	s.logger.WithFields(logrus.Fields{
		"booking_id":       booking.ID,
		"partner_id":       partner.ID,
		"actual_minutes":   actual,
		"overtime_charge":  overtime.String(),
		"final_total":      finalTotal.String(),
		"platform_fee":     settlement.PlatformFee.String(),
		"partner_earnings": settlement.PartnerEarnings.String(),
	}).Info("Booking completed and settled")

	s.effects.emit(ctx, updated,
		notice{
			userID:  updated.CustomerID,
			kind:    models.NotificationServiceCompleted,
			title:   "Service completed",
			message: fmt.Sprintf("Invoice %s: total %s", invoice.InvoiceNumber, grandTotal.StringFixed(2)),
			data: map[string]interface{}{
				"invoice_number": invoice.InvoiceNumber,
				"grand_total":    grandTotal.StringFixed(2),
			},
		},
		notice{
			userID:  settlement.PayeeUserID,
			kind:    models.NotificationPaymentReceived,
			title:   "Earnings credited",
			message: fmt.Sprintf("%s credited for booking %s", settlement.PartnerEarnings.StringFixed(2), updated.BookingNumber),
			data:    map[string]interface{}{"amount": settlement.PartnerEarnings.StringFixed(2)},
		},
	)
	return updated, nil
}

// Rate records the customer's single review and folds it into the
// partner's running average
func (s *BookingService) Rate(ctx context.Context, actor models.Actor, id uuid.UUID, req *models.RateBookingRequest) (*models.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.CustomerID != actor.UserID {
		return nil, models.UnauthorizedError("only the customer can rate this booking")
	}
	if _, err := NextStatus(OpRate, booking.Status); err != nil {
		return nil, err
	}
	if booking.PartnerID == nil {
		return nil, models.PreconditionError("NO_PARTNER", "booking has no partner to rate")
	}

	rating := &models.Rating{
		ID:        uuid.New(),
		BookingID: booking.ID,
		RaterID:   actor.UserID,
		PartnerID: *booking.PartnerID,
		Rating:    req.Rating,
		Review:    req.Review,
		CreatedAt: s.now(),
	}

	updated, err := s.bookings.Rate(ctx, rating)
	if err != nil {
		if errors.Is(err, database.ErrTransitionRejected) {
			return nil, s.rejected(ctx, booking.ID, OpRate)
		}
		return nil, err
	}
	updated.Items = booking.Items

	if partner, err := s.partners.GetByID(ctx, rating.PartnerID); err == nil {
		s.effects.emit(ctx, updated, notice{
			userID:  partner.UserID,
			kind:    models.NotificationBookingRated,
			title:   "New rating",
			message: fmt.Sprintf("You received %d stars for booking %s", rating.Rating, updated.BookingNumber),
			data:    map[string]interface{}{"rating": rating.Rating},
		})
	}
	return updated, nil
}
