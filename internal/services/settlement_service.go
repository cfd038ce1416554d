package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/servicehub/booking-engine/internal/models"
)

// Settlement is the revenue split for a completed booking
type Settlement struct {
	FinalTotal      decimal.Decimal
	CommissionRate  decimal.Decimal
	PlatformFee     decimal.Decimal
	PartnerEarnings decimal.Decimal
	PayeeUserID     uuid.UUID
	PlatformUserID  uuid.UUID
	Postings        []models.LedgerPosting
}

// SettlementService computes commission splits and the wallet postings that
// pay them out. Postings are applied by the booking store in the same
// transaction that completes the booking, so a booking settles at most once.
type SettlementService struct {
	partners       PartnerStore
	businesses     BusinessPartnerStore
	users          UserStore
	platformRate   decimal.Decimal
	platformUserID *uuid.UUID

	mu             sync.Mutex
	resolvedSinkID *uuid.UUID
	logger         *logrus.Logger
}

// NewSettlementService creates a new SettlementService. platformUserID pins
// the commission sink; when nil the first super admin account is used.
func NewSettlementService(
	partners PartnerStore,
	businesses BusinessPartnerStore,
	users UserStore,
	platformRate decimal.Decimal,
	platformUserID *uuid.UUID,
	logger *logrus.Logger,
) *SettlementService {
	return &SettlementService{
		partners:       partners,
		businesses:     businesses,
		users:          users,
		platformRate:   platformRate,
		platformUserID: platformUserID,
		logger:         logger,
	}
}

// Settle splits finalTotal between the platform and the payee. Business
// bookings pay the business owner at the business's commission rate;
// independent bookings pay the assigned partner at the platform rate.
func (s *SettlementService) Settle(ctx context.Context, booking *models.Booking, finalTotal decimal.Decimal) (*Settlement, error) {
	if booking.PartnerID == nil {
		return nil, fmt.Errorf("cannot settle booking %s without an assigned partner", booking.ID)
	}
	if !finalTotal.IsPositive() {
		return nil, fmt.Errorf("cannot settle booking %s with total %s", booking.ID, finalTotal)
	}

	rate := s.platformRate
	var payee uuid.UUID

	if booking.BusinessPartnerID != nil {
		business, err := s.businesses.GetByID(ctx, *booking.BusinessPartnerID)
		if err != nil {
			return nil, fmt.Errorf("failed to load business partner for settlement: %w", err)
		}
		if business.CommissionRate.IsNegative() || business.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("business partner %s has invalid commission rate %s", business.ID, business.CommissionRate)
		}
		rate = business.CommissionRate
		payee = business.OwnerUserID
	} else {
		partner, err := s.partners.GetByID(ctx, *booking.PartnerID)
		if err != nil {
			return nil, fmt.Errorf("failed to load partner for settlement: %w", err)
		}
		payee = partner.UserID
	}

	sink, err := s.platformSink(ctx)
	if err != nil {
		return nil, err
	}

	fee, earnings := SplitCommission(finalTotal, rate)
	bookingID := booking.ID

	settlement := &Settlement{
		FinalTotal:      finalTotal,
		CommissionRate:  rate,
		PlatformFee:     fee,
		PartnerEarnings: earnings,
		PayeeUserID:     payee,
		PlatformUserID:  sink,
	}
	if earnings.IsPositive() {
		settlement.Postings = append(settlement.Postings, models.LedgerPosting{
			UserID:      payee,
			Op:          models.LedgerCredit,
			Type:        models.TransactionEarning,
			Amount:      earnings,
			Description: fmt.Sprintf("Earnings for booking %s", booking.BookingNumber),
			BookingID:   &bookingID,
		})
	}
	if fee.IsPositive() {
		settlement.Postings = append(settlement.Postings, models.LedgerPosting{
			UserID:      sink,
			Op:          models.LedgerCredit,
			Type:        models.TransactionCommission,
			Amount:      fee,
			Description: fmt.Sprintf("Platform commission for booking %s", booking.BookingNumber),
			BookingID:   &bookingID,
		})
	}

	return settlement, nil
}

func (s *SettlementService) platformSink(ctx context.Context) (uuid.UUID, error) {
	if s.platformUserID != nil {
		return *s.platformUserID, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolvedSinkID != nil {
		return *s.resolvedSinkID, nil
	}

	admin, err := s.users.FindFirstByRole(ctx, models.RoleSuperAdmin)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return uuid.Nil, fmt.Errorf("no platform commission account: configure PLATFORM_WALLET_USER_ID or create a super admin")
		}
		return uuid.Nil, fmt.Errorf("failed to resolve platform commission account: %w", err)
	}
	s.resolvedSinkID = &admin.ID
	s.logger.WithField("user_id", admin.ID).Info("Platform commission sink resolved to super admin")
	return admin.ID, nil
}
