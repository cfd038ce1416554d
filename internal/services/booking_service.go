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
	"github.com/servicehub/booking-engine/pkg/geo"
	"github.com/servicehub/booking-engine/pkg/idgen"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// BookingServiceDeps wires the booking service's collaborators
type BookingServiceDeps struct {
	Bookings   BookingStore
	Partners   PartnerStore
	Businesses BusinessPartnerStore
	Catalog    ServiceCatalog
	Matching   *MatchingService
	Settlement *SettlementService
	Payments   PaymentProvider
	Dispatcher MatchDispatcher
	Notifier   Notifier
	IDs        *idgen.Generator
	OTP        OTPGenerator
	Policy     BookingPolicy
	Currency   string
	Logger     *logrus.Logger
}

// BookingService owns the booking lifecycle. Every status change goes
// through the transition table and a guarded store update; notifications
// are emitted after the change commits.
type BookingService struct {
	bookings   BookingStore
	partners   PartnerStore
	businesses BusinessPartnerStore
	catalog    ServiceCatalog
	matching   *MatchingService
	settlement *SettlementService
	payments   PaymentProvider
	dispatcher MatchDispatcher
	effects    *effectEmitter
	ids        *idgen.Generator
	otp        OTPGenerator
	policy     BookingPolicy
	currency   string
	now        func() time.Time
	logger     *logrus.Logger
}

// NewBookingService validates deps and creates a BookingService
func NewBookingService(deps BookingServiceDeps) (*BookingService, error) {
	switch {
	case deps.Bookings == nil:
		return nil, errors.New("booking service: booking store is required")
	case deps.Partners == nil:
		return nil, errors.New("booking service: partner store is required")
	case deps.Businesses == nil:
		return nil, errors.New("booking service: business partner store is required")
	case deps.Catalog == nil:
		return nil, errors.New("booking service: service catalog is required")
	case deps.Matching == nil:
		return nil, errors.New("booking service: matching service is required")
	case deps.Settlement == nil:
		return nil, errors.New("booking service: settlement service is required")
	case deps.Payments == nil:
		return nil, errors.New("booking service: payment provider is required")
	case deps.Dispatcher == nil:
		return nil, errors.New("booking service: match dispatcher is required")
	case deps.Notifier == nil:
		return nil, errors.New("booking service: notifier is required")
	case deps.IDs == nil:
		return nil, errors.New("booking service: id generator is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}
	otp := deps.OTP
	if otp == nil {
		otp = RandomOTPGenerator{}
	}

	return &BookingService{
		bookings:   deps.Bookings,
		partners:   deps.Partners,
		businesses: deps.Businesses,
		catalog:    deps.Catalog,
		matching:   deps.Matching,
		settlement: deps.Settlement,
		payments:   deps.Payments,
		dispatcher: deps.Dispatcher,
		effects:    &effectEmitter{notifier: deps.Notifier, logger: logger},
		ids:        deps.IDs,
		otp:        otp,
		policy:     deps.Policy,
		currency:   deps.Currency,
		now:        time.Now,
		logger:     logger,
	}, nil
}

// ============================================================================
// CREATE
// ============================================================================

// Create prices and persists a booking for the calling customer, already
// routed to the business's queue or to open matching, in one store write
func (s *BookingService) Create(ctx context.Context, actor models.Actor, req *models.CreateBookingRequest) (*models.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	svc, err := s.catalog.GetByID(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if !svc.IsActive {
		return nil, models.ValidationError("service_id", "service is not available for booking")
	}

	var business *models.BusinessPartner
	if req.BusinessPartnerID != nil {
		business, err = s.businesses.GetByID(ctx, *req.BusinessPartnerID)
		if err != nil {
			return nil, err
		}
		if !business.IsActive {
			return nil, models.ValidationError("business_partner_id", "business partner is not accepting bookings")
		}
	}

	quote := s.policy.QuoteBooking(svc.BasePrice, svc.Multiplier(), req.Quantity)
	if !quote.Total.IsPositive() {
		return nil, fmt.Errorf("service %s has no price configured", svc.ID)
	}

	op := OpStartSearch
	if business != nil {
		op = OpRouteToBusiness
	}
	routedStatus, err := NextStatus(op, models.BookingStatusPending)
	if err != nil {
		return nil, err
	}

	now := s.now()
	booking := &models.Booking{
		ID:                uuid.New(),
		BookingNumber:     s.ids.BookingNumber(),
		CustomerID:        actor.UserID,
		BusinessPartnerID: req.BusinessPartnerID,
		Status:            routedStatus,
		ScheduledAt:       req.ScheduledAt,
		ServiceAddress:    req.ServiceAddress,
		ServiceLatitude:   req.Latitude,
		ServiceLongitude:  req.Longitude,
		TotalAmount:       quote.Total,
		AdvanceAmount:     quote.Advance,
		RemainingAmount:   quote.Remaining,
		PaymentStatus:     models.PaymentStatusPending,
		PaymentMethod:     req.PaymentMethod,
		EstimatedDuration: svc.DurationMinutes * req.Quantity,
		Notes:             req.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	items := []models.BookingItem{{
		ID:          uuid.New(),
		BookingID:   booking.ID,
		ServiceID:   svc.ID,
		CategoryID:  svc.CategoryID,
		ServiceName: svc.Name,
		Quantity:    req.Quantity,
		BasePrice:   svc.BasePrice,
		UnitPrice:   quote.UnitPrice,
		TotalPrice:  quote.Total,
		CreatedAt:   now,
	}}

	var payment *models.LedgerPosting
	if req.PaymentMethod == models.PaymentMethodWallet {
		bookingID := booking.ID
		payment = &models.LedgerPosting{
			UserID:      actor.UserID,
			Op:          models.LedgerDebit,
			Type:        models.TransactionBookingPayment,
			Amount:      quote.Total,
			Description: fmt.Sprintf("Payment for booking %s", booking.BookingNumber),
			BookingID:   &bookingID,
		}
		booking.PaymentStatus = models.PaymentStatusCompleted
		ref := "wallet"
		booking.PaymentReference = &ref
	}

	if err := s.bookings.Create(ctx, booking, items, payment); err != nil {
		return nil, err
	}
	booking.Items = items
	routed := booking

	s.logger.WithFields(logrus.Fields{
		"booking_id":     booking.ID,
		"booking_number": booking.BookingNumber,
		"customer_id":    actor.UserID,
		"status":         booking.Status,
		"total":          booking.TotalAmount.String(),
	}).Info("Booking created")

	s.effects.emit(ctx, routed, notice{
		userID:  routed.CustomerID,
		kind:    models.NotificationBookingCreated,
		title:   "Booking confirmed",
		message: fmt.Sprintf("Your booking %s has been received", routed.BookingNumber),
	})

	if business != nil {
		s.effects.emit(ctx, routed, notice{
			userID:  business.OwnerUserID,
			kind:    models.NotificationNewJob,
			title:   "New booking for your team",
			message: fmt.Sprintf("Booking %s is waiting for assignment", routed.BookingNumber),
		})
	} else {
		s.dispatchMatching(ctx, routed)
	}

	return routed, nil
}

// ============================================================================
// QUERIES
// ============================================================================

// Get returns a booking with its items, timeline and invoice when the actor
// may see it: customers their own, partners assigned or claimable jobs,
// business owners their business's bookings, admins everything
func (s *BookingService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.BookingDetails, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	visible, err := s.canView(ctx, actor, booking)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, models.UnauthorizedError("you do not have access to this booking")
	}

	history, err := s.bookings.GetHistory(ctx, id)
	if err != nil {
		return nil, err
	}

	details := &models.BookingDetails{
		Booking: booking,
		Items:   booking.Items,
		History: history,
	}

	if booking.Status == models.BookingStatusCompleted || booking.Status == models.BookingStatusRated {
		invoice, err := s.bookings.GetInvoice(ctx, id)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		details.Invoice = invoice
	}

	return details, nil
}

func (s *BookingService) canView(ctx context.Context, actor models.Actor, booking *models.Booking) (bool, error) {
	if actor.IsAdmin() || booking.CustomerID == actor.UserID {
		return true, nil
	}

	if actor.HasRole(models.RolePartner) {
		partner, err := s.partners.GetByUserID(ctx, actor.UserID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return false, err
		}
		if partner != nil {
			if booking.AssignedTo(partner.ID) {
				return true, nil
			}
			if claimableBy(booking, partner) {
				return true, nil
			}
		}
	}

	if actor.HasRole(models.RoleBusinessPartner) && booking.BusinessPartnerID != nil {
		business, err := s.businesses.GetByOwnerUserID(ctx, actor.UserID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return false, err
		}
		if business != nil && business.ID == *booking.BusinessPartnerID {
			return true, nil
		}
	}

	return false, nil
}

func claimableBy(booking *models.Booking, partner *models.ServicePartner) bool {
	if booking.IsAssigned() || booking.BusinessPartnerID != nil || booking.HasRejected(partner.ID) {
		return false
	}
	if !CanApply(OpClaim, booking.Status) {
		return false
	}
	item, ok := booking.PrimaryItem()
	return ok && item.CategoryID == partner.CategoryID
}

// List returns bookings scoped to the actor. Admins may filter freely; other
// callers only see bookings they are a party to.
func (s *BookingService) List(ctx context.Context, actor models.Actor, filter models.BookingFilter) ([]models.Booking, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, models.ValidationError("status", "unknown booking status "+string(*filter.Status))
	}

	if !actor.IsAdmin() {
		filter.CustomerID, filter.PartnerID, filter.BusinessPartnerID = nil, nil, nil
		switch {
		case actor.HasRole(models.RolePartner):
			partner, err := s.partners.GetByUserID(ctx, actor.UserID)
			if err != nil {
				return nil, err
			}
			filter.PartnerID = &partner.ID
		case actor.HasRole(models.RoleBusinessPartner):
			business, err := s.businesses.GetByOwnerUserID(ctx, actor.UserID)
			if err != nil {
				return nil, err
			}
			filter.BusinessPartnerID = &business.ID
		default:
			customerID := actor.UserID
			filter.CustomerID = &customerID
		}
	}

	return s.bookings.List(ctx, filter)
}

// ClaimableJob is an open booking near a partner
type ClaimableJob struct {
	Booking    models.Booking `json:"booking"`
	DistanceKm *float64       `json:"distance_km,omitempty"`
}

// ListClaimable returns open bookings in the partner's category they have not
// declined, limited to their service radius when their location is known
func (s *BookingService) ListClaimable(ctx context.Context, actor models.Actor, limit int) ([]ClaimableJob, error) {
	partner, err := s.partnerFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	bookings, err := s.bookings.ListClaimable(ctx, partner.CategoryID, partner.ID, limit)
	if err != nil {
		return nil, err
	}

	jobs := make([]ClaimableJob, 0, len(bookings))
	for _, b := range bookings {
		job := ClaimableJob{Booking: b}
		if partner.HasLocation() {
			d := geo.DistanceKm(
				geo.Point{Lat: *partner.CurrentLatitude, Lng: *partner.CurrentLongitude},
				geo.Point{Lat: b.ServiceLatitude, Lng: b.ServiceLongitude},
			)
			if d > partner.ServiceRadiusKm {
				continue
			}
			rounded := geo.RoundKm(d)
			job.DistanceKm = &rounded
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// ============================================================================
// HELPERS
// ============================================================================

// transition validates op against the booking's current status, then applies
// it with a guarded update. A rejected guard is reported with the status the
// booking actually has now.
func (s *BookingService) transition(ctx context.Context, booking *models.Booking, op BookingOperation, actor models.Actor, p database.TransitionParams) (*models.Booking, error) {
	next, err := NextStatus(op, booking.Status)
	if err != nil {
		return nil, err
	}

	p.BookingID = booking.ID
	if p.From == nil {
		p.From = AllowedFrom(op)
	}
	if p.To == "" && bookingTransitions[op].to != "" {
		p.To = next
	}
	if p.ActorID == nil {
		actorID := actor.UserID
		p.ActorID = &actorID
	}

	updated, err := s.bookings.Transition(ctx, p)
	if err != nil {
		if errors.Is(err, database.ErrTransitionRejected) {
			return nil, s.rejected(ctx, booking.ID, op)
		}
		return nil, err
	}
	updated.Items = booking.Items

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"operation":  op,
		"from":       booking.Status,
		"to":         updated.Status,
		"actor_id":   actor.UserID,
	}).Info("Booking transition applied")

	return updated, nil
}

// rejected builds the error for a transition whose guard no longer held
func (s *BookingService) rejected(ctx context.Context, id uuid.UUID, op BookingOperation) error {
	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return invalidTransition(op, current.Status)
}

// load fetches a booking and checks op is legal before any other work
func (s *BookingService) load(ctx context.Context, id uuid.UUID, op BookingOperation) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := NextStatus(op, booking.Status); err != nil {
		return nil, err
	}
	return booking, nil
}

// partnerFor resolves the actor's service partner profile
func (s *BookingService) partnerFor(ctx context.Context, actor models.Actor) (*models.ServicePartner, error) {
	partner, err := s.partners.GetByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.UnauthorizedError("caller is not a service partner")
		}
		return nil, err
	}
	return partner, nil
}

// assignedPartner loads the booking and the actor's partner profile and
// checks the actor holds the booking
func (s *BookingService) assignedPartner(ctx context.Context, actor models.Actor, id uuid.UUID, op BookingOperation) (*models.Booking, *models.ServicePartner, error) {
	partner, err := s.partnerFor(ctx, actor)
	if err != nil {
		return nil, nil, err
	}
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !booking.AssignedTo(partner.ID) {
		return nil, nil, models.UnauthorizedError("booking is not assigned to you")
	}
	if _, err := NextStatus(op, booking.Status); err != nil {
		return nil, nil, err
	}
	return booking, partner, nil
}

func (s *BookingService) newOTP(length int) (*string, error) {
	code, err := s.otp.Generate(length)
	if err != nil {
		return nil, err
	}
	return &code, nil
}

func stringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
