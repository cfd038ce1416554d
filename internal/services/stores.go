package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/servicehub/booking-engine/internal/database"
	"github.com/servicehub/booking-engine/internal/models"
)

// BookingStore persists bookings and applies guarded transitions
type BookingStore interface {
	Create(ctx context.Context, booking *models.Booking, items []models.BookingItem, payment *models.LedgerPosting) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetHistory(ctx context.Context, bookingID uuid.UUID) ([]models.BookingStatusHistory, error)
	GetInvoice(ctx context.Context, bookingID uuid.UUID) (*models.Invoice, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	ListClaimable(ctx context.Context, categoryID, partnerID uuid.UUID, limit int) ([]models.Booking, error)
	ListStale(ctx context.Context, status models.BookingStatus, cutoff time.Time, limit int) ([]models.Booking, error)
	ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
	Transition(ctx context.Context, p database.TransitionParams) (*models.Booking, error)
	Complete(ctx context.Context, p database.CompletionParams) (*models.Booking, error)
	Rate(ctx context.Context, rating *models.Rating) (*models.Booking, error)
}

// PartnerStore reads and updates service partner profiles
type PartnerStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ServicePartner, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.ServicePartner, error)
	FindAvailableByCategory(ctx context.Context, categoryID uuid.UUID, businessPartnerID *uuid.UUID) ([]models.ServicePartner, error)
	GetActiveAssociation(ctx context.Context, businessPartnerID, partnerID uuid.UUID) (*models.PartnerAssociation, error)
	UpdateAvailability(ctx context.Context, partnerID uuid.UUID, status models.AvailabilityStatus) error
	UpdateLocation(ctx context.Context, partnerID uuid.UUID, lat, lng float64) error
	UpdateKYCStatus(ctx context.Context, partnerID uuid.UUID, status models.KYCStatus) error
}

// BusinessPartnerStore reads business partner records
type BusinessPartnerStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.BusinessPartner, error)
	GetByOwnerUserID(ctx context.Context, userID uuid.UUID) (*models.BusinessPartner, error)
}

// ServiceCatalog reads bookable services
type ServiceCatalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error)
}

// WalletStore is the wallet ledger
type WalletStore interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Post(ctx context.Context, posting models.LedgerPosting) (*models.Transaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error)
	CreateWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.WithdrawalRequest, error)
	GetWithdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, status *models.WithdrawalStatus, limit, offset int) ([]models.WithdrawalRequest, error)
	CompleteWithdrawal(ctx context.Context, id, processedBy uuid.UUID, reference string) (*models.WithdrawalRequest, error)
	RejectWithdrawal(ctx context.Context, id, processedBy uuid.UUID, reason string) (*models.WithdrawalRequest, error)
}

// UserStore looks up users
type UserStore interface {
	FindFirstByRole(ctx context.Context, role string) (*models.User, error)
}

// NotificationStore persists in-app notifications
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
}

// MatchDispatcher schedules matching for a booking outside the request path
type MatchDispatcher interface {
	Dispatch(ctx context.Context, bookingID uuid.UUID) error
}
