package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BookingStatus represents the lifecycle status of a service booking
type BookingStatus string

const (
	BookingStatusPending           BookingStatus = "PENDING"
	BookingStatusPendingAssignment BookingStatus = "PENDING_ASSIGNMENT"
	BookingStatusSearchingPartner  BookingStatus = "SEARCHING_PARTNER"
	BookingStatusPartnerAssigned   BookingStatus = "PARTNER_ASSIGNED"
	BookingStatusPartnerAccepted   BookingStatus = "PARTNER_ACCEPTED"
	BookingStatusArrived           BookingStatus = "ARRIVED"
	BookingStatusInProgress        BookingStatus = "IN_PROGRESS"
	BookingStatusCompleted         BookingStatus = "COMPLETED"
	BookingStatusRated             BookingStatus = "RATED"
	BookingStatusCancelled         BookingStatus = "CANCELLED"
	BookingStatusPartnerNotFound   BookingStatus = "PARTNER_NOT_FOUND"
)

// AllBookingStatuses lists every status in lifecycle order
func AllBookingStatuses() []BookingStatus {
	return []BookingStatus{
		BookingStatusPending,
		BookingStatusPendingAssignment,
		BookingStatusSearchingPartner,
		BookingStatusPartnerAssigned,
		BookingStatusPartnerAccepted,
		BookingStatusArrived,
		BookingStatusInProgress,
		BookingStatusCompleted,
		BookingStatusRated,
		BookingStatusCancelled,
		BookingStatusPartnerNotFound,
	}
}

// IsValid reports whether s is a known status
func (s BookingStatus) IsValid() bool {
	for _, status := range AllBookingStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further lifecycle transition (other than rating) can happen
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusRated || s == BookingStatusCancelled
}

// PaymentStatus represents the payment status of a booking
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusCompleted         PaymentStatus = "COMPLETED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// PaymentMethod is how the customer pays the advance
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "CASH"
	PaymentMethodOnline PaymentMethod = "ONLINE"
	PaymentMethodWallet PaymentMethod = "WALLET"
)

// IsValid reports whether m is a supported payment method
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodOnline, PaymentMethodWallet:
		return true
	}
	return false
}

// Booking is a customer's request for a home service at a place and time
type Booking struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	BookingNumber      string          `json:"booking_number" db:"booking_number"`
	CustomerID         uuid.UUID       `json:"customer_id" db:"customer_id"`
	PartnerID          *uuid.UUID      `json:"partner_id,omitempty" db:"partner_id"`
	BusinessPartnerID  *uuid.UUID      `json:"business_partner_id,omitempty" db:"business_partner_id"`
	Status             BookingStatus   `json:"status" db:"status"`
	ScheduledAt        time.Time       `json:"scheduled_at" db:"scheduled_at"`
	ServiceAddress     string          `json:"service_address" db:"service_address"`
	ServiceLatitude    float64         `json:"service_latitude" db:"service_latitude"`
	ServiceLongitude   float64         `json:"service_longitude" db:"service_longitude"`
	TotalAmount        decimal.Decimal `json:"total_amount" db:"total_amount"`
	AdvanceAmount      decimal.Decimal `json:"advance_amount" db:"advance_amount"`
	RemainingAmount    decimal.Decimal `json:"remaining_amount" db:"remaining_amount"`
	OvertimeCharge     decimal.Decimal `json:"overtime_charge" db:"overtime_charge"`
	PlatformFee        decimal.Decimal `json:"platform_fee" db:"platform_fee"`
	CommissionAmount   decimal.Decimal `json:"commission_amount" db:"commission_amount"`
	RefundAmount       decimal.Decimal `json:"refund_amount" db:"refund_amount"`
	PaymentStatus      PaymentStatus   `json:"payment_status" db:"payment_status"`
	PaymentMethod      PaymentMethod   `json:"payment_method" db:"payment_method"`
	PaymentReference   *string         `json:"payment_reference,omitempty" db:"payment_reference"`
	EstimatedDuration  int             `json:"estimated_duration" db:"estimated_duration"`
	ActualDuration     *int            `json:"actual_duration,omitempty" db:"actual_duration"`
	StartOTP           *string         `json:"-" db:"start_otp"`
	CompletionOTP      *string         `json:"-" db:"completion_otp"`
	BeforeImages       StringArray     `json:"before_images" db:"before_images"`
	AfterImages        StringArray     `json:"after_images" db:"after_images"`
	RejectedPartnerIDs UUIDArray       `json:"-" db:"rejected_partner_ids"`
	AssignedAt         *time.Time      `json:"assigned_at,omitempty" db:"assigned_at"`
	AcceptedAt         *time.Time      `json:"accepted_at,omitempty" db:"accepted_at"`
	ArrivedAt          *time.Time      `json:"arrived_at,omitempty" db:"arrived_at"`
	StartedAt          *time.Time      `json:"started_at,omitempty" db:"started_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelledBy        *uuid.UUID      `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancellationReason *string         `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	Notes              *string         `json:"notes,omitempty" db:"notes"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`

	Items []BookingItem `json:"items,omitempty" db:"-"`
}

// IsAssigned reports whether a service partner holds the booking
func (b *Booking) IsAssigned() bool {
	return b.PartnerID != nil
}

// AssignedTo reports whether partnerID holds the booking
func (b *Booking) AssignedTo(partnerID uuid.UUID) bool {
	return b.PartnerID != nil && *b.PartnerID == partnerID
}

// HasRejected reports whether partnerID already turned the booking down
func (b *Booking) HasRejected(partnerID uuid.UUID) bool {
	return b.RejectedPartnerIDs.Contains(partnerID.String())
}

// PrimaryItem returns the booking's single item, which carries the service category
func (b *Booking) PrimaryItem() (*BookingItem, bool) {
	if len(b.Items) == 0 {
		return nil, false
	}
	return &b.Items[0], true
}

// BookingItem is a snapshot of the ordered service
type BookingItem struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	BookingID   uuid.UUID       `json:"booking_id" db:"booking_id"`
	ServiceID   uuid.UUID       `json:"service_id" db:"service_id"`
	CategoryID  uuid.UUID       `json:"category_id" db:"category_id"`
	ServiceName string          `json:"service_name" db:"service_name"`
	Quantity    int             `json:"quantity" db:"quantity"`
	BasePrice   decimal.Decimal `json:"base_price" db:"base_price"` // catalog price before the multiplier; overtime is billed from it
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price" db:"total_price"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// BookingStatusHistory is one append-only entry of a booking's timeline
type BookingStatusHistory struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	BookingID uuid.UUID     `json:"booking_id" db:"booking_id"`
	Status    BookingStatus `json:"status" db:"status"`
	ActorID   *uuid.UUID    `json:"actor_id,omitempty" db:"actor_id"`
	Notes     *string       `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// Rating is the customer's single review of a completed booking
type Rating struct {
	ID        uuid.UUID `json:"id" db:"id"`
	BookingID uuid.UUID `json:"booking_id" db:"booking_id"`
	RaterID   uuid.UUID `json:"rater_id" db:"rater_id"`
	PartnerID uuid.UUID `json:"partner_id" db:"partner_id"`
	Rating    int       `json:"rating" db:"rating"`
	Review    *string   `json:"review,omitempty" db:"review"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Invoice is issued once when a booking completes
type Invoice struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	InvoiceNumber  string          `json:"invoice_number" db:"invoice_number"`
	BookingID      uuid.UUID       `json:"booking_id" db:"booking_id"`
	CustomerID     uuid.UUID       `json:"customer_id" db:"customer_id"`
	Subtotal       decimal.Decimal `json:"subtotal" db:"subtotal"`
	OvertimeCharge decimal.Decimal `json:"overtime_charge" db:"overtime_charge"`
	TaxRate        decimal.Decimal `json:"tax_rate" db:"tax_rate"`
	TaxAmount      decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	GrandTotal     decimal.Decimal `json:"grand_total" db:"grand_total"`
	IssuedAt       time.Time       `json:"issued_at" db:"issued_at"`
}

// BookingDetails is a booking with its items and timeline
type BookingDetails struct {
	Booking *Booking               `json:"booking"`
	Items   []BookingItem          `json:"items"`
	History []BookingStatusHistory `json:"history"`
	Invoice *Invoice               `json:"invoice,omitempty"`
}

// BookingFilter narrows booking listings
type BookingFilter struct {
	Status            *BookingStatus
	CustomerID        *uuid.UUID
	PartnerID         *uuid.UUID
	BusinessPartnerID *uuid.UUID
	From              *time.Time
	To                *time.Time
	Limit             int
	Offset            int
}
