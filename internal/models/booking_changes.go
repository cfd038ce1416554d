package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BookingChanges lists the column updates a transition makes alongside the status change.
// Nil fields are left untouched.
type BookingChanges struct {
	PartnerID          *uuid.UUID
	ClearPartner       bool
	AssignedAt         *time.Time
	AcceptedAt         *time.Time
	ArrivedAt          *time.Time
	StartedAt          *time.Time
	CancelledAt        *time.Time
	CancelledBy        *uuid.UUID
	CancellationReason *string
	StartOTP           *string
	ClearStartOTP      bool
	CompletionOTP      *string
	RefundAmount       *decimal.Decimal
	PaymentStatus      *PaymentStatus
	PaymentReference   *string
	AppendBeforeImages []string
	AppendAfterImages  []string
	AppendRejected     *uuid.UUID
}

// Apply mutates b the same way the store's UPDATE does
func (c BookingChanges) Apply(b *Booking) {
	if c.PartnerID != nil {
		id := *c.PartnerID
		b.PartnerID = &id
	}
	if c.ClearPartner {
		b.PartnerID = nil
	}
	if c.AssignedAt != nil {
		b.AssignedAt = c.AssignedAt
	}
	if c.AcceptedAt != nil {
		b.AcceptedAt = c.AcceptedAt
	}
	if c.ArrivedAt != nil {
		b.ArrivedAt = c.ArrivedAt
	}
	if c.StartedAt != nil {
		b.StartedAt = c.StartedAt
	}
	if c.CancelledAt != nil {
		b.CancelledAt = c.CancelledAt
	}
	if c.CancelledBy != nil {
		b.CancelledBy = c.CancelledBy
	}
	if c.CancellationReason != nil {
		b.CancellationReason = c.CancellationReason
	}
	if c.StartOTP != nil {
		b.StartOTP = c.StartOTP
	}
	if c.ClearStartOTP {
		b.StartOTP = nil
	}
	if c.CompletionOTP != nil {
		b.CompletionOTP = c.CompletionOTP
	}
	if c.RefundAmount != nil {
		b.RefundAmount = *c.RefundAmount
	}
	if c.PaymentStatus != nil {
		b.PaymentStatus = *c.PaymentStatus
	}
	if c.PaymentReference != nil {
		b.PaymentReference = c.PaymentReference
	}
	if len(c.AppendBeforeImages) > 0 {
		b.BeforeImages = append(append(StringArray{}, b.BeforeImages...), c.AppendBeforeImages...)
	}
	if len(c.AppendAfterImages) > 0 {
		b.AfterImages = append(append(StringArray{}, b.AfterImages...), c.AppendAfterImages...)
	}
	if c.AppendRejected != nil {
		b.RejectedPartnerIDs = append(append(UUIDArray{}, b.RejectedPartnerIDs...), c.AppendRejected.String())
	}
}
