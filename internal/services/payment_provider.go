package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/refund"
)

// RefundRequest asks the payment provider to return money for a booking.
// Requests carrying the same IdempotencyKey must move money at most once.
type RefundRequest struct {
	BookingID        uuid.UUID
	PaymentReference string
	Amount           decimal.Decimal
	Currency         string
	Reason           string
	IdempotencyKey   string
}

// RefundIdempotencyKey is the provider key for a booking's cancellation refund.
// A booking is cancelled at most once, so one key per booking.
func RefundIdempotencyKey(bookingID uuid.UUID) string {
	return "booking-refund-" + bookingID.String()
}

// RefundResult is the provider's acknowledgement
type RefundResult struct {
	Reference string
	Status    string
}

// PaymentProvider issues refunds for payments taken outside the wallet
type PaymentProvider interface {
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

// StripeRefundProvider refunds the PaymentIntent recorded as the booking's payment reference
type StripeRefundProvider struct {
	logger *logrus.Logger
}

// NewStripeRefundProvider sets the stripe API key and returns the provider
func NewStripeRefundProvider(secretKey string, logger *logrus.Logger) *StripeRefundProvider {
	stripe.Key = secretKey
	return &StripeRefundProvider{logger: logger}
}

// Refund creates a partial or full refund in minor currency units
func (p *StripeRefundProvider) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if req.PaymentReference == "" {
		return nil, fmt.Errorf("booking %s has no payment reference to refund", req.BookingID)
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentReference),
		Amount:        stripe.Int64(req.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.AddMetadata("booking_id", req.BookingID.String())
	if req.Reason != "" {
		params.AddMetadata("cancellation_reason", req.Reason)
	}

	r, err := refund.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe refund failed: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"booking_id": req.BookingID,
		"refund_id":  r.ID,
		"amount":     req.Amount.String(),
		"status":     r.Status,
	}).Info("Refund issued")

	return &RefundResult{Reference: r.ID, Status: string(r.Status)}, nil
}

// ManualRefundProvider records refunds for offline settlement by operations staff
type ManualRefundProvider struct {
	logger *logrus.Logger

	mu     sync.Mutex
	issued map[string]*RefundResult
}

// NewManualRefundProvider creates a provider that only logs refunds
func NewManualRefundProvider(logger *logrus.Logger) *ManualRefundProvider {
	return &ManualRefundProvider{logger: logger, issued: map[string]*RefundResult{}}
}

// Refund logs the refund and returns a generated reference. A repeated
// idempotency key returns the first result without logging a second refund.
func (p *ManualRefundProvider) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.IdempotencyKey != "" {
		if prev, ok := p.issued[req.IdempotencyKey]; ok {
			result := *prev
			return &result, nil
		}
	}

	ref := "manual-" + uuid.NewString()
	p.logger.WithFields(logrus.Fields{
		"booking_id": req.BookingID,
		"amount":     req.Amount.String(),
		"currency":   req.Currency,
		"reference":  ref,
		"reason":     req.Reason,
	}).Warn("Manual refund required")

	result := &RefundResult{Reference: ref, Status: "pending"}
	if req.IdempotencyKey != "" {
		p.issued[req.IdempotencyKey] = result
	}
	return &RefundResult{Reference: ref, Status: "pending"}, nil
}
