package services

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/servicehub/booking-engine/internal/config"
)

// BookingPolicy holds the monetary and spatial rules applied to bookings
type BookingPolicy struct {
	AdvanceRate          decimal.Decimal
	PlatformCommission   decimal.Decimal
	TaxRate              decimal.Decimal
	OvertimeBlockMinutes int
	OvertimeBlockRate    decimal.Decimal
	GeofenceRadiusKm     float64
	StartOTPLength       int
	CompletionOTPLength  int
}

// DefaultBookingPolicy returns the standard marketplace policy
func DefaultBookingPolicy() BookingPolicy {
	return BookingPolicy{
		AdvanceRate:          decimal.RequireFromString("0.30"),
		PlatformCommission:   decimal.RequireFromString("0.15"),
		TaxRate:              decimal.RequireFromString("0.18"),
		OvertimeBlockMinutes: 15,
		OvertimeBlockRate:    decimal.RequireFromString("0.10"),
		GeofenceRadiusKm:     0.5,
		StartOTPLength:       4,
		CompletionOTPLength:  6,
	}
}

// BookingPolicyFromConfig builds the policy from configuration
func BookingPolicyFromConfig(cfg config.BookingConfig) BookingPolicy {
	policy := DefaultBookingPolicy()
	policy.AdvanceRate = cfg.AdvanceRate
	policy.PlatformCommission = cfg.PlatformCommission
	policy.TaxRate = cfg.TaxRate
	policy.OvertimeBlockMinutes = cfg.OvertimeBlockMinutes
	policy.OvertimeBlockRate = cfg.OvertimeBlockRate
	policy.GeofenceRadiusKm = cfg.GeofenceRadiusKm
	return policy
}

// Quote is the price split computed at booking time
type Quote struct {
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
	Advance   decimal.Decimal
	Remaining decimal.Decimal
}

// QuoteBooking prices quantity units of a service. The advance is rounded to
// whole currency units and the remainder absorbs the rounding.
func (p BookingPolicy) QuoteBooking(basePrice, multiplier decimal.Decimal, quantity int) Quote {
	unit := basePrice.Mul(multiplier)
	total := unit.Mul(decimal.NewFromInt(int64(quantity)))
	advance := total.Mul(p.AdvanceRate).Round(0)
	return Quote{
		UnitPrice: unit,
		Total:     total,
		Advance:   advance,
		Remaining: total.Sub(advance),
	}
}

// ActualDurationMinutes is the elapsed service time rounded up to whole minutes
func ActualDurationMinutes(startedAt, completedAt time.Time) int {
	elapsed := completedAt.Sub(startedAt)
	if elapsed <= 0 {
		return 0
	}
	return int(math.Ceil(elapsed.Minutes()))
}

// OvertimeCharge bills each started block beyond the estimate at a share of the base price
func (p BookingPolicy) OvertimeCharge(actualMinutes, estimatedMinutes int, basePrice decimal.Decimal) decimal.Decimal {
	over := actualMinutes - estimatedMinutes
	if over <= 0 || p.OvertimeBlockMinutes <= 0 {
		return decimal.Zero
	}
	blocks := (over + p.OvertimeBlockMinutes - 1) / p.OvertimeBlockMinutes
	return basePrice.Mul(p.OvertimeBlockRate).Mul(decimal.NewFromInt(int64(blocks)))
}

// RefundRate returns the share of the total refunded when cancelling with
// hoursBefore hours left until the scheduled time
func RefundRate(hoursBefore float64) decimal.Decimal {
	switch {
	case hoursBefore > 24:
		return decimal.RequireFromString("0.90")
	case hoursBefore >= 2:
		return decimal.RequireFromString("0.50")
	default:
		return decimal.Zero
	}
}

// RefundAmount applies the tiered refund to total for a cancellation at now
func RefundAmount(total decimal.Decimal, scheduledAt, now time.Time) decimal.Decimal {
	hours := scheduledAt.Sub(now).Hours()
	return total.Mul(RefundRate(hours)).Round(2)
}

// InvoiceAmounts returns tax and grand total for a subtotal
func (p BookingPolicy) InvoiceAmounts(subtotal decimal.Decimal) (tax, grandTotal decimal.Decimal) {
	tax = subtotal.Mul(p.TaxRate).Round(2)
	return tax, subtotal.Add(tax)
}

// SplitCommission divides total into the platform fee and the payee's share
func SplitCommission(total, rate decimal.Decimal) (platformFee, payee decimal.Decimal) {
	platformFee = total.Mul(rate).Round(2)
	return platformFee, total.Sub(platformFee)
}
