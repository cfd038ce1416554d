package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]interface{}{"want %s got %s", want, got.String()}, msgAndArgs...)...)
}

func TestQuoteBooking(t *testing.T) {
	policy := DefaultBookingPolicy()

	t.Run("base price 1000", func(t *testing.T) {
		q := policy.QuoteBooking(d("1000"), d("1"), 1)
		assertDecimal(t, "1000", q.Total)
		assertDecimal(t, "300", q.Advance)
		assertDecimal(t, "700", q.Remaining)
	})

	t.Run("remaining always equals total minus advance", func(t *testing.T) {
		cases := []struct {
			base, mult string
			qty        int
		}{
			{"999", "1", 1},
			{"449.50", "1.25", 2},
			{"1", "1", 1},
			{"1234.56", "0.8", 3},
		}
		for _, c := range cases {
			q := policy.QuoteBooking(d(c.base), d(c.mult), c.qty)
			assert.True(t, q.Remaining.Equal(q.Total.Sub(q.Advance)))
			assert.True(t, q.Advance.Equal(q.Total.Mul(d("0.3")).Round(0)))
		}
	})
}

func TestActualDurationMinutes(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, 80, ActualDurationMinutes(start, start.Add(80*time.Minute)))
	assert.Equal(t, 61, ActualDurationMinutes(start, start.Add(60*time.Minute+time.Second)))
	assert.Equal(t, 0, ActualDurationMinutes(start, start))
}

func TestOvertimeCharge(t *testing.T) {
	policy := DefaultBookingPolicy()

	assertDecimal(t, "0", policy.OvertimeCharge(60, 60, d("1000")))
	assertDecimal(t, "0", policy.OvertimeCharge(45, 60, d("1000")))
	assertDecimal(t, "100", policy.OvertimeCharge(61, 60, d("1000")))
	assertDecimal(t, "100", policy.OvertimeCharge(75, 60, d("1000")))
	// 20 minutes over: ceil(20/15) = 2 blocks of 10%
	assertDecimal(t, "200", policy.OvertimeCharge(80, 60, d("1000")))
	assertDecimal(t, "150", policy.OvertimeCharge(100, 60, d("500")))
}

func TestRefundAmount(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	total := d("1000")

	assertDecimal(t, "900", RefundAmount(total, now.Add(30*time.Hour), now))
	assertDecimal(t, "500", RefundAmount(total, now.Add(10*time.Hour), now))
	assertDecimal(t, "0", RefundAmount(total, now.Add(1*time.Hour), now))
	assertDecimal(t, "500", RefundAmount(total, now.Add(24*time.Hour), now))
	assertDecimal(t, "500", RefundAmount(total, now.Add(2*time.Hour), now))
	assertDecimal(t, "0", RefundAmount(total, now.Add(-3*time.Hour), now))
}

func TestInvoiceAmounts(t *testing.T) {
	tax, grand := DefaultBookingPolicy().InvoiceAmounts(d("1200"))
	assertDecimal(t, "216", tax)
	assertDecimal(t, "1416", grand)
}

func TestSplitCommission(t *testing.T) {
	fee, payee := SplitCommission(d("1200"), d("0.15"))
	assertDecimal(t, "180", fee)
	assertDecimal(t, "1020", payee)

	fee, payee = SplitCommission(d("999.99"), d("0.2"))
	assertDecimal(t, "200", fee)
	assertDecimal(t, "799.99", payee)
}
