package database

import (
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/servicehub/booking-engine/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func walletRows(w models.Wallet) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "balance", "locked_balance", "currency", "created_at", "updated_at"}).
		AddRow(w.ID.String(), w.UserID.String(), w.Balance.String(), w.LockedBalance.String(), "INR", time.Now(), time.Now())
}

// expectLedgerEntry queues the statements postLedgerEntry issues for a successful posting
func expectLedgerEntry(mock sqlmock.Sqlmock, w models.Wallet, balanceAfter, lockedAfter string) {
	mock.ExpectExec("INSERT INTO wallets").
		WithArgs(sqlmock.AnyArg(), w.UserID, "INR").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM wallets WHERE user_id = .+ FOR UPDATE").
		WithArgs(w.UserID).
		WillReturnRows(walletRows(w))
	mock.ExpectExec("UPDATE wallets SET balance").
		WithArgs(dec(balanceAfter), dec(lockedAfter), w.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO transactions").
		WillReturnResult(sqlmock.NewResult(0, 1))
}

// rowValue converts model values to what a postgres driver hands back
func rowValue(v interface{}) driver.Value {
	switch x := v.(type) {
	case uuid.UUID:
		return x.String()
	case *uuid.UUID:
		if x == nil {
			return nil
		}
		return x.String()
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case *int:
		if x == nil {
			return nil
		}
		return int64(*x)
	case int:
		return int64(x)
	case decimal.Decimal:
		return x.String()
	default:
		return v
	}
}

func bookingRows(bookings ...models.Booking) *sqlmock.Rows {
	rows := sqlmock.NewRows(bookingColumnNames)
	for _, b := range bookings {
		values := []interface{}{
			b.ID, b.BookingNumber, b.CustomerID, b.PartnerID, b.BusinessPartnerID, string(b.Status),
			b.ScheduledAt, b.ServiceAddress, b.ServiceLatitude, b.ServiceLongitude,
			b.TotalAmount, b.AdvanceAmount, b.RemainingAmount,
			b.OvertimeCharge, b.PlatformFee, b.CommissionAmount, b.RefundAmount,
			string(b.PaymentStatus), string(b.PaymentMethod), b.PaymentReference,
			b.EstimatedDuration, b.ActualDuration, b.StartOTP, b.CompletionOTP,
			"{}", "{}", "{}",
			b.AssignedAt, b.AcceptedAt, b.ArrivedAt, b.StartedAt, b.CompletedAt, b.CancelledAt,
			b.CancelledBy, b.CancellationReason, b.Notes, b.CreatedAt, b.UpdatedAt,
		}
		row := make([]driver.Value, len(values))
		for i, v := range values {
			row[i] = rowValue(v)
		}
		rows.AddRow(row...)
	}
	return rows
}

func sampleBooking(status models.BookingStatus) models.Booking {
	now := time.Now()
	return models.Booking{
		ID:                uuid.New(),
		BookingNumber:     "BK3G5R8ZQ1W2C",
		CustomerID:        uuid.New(),
		Status:            status,
		ScheduledAt:       now.Add(48 * time.Hour),
		ServiceAddress:    "12 MG Road",
		ServiceLatitude:   12.9716,
		ServiceLongitude:  77.5946,
		TotalAmount:       dec("1000"),
		AdvanceAmount:     dec("300"),
		RemainingAmount:   dec("700"),
		PaymentStatus:     models.PaymentStatusPending,
		PaymentMethod:     models.PaymentMethodCash,
		EstimatedDuration: 60,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
