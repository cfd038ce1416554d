package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("applies booking policy defaults", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/booking")
		t.Setenv("JWT_SECRET", "secret")

		cfg, err := Load()
		require.NoError(t, err)

		assert.True(t, cfg.Booking.AdvanceRate.Equal(decimal.RequireFromString("0.30")))
		assert.True(t, cfg.Booking.PlatformCommission.Equal(decimal.RequireFromString("0.15")))
		assert.True(t, cfg.Booking.TaxRate.Equal(decimal.RequireFromString("0.18")))
		assert.Equal(t, 15, cfg.Booking.OvertimeBlockMinutes)
		assert.Equal(t, 0.5, cfg.Booking.GeofenceRadiusKm)
		assert.Nil(t, cfg.Booking.PlatformWalletUserID)
		assert.Equal(t, "inline", cfg.Matching.Dispatcher)
		assert.Equal(t, "manual", cfg.Payment.Provider)
	})

	t.Run("missing database url", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("JWT_SECRET", "secret")

		_, err := Load()
		assert.EqualError(t, err, "DATABASE_URL is required")
	})

	t.Run("stripe requires a secret key", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/booking")
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("PAYMENT_PROVIDER", "stripe")
		t.Setenv("STRIPE_SECRET_KEY", "")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("invalid decimal falls back to default", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/booking")
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("BOOKING_ADVANCE_RATE", "thirty")

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.Booking.AdvanceRate.Equal(decimal.RequireFromString("0.30")))
	})

	t.Run("platform wallet user id parsed", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/booking")
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("PLATFORM_WALLET_USER_ID", "6f1c2a8e-3b7d-4c1e-9a5f-0d2b8e4c7a11")

		cfg, err := Load()
		require.NoError(t, err)
		require.NotNil(t, cfg.Booking.PlatformWalletUserID)
		assert.Equal(t, "6f1c2a8e-3b7d-4c1e-9a5f-0d2b8e4c7a11", cfg.Booking.PlatformWalletUserID.String())
	})
}

func TestGetEnvAsSlice(t *testing.T) {
	t.Setenv("CORS_TEST", " a, b ,,c ")
	assert.Equal(t, []string{"a", "b", "c"}, getEnvAsSlice("CORS_TEST", nil))
	assert.Equal(t, []string{"x"}, getEnvAsSlice("CORS_UNSET", []string{"x"}))
}
