package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Redis configuration (notifications fan-out and matching queue)
	Redis RedisConfig

	// Matching configuration
	Matching MatchingConfig

	// Booking policy (pricing, refunds, geofence)
	Booking BookingConfig

	// Payment provider configuration
	Payment PaymentConfig

	// CORS configuration
	CORS CORSConfig

	// Security configuration
	Security SecurityConfig

	// Scheduler configuration
	Cron CronConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
	NodeID      int64  // snowflake node for booking/invoice numbers
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

// MatchingConfig controls how bookings are dispatched to partners
type MatchingConfig struct {
	Dispatcher    string // "asynq" or "inline"
	MaxCandidates int
	MaxRetry      int
	Concurrency   int
}

// BookingConfig holds the monetary and spatial policy for bookings
type BookingConfig struct {
	AdvanceRate          decimal.Decimal
	PlatformCommission   decimal.Decimal
	TaxRate              decimal.Decimal
	OvertimeBlockMinutes int
	OvertimeBlockRate    decimal.Decimal
	GeofenceRadiusKm     float64
	PlatformWalletUserID *uuid.UUID
	Currency             string
}

// PaymentConfig selects the refund provider
type PaymentConfig struct {
	Provider        string // "stripe" or "manual"
	StripeSecretKey string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRequestLog bool
}

// CronConfig holds schedules for background jobs (6-field, with seconds)
type CronConfig struct {
	Enabled             bool
	AbandonedSchedule   string
	AbandonedAfter      time.Duration
	StaleSearchSchedule string
	StaleSearchAfter    time.Duration
	SweepBatchSize      int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			NodeID:      int64(getEnvAsInt("NODE_ID", 1)),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", "localhost:6379"),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvAsInt("REDIS_DB", 0),
			ChannelPrefix: getEnv("NOTIFICATION_CHANNEL_PREFIX", "notifications"),
		},
		Matching: MatchingConfig{
			Dispatcher:    getEnv("MATCHING_DISPATCHER", "inline"),
			MaxCandidates: getEnvAsInt("MATCHING_MAX_CANDIDATES", 10),
			MaxRetry:      getEnvAsInt("MATCHING_MAX_RETRY", 3),
			Concurrency:   getEnvAsInt("MATCHING_CONCURRENCY", 5),
		},
		Booking: BookingConfig{
			AdvanceRate:          getEnvAsDecimal("BOOKING_ADVANCE_RATE", "0.30"),
			PlatformCommission:   getEnvAsDecimal("PLATFORM_COMMISSION_RATE", "0.15"),
			TaxRate:              getEnvAsDecimal("INVOICE_TAX_RATE", "0.18"),
			OvertimeBlockMinutes: getEnvAsInt("OVERTIME_BLOCK_MINUTES", 15),
			OvertimeBlockRate:    getEnvAsDecimal("OVERTIME_BLOCK_RATE", "0.10"),
			GeofenceRadiusKm:     getEnvAsFloat("ARRIVAL_GEOFENCE_KM", 0.5),
			PlatformWalletUserID: getEnvAsUUID("PLATFORM_WALLET_USER_ID"),
			Currency:             getEnv("WALLET_CURRENCY", "INR"),
		},
		Payment: PaymentConfig{
			Provider:        getEnv("PAYMENT_PROVIDER", "manual"),
			StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Security: SecurityConfig{
			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
		},
		Cron: CronConfig{
			Enabled:             getEnvAsBool("CRON_ENABLED", true),
			AbandonedSchedule:   getEnv("CRON_ABANDONED_SCHEDULE", "0 */5 * * * *"),
			AbandonedAfter:      time.Duration(getEnvAsInt("ABANDONED_BOOKING_MINUTES", 60)) * time.Minute,
			StaleSearchSchedule: getEnv("CRON_STALE_SEARCH_SCHEDULE", "0 */10 * * * *"),
			StaleSearchAfter:    time.Duration(getEnvAsInt("STALE_SEARCH_MINUTES", 15)) * time.Minute,
			SweepBatchSize:      getEnvAsInt("CRON_SWEEP_BATCH_SIZE", 100),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.Matching.Dispatcher {
	case "asynq", "inline":
	default:
		return fmt.Errorf("invalid MATCHING_DISPATCHER: %s (must be 'asynq' or 'inline')", c.Matching.Dispatcher)
	}

	switch c.Payment.Provider {
	case "stripe":
		if c.Payment.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
	case "manual":
	default:
		return fmt.Errorf("invalid PAYMENT_PROVIDER: %s (must be 'stripe' or 'manual')", c.Payment.Provider)
	}

	if c.Booking.AdvanceRate.IsNegative() || c.Booking.AdvanceRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("BOOKING_ADVANCE_RATE must be between 0 and 1")
	}

	if c.Booking.PlatformCommission.IsNegative() || c.Booking.PlatformCommission.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("PLATFORM_COMMISSION_RATE must be between 0 and 1")
	}

	if c.Booking.OvertimeBlockMinutes <= 0 {
		return fmt.Errorf("OVERTIME_BLOCK_MINUTES must be positive")
	}

	return nil
}

// IsProduction reports whether the server runs with production settings
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid float value for %s, using default: %g", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key string, defaultValue string) decimal.Decimal {
	fallback := decimal.RequireFromString(defaultValue)
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return fallback
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		log.Printf("Invalid decimal value for %s, using default: %s", key, defaultValue)
		return fallback
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsUUID(key string) *uuid.UUID {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	value, err := uuid.Parse(valueStr)
	if err != nil {
		log.Printf("Invalid UUID value for %s, ignoring", key)
		return nil
	}
	return &value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
