package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service is a catalog entry a customer can book
type Service struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	CategoryID      uuid.UUID       `json:"category_id" db:"category_id"`
	Name            string          `json:"name" db:"name"`
	BasePrice       decimal.Decimal `json:"base_price" db:"base_price"`
	PriceMultiplier decimal.Decimal `json:"price_multiplier" db:"price_multiplier"`
	DurationMinutes int             `json:"duration_minutes" db:"duration_minutes"`
	IsActive        bool            `json:"is_active" db:"is_active"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Multiplier returns the price multiplier, treating zero as 1
func (s *Service) Multiplier() decimal.Decimal {
	if s.PriceMultiplier.IsZero() {
		return decimal.NewFromInt(1)
	}
	return s.PriceMultiplier
}
