package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/servicehub/booking-engine/pkg/validator"
)

var bookingValidator = validator.NewBookingValidator()

// CreateBookingRequest represents the request to create a booking
type CreateBookingRequest struct {
	ServiceID         uuid.UUID     `json:"service_id" binding:"required"`
	Quantity          int           `json:"quantity"`
	ScheduledAt       time.Time     `json:"scheduled_at" binding:"required"`
	ServiceAddress    string        `json:"service_address" binding:"required"`
	Latitude          float64       `json:"latitude"`
	Longitude         float64       `json:"longitude"`
	PaymentMethod     PaymentMethod `json:"payment_method"`
	BusinessPartnerID *uuid.UUID    `json:"business_partner_id,omitempty"`
	Notes             *string       `json:"notes,omitempty"`
}

// Validate validates the create booking request and fills defaults
func (r *CreateBookingRequest) Validate() error {
	if r.ServiceID == uuid.Nil {
		return ValidationError("service_id", "service_id is required")
	}
	if r.Quantity == 0 {
		r.Quantity = 1
	}
	if r.Quantity < 0 {
		return ValidationError("quantity", "quantity must be at least 1")
	}
	if strings.TrimSpace(r.ServiceAddress) == "" {
		return ValidationError("service_address", "service_address is required")
	}
	if err := bookingValidator.ValidateCoordinates(r.Latitude, r.Longitude); err != nil {
		return ValidationError("location", err.Error())
	}
	if r.PaymentMethod == "" {
		r.PaymentMethod = PaymentMethodCash
	}
	if !r.PaymentMethod.IsValid() {
		return ValidationError("payment_method", "payment_method must be CASH, ONLINE or WALLET")
	}
	return nil
}

// AssignPartnerRequest is an admin or business assignment
type AssignPartnerRequest struct {
	PartnerID uuid.UUID `json:"partner_id" binding:"required"`
}

// ArriveRequest carries the partner's position on arrival
type ArriveRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate validates the arrival coordinates
func (r *ArriveRequest) Validate() error {
	if err := bookingValidator.ValidateCoordinates(r.Latitude, r.Longitude); err != nil {
		return ValidationError("location", err.Error())
	}
	return nil
}

// OTPRequest carries a start or completion code
type OTPRequest struct {
	OTP string `json:"otp" binding:"required"`
}

// PhotosRequest carries before/after photo URLs
type PhotosRequest struct {
	URLs []string `json:"urls" binding:"required"`
}

// Validate validates and trims the URLs
func (r *PhotosRequest) Validate() error {
	cleaned, err := bookingValidator.ValidatePhotoURLs(r.URLs)
	if err != nil {
		return ValidationError("urls", err.Error())
	}
	r.URLs = cleaned
	return nil
}

// RejectBookingRequest carries the partner's reason
type RejectBookingRequest struct {
	Reason string `json:"reason"`
}

// CancelBookingRequest represents the request to cancel a booking
type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

// RateBookingRequest is the customer's review
type RateBookingRequest struct {
	Rating int     `json:"rating" binding:"required"`
	Review *string `json:"review,omitempty"`
}

// Validate validates the rating range
func (r *RateBookingRequest) Validate() error {
	if err := bookingValidator.ValidateRating(r.Rating); err != nil {
		return ValidationError("rating", err.Error())
	}
	return nil
}

// MarkPaidRequest confirms an out-of-band advance payment
type MarkPaidRequest struct {
	Reference string `json:"reference" binding:"required"`
}
