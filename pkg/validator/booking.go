package validator

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrInvalidLatitude indicates latitude is outside [-90, 90]
	ErrInvalidLatitude = errors.New("latitude must be between -90 and 90")

	// ErrInvalidLongitude indicates longitude is outside [-180, 180]
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")

	// ErrEmptyOTP indicates the OTP is missing
	ErrEmptyOTP = errors.New("otp cannot be empty")

	// ErrInvalidOTP indicates the OTP is not the expected number of digits
	ErrInvalidOTP = errors.New("otp has an invalid format")

	// ErrInvalidRating indicates the rating is outside 1..5
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrNoPhotos indicates an upload without URLs
	ErrNoPhotos = errors.New("at least one photo url is required")

	// ErrInvalidPhotoURL indicates a malformed photo URL
	ErrInvalidPhotoURL = errors.New("photo url must be an absolute http(s) url")
)

// MaxPhotosPerUpload bounds a single photo upload call
const MaxPhotosPerUpload = 10

var digitsRegex = regexp.MustCompile(`^\d+$`)

// BookingValidator validates booking lifecycle inputs
type BookingValidator struct{}

// NewBookingValidator creates a new booking validator instance
func NewBookingValidator() *BookingValidator {
	return &BookingValidator{}
}

// ValidateCoordinates checks a latitude/longitude pair
func (v *BookingValidator) ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return ErrInvalidLatitude
	}
	if lng < -180 || lng > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

// SanitizeOTP removes spaces and dashes users type between digits
func (v *BookingValidator) SanitizeOTP(otp string) string {
	otp = strings.ReplaceAll(otp, " ", "")
	otp = strings.ReplaceAll(otp, "-", "")
	return otp
}

// ValidateOTP returns the sanitized code if it has exactly length digits
func (v *BookingValidator) ValidateOTP(otp string, length int) (string, error) {
	sanitized := v.SanitizeOTP(otp)
	if sanitized == "" {
		return "", ErrEmptyOTP
	}
	if len(sanitized) != length || !digitsRegex.MatchString(sanitized) {
		return "", fmt.Errorf("%w: expected %d digits", ErrInvalidOTP, length)
	}
	return sanitized, nil
}

// ValidateRating checks a 1..5 star rating
func (v *BookingValidator) ValidateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	return nil
}

// ValidatePhotoURLs checks an upload batch and returns trimmed URLs
func (v *BookingValidator) ValidatePhotoURLs(urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, ErrNoPhotos
	}
	if len(urls) > MaxPhotosPerUpload {
		return nil, fmt.Errorf("at most %d photos per upload", MaxPhotosPerUpload)
	}

	cleaned := make([]string, 0, len(urls))
	for _, raw := range urls {
		trimmed := strings.TrimSpace(raw)
		parsed, err := url.Parse(trimmed)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPhotoURL, raw)
		}
		cleaned = append(cleaned, trimmed)
	}
	return cleaned, nil
}
