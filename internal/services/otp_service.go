package services

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"

	"github.com/servicehub/booking-engine/pkg/validator"
)

// OTPGenerator issues the numeric codes exchanged between customer and partner
type OTPGenerator interface {
	Generate(length int) (string, error)
}

// RandomOTPGenerator draws codes from crypto/rand
type RandomOTPGenerator struct{}

// Generate returns a zero-padded code of length digits
func (RandomOTPGenerator) Generate(length int) (string, error) {
	if length <= 0 || length > 9 {
		return "", fmt.Errorf("unsupported OTP length %d", length)
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n.Int64()), nil
}

var inputValidator = validator.NewBookingValidator()

// otpMatches compares a submitted code with the issued one in constant time
func otpMatches(issued *string, submitted string) bool {
	if issued == nil {
		return false
	}
	clean := inputValidator.SanitizeOTP(submitted)
	return subtle.ConstantTimeCompare([]byte(*issued), []byte(clean)) == 1
}
