package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomOTPGenerator(t *testing.T) {
	gen := RandomOTPGenerator{}

	for _, length := range []int{4, 6} {
		for i := 0; i < 50; i++ {
			otp, err := gen.Generate(length)
			require.NoError(t, err)
			assert.Len(t, otp, length)
			for _, c := range otp {
				assert.True(t, c >= '0' && c <= '9', "non-digit in %q", otp)
			}
		}
	}

	_, err := gen.Generate(0)
	assert.Error(t, err)
	_, err = gen.Generate(12)
	assert.Error(t, err)
}

func TestOTPMatches(t *testing.T) {
	issued := "0421"

	assert.True(t, otpMatches(&issued, "0421"))
	assert.True(t, otpMatches(&issued, " 04 21 "))
	assert.False(t, otpMatches(&issued, "0422"))
	assert.False(t, otpMatches(&issued, "042"))
	assert.False(t, otpMatches(nil, "0421"))
}
