package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCoordinates(t *testing.T) {
	v := NewBookingValidator()

	cases := []struct {
		name     string
		lat, lng float64
		expected error
	}{
		{"Bengaluru", 12.9716, 77.5946, nil},
		{"North pole", 90, 0, nil},
		{"Date line", 0, -180, nil},
		{"Latitude too high", 90.01, 0, ErrInvalidLatitude},
		{"Latitude too low", -91, 0, ErrInvalidLatitude},
		{"Longitude too high", 0, 180.5, ErrInvalidLongitude},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, v.ValidateCoordinates(tc.lat, tc.lng))
		})
	}
}

func TestValidateOTP(t *testing.T) {
	v := NewBookingValidator()

	t.Run("Valid 4 digit start code", func(t *testing.T) {
		code, err := v.ValidateOTP("48 21", 4)
		require.NoError(t, err)
		assert.Equal(t, "4821", code)
	})

	t.Run("Valid 6 digit completion code", func(t *testing.T) {
		code, err := v.ValidateOTP("123-456", 6)
		require.NoError(t, err)
		assert.Equal(t, "123456", code)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := v.ValidateOTP("  ", 4)
		assert.ErrorIs(t, err, ErrEmptyOTP)
	})

	t.Run("Wrong length", func(t *testing.T) {
		_, err := v.ValidateOTP("12345", 4)
		assert.ErrorIs(t, err, ErrInvalidOTP)
	})

	t.Run("Letters", func(t *testing.T) {
		_, err := v.ValidateOTP("12a4", 4)
		assert.ErrorIs(t, err, ErrInvalidOTP)
	})
}

func TestValidateRating(t *testing.T) {
	v := NewBookingValidator()

	for _, r := range []int{1, 2, 3, 4, 5} {
		assert.NoError(t, v.ValidateRating(r))
	}
	assert.Equal(t, ErrInvalidRating, v.ValidateRating(0))
	assert.Equal(t, ErrInvalidRating, v.ValidateRating(6))
}

func TestValidatePhotoURLs(t *testing.T) {
	v := NewBookingValidator()

	t.Run("Trims valid urls", func(t *testing.T) {
		urls, err := v.ValidatePhotoURLs([]string{" https://cdn.example.com/a.jpg ", "http://cdn.example.com/b.jpg"})
		require.NoError(t, err)
		assert.Equal(t, []string{"https://cdn.example.com/a.jpg", "http://cdn.example.com/b.jpg"}, urls)
	})

	t.Run("Empty batch", func(t *testing.T) {
		_, err := v.ValidatePhotoURLs(nil)
		assert.Equal(t, ErrNoPhotos, err)
	})

	t.Run("Relative url", func(t *testing.T) {
		_, err := v.ValidatePhotoURLs([]string{"/uploads/a.jpg"})
		assert.ErrorIs(t, err, ErrInvalidPhotoURL)
	})

	t.Run("Too many", func(t *testing.T) {
		urls := make([]string, MaxPhotosPerUpload+1)
		for i := range urls {
			urls[i] = "https://cdn.example.com/x.jpg"
		}
		_, err := v.ValidatePhotoURLs(urls)
		assert.Error(t, err)
	})
}
