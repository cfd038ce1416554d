package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(headers map[string]string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.100.4.7:5123"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.Request = req
	return c
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{"public X-Real-IP", map[string]string{"X-Real-IP": "203.0.113.9"}, "203.0.113.9"},
		{"private X-Real-IP falls through", map[string]string{"X-Real-IP": "192.168.1.4", "X-Forwarded-For": "198.51.100.2"}, "198.51.100.2"},
		{"first public forwarded", map[string]string{"X-Forwarded-For": "10.0.0.1, 198.51.100.7, 203.0.113.1"}, "198.51.100.7"},
		{"all private forwarded", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "10.0.0.1"},
		{"no headers", nil, "10.100.4.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetRealIP(testContext(tt.headers)))
		})
	}
}

func TestGetUserAgent(t *testing.T) {
	assert.Equal(t, "Unknown", GetUserAgent(testContext(nil)))
	assert.Equal(t, "partner-app/2.1", GetUserAgent(testContext(map[string]string{"User-Agent": "partner-app/2.1"})))
}

func TestParseUserAgent(t *testing.T) {
	android := ParseUserAgent("Mozilla/5.0 (Linux; Android 12; Pixel 6) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Mobile Safari/537.36")
	assert.Equal(t, "mobile", android.DeviceType)
	assert.Equal(t, "android", android.Platform)
	assert.Equal(t, "Chrome", android.Browser)
	assert.False(t, android.IsBot)

	ipad := ParseUserAgent("Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1")
	assert.Equal(t, "tablet", ipad.DeviceType)

	bot := ParseUserAgent("Googlebot/2.1 (+http://www.google.com/bot.html)")
	assert.True(t, bot.IsBot)

	unknown := ParseUserAgent("")
	assert.Equal(t, "unknown", unknown.DeviceType)
	assert.Equal(t, "unknown", unknown.Platform)
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret(32)
	require.NoError(t, err)
	b, err := GenerateSecret(32)
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
