package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func securityHeadersFor(development bool) http.Header {
	r := gin.New()
	r.Use(SecurityHeaders(development))
	r.GET("/api/v1/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{}) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	return w.Header()
}

func TestSecurityHeaders(t *testing.T) {
	want := map[string]string{
		"Content-Security-Policy":      apiCSP,
		"X-Frame-Options":              "DENY",
		"X-Content-Type-Options":       "nosniff",
		"Referrer-Policy":              "no-referrer",
		"Cross-Origin-Opener-Policy":   "same-origin",
		"Cross-Origin-Resource-Policy": "same-origin",
		"Cache-Control":                "no-store",
	}
	for _, development := range []bool{false, true} {
		h := securityHeadersFor(development)
		for name, value := range want {
			assert.Equal(t, value, h.Get(name), "%s (development=%v)", name, development)
		}
	}
}

func TestSecurityHeadersHSTSOnlyOutsideDevelopment(t *testing.T) {
	assert.Equal(t, "max-age=31536000; includeSubDomains", securityHeadersFor(false).Get("Strict-Transport-Security"))
	assert.Empty(t, securityHeadersFor(true).Get("Strict-Transport-Security"))
}
