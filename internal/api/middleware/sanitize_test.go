package middleware

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeHeaders(t *testing.T) {
	assert.Nil(t, SanitizeHeaders(nil))

	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("X-Forwarded-For", "10.0.0.1")
	h.Set("User-Agent", "curl\r\n/8.0")
	h.Set("X-Long", strings.Repeat("a", 300))

	out := SanitizeHeaders(h)
	assert.Equal(t, []string{"<redacted>"}, out["Authorization"])
	assert.Equal(t, []string{"<redacted>"}, out["X-Forwarded-For"])
	assert.Equal(t, []string{"curl /8.0"}, out["User-Agent"])
	assert.Len(t, out["X-Long"][0], maxLoggedValue)
}

func TestSanitizeQuery(t *testing.T) {
	assert.Nil(t, SanitizeQuery(nil))
	out := SanitizeQuery(url.Values{"ip_owner": {"OVH\nSAS", "Hetzner"}})
	assert.Equal(t, []string{"OVH SAS", "Hetzner"}, out["ip_owner"])
}

func TestSanitizePath(t *testing.T) {
	assert.Equal(t, "/api/v1/alerts", SanitizePath("/api/v1/alerts?limit=10"))
	assert.Equal(t, "/api/v1/alerts x", SanitizePath("/api/v1/alerts\nx"))
	assert.Len(t, SanitizePath("/"+strings.Repeat("p", 400)), maxLoggedValue)
}
