package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JGeek00/crowdsec-monitor-api/internal/logger"
)

// recoverJSON panics inside a handler and returns the single JSON log entry.
func recoverJSON(t *testing.T, verbose bool, header http.Header) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	logger.Init(false, &buf)
	t.Cleanup(func() { logger.Init(false, nil) })

	r := gin.New()
	r.Use(RequestID(), Recovery(verbose))
	r.GET("/alerts/:id", func(*gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/alerts/12", nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry), buf.String())
	return w, entry
}

func TestRecovery(t *testing.T) {
	w, entry := recoverJSON(t, false, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"message":"Internal server error"}`, w.Body.String())
	assert.Equal(t, "Recovered from panic in handler", entry["message"])
	assert.Equal(t, "boom", entry["panic"])
	assert.Equal(t, "/alerts/12", entry["path"])
	assert.NotEmpty(t, entry["request_id"])
	assert.NotContains(t, entry, "stack")
	assert.NotContains(t, entry, "headers")
}

func TestRecoveryVerbose(t *testing.T) {
	_, entry := recoverJSON(t, true, http.Header{"Authorization": {"Bearer hunter2"}})

	assert.Contains(t, entry["stack"], "runtime/debug.Stack")
	headers, ok := entry["headers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"<redacted>"}, headers["Authorization"])
}
