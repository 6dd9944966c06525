package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func authRouter(password string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIAuth(password))
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doAuth(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAPIAuth_DisabledWithoutPassword(t *testing.T) {
	assert.Equal(t, http.StatusOK, doAuth(authRouter(""), "").Code)
	assert.Equal(t, http.StatusOK, doAuth(authRouter("   "), "").Code)
}

func TestAPIAuth_PlainPassword(t *testing.T) {
	r := authRouter("s3cret")

	tests := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"missing header", "", http.StatusUnauthorized, "Authorization header is required"},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized, "Authorization header must be in format: Bearer <token>"},
		{"extra parts", "Bearer s3cret extra", http.StatusUnauthorized, "Authorization header must be in format: Bearer <token>"},
		{"wrong token", "Bearer nope", http.StatusUnauthorized, "Invalid credentials"},
		{"valid", "Bearer s3cret", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doAuth(r, tt.header)
			assert.Equal(t, tt.status, w.Code)
			if tt.message != "" {
				assert.JSONEq(t, `{"error":"Unauthorized","message":"`+tt.message+`"}`, w.Body.String())
			}
		})
	}
}

func TestAPIAuth_BcryptPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	r := authRouter(string(hash))

	assert.Equal(t, http.StatusOK, doAuth(r, "Bearer hunter2").Code)
	assert.Equal(t, http.StatusUnauthorized, doAuth(r, "Bearer "+string(hash)).Code)
}

func TestIsBcryptHash(t *testing.T) {
	assert.False(t, isBcryptHash("$2a$short"))
	assert.False(t, isBcryptHash("plain-password"))
	hash, _ := bcrypt.GenerateFromPassword([]byte("x"), bcrypt.MinCost)
	assert.True(t, isBcryptHash(string(hash)))
}
