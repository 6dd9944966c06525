package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// APIAuth requires "Authorization: Bearer <password>" on every request.
// The configured password may be a bcrypt hash. An empty password disables
// the check.
func APIAuth(password string) gin.HandlerFunc {
	password = strings.TrimSpace(password)
	if password == "" {
		return func(c *gin.Context) { c.Next() }
	}
	hashed := isBcryptHash(password)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			unauthorized(c, "Authorization header is required")
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(c, "Authorization header must be in format: Bearer <token>")
			return
		}

		if !passwordMatches(password, parts[1], hashed) {
			GetRequestLogger(c).WithField("client", c.ClientIP()).Warn("Rejected request with invalid API credentials")
			unauthorized(c, "Invalid credentials")
			return
		}
		c.Next()
	}
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "Unauthorized",
		"message": message,
	})
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

func passwordMatches(configured, token string, hashed bool) bool {
	if hashed {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(token)) == 1
}
