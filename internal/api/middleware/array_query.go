package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// ArrayQuery rewrites "key[]=v" query parameters to "key=v" so both
// spellings bind to the same slice field.
func ArrayQuery() gin.HandlerFunc {
	return func(c *gin.Context) {
		q := c.Request.URL.Query()
		changed := false
		for key, vals := range q {
			base, ok := strings.CutSuffix(key, "[]")
			if !ok || base == "" {
				continue
			}
			q[base] = append(q[base], vals...)
			delete(q, key)
			changed = true
		}
		if changed {
			c.Request.URL.RawQuery = q.Encode()
		}
		c.Next()
	}
}
