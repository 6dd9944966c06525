package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/JGeek00/crowdsec-monitor-api/internal/logger"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const (
	requestIDKey = "request_id"
	loggerKey    = "request_logger"
)

// RequestID tags every request with a uuid, echoes it in the response and
// stores a logger carrying it. A well-formed incoming id is kept so callers
// can correlate their own logs.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Set(loggerKey, logger.Component("http").WithField("request_id", id))
		c.Next()
	}
}

// RequestIDFrom returns the id assigned by RequestID, or "".
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// GetRequestLogger returns the request-scoped entry, falling back to the
// process logger outside the RequestID middleware.
func GetRequestLogger(c *gin.Context) *logrus.Entry {
	if entry, ok := c.Value(loggerKey).(*logrus.Entry); ok {
		return entry
	}
	return logger.Log()
}
