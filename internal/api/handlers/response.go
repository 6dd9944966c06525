package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JGeek00/crowdsec-monitor-api/internal/api/middleware"
	"github.com/JGeek00/crowdsec-monitor-api/internal/services"
)

// isoTimestamp matches JavaScript's Date.toISOString.
const isoTimestamp = "2006-01-02T15:04:05.000Z07:00"

func isoTime(t time.Time) string {
	return t.UTC().Format(isoTimestamp)
}

// respondError writes {message, error}. The underlying error is only
// exposed outside release mode.
func respondError(c *gin.Context, status int, message string, err error) {
	body := gin.H{"message": message}
	if err != nil {
		middleware.GetRequestLogger(c).WithError(err).Error(message)
		if gin.Mode() != gin.ReleaseMode {
			body["error"] = err.Error()
		}
	}
	c.JSON(status, body)
}

// pageBody renders a list page. Paged responses carry pagination details,
// unpaged ones only the total.
func pageBody[T any](page *services.Page[T]) gin.H {
	if page.Pagination.Unpaged {
		return gin.H{"items": page.Items, "total": page.Total}
	}
	return gin.H{
		"items": page.Items,
		"pagination": gin.H{
			"page":   page.Number(),
			"amount": len(page.Items),
			"total":  page.Total,
		},
	}
}

// pagination is bound from ?limit=&offset=&unpaged=.
type pagination struct {
	Limit   *int `form:"limit" binding:"omitempty,min=1"`
	Offset  int  `form:"offset" binding:"min=0"`
	Unpaged bool `form:"unpaged"`
}

func (p pagination) toService() services.Pagination {
	out := services.Pagination{Offset: p.Offset, Unpaged: p.Unpaged}
	if p.Limit != nil {
		out.Limit = *p.Limit
	}
	return out
}
