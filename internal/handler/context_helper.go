package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/messhall-api/pkg/errors"
)

// userHeader carries the authenticated app user's id, injected by the API
// gateway in front of this service.
const userHeader = "X-User-ID"

func userIDFromRequest(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(userHeader))
}

// parseDate reads a YYYY-MM-DD value. An empty value defaults to today.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now(), nil
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	return date, nil
}
