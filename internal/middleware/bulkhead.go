package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"posyandu-logistics/internal/pkg/apperrors"
)

// Bulkhead caps in-flight requests for a route group so a burst on one
// surface cannot exhaust the database pool for the others.
func Bulkhead(name string, maxConcurrent int) gin.HandlerFunc {
	sem := make(chan struct{}, maxConcurrent)

	return func(c *gin.Context) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			c.Next()
		default:
			slog.WarnContext(c.Request.Context(), "bulkhead full",
				slog.String("pool", name),
				slog.Int("capacity", maxConcurrent),
			)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, apperrors.ErrorResponse{
				Error: apperrors.ErrorBody{
					Code:    "SERVICE_UNAVAILABLE",
					Message: "server is at capacity, please try again later",
				},
			})
		}
	}
}
