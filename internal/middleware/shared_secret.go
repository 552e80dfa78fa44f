package middleware

import (
	"crypto/subtle"
	"log/slog"

	"github.com/gin-gonic/gin"
)

const apiKeyHeader = "X-API-Key"

// SharedSecret guards service-to-service routes with a static key.
func SharedSecret(secret string) gin.HandlerFunc {
	expected := []byte(secret)

	return func(c *gin.Context) {
		got := []byte(c.GetHeader(apiKeyHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
			slog.WarnContext(c.Request.Context(), "internal request rejected",
				slog.String("path", c.Request.URL.Path),
				slog.String("ip", c.ClientIP()),
			)
			unauthorized(c, "invalid or missing api key")
			return
		}

		c.Set(KeyRole, "service")
		c.Next()
	}
}
