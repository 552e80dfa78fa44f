package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"posyandu-logistics/internal/jwt"
	"posyandu-logistics/internal/pkg/apperrors"
)

// Context keys set by Auth.
const (
	KeyHubID = "hub_id"
	KeyRole  = "role"
)

// Auth validates the bearer token of a hub operator. Mount it only on the
// groups that need it; internal routes use SharedSecret instead.
func Auth(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			unauthorized(c, "missing authorization header")
			return
		}

		token, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			unauthorized(c, "invalid authorization format")
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			slog.WarnContext(c.Request.Context(), "auth failed",
				slog.String("path", c.Request.URL.Path),
				slog.String("ip", c.ClientIP()),
				slog.String("error", err.Error()),
			)
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(KeyHubID, claims.Sub)
		c.Set(KeyRole, claims.Role)
		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, apperrors.ErrorResponse{
		Error: apperrors.ErrorBody{
			Code:    "UNAUTHORIZED",
			Message: msg,
		},
	})
}
