package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"posyandu-logistics/internal/pkg/apperrors"
)

func RoleGuard(allowed ...string) gin.HandlerFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := set[c.GetString(KeyRole)]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, apperrors.ErrorResponse{
				Error: apperrors.ErrorBody{
					Code:    "FORBIDDEN",
					Message: "insufficient permissions",
				},
			})
			return
		}

		c.Next()
	}
}
