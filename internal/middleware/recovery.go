package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"posyandu-logistics/internal/pkg/apperrors"
)

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(c.Request.Context(), "panic recovered",
					slog.Any("error", r),
					slog.String("method", c.Request.Method),
					slog.String("route", c.FullPath()),
					slog.String("stack", string(debug.Stack())),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, apperrors.ErrorResponse{
					Error: apperrors.ErrorBody{
						Code:    "INTERNAL",
						Message: "an unexpected error occurred",
					},
				})
			}
		}()

		c.Next()
	}
}
