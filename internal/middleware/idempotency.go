package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"posyandu-logistics/internal/pkg/apperrors"
	"posyandu-logistics/internal/redis"
)

type idempotencyStore interface {
	Check(ctx context.Context, scope, key string) (*redis.StoredResponse, bool, error)
	Set(ctx context.Context, scope, key string, resp redis.StoredResponse) error
}

// responseRecorder captures the response body so we can store it.
type responseRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Idempotency replays the first successful response for a repeated
// Idempotency-Key, scoped to the authenticated hub.
func Idempotency(store idempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Idempotency-Key")
		if key == "" {
			c.Next()
			return
		}

		scope := c.GetString(KeyHubID) + ":" + c.Request.Method + ":" + c.FullPath()
		ctx := c.Request.Context()

		cached, found, err := store.Check(ctx, scope, key)
		if err != nil {
			slog.ErrorContext(ctx, "idempotency check failed",
				slog.String("error", err.Error()),
			)
			// fail open
			c.Next()
			return
		}

		if found {
			c.Header("Idempotent-Replayed", "true")
			c.Data(cached.Status, "application/json", cached.Body)
			c.Abort()
			return
		}

		rec := &responseRecorder{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = rec

		c.Next()

		status := c.Writer.Status()
		if status >= 200 && status < 300 {
			resp := redis.StoredResponse{Status: status, Body: rec.body.Bytes()}
			if err := store.Set(ctx, scope, key, resp); err != nil {
				slog.ErrorContext(ctx, "idempotency store failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RequireIdempotencyKey rejects mutations without an Idempotency-Key header.
func RequireIdempotencyKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		if c.GetHeader("Idempotency-Key") == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, apperrors.ErrorResponse{
				Error: apperrors.ErrorBody{
					Code:    "VALIDATION",
					Message: "Idempotency-Key header is required",
				},
			})
			return
		}

		c.Next()
	}
}
