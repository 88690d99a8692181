package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"invoiceflow/internal/core/apperror"
	"invoiceflow/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		status := http.StatusInternalServerError
		var body gin.H

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}
			status = appErr.HTTPStatus
			body = gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			}
		} else {
			logger.Error(c.Request.Context(), "unhandled error", "error", err)
			body = gin.H{
				"code":    apperror.CodeInternal,
				"message": "Internal server error",
				"details": map[string]any{
					"request_id": c.GetString("request_id"),
				},
			}
		}

		finishIdempotency(c, status, body)
		c.JSON(status, body)
	}
}

// finishIdempotency records the error response against a held idempotency key.
// Server errors release the key so the client may retry; client errors are replayed.
func finishIdempotency(c *gin.Context, status int, body gin.H) {
	key := c.GetString(ctxIdempotencyKey)
	if key == "" {
		return
	}
	v, ok := c.Get(ctxIdempotencyStore)
	if !ok {
		return
	}
	store, ok := v.(IdempotencyStore)
	if !ok || store == nil {
		return
	}

	ctx := c.Request.Context()
	if status >= http.StatusInternalServerError {
		if err := store.ReleaseKey(ctx, key); err != nil {
			logger.Warn(ctx, "idempotency release failed", "key", key, "error", err)
		}
		return
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return
	}
	if err := store.FailKey(ctx, key, status, "application/json; charset=utf-8", raw); err != nil {
		logger.Warn(ctx, "idempotency fail failed", "key", key, "error", err)
	}
}
