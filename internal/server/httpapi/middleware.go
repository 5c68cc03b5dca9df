package httpapi

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/logging"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-Id"
	ownerIDKey      = "owner_id"
)

func RequestLogger(l logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)
		c.Set("request_id", reqID)
		c.Request = c.Request.WithContext(logging.ContextWith(c.Request.Context(), "request_id", reqID))

		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			args = append(args, "errors", c.Errors.String())
		}

		// request_id and, once authenticated, owner_id ride on the context.
		ctx := c.Request.Context()
		switch {
		case status >= 500:
			l.Error(ctx, "request", args...)
		case status >= 400:
			l.Warn(ctx, "request", args...)
		default:
			l.Info(ctx, "request", args...)
		}
	}
}

// JWTAuth accepts a bearer token whose subject is the owner id.
func JWTAuth(secretKey []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(common.AuthorizationHeaderName)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(c, common.ErrorUnauthorized)
			return
		}

		ownerID, err := auth.GetOwnerIDFromToken(strings.TrimSpace(raw), secretKey)
		if err != nil {
			writeError(c, err)
			return
		}

		c.Set(ownerIDKey, ownerID)
		c.Request = c.Request.WithContext(logging.ContextWith(c.Request.Context(), ownerIDKey, ownerID))
		c.Next()
	}
}

func ownerID(c *gin.Context) string {
	return c.GetString(ownerIDKey)
}
