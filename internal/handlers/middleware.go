package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// AdminHeader carries the operator token.
const AdminHeader = "X-Admin-Token"

// RequireAdmin rejects requests without the configured admin token. An empty
// token rejects everything.
func RequireAdmin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(AdminHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetHeader("X-Request-Id"),
		)
	}
}
