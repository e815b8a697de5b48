package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lemonylab/ikuai-middle/pkg/metrics"
)

// requestLogger logs each request with slog after the handler completes.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// recordMetrics counts each request by matched route and final status.
func recordMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.Requests.WithLabelValues(path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// tokenAuth enforces the shared access token. The Authorization header may
// carry the bare token or a "Bearer <token>" form; the last
// whitespace-separated field is compared. An empty configured token
// disables the check entirely.
func tokenAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		var got string
		if fields := strings.Fields(c.GetHeader("Authorization")); len(fields) > 0 {
			got = fields[len(fields)-1]
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
