package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lemonylab/ikuai-middle/pkg/ikuai"
)

// writeError maps upstream failures onto HTTP responses. Router application
// errors and authentication failures are the upstream's fault and surface
// as 502; anything else is a plain 500.
func writeError(c *gin.Context, err error) {
	var apiErr *ikuai.APIError
	if errors.As(err, &apiErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}

	var authErr *ikuai.AuthError
	if errors.As(err, &authErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream authentication failed"})
		return
	}

	slog.Error("handler failed", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
