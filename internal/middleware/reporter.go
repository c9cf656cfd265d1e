package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/byefat/backend/internal/logger"
)

const reporterKey = "permission_reporter"

// WithReporter makes r available to handlers through Reporter.
func WithReporter(r logger.PermissionReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(reporterKey, r)
		c.Next()
	}
}

// Reporter returns the permission reporter set by WithReporter, or nil.
func Reporter(c *gin.Context) logger.PermissionReporter {
	v, ok := c.Get(reporterKey)
	if !ok {
		return nil
	}
	r, _ := v.(logger.PermissionReporter)
	return r
}
