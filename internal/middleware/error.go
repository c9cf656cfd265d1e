package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse is the body sent when a handler panics.
type ErrorResponse struct {
	Error      string `json:"error"`
	Diagnostic string `json:"diagnostic,omitempty"`
	Recovery   string `json:"recovery"`
}

// ErrorHandler recovers panics, logs them and tells the client to reload.
// The panic value is only echoed back when showDiagnostic is set.
func ErrorHandler(log *zap.Logger, showDiagnostic bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			log.Error("panic recovered",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			resp := ErrorResponse{Error: "Internal Server Error", Recovery: "reload"}
			if showDiagnostic {
				resp.Diagnostic = fmt.Sprint(rec)
			}
			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
		}()
		c.Next()
	}
}
