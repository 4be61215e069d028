package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"ecoportal/internal/pkg/response"
)

// RequestLogger logs every request and recovers from panics.
func RequestLogger(l *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				l.Error("panic",
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"client_ip", c.ClientIP(),
					"request_id", requestID(c),
					"err", fmt.Sprintf("%v", recovered),
					"stack", string(debug.Stack()),
				)
				response.Abort(c, http.StatusInternalServerError, "Internal Server Error")
				return
			}

			status := c.Writer.Status()
			fields := []any{
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"status", status,
				"client_ip", c.ClientIP(),
				"subject", Subject(c),
				"request_id", requestID(c),
				"latency", time.Since(start),
			}
			for _, err := range c.Errors {
				fields = append(fields, "err", err.Error())
			}

			switch {
			case status >= http.StatusInternalServerError:
				l.Error("request", fields...)
			case status >= http.StatusBadRequest:
				l.Warn("request", fields...)
			default:
				l.Info("request", fields...)
			}
		}()

		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetHeader("X-Request-ID")
}
