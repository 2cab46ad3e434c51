package logging

import (
	"io"
	"log/slog"
	"time"

	charmlog "charm.land/log/v2"
	"github.com/gin-gonic/gin"
)

// New returns a slog logger writing through the charm handler. Unknown
// levels fall back to info.
func New(w io.Writer, level string) *slog.Logger {
	lvl, err := charmlog.ParseLevel(level)
	if err != nil {
		lvl = charmlog.InfoLevel
	}
	return slog.New(charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		Level:           lvl,
	}))
}

// GinLogger logs one line per request once the handler chain returns.
func GinLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		attrs := []any{
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"took", time.Since(start),
			"ip", c.ClientIP(),
		}
		if requestID, ok := c.Get("request_id"); ok {
			attrs = append(attrs, "request_id", requestID)
		}
		if userID, ok := c.Get("userID"); ok {
			attrs = append(attrs, "user_id", userID)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.ErrorContext(c.Request.Context(), "request", attrs...)
		case status >= 400:
			logger.WarnContext(c.Request.Context(), "request", attrs...)
		default:
			logger.InfoContext(c.Request.Context(), "request", attrs...)
		}
	}
}
