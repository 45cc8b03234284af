// Package logger provides structured logging for civicbot.
// It uses Go's slog package with configurable levels and formats.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
)

// NewLogger creates a new slog Logger with the specified level and format.
// If jsonOutput is true, logs will be formatted as JSON, otherwise as text.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	return newLogger(os.Stdout, levelStr, jsonOutput)
}

func newLogger(w io.Writer, levelStr string, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(levelStr)}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Middleware logs every HTTP request with its outcome and duration.
// Server errors log at error level, client errors at warn.
func Middleware(log *slog.Logger) gin.HandlerFunc {
	log = log.With("component", "http")

	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := []any{
			"method", c.Request.Method,
			"route", route,
			"path", c.Request.URL.Path,
			"status", status,
			"client_ip", c.ClientIP(),
			"duration", time.Since(startTime),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		ctx := c.Request.Context()
		switch {
		case status >= 500:
			log.ErrorContext(ctx, "Request failed", attrs...)
		case status >= 400:
			log.WarnContext(ctx, "Request rejected", attrs...)
		default:
			log.InfoContext(ctx, "Request handled", attrs...)
		}
	}
}

// Recovery converts panics in handlers into a logged 500 response.
func Recovery(log *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		log.ErrorContext(c.Request.Context(), "Panic while handling request",
			"path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(500, gin.H{"error": "unexpected_error"})
	})
}
