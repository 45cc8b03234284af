package handlers

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edgard/civicbot/internal/database"
	"github.com/edgard/civicbot/internal/mail"
	"github.com/edgard/civicbot/internal/pipeline"
	"github.com/edgard/civicbot/internal/tweet"
)

// respondError writes the JSON error for err. Only stable codes reach the
// caller; the error itself is logged.
func respondError(c *gin.Context, log *slog.Logger, err error) {
	ctx := c.Request.Context()

	var rej *tweet.Rejection
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.As(err, &rej):
		if rej.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rej.RetryAfter.Seconds()))))
		}
		body := gin.H{"ok": false, "reason": rej.Reason}
		if rej.Detail != "" {
			body["detail"] = rej.Detail
		}
		log.WarnContext(ctx, "Tweet rejected", "reason", rej.Reason, "detail", rej.Detail)
		c.JSON(rej.Status, body)
	case errors.Is(err, mail.ErrNotConfigured):
		log.WarnContext(ctx, "Email transport not configured")
		c.JSON(http.StatusNotImplemented, gin.H{"ok": false, "reason": "email_not_configured"})
	case errors.Is(err, pipeline.ErrEmailFailed):
		log.ErrorContext(ctx, "Email delivery failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "reason": "email_failed"})
	default:
		log.ErrorContext(ctx, "Unexpected error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unexpected_error"})
	}
}
