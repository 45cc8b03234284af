package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edgard/civicbot/internal/monitor"
)

// NewMonitorHandler returns a handler running one mention monitor pass.
func NewMonitorHandler(deps HandlerDeps) gin.HandlerFunc {
	return monitorHandler{deps}.Handle
}

type monitorHandler struct {
	deps HandlerDeps
}

func (h monitorHandler) Handle(c *gin.Context) {
	log := h.deps.Logger.With("handler", "monitor_twitter")
	ctx := c.Request.Context()

	// A pass waits between replies, which outlasts the server write timeout.
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Now().Add(h.writeBudget())); err != nil {
		log.DebugContext(ctx, "Write deadline not extended", "error", err)
	}

	res, err := h.deps.Monitor.Run(ctx)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, monitor.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"success": false, "reason": "monitor_busy", "message": res.Message})
	case errors.Is(err, monitor.ErrNotConfigured):
		log.WarnContext(ctx, "Monitor triggered without configuration")
		c.JSON(http.StatusNotImplemented, gin.H{"success": false, "reason": "monitor_not_configured", "message": res.Message})
	case errors.Is(err, monitor.ErrThrottled):
		c.JSON(http.StatusTooManyRequests, res)
	default:
		log.ErrorContext(ctx, "Monitor run failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":    false,
			"error":      "monitor_failed",
			"message":    res.Message,
			"durationMs": res.Stats.DurationMs,
		})
	}
}

// writeBudget is the longest a pass can take before its result is written:
// every reply delay plus the usual write timeout for the response itself.
func (h monitorHandler) writeBudget() time.Duration {
	m := h.deps.Config.Monitor
	budget := time.Duration(m.MaxRepliesPerRun) * m.ReplyDelay
	if wt := h.deps.Config.Server.WriteTimeout; wt > 0 {
		return budget + wt
	}
	return budget + time.Minute
}
