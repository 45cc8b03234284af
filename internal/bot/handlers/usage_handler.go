package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edgard/civicbot/internal/metrics"
	"github.com/edgard/civicbot/internal/usage"
)

func usageBody(stats usage.Stats) gin.H {
	metrics.AIUsageUsed.Set(float64(stats.Used))
	return gin.H{
		"ok":        true,
		"used":      stats.Used,
		"remaining": stats.Remaining,
		"limit":     stats.Limit,
		"resetAt":   stats.ResetAt,
		"canUseAI":  stats.CanUseAI,
	}
}

// NewUsageHandler returns a handler reporting the daily AI usage counter.
func NewUsageHandler(deps HandlerDeps) gin.HandlerFunc {
	return usageHandler{deps}.Handle
}

type usageHandler struct {
	deps HandlerDeps
}

func (h usageHandler) Handle(c *gin.Context) {
	c.JSON(http.StatusOK, usageBody(h.deps.Usage.Stats(c.Request.Context())))
}

// NewUsageResetHandler returns a handler zeroing today's AI usage.
func NewUsageResetHandler(deps HandlerDeps) gin.HandlerFunc {
	return usageResetHandler{deps}.Handle
}

type usageResetHandler struct {
	deps HandlerDeps
}

func (h usageResetHandler) Handle(c *gin.Context) {
	log := h.deps.Logger.With("handler", "usage_reset")
	ctx := c.Request.Context()

	if err := h.deps.Usage.Reset(ctx); err != nil {
		respondError(c, log, err)
		return
	}
	log.InfoContext(ctx, "AI usage counter reset", "client_ip", c.ClientIP())
	c.JSON(http.StatusOK, usageBody(h.deps.Usage.Stats(ctx)))
}

type limitRequest struct {
	Limit *int `json:"limit" binding:"required,min=0"`
}

// NewUsageLimitHandler returns a handler changing the daily AI limit.
func NewUsageLimitHandler(deps HandlerDeps) gin.HandlerFunc {
	return usageLimitHandler{deps}.Handle
}

type usageLimitHandler struct {
	deps HandlerDeps
}

func (h usageLimitHandler) Handle(c *gin.Context) {
	log := h.deps.Logger.With("handler", "usage_limit")
	ctx := c.Request.Context()

	var req limitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "limit")
		return
	}

	if err := h.deps.Usage.UpdateLimit(ctx, *req.Limit); err != nil {
		respondError(c, log, err)
		return
	}
	log.InfoContext(ctx, "AI daily limit updated", "limit", *req.Limit, "client_ip", c.ClientIP())
	c.JSON(http.StatusOK, usageBody(h.deps.Usage.Stats(ctx)))
}
