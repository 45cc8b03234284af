package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// stepContext bounds one pipeline step.
func stepContext(c *gin.Context, deps HandlerDeps) (context.Context, context.CancelFunc) {
	if t := deps.Config.Pipeline.StepTimeout; t > 0 {
		return context.WithTimeout(c.Request.Context(), t)
	}
	return context.WithCancel(c.Request.Context())
}

// NewClassifyHandler returns a handler for the classify step.
func NewClassifyHandler(deps HandlerDeps) gin.HandlerFunc {
	return classifyHandler{deps}.Handle
}

type classifyHandler struct {
	deps HandlerDeps
}

func (h classifyHandler) Handle(c *gin.Context) {
	log := h.deps.Logger.With("handler", "classify")
	ctx, cancel := stepContext(c, h.deps)
	defer cancel()

	res, err := h.deps.Pipeline.Classify(ctx, c.Param("id"))
	if err != nil {
		respondError(c, log, err)
		return
	}

	status := http.StatusOK
	if res.Degraded() {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{
		"ok":         true,
		"category":   res.Category,
		"severity":   res.Severity,
		"simulated":  res.Simulated,
		"aiEnhanced": res.AIEnhanced,
		"source":     res.Source,
	})
}

// NewNotifyHandler returns a handler for the notify step.
func NewNotifyHandler(deps HandlerDeps) gin.HandlerFunc {
	return notifyHandler{deps}.Handle
}

type notifyHandler struct {
	deps HandlerDeps
}

func (h notifyHandler) Handle(c *gin.Context) {
	log := h.deps.Logger.With("handler", "notify")
	ctx, cancel := stepContext(c, h.deps)
	defer cancel()

	id := c.Param("id")
	res, err := h.deps.Pipeline.Notify(ctx, id)
	if err != nil {
		respondError(c, log, err)
		return
	}

	body := gin.H{
		"ok":          true,
		"id":          id,
		"simulated":   res.Simulated,
		"aiEnhanced":  res.AIEnhanced,
		"tweetQueued": res.TweetQueued,
	}
	if res.MessageID != "" {
		body["messageId"] = res.MessageID
	}
	if res.Subject != "" {
		body["subject"] = res.Subject
	}
	if res.AlreadySent {
		body["alreadySent"] = true
	}

	status := http.StatusOK
	if res.Simulated {
		status = http.StatusAccepted
	}
	c.JSON(status, body)
}

// NewTweetHandler returns a handler for the tweet step.
func NewTweetHandler(deps HandlerDeps) gin.HandlerFunc {
	return tweetHandler{deps}.Handle
}

type tweetHandler struct {
	deps HandlerDeps
}

func (h tweetHandler) Handle(c *gin.Context) {
	log := h.deps.Logger.With("handler", "tweet")
	ctx, cancel := stepContext(c, h.deps)
	defer cancel()

	res, err := h.deps.Pipeline.Tweet(ctx, c.Param("id"))
	if err != nil {
		respondError(c, log, err)
		return
	}

	body := gin.H{
		"ok":         true,
		"simulated":  res.Simulated,
		"tweetId":    res.TweetID,
		"aiEnhanced": res.AIEnhanced,
	}
	if res.Text != "" {
		body["text"] = res.Text
	}
	if res.AlreadyPosted {
		body["alreadyPosted"] = true
	}

	status := http.StatusOK
	if res.Simulated {
		status = http.StatusAccepted
	}
	c.JSON(status, body)
}
