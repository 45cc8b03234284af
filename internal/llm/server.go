package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edgard/civicbot/internal/logger"
)

// Server exposes a Gateway as the /tools HTTP surface consumed by HTTPGateway.
type Server struct {
	gateway  Gateway
	provider string
	log      *slog.Logger
}

// NewServer creates a tools server backed by gw.
func NewServer(gw Gateway, provider string, log *slog.Logger) *Server {
	return &Server{gateway: gw, provider: provider, log: log.With("component", "llm_server")}
}

// Handler returns the HTTP handler with all tool routes registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(logger.Recovery(s.log), logger.Middleware(s.log))

	r.GET("/health", s.health)
	tools := r.Group("/tools")
	tools.POST("/classify.report", s.classify)
	tools.POST("/generate.email", s.email)
	tools.POST("/generate.tweet", s.tweet)
	r.NoRoute(func(c *gin.Context) { c.JSON(http.StatusNotFound, gin.H{"error": "not_found"}) })
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "civicbot-gateway", "provider": s.provider})
}

func (s *Server) classify(c *gin.Context) {
	var req struct {
		Description string `json:"description"`
	}
	if !bindDescription(c, &req, func() string { return req.Description }) {
		return
	}
	out, err := s.gateway.ClassifyReport(c.Request.Context(), req.Description)
	if s.failed(c, "classify.report", err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": out.Category, "severity": out.Severity, "simulated": false})
}

func (s *Server) email(c *gin.Context) {
	var req EmailRequest
	if !bindDescription(c, &req, func() string { return req.Description }) {
		return
	}
	out, err := s.gateway.GenerateEmail(c.Request.Context(), req)
	if s.failed(c, "generate.email", err) {
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) tweet(c *gin.Context) {
	var req TweetRequest
	if !bindDescription(c, &req, func() string { return req.Description }) {
		return
	}
	out, err := s.gateway.GenerateTweet(c.Request.Context(), req)
	if s.failed(c, "generate.tweet", err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"tweet": out})
}

func bindDescription(c *gin.Context, req any, description func() string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return false
	}
	if strings.TrimSpace(description()) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description_required"})
		return false
	}
	return true
}

// failed writes the error response for err, if any. Model errors are logged but never echoed.
func (s *Server) failed(c *gin.Context, tool string, err error) bool {
	if err == nil {
		return false
	}
	s.log.WarnContext(c.Request.Context(), "Tool call failed", "tool", tool, "error", err)
	switch {
	case errors.Is(err, ErrDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "llm_disabled"})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "upstream_timeout"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_failed"})
	}
	return true
}
