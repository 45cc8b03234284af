package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/civicbot/internal/config"
)

// GeminiCompleter uses the Gemini API in JSON response mode.
type GeminiCompleter struct {
	genaiClient *genai.Client
	log         *slog.Logger
	model       string
	temperature float32
	maxTokens   int32
	maxRetries  int
	retryDelay  time.Duration
}

// NewGeminiCompleter creates a Gemini backed completer.
func NewGeminiCompleter(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (*GeminiCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized", "model", cfg.Model)
	return &GeminiCompleter{
		genaiClient: gi,
		log:         logger,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   int32(cfg.MaxTokens),
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
	}, nil
}

func (c *GeminiCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	temperature := c.temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:       &temperature,
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		ResponseMIMEType:  "application/json",
	}
	if c.maxTokens > 0 {
		cfg.MaxOutputTokens = c.maxTokens
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := c.generateWithRetries(ctx, contents, cfg)
	if err != nil {
		return "", err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return "", fmt.Errorf("prompt blocked by safety filter: %v", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini returned empty content")
	}
	return resp.Text(), nil
}

// generateWithRetries retries 500 and 503 API errors up to maxRetries times.
func (c *GeminiCompleter) generateWithRetries(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	for i := 0; ; i++ {
		resp, err := c.genaiClient.Models.GenerateContent(ctx, c.model, contents, cfg)
		if err == nil {
			return resp, nil
		}

		var apiErr genai.APIError
		retriable := errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503)
		if !retriable || i >= c.maxRetries {
			c.log.WarnContext(ctx, "Gemini API call failed", "attempt", i+1, "error", err)
			return nil, fmt.Errorf("gemini API call failed: %w", err)
		}

		c.log.InfoContext(ctx, "Retrying Gemini API call", "delay", c.retryDelay, "code", apiErr.Code)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}
