// Package llm provides the language model tools used by the report pipeline:
// report classification, authority email drafting and tweet drafting.
//
// The pipeline talks to a Gateway. A Gateway is either a remote tools gateway
// reached over HTTP (see cmd/gateway) or a chat completion backend used in-process.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/edgard/civicbot/internal/config"
)

var (
	// ErrDisabled is returned by every tool when no language model is configured.
	ErrDisabled = errors.New("llm disabled")
	// ErrMalformedResponse is returned when the model output does not match the expected schema.
	ErrMalformedResponse = errors.New("malformed llm response")
)

// Classification is the raw category and severity suggested by the model.
// Values are not checked against any vocabulary here.
type Classification struct {
	Category string `json:"category"`
	Severity string `json:"severity"`
}

// EmailRequest carries the report fields used to draft an authority email.
type EmailRequest struct {
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Severity    string  `json:"severity"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// EmailDraft is a model-written subject and body.
type EmailDraft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TweetRequest carries everything the model needs to write a complete tweet.
type TweetRequest struct {
	Description  string  `json:"description"`
	Category     string  `json:"category"`
	Severity     string  `json:"severity"`
	LocationName string  `json:"locationName"`
	Landmark     string  `json:"landmark"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	MapsLink     string  `json:"mapsLink"`
	CivicHandle  string  `json:"civicHandle"`
	ICCCHandle   string  `json:"icccHandle,omitempty"`
}

// Gateway is the set of language model tools the pipeline relies on.
type Gateway interface {
	ClassifyReport(ctx context.Context, description string) (Classification, error)
	GenerateEmail(ctx context.Context, req EmailRequest) (EmailDraft, error)
	GenerateTweet(ctx context.Context, req TweetRequest) (string, error)
}

type disabled struct{}

func (disabled) ClassifyReport(context.Context, string) (Classification, error) {
	return Classification{}, ErrDisabled
}

func (disabled) GenerateEmail(context.Context, EmailRequest) (EmailDraft, error) {
	return EmailDraft{}, ErrDisabled
}

func (disabled) GenerateTweet(context.Context, TweetRequest) (string, error) {
	return "", ErrDisabled
}

// Disabled returns a Gateway whose tools always fail with ErrDisabled.
func Disabled() Gateway { return disabled{} }

// New builds the Gateway selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (Gateway, error) {
	switch cfg.Provider {
	case "", "none":
		log.Info("Language model disabled, template fallbacks only")
		return Disabled(), nil
	case "gateway":
		return NewHTTPGateway(cfg.GatewayURL, cfg.Timeout, log), nil
	case "openai":
		return NewChatGateway(NewOpenAICompleter(cfg), log), nil
	case "gemini":
		c, err := NewGeminiCompleter(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return NewChatGateway(c, log), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
