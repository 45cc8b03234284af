package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Completer sends one system instruction and one user prompt to a chat model
// and returns the raw text of its answer.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ChatGateway implements Gateway on top of a chat completion backend.
type ChatGateway struct {
	completer Completer
	log       *slog.Logger
}

// NewChatGateway wraps a Completer with the civic report tools.
func NewChatGateway(c Completer, log *slog.Logger) *ChatGateway {
	return &ChatGateway{completer: c, log: log.With("component", "llm_chat")}
}

func (g *ChatGateway) ClassifyReport(ctx context.Context, description string) (Classification, error) {
	var out Classification
	prompt := fmt.Sprintf(ClassifyPrompt, description)
	if err := g.completeJSON(ctx, "classify.report", ClassifySystemInstruction, prompt, &out); err != nil {
		return Classification{}, err
	}
	out.Category = strings.ToLower(strings.TrimSpace(out.Category))
	out.Severity = strings.ToLower(strings.TrimSpace(out.Severity))
	if out.Category == "" || out.Severity == "" {
		return Classification{}, fmt.Errorf("classify.report: %w: missing fields", ErrMalformedResponse)
	}
	return out, nil
}

func (g *ChatGateway) GenerateEmail(ctx context.Context, req EmailRequest) (EmailDraft, error) {
	var out EmailDraft
	prompt := fmt.Sprintf(EmailPrompt, req.Description, orUnknown(req.Category), orUnknown(req.Severity), req.Lat, req.Lng)
	if err := g.completeJSON(ctx, "generate.email", EmailSystemInstruction, prompt, &out); err != nil {
		return EmailDraft{}, err
	}
	out.Subject = strings.TrimSpace(out.Subject)
	out.Body = strings.TrimSpace(out.Body)
	if out.Subject == "" || out.Body == "" {
		return EmailDraft{}, fmt.Errorf("generate.email: %w: missing fields", ErrMalformedResponse)
	}
	return out, nil
}

func (g *ChatGateway) GenerateTweet(ctx context.Context, req TweetRequest) (string, error) {
	var out struct {
		Tweet string `json:"tweet"`
	}
	handles := req.CivicHandle
	if req.ICCCHandle != "" {
		handles += " " + req.ICCCHandle
	}
	prompt := fmt.Sprintf(TweetPrompt, req.Description, orUnknown(req.Category), orUnknown(req.Severity),
		req.LocationName, req.Landmark, req.MapsLink, handles)
	if err := g.completeJSON(ctx, "generate.tweet", TweetSystemInstruction, prompt, &out); err != nil {
		return "", err
	}
	tweet := strings.TrimSpace(out.Tweet)
	if tweet == "" {
		return "", fmt.Errorf("generate.tweet: %w: missing fields", ErrMalformedResponse)
	}
	return tweet, nil
}

func (g *ChatGateway) completeJSON(ctx context.Context, tool, system, prompt string, out any) error {
	text, err := g.completer.Complete(ctx, system, prompt)
	if err != nil {
		return fmt.Errorf("%s completion failed: %w", tool, err)
	}
	if err := ParseJSON(text, out); err != nil {
		g.log.WarnContext(ctx, "Model output did not match schema", "tool", tool, "error", err)
		return fmt.Errorf("%s: %w", tool, err)
	}
	return nil
}

// ParseJSON decodes a model answer that must be a single JSON object.
// A surrounding markdown code fence is tolerated; any other text is not.
func ParseJSON(text string, out any) error {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		return fmt.Errorf("%w: not a JSON object", ErrMalformedResponse)
	}

	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after object", ErrMalformedResponse)
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
