package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// HTTPGateway calls a remote tools gateway exposing /tools/<name> endpoints.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewHTTPGateway creates a client for the tools gateway at baseURL.
func NewHTTPGateway(baseURL string, timeout time.Duration, log *slog.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log.With("component", "llm_gateway_client"),
	}
}

func (g *HTTPGateway) ClassifyReport(ctx context.Context, description string) (Classification, error) {
	var out Classification
	if err := g.call(ctx, "classify.report", map[string]string{"description": description}, &out); err != nil {
		return Classification{}, err
	}
	if out.Category == "" || out.Severity == "" {
		return Classification{}, fmt.Errorf("classify.report: %w", ErrMalformedResponse)
	}
	return out, nil
}

func (g *HTTPGateway) GenerateEmail(ctx context.Context, req EmailRequest) (EmailDraft, error) {
	var out EmailDraft
	if err := g.call(ctx, "generate.email", req, &out); err != nil {
		return EmailDraft{}, err
	}
	if strings.TrimSpace(out.Subject) == "" || strings.TrimSpace(out.Body) == "" {
		return EmailDraft{}, fmt.Errorf("generate.email: %w", ErrMalformedResponse)
	}
	return out, nil
}

func (g *HTTPGateway) GenerateTweet(ctx context.Context, req TweetRequest) (string, error) {
	var out struct {
		Tweet string `json:"tweet"`
	}
	if err := g.call(ctx, "generate.tweet", req, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Tweet) == "" {
		return "", fmt.Errorf("generate.tweet: %w", ErrMalformedResponse)
	}
	return out.Tweet, nil
}

// Ping checks that the gateway answers its health endpoint.
func (g *HTTPGateway) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway health returned %d", resp.StatusCode)
	}
	return nil
}

func (g *HTTPGateway) call(ctx context.Context, tool string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", tool, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/tools/"+tool, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", tool, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", tool, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", tool, err)
	}
	if resp.StatusCode != http.StatusOK {
		g.log.WarnContext(ctx, "Gateway tool returned an error", "tool", tool, "status", resp.StatusCode)
		return fmt.Errorf("%s returned status %d", tool, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: %w: %v", tool, ErrMalformedResponse, err)
	}
	return nil
}
