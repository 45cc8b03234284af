// Package twitter is a small client for the X/Twitter v2 API with v1.1 media upload,
// authenticated with OAuth 1.0a user context.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"

	"github.com/edgard/civicbot/internal/config"
)

// ErrNotConfigured is returned when any OAuth credential is missing.
var ErrNotConfigured = errors.New("twitter credentials not configured")

// APIError is a non-2xx answer from the API. Title and Detail come from the
// provider and must not be echoed to end users.
type APIError struct {
	StatusCode int
	Title      string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("twitter api error %d: %s: %s", e.StatusCode, e.Title, e.Detail)
	}
	return fmt.Sprintf("twitter api error %d: %s", e.StatusCode, e.Title)
}

// Code is a stable, secret free identifier for the failure.
func (e *APIError) Code() string {
	return "http_" + strconv.Itoa(e.StatusCode)
}

// DetailCode maps any client error onto a stable code safe for callers.
func DetailCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code()
	}
	return "network_error"
}

// Tweet is a post returned by the timeline endpoints.
type Tweet struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	AuthorID       string    `json:"author_id"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// PostOptions attach media or make the post a reply.
type PostOptions struct {
	ReplyTo  string
	MediaIDs []string
}

// Client calls the API with signed requests.
type Client struct {
	http       *http.Client
	apiBase    string
	uploadBase string
}

// NewClient creates a client from cfg. All four credentials are required.
func NewClient(cfg config.TwitterConfig) (*Client, error) {
	if !cfg.HasCredentials() {
		return nil, ErrNotConfigured
	}

	base := &http.Client{Transport: http.DefaultTransport}
	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, base)
	httpClient := oauth1.NewConfig(cfg.ConsumerKey, cfg.ConsumerSecret).
		Client(ctx, oauth1.NewToken(cfg.AccessToken, cfg.AccessSecret))
	httpClient.Timeout = cfg.Timeout

	return &Client{
		http:       httpClient,
		apiBase:    strings.TrimRight(cfg.APIBaseURL, "/"),
		uploadBase: strings.TrimRight(cfg.UploadBaseURL, "/"),
	}, nil
}

// CreateTweet posts text and returns the new tweet id with the response headers.
func (c *Client) CreateTweet(ctx context.Context, text string, opts PostOptions) (string, http.Header, error) {
	payload := map[string]any{"text": text}
	if opts.ReplyTo != "" {
		payload["reply"] = map[string]string{"in_reply_to_tweet_id": opts.ReplyTo}
	}
	if len(opts.MediaIDs) > 0 {
		payload["media"] = map[string][]string{"media_ids": opts.MediaIDs}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode tweet: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	h, err := c.do(req, &out)
	if err != nil {
		return "", h, err
	}
	if out.Data.ID == "" {
		return "", h, &APIError{StatusCode: http.StatusBadGateway, Title: "missing tweet id"}
	}
	return out.Data.ID, h, nil
}

// UploadMedia uploads an image through the v1.1 simple upload and returns its media id.
func (c *Client) UploadMedia(ctx context.Context, data []byte, filename string) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("media", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadBase+"/1.1/media/upload.json", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out struct {
		MediaIDString string `json:"media_id_string"`
	}
	if _, err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.MediaIDString == "" {
		return "", &APIError{StatusCode: http.StatusBadGateway, Title: "missing media id"}
	}
	return out.MediaIDString, nil
}

// UserIDByUsername resolves a handle (with or without @) to a user id.
func (c *Client) UserIDByUsername(ctx context.Context, username string) (string, http.Header, error) {
	u := c.apiBase + "/2/users/by/username/" + url.PathEscape(strings.TrimPrefix(username, "@"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", nil, err
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	h, err := c.do(req, &out)
	if err != nil {
		return "", h, err
	}
	if out.Data.ID == "" {
		return "", h, &APIError{StatusCode: http.StatusNotFound, Title: "user not found"}
	}
	return out.Data.ID, h, nil
}

// Mentions returns the most recent mentions of userID created at or after since.
func (c *Client) Mentions(ctx context.Context, userID string, maxResults int, since time.Time) ([]Tweet, http.Header, error) {
	q := url.Values{}
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("tweet.fields", "created_at,author_id,conversation_id")
	if !since.IsZero() {
		q.Set("start_time", since.UTC().Format(time.RFC3339))
	}
	u := c.apiBase + "/2/users/" + url.PathEscape(userID) + "/mentions?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, err
	}

	var out struct {
		Data []Tweet `json:"data"`
	}
	h, err := c.do(req, &out)
	if err != nil {
		return nil, h, err
	}
	return out.Data, h, nil
}

func (c *Client) do(req *http.Request, out any) (http.Header, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twitter request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.Header, fmt.Errorf("failed to read twitter response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.Header, parseAPIError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.Header, fmt.Errorf("failed to decode twitter response: %w", err)
	}
	return resp.Header, nil
}

func parseAPIError(status int, raw []byte) *APIError {
	var v2 struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	apiErr := &APIError{StatusCode: status, Title: http.StatusText(status)}
	if json.Unmarshal(raw, &v2) == nil {
		if v2.Title != "" {
			apiErr.Title = v2.Title
		}
		apiErr.Detail = v2.Detail
		if apiErr.Detail == "" && len(v2.Errors) > 0 {
			apiErr.Detail = v2.Errors[0].Message
		}
	}
	return apiErr
}
