package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/edgard/civicbot/internal/config"
)

// OpenAICompleter talks to any OpenAI compatible chat completions API, such as Cerebras.
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAICompleter creates a completer for cfg.BaseURL using cfg.APIKey.
func NewOpenAICompleter(cfg config.LLMConfig) *OpenAICompleter {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAICompleter{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in chat completion")
	}
	return resp.Choices[0].Message.Content, nil
}
