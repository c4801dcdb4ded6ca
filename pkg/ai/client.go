// Package ai holds the text-generation client and the reply scheduler that
// populates threads with synthetic conversation.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"anonboard/pkg/logger"
)

// Generator is the text-completion capability the scheduler consumes.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrAllModelsFailed is returned when every model in the fallback list
// errored or produced empty output.
var ErrAllModelsFailed = errors.New("all models failed")

// Client calls an OpenAI-compatible chat-completion endpoint, trying each
// model in the configured order until one yields non-empty output.
// Transient errors and empty completions both mean "try the next model".
type Client struct {
	api     *openai.Client
	models  []string
	timeout time.Duration
}

// NewClient builds a Client. baseURL may point at any OpenAI-compatible
// endpoint; timeout bounds each individual model attempt.
func NewClient(baseURL, apiKey string, models []string, timeout time.Duration) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{api: openai.NewClientWithConfig(cfg), models: models, timeout: timeout}
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for _, model := range c.models {
		out, err := c.tryModel(ctx, model, prompt)
		if err != nil {
			logger.Warn("generation_model_failed", "model", model, "error", err)
			lastErr = err
			continue
		}
		if out == "" {
			logger.Warn("generation_model_empty", "model", model)
			continue
		}
		return out, nil
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", ErrAllModelsFailed, lastErr)
	}
	return "", ErrAllModelsFailed
}

func (c *Client) tryModel(ctx context.Context, model, prompt string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.api.CreateChatCompletion(cctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
