// Package llm wraps language model access behind a small interface.
//
// The analyzer is the only consumer; it makes one bounded call per
// request and treats the output as untrusted, so this package does no
// retries of its own. Rate limiting protects API quotas.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/retrievald/internal/config"
)

const (
	defaultRateLimit = 5.0
	defaultBurst     = 10
	defaultMaxTokens = 1024
)

var (
	// ErrEmptyResponse indicates the model returned no choices.
	ErrEmptyResponse = errors.New("model returned empty response")

	// ErrUnknownProvider indicates an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown llm provider")
)

// Message is one turn of conversation context.
type Message struct {
	// Role is "user" or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// Model generates a completion from a system prompt and message history.
type Model interface {
	Complete(ctx context.Context, system string, messages []Message) (string, error)
}

// Client is a rate-limited langchaingo-backed Model.
type Client struct {
	model     llms.Model
	limiter   *rate.Limiter
	maxTokens int
}

// NewClient creates a client for the configured provider. Supported
// providers are "openai" (and OpenAI-compatible endpoints via BaseURL)
// and "ollama".
func NewClient(cfg config.LLMConfig) (*Client, error) {
	var (
		model llms.Model
		err   error
	)

	switch cfg.Provider {
	case "", "openai":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", cfg.Provider, err)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Client{
		model:     model,
		limiter:   rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxTokens: maxTokens,
	}, nil
}

// Complete makes a single model call. The caller bounds it with a
// context deadline; there are no internal retries.
func (c *Client) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	content := make([]llms.MessageContent, 0, len(messages)+1)
	if system != "" {
		content = append(content, llms.TextParts(schema.ChatMessageTypeSystem, system))
	}
	for _, msg := range messages {
		role := schema.ChatMessageTypeHuman
		if msg.Role == "assistant" {
			role = schema.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, msg.Content))
	}

	resp, err := c.model.GenerateContent(ctx, content, llms.WithMaxTokens(c.maxTokens))
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
