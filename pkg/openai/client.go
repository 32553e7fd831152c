// Package openai wraps the OpenAI API for chat generation and query
// embedding, with faults classified for the retry layer.
package openai

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"

	"github.com/sells-group/visibility-cli/internal/resilience"
)

const (
	defaultChatModel      = "gpt-4o-mini"
	defaultEmbeddingModel = "text-embedding-3-small"
)

// Client performs chat completions and embeddings against the OpenAI API.
type Client interface {
	ChatCompletion(ctx context.Context, system, prompt string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Option configures the client.
type Option func(*apiClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *apiClient) {
		c.baseURL = url
	}
}

// WithChatModel overrides the default chat model.
func WithChatModel(model string) Option {
	return func(c *apiClient) {
		c.chatModel = model
	}
}

// WithEmbeddingModel overrides the default embedding model.
func WithEmbeddingModel(model string) Option {
	return func(c *apiClient) {
		c.embeddingModel = model
	}
}

type apiClient struct {
	api            *openai.Client
	baseURL        string
	chatModel      string
	embeddingModel string
}

// NewClient creates an OpenAI API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &apiClient{
		chatModel:      defaultChatModel,
		embeddingModel: defaultEmbeddingModel,
	}
	for _, o := range opts {
		o(c)
	}

	cfg := openai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	c.api = openai.NewClientWithConfig(cfg)
	return c
}

func (c *apiClient) ChatCompletion(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", classify(eris.Wrap(err, "openai: chat completion"))
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("openai: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *apiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: []string{text},
	})
	if err != nil {
		return nil, classify(eris.Wrap(err, "openai: create embedding"))
	}
	if len(resp.Data) == 0 {
		return nil, eris.New("openai: no embedding in response")
	}
	return resp.Data[0].Embedding, nil
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case resilience.IsAuthHTTPStatus(apiErr.HTTPStatusCode):
			return resilience.NewAuthError(err)
		case resilience.IsTransientHTTPStatus(apiErr.HTTPStatusCode):
			return resilience.NewTransientError(err, apiErr.HTTPStatusCode)
		}
		return err
	}
	if resilience.IsTransient(err) {
		return resilience.NewTransientError(err, 0)
	}
	return err
}
