// Package gemini wraps the Google GenAI SDK for answer generation, with
// faults classified for the retry layer.
package gemini

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/visibility-cli/internal/resilience"
)

const defaultModel = "gemini-2.0-flash"

// Client generates answers against the Gemini API.
type Client interface {
	GenerateContent(ctx context.Context, system, prompt string) (string, error)
}

// Option configures the client.
type Option func(*genClient)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *genClient) {
		c.model = model
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *genClient) {
		c.baseURL = url
	}
}

type genClient struct {
	client  *genai.Client
	model   string
	baseURL string
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, apiKey string, opts ...Option) (Client, error) {
	c := &genClient{model: defaultModel}
	for _, o := range opts {
		o(c)
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions.BaseURL = c.baseURL
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	c.client = client
	return c, nil
}

func (c *genClient) GenerateContent(ctx context.Context, system, prompt string) (string, error) {
	var config *genai.GenerateContentConfig
	if system != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		return "", classify(eris.Wrap(err, "gemini: generate content"))
	}

	text := resp.Text()
	if text == "" {
		return "", eris.New("gemini: empty response")
	}
	return text, nil
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case resilience.IsAuthHTTPStatus(apiErr.Code):
			return resilience.NewAuthError(err)
		case resilience.IsTransientHTTPStatus(apiErr.Code):
			return resilience.NewTransientError(err, apiErr.Code)
		}
		return err
	}
	if resilience.IsTransient(err) {
		return resilience.NewTransientError(err, 0)
	}
	return err
}
