// Package reader provides a client for the Jina AI Reader API, used to pull
// readable page content for retrieved sources.
package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/internal/resilience"
)

// Client defines the Reader operations.
type Client interface {
	// Read fetches a URL and returns the parsed reader response.
	Read(ctx context.Context, targetURL string) (*ReadResponse, error)
	// Fetch fetches a URL and returns just the markdown content.
	Fetch(ctx context.Context, targetURL string) (string, error)
}

// ReadResponse is the parsed reader API response.
type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

// ReadData holds the extracted content.
type ReadData struct {
	Title   string    `json:"title"`
	URL     string    `json:"url"`
	Content string    `json:"content"`
	Usage   ReadUsage `json:"usage"`
}

// ReadUsage tracks token consumption.
type ReadUsage struct {
	Tokens int `json:"tokens"`
}

// Option configures the reader client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new reader client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://r.jina.ai",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 5xx). Returns the response body and status code
// on success, or the last error after exhausting retries.
func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// Clone request for retry (body is nil for GET requests).
		retryReq := req.Clone(ctx)

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, resilience.NewTransientError(lastErr, 0)
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "reader: read response body")
		}

		if resilience.IsTransientHTTPStatus(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("reader: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) Read(ctx context.Context, targetURL string) (*ReadResponse, error) {
	reqURL := fmt.Sprintf("%s/%s", c.baseURL, targetURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "reader: create request")
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Return-Format", "markdown")

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "reader: request failed")
	}

	if statusCode != http.StatusOK {
		apiErr := eris.Errorf("reader: unexpected status %d: %s", statusCode, string(body))
		switch {
		case resilience.IsAuthHTTPStatus(statusCode):
			return nil, resilience.NewAuthError(apiErr)
		case resilience.IsTransientHTTPStatus(statusCode):
			return nil, resilience.NewTransientError(apiErr, statusCode)
		default:
			return nil, apiErr
		}
	}

	var result ReadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "reader: unmarshal response")
	}

	return &result, nil
}

// Fetch implements the content fetcher used during context assembly.
func (c *httpClient) Fetch(ctx context.Context, targetURL string) (string, error) {
	resp, err := c.Read(ctx, targetURL)
	if err != nil {
		return "", err
	}
	return resp.Data.Content, nil
}
