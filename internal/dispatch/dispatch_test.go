package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/resilience"
)

type scriptedProvider struct {
	id       string
	generate func(ctx context.Context, query, contextText string) (string, error)
}

func (p *scriptedProvider) ID() string { return p.id }

func (p *scriptedProvider) Generate(ctx context.Context, query, contextText string) (string, error) {
	return p.generate(ctx, query, contextText)
}

func fastRetry(attempts int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		JitterFraction: 0,
	}
}

func answering(id, answer string) Entry {
	return Entry{
		Provider: &scriptedProvider{
			id: id,
			generate: func(ctx context.Context, query, contextText string) (string, error) {
				return answer, nil
			},
		},
		Config: ProviderConfig{Retry: fastRetry(2)},
	}
}

func TestAskCollectsAllProviders(t *testing.T) {
	d := New([]Entry{
		answering("openai", "Acme is great."),
		answering("gemini", "Try Acme."),
		answering("perplexity", "Many options exist."),
	})

	got := d.Ask(context.Background(), model.Query{Text: "best widget"}, "ctx")

	require.Len(t, got, 3)
	assert.Equal(t, "Acme is great.", got["openai"].Text)
	assert.Equal(t, "Try Acme.", got["gemini"].Text)
	assert.False(t, got["perplexity"].Failed())
	for id, r := range got {
		assert.Equal(t, id, r.ProviderID)
		assert.Greater(t, r.Latency, time.Duration(0))
	}
}

func TestAskIsolatesProviderFailure(t *testing.T) {
	d := New([]Entry{
		answering("healthy", "Acme works."),
		{
			Provider: &scriptedProvider{
				id: "broken",
				generate: func(ctx context.Context, query, contextText string) (string, error) {
					return "", fmt.Errorf("model overloaded, please retry")
				},
			},
			Config: ProviderConfig{Retry: fastRetry(2)},
		},
	})

	got := d.Ask(context.Background(), model.Query{Text: "q"}, "ctx")

	assert.False(t, got["healthy"].Failed())
	require.True(t, got["broken"].Failed())
	assert.Equal(t, model.ErrKindTerminal, got["broken"].ErrKind)
	assert.Contains(t, got["broken"].Err, "overloaded")
}

func TestAskClassifiesErrorKinds(t *testing.T) {
	d := New([]Entry{
		{
			Provider: &scriptedProvider{
				id: "throttled",
				generate: func(ctx context.Context, query, contextText string) (string, error) {
					return "", resilience.NewTransientError(fmt.Errorf("429 too many requests"), 429)
				},
			},
			Config: ProviderConfig{Retry: fastRetry(2)},
		},
		{
			Provider: &scriptedProvider{
				id: "unauthorized",
				generate: func(ctx context.Context, query, contextText string) (string, error) {
					return "", resilience.NewAuthError(fmt.Errorf("invalid api key"))
				},
			},
			Config: ProviderConfig{Retry: fastRetry(5)},
		},
	})

	got := d.Ask(context.Background(), model.Query{Text: "q"}, "ctx")

	assert.Equal(t, model.ErrKindTransient, got["throttled"].ErrKind)
	assert.Equal(t, model.ErrKindAuth, got["unauthorized"].ErrKind)
}

func TestAskRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int64
	d := New([]Entry{
		{
			Provider: &scriptedProvider{
				id: "flaky",
				generate: func(ctx context.Context, query, contextText string) (string, error) {
					if calls.Add(1) == 1 {
						return "", resilience.NewTransientError(fmt.Errorf("503"), 503)
					}
					return "Acme recovered.", nil
				},
			},
			Config: ProviderConfig{Retry: fastRetry(3)},
		},
	})

	got := d.Ask(context.Background(), model.Query{Text: "q"}, "ctx")

	assert.False(t, got["flaky"].Failed())
	assert.Equal(t, "Acme recovered.", got["flaky"].Text)
	assert.Equal(t, int64(2), calls.Load())
}

func TestAskAuthFailureDoesNotRetry(t *testing.T) {
	var calls atomic.Int64
	d := New([]Entry{
		{
			Provider: &scriptedProvider{
				id: "locked-out",
				generate: func(ctx context.Context, query, contextText string) (string, error) {
					calls.Add(1)
					return "", resilience.NewAuthError(fmt.Errorf("401"))
				},
			},
			Config: ProviderConfig{Retry: fastRetry(5)},
		},
	})

	d.Ask(context.Background(), model.Query{Text: "q"}, "ctx")

	assert.Equal(t, int64(1), calls.Load())
}

func TestProviderConcurrencyCapSharedAcrossQueries(t *testing.T) {
	var inFlight, peak atomic.Int64
	d := New([]Entry{
		{
			Provider: &scriptedProvider{
				id: "capped",
				generate: func(ctx context.Context, query, contextText string) (string, error) {
					cur := inFlight.Add(1)
					defer inFlight.Add(-1)
					for {
						p := peak.Load()
						if cur <= p || peak.CompareAndSwap(p, cur) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					return "ok", nil
				},
			},
			Config: ProviderConfig{MaxConcurrent: 2, Retry: fastRetry(1)},
		},
	})

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			d.Ask(context.Background(), model.Query{Text: fmt.Sprintf("q%d", i)}, "ctx")
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestProviderIDs(t *testing.T) {
	d := New([]Entry{answering("a", "x"), answering("b", "y")})
	assert.Equal(t, []string{"a", "b"}, d.ProviderIDs())
}

func TestAskTimeoutIsRecorded(t *testing.T) {
	d := New([]Entry{
		{
			Provider: &scriptedProvider{
				id: "slow",
				generate: func(ctx context.Context, query, contextText string) (string, error) {
					<-ctx.Done()
					return "", fmt.Errorf("generate: %w", ctx.Err())
				},
			},
			Config: ProviderConfig{Timeout: 5 * time.Millisecond, Retry: fastRetry(1)},
		},
	})

	got := d.Ask(context.Background(), model.Query{Text: "q"}, "ctx")

	require.True(t, got["slow"].Failed())
	assert.Contains(t, got["slow"].Err, "context deadline exceeded")
}
