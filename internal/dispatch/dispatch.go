// Package dispatch fans a query plus its assembled context out to every
// configured answer provider. Providers are isolated from each other: one
// provider's failure, slowness, or throttling never blocks or cancels the
// others, and every provider produces a response record no matter what.
package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/resilience"
)

// Provider is one LLM answer engine.
type Provider interface {
	ID() string
	// Generate answers the query grounded in the supplied context text.
	Generate(ctx context.Context, query, contextText string) (string, error)
}

// ProviderConfig tunes one provider's slice of the dispatcher.
type ProviderConfig struct {
	// MaxConcurrent caps this provider's simultaneous calls across all
	// queries. Default: 2.
	MaxConcurrent int64
	// Timeout bounds a single generation attempt. Default: 60s.
	Timeout time.Duration
	// Retry controls the retry loop for transient provider faults.
	Retry resilience.RetryConfig
	// RequestsPerSecond throttles calls to this provider across all queries.
	// Zero means unthrottled.
	RequestsPerSecond float64
	// Burst is the rate limiter burst size. Default: 1 when throttled.
	Burst int
}

func (c ProviderConfig) withDefaults() ProviderConfig {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

// Entry pairs a provider with its config.
type Entry struct {
	Provider Provider
	Config   ProviderConfig
}

type providerSlot struct {
	provider Provider
	cfg      ProviderConfig
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
}

// Dispatcher fans queries out to providers. Limits and throttles are shared
// across all queries dispatched through the same Dispatcher, so batch-level
// pressure on one provider stays within that provider's budget.
type Dispatcher struct {
	slots []*providerSlot
}

// New builds a dispatcher over the given providers.
func New(entries []Entry) *Dispatcher {
	slots := make([]*providerSlot, 0, len(entries))
	for _, e := range entries {
		cfg := e.Config.withDefaults()
		slot := &providerSlot{
			provider: e.Provider,
			cfg:      cfg,
			sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		}
		if cfg.RequestsPerSecond > 0 {
			slot.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
		}
		slots = append(slots, slot)
	}
	return &Dispatcher{slots: slots}
}

// ProviderIDs returns the IDs of all configured providers, in dispatch order.
func (d *Dispatcher) ProviderIDs() []string {
	ids := make([]string, len(d.slots))
	for i, s := range d.slots {
		ids[i] = s.provider.ID()
	}
	return ids
}

// Ask sends one query with its context to every provider concurrently and
// returns a response per provider, keyed by provider ID. Always returns an
// entry for every provider: errors are recorded, never dropped.
func (d *Dispatcher) Ask(ctx context.Context, query model.Query, contextText string) map[string]model.ProviderResponse {
	responses := make([]model.ProviderResponse, len(d.slots))

	// WaitGroup rather than an error group: sibling providers must keep
	// running when one fails.
	var wg sync.WaitGroup
	for i, slot := range d.slots {
		wg.Add(1)
		go func() {
			defer wg.Done()
			responses[i] = d.askOne(ctx, slot, query, contextText)
		}()
	}
	wg.Wait()

	out := make(map[string]model.ProviderResponse, len(responses))
	for _, r := range responses {
		out[r.ProviderID] = r
	}
	return out
}

func (d *Dispatcher) askOne(ctx context.Context, slot *providerSlot, query model.Query, contextText string) model.ProviderResponse {
	id := slot.provider.ID()
	resp := model.ProviderResponse{ProviderID: id}
	start := time.Now()

	retryCfg := slot.cfg.Retry
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = resilience.RetryLogger(id, "generate")
	}

	text, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (string, error) {
		if slot.limiter != nil {
			if err := slot.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		if err := slot.sem.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer slot.sem.Release(1)

		callCtx, cancel := context.WithTimeout(ctx, slot.cfg.Timeout)
		defer cancel()
		return slot.provider.Generate(callCtx, query.Text, contextText)
	})

	resp.Latency = time.Since(start)
	if err != nil {
		resp.Err = err.Error()
		resp.ErrKind = classifyKind(err)
		zap.L().Warn("provider failed",
			zap.String("provider", id),
			zap.String("kind", string(resp.ErrKind)),
			zap.Duration("latency", resp.Latency),
			zap.Error(err),
		)
		return resp
	}

	resp.Text = text
	zap.L().Debug("provider answered",
		zap.String("provider", id),
		zap.Duration("latency", resp.Latency),
		zap.Int("chars", len(text)),
	)
	return resp
}

func classifyKind(err error) model.ErrKind {
	switch {
	case resilience.IsAuth(err):
		return model.ErrKindAuth
	case resilience.IsTransient(err):
		return model.ErrKindTransient
	default:
		return model.ErrKindTerminal
	}
}
