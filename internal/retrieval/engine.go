// Package retrieval resolves queries against the brand's content index under
// bounded concurrency, with retry, backoff, and mandatory handle
// invalidation on transient faults.
package retrieval

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/resilience"
)

// Index is one live handle onto the content index. Handles are cheap to
// acquire and must never be reused after a transient failure.
type Index interface {
	// Search returns up to k passages relevant to the query, best first.
	Search(ctx context.Context, query string, k int) ([]model.Passage, error)
	Close() error
}

// Source acquires index handles. Every Acquire returns a fresh handle with
// its own connection state; the engine decides when handles are discarded.
type Source interface {
	Acquire(ctx context.Context) (Index, error)
}

// Policy selects how index handles are shared across a batch of queries.
type Policy string

const (
	// PolicyPerQuery acquires a fresh handle for every attempt of every
	// query. Finest failure isolation, highest per-call overhead.
	PolicyPerQuery Policy = "per_query"
	// PolicyBatched shares one handle across the whole batch, invalidating
	// and reacquiring it when a transient fault occurs. Cheapest, but one
	// bad handle has a wider blast radius until it is replaced.
	PolicyBatched Policy = "batched"
)

// Config controls the retrieval engine.
type Config struct {
	// TopK is the number of passages requested per query. Default: 4.
	TopK int
	// MaxInFlight caps simultaneously in-flight index calls across all
	// queries. Size this to the index client's connection budget. Default: 8.
	MaxInFlight int64
	// AttemptTimeout bounds a single index call. Default: 30s.
	AttemptTimeout time.Duration
	// Retry controls the per-query retry loop. Defaults to 3 attempts with
	// exponential backoff and jitter.
	Retry resilience.RetryConfig
	// Policy selects handle sharing. Default: PolicyPerQuery.
	Policy Policy
	// Breaker configures the circuit breaker in front of the index, so a
	// dead index fails fast instead of costing every query its full retry
	// budget.
	Breaker resilience.CircuitBreakerConfig
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = 4
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 8
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 30 * time.Second
	}
	if c.Policy == "" {
		c.Policy = PolicyPerQuery
	}
	return c
}

// Engine performs resilient context retrieval for query batches.
type Engine struct {
	source  Source
	cfg     Config
	sem     *semaphore.Weighted
	breaker *resilience.CircuitBreaker

	mu     sync.Mutex
	shared Index // live handle in batched mode, nil when invalidated
}

// NewEngine creates a retrieval engine over the given index source.
func NewEngine(source Source, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	breakerCfg := cfg.Breaker
	if breakerCfg.ShouldTrip == nil {
		// Only index-side faults trip the breaker; a malformed query is not
		// evidence that the index is down.
		breakerCfg.ShouldTrip = resilience.IsTransient
	}
	return &Engine{
		source:  source,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(cfg.MaxInFlight),
		breaker: resilience.NewCircuitBreaker(breakerCfg),
	}
}

// Retrieve resolves context for a single query. Transient index faults retry
// with backoff up to the configured budget, acquiring a fresh handle before
// each retry — a handle that failed is never reused. Exhausted retries
// return a bundle explicitly marked failed, never a silent empty one.
func (e *Engine) Retrieve(ctx context.Context, q model.Query) model.ContextBundle {
	log := zap.L().With(zap.String("query", q.Text))

	retryCfg := e.cfg.Retry
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = resilience.RetryLogger("index", "search")
	}

	passages, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) ([]model.Passage, error) {
		return e.searchOnce(ctx, q.Text)
	})
	if err != nil {
		log.Warn("retrieval failed terminally", zap.Error(err))
		return model.ContextBundle{Query: q, Failed: true, Err: err.Error()}
	}

	log.Debug("retrieval complete", zap.Int("passages", len(passages)))
	return model.ContextBundle{Query: q, Passages: passages}
}

// RetrieveAll resolves context for every query concurrently. The returned
// slice is index-aligned with the input. One query's terminal failure never
// cancels its siblings.
func (e *Engine) RetrieveAll(ctx context.Context, queries []model.Query) []model.ContextBundle {
	bundles := make([]model.ContextBundle, len(queries))

	g := new(errgroup.Group)
	g.SetLimit(int(e.cfg.MaxInFlight))
	for i, q := range queries {
		g.Go(func() error {
			bundles[i] = e.Retrieve(ctx, q)
			return nil
		})
	}
	_ = g.Wait()

	return bundles
}

// searchOnce performs one bounded index call on a handle chosen per policy,
// discarding the handle on failure.
func (e *Engine) searchOnce(ctx context.Context, query string) ([]model.Passage, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, eris.Wrap(err, "retrieval: acquire slot")
	}
	defer e.sem.Release(1)

	idx, sharedHandle, err := e.handle(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: acquire index handle")
	}

	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	defer cancel()

	passages, err := resilience.ExecuteVal(attemptCtx, e.breaker, func(ctx context.Context) ([]model.Passage, error) {
		return idx.Search(ctx, query, e.cfg.TopK)
	})
	if err != nil {
		e.discard(idx, sharedHandle, err)
		return nil, err
	}

	if !sharedHandle {
		_ = idx.Close()
	}
	return passages, nil
}

// handle returns the index handle for this attempt. In per-query mode every
// attempt gets a fresh handle; in batched mode the shared handle is reused
// until invalidated.
func (e *Engine) handle(ctx context.Context) (Index, bool, error) {
	if e.cfg.Policy != PolicyBatched {
		idx, err := e.source.Acquire(ctx)
		return idx, false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shared != nil {
		return e.shared, true, nil
	}
	idx, err := e.source.Acquire(ctx)
	if err != nil {
		return nil, true, err
	}
	e.shared = idx
	return idx, true, nil
}

// discard retires a handle after a failed call. Fresh handles are always
// closed. The shared handle is invalidated only on transient faults, since
// session reuse across a transient fault is what turns one bad call into a
// cascade; terminal errors say nothing about the handle's health.
func (e *Engine) discard(idx Index, sharedHandle bool, err error) {
	if !sharedHandle {
		_ = idx.Close()
		return
	}
	if !resilience.IsTransient(err) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shared == idx {
		zap.L().Info("invalidating shared index handle after transient fault", zap.Error(err))
		_ = e.shared.Close()
		e.shared = nil
	}
}

// Close releases the shared handle, if any.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shared != nil {
		err := e.shared.Close()
		e.shared = nil
		return err
	}
	return nil
}
