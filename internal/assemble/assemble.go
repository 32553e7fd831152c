// Package assemble enriches retrieved passages with freshly fetched page
// content before they are handed to answer providers. Fetches are bounded,
// deduplicated across queries, and never fatal: a failed fetch degrades to
// the indexed excerpt.
package assemble

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/visibility-cli/internal/model"
)

// Fetcher retrieves the readable content of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Config controls assembly behavior.
type Config struct {
	// MaxConcurrent caps simultaneous fetches. Default: 4.
	MaxConcurrent int
	// FetchTimeout bounds a single fetch. Default: 20s.
	FetchTimeout time.Duration
	// MaxContentLength truncates fetched content per passage. Default: 8000.
	MaxContentLength int
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 20 * time.Second
	}
	if c.MaxContentLength <= 0 {
		c.MaxContentLength = 8000
	}
	return c
}

// Assembler upgrades passage excerpts to full page content. Safe for
// concurrent use; fetch results are shared across all callers for the
// assembler's lifetime, so one run fetches each source at most once.
type Assembler struct {
	fetcher Fetcher
	cfg     Config

	flight singleflight.Group
	cache  sync.Map // url -> string
}

// New creates an assembler over the given fetcher.
func New(fetcher Fetcher, cfg Config) *Assembler {
	return &Assembler{fetcher: fetcher, cfg: cfg.withDefaults()}
}

// Enrich returns a copy of the bundle with each passage's content replaced
// by fetched page content. A passage whose source cannot be fetched keeps
// its indexed excerpt and is marked degraded. Failed bundles pass through
// untouched.
func (a *Assembler) Enrich(ctx context.Context, bundle model.ContextBundle) model.ContextBundle {
	if bundle.Failed {
		return bundle
	}

	out := bundle
	out.Passages = make([]model.Passage, len(bundle.Passages))
	copy(out.Passages, bundle.Passages)

	for i := range out.Passages {
		p := &out.Passages[i]
		if !fetchable(p.Source) {
			continue
		}
		content, err := a.fetchOnce(ctx, p.Source)
		if err != nil {
			zap.L().Warn("content fetch failed, using indexed excerpt",
				zap.String("source", p.Source),
				zap.Error(err),
			)
			p.Degraded = true
			continue
		}
		p.Content = truncate(content, a.cfg.MaxContentLength)
	}
	return out
}

// EnrichAll enriches every bundle concurrently. The returned slice is
// index-aligned with the input.
func (a *Assembler) EnrichAll(ctx context.Context, bundles []model.ContextBundle) []model.ContextBundle {
	out := make([]model.ContextBundle, len(bundles))

	g := new(errgroup.Group)
	g.SetLimit(a.cfg.MaxConcurrent)
	for i, b := range bundles {
		g.Go(func() error {
			out[i] = a.Enrich(ctx, b)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// fetchOnce fetches a URL at most once per assembler lifetime. Concurrent
// callers for the same URL share one in-flight fetch; later callers hit the
// cache. Failures are not cached, so a source that was down for one query
// can still succeed for a later one.
func (a *Assembler) fetchOnce(ctx context.Context, url string) (string, error) {
	if cached, ok := a.cache.Load(url); ok {
		return cached.(string), nil
	}

	v, err, _ := a.flight.Do(url, func() (interface{}, error) {
		if cached, ok := a.cache.Load(url); ok {
			return cached.(string), nil
		}
		fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
		defer cancel()

		content, err := a.fetcher.Fetch(fetchCtx, url)
		if err != nil {
			return "", err
		}
		a.cache.Store(url, content)
		return content, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func fetchable(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
