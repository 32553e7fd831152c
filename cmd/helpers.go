package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/visibility-cli/internal/assemble"
	"github.com/sells-group/visibility-cli/internal/audit"
	"github.com/sells-group/visibility-cli/internal/config"
	"github.com/sells-group/visibility-cli/internal/dispatch"
	"github.com/sells-group/visibility-cli/internal/index/weaviate"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/providers"
	"github.com/sells-group/visibility-cli/internal/resilience"
	"github.com/sells-group/visibility-cli/internal/retrieval"
	"github.com/sells-group/visibility-cli/internal/store"
	"github.com/sells-group/visibility-cli/pkg/claude"
	"github.com/sells-group/visibility-cli/pkg/gemini"
	"github.com/sells-group/visibility-cli/pkg/openai"
	"github.com/sells-group/visibility-cli/pkg/perplexity"
	"github.com/sells-group/visibility-cli/pkg/reader"
)

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// buildRunner assembles the audit pipeline for one brand. The returned
// cleanup function releases any shared index handle.
func buildRunner(ctx context.Context, st store.Store, brand model.BrandIdentity) (*audit.Runner, func(), error) {
	openaiClient := newOpenAIClient(cfg.Providers.OpenAI)

	src := weaviate.NewSource(weaviate.Config{
		Host:   cfg.Index.Host,
		Scheme: cfg.Index.Scheme,
		APIKey: cfg.Index.APIKey,
		Class:  cfg.Index.Class,
	}, openaiClient, brand.Namespace())

	engine := retrieval.NewEngine(src, retrieval.Config{
		TopK:           cfg.Retrieval.TopK,
		MaxInFlight:    int64(cfg.Retrieval.MaxInFlight),
		AttemptTimeout: time.Duration(cfg.Retrieval.AttemptTimeoutSecs) * time.Second,
		Policy:         retrieval.Policy(cfg.Retrieval.Policy),
		Retry:          resilience.RetryConfig{MaxAttempts: cfg.Retrieval.MaxAttempts},
	})

	var assembler *assemble.Assembler
	if cfg.Assembly.Enabled {
		fetcher := reader.NewClient(cfg.Reader.Key, reader.WithBaseURL(cfg.Reader.BaseURL))
		assembler = assemble.New(fetcher, assemble.Config{
			MaxConcurrent:    cfg.Assembly.MaxConcurrent,
			FetchTimeout:     time.Duration(cfg.Assembly.FetchTimeoutSecs) * time.Second,
			MaxContentLength: cfg.Assembly.MaxContentLength,
		})
	}

	entries, err := buildProviderEntries(ctx, openaiClient)
	if err != nil {
		return nil, nil, err
	}

	var generator audit.Generator
	if cfg.Providers.OpenAI.Key != "" {
		generator = openaiClient
	}

	runner := audit.New(st, engine, assembler, dispatch.New(entries), generator, cfg.Audit.MaxQueryWorkers)
	cleanup := func() { _ = engine.Close() }
	return runner, cleanup, nil
}

func newOpenAIClient(pc config.ProviderConfig) openai.Client {
	var opts []openai.Option
	if pc.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(pc.BaseURL))
	}
	if pc.Model != "" {
		opts = append(opts, openai.WithChatModel(pc.Model))
	}
	return openai.NewClient(pc.Key, opts...)
}

func buildProviderEntries(ctx context.Context, openaiClient openai.Client) ([]dispatch.Entry, error) {
	var entries []dispatch.Entry

	add := func(p dispatch.Provider, pc config.ProviderConfig) {
		entries = append(entries, dispatch.Entry{
			Provider: p,
			Config: dispatch.ProviderConfig{
				MaxConcurrent:     int64(pc.MaxConcurrent),
				Timeout:           time.Duration(pc.TimeoutSecs) * time.Second,
				RequestsPerSecond: pc.RequestsPerSecond,
			},
		})
	}

	if pc := cfg.Providers.OpenAI; pc.Enabled {
		add(providers.NewOpenAI(openaiClient), pc)
	}
	if pc := cfg.Providers.Gemini; pc.Enabled {
		var opts []gemini.Option
		if pc.Model != "" {
			opts = append(opts, gemini.WithModel(pc.Model))
		}
		client, err := gemini.NewClient(ctx, pc.Key, opts...)
		if err != nil {
			return nil, eris.Wrap(err, "init gemini client")
		}
		add(providers.NewGemini(client), pc)
	}
	if pc := cfg.Providers.Claude; pc.Enabled {
		add(providers.NewClaude(claude.NewClient(pc.Key)), pc)
	}
	if pc := cfg.Providers.Perplexity; pc.Enabled {
		var opts []perplexity.Option
		if pc.BaseURL != "" {
			opts = append(opts, perplexity.WithBaseURL(pc.BaseURL))
		}
		if pc.Model != "" {
			opts = append(opts, perplexity.WithModel(pc.Model))
		}
		add(providers.NewPerplexity(perplexity.NewClient(pc.Key, opts...)), pc)
	}

	if len(entries) == 0 {
		return nil, eris.New("no answer providers enabled")
	}
	return entries, nil
}

// loadBrandFile reads a brand identity from a YAML file.
func loadBrandFile(path string) (model.BrandIdentity, error) {
	var brand model.BrandIdentity
	data, err := os.ReadFile(path)
	if err != nil {
		return brand, eris.Wrapf(err, "read brand file %s", path)
	}
	if err := yaml.Unmarshal(data, &brand); err != nil {
		return brand, eris.Wrapf(err, "parse brand file %s", path)
	}
	return brand, brand.Validate()
}

// loadQueriesFile reads a query list from a YAML file. The file holds either
// a bare list or a top-level "queries" key.
func loadQueriesFile(path string) ([]model.Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read queries file %s", path)
	}

	var wrapped struct {
		Queries []model.Query `yaml:"queries"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err == nil && len(wrapped.Queries) > 0 {
		return wrapped.Queries, nil
	}

	var queries []model.Query
	if err := yaml.Unmarshal(data, &queries); err != nil {
		return nil, eris.Wrapf(err, "parse queries file %s", path)
	}
	return queries, nil
}
