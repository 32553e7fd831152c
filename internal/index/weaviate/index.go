// Package weaviate adapts a Weaviate content index to the retrieval engine.
// Each acquired handle carries its own client; the engine decides handle
// lifetimes, this package only classifies faults and maps results.
package weaviate

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/resilience"
	"github.com/sells-group/visibility-cli/internal/retrieval"
)

// DefaultClass is the Weaviate class holding indexed brand content.
const DefaultClass = "ContentChunk"

// Embedder produces the query vector used for nearVector search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config describes how to reach the Weaviate instance.
type Config struct {
	Host   string // host:port, no scheme
	Scheme string // http or https, default http
	APIKey string // optional; anonymous access when empty

	// Class is the collection queried. Default: DefaultClass.
	Class string
	// MaxEmbedLength truncates query text before embedding. Default: 2000.
	MaxEmbedLength int
}

func (c Config) withDefaults() Config {
	if c.Scheme == "" {
		c.Scheme = "http"
	}
	if c.Class == "" {
		c.Class = DefaultClass
	}
	if c.MaxEmbedLength <= 0 {
		c.MaxEmbedLength = 2000
	}
	return c
}

// Source creates index handles scoped to one brand namespace.
type Source struct {
	cfg       Config
	embedder  Embedder
	namespace string
}

// NewSource returns a handle source for the given brand namespace.
func NewSource(cfg Config, embedder Embedder, namespace string) *Source {
	return &Source{cfg: cfg.withDefaults(), embedder: embedder, namespace: namespace}
}

// Acquire builds a fresh client. The client is plain HTTP underneath, so
// acquisition is cheap and never dials; connection faults surface on Search.
func (s *Source) Acquire(ctx context.Context) (retrieval.Index, error) {
	cfg := weaviate.Config{
		Host:   s.cfg.Host,
		Scheme: s.cfg.Scheme,
	}
	if s.cfg.APIKey != "" {
		cfg.AuthConfig = auth.ApiKey{Value: s.cfg.APIKey}
	}
	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "weaviate: create client")
	}
	return &Index{client: client, cfg: s.cfg, embedder: s.embedder, namespace: s.namespace}, nil
}

// Index is one live handle onto the brand's content namespace.
type Index struct {
	client    *weaviate.Client
	cfg       Config
	embedder  Embedder
	namespace string
}

// Search embeds the query and runs a nearVector search restricted to the
// handle's namespace, best matches first.
func (i *Index) Search(ctx context.Context, query string, k int) ([]model.Passage, error) {
	text := query
	if len(text) > i.cfg.MaxEmbedLength {
		text = text[:i.cfg.MaxEmbedLength]
	}

	vector, err := i.embedder.Embed(ctx, text)
	if err != nil {
		return nil, eris.Wrap(err, "weaviate: embed query")
	}

	namespaceFilter := filters.Where().
		WithPath([]string{"namespace"}).
		WithOperator(filters.Equal).
		WithValueString(i.namespace)

	nearVector := i.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	// Certainty is always in [0,1] regardless of the distance metric.
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := i.client.GraphQL().Get().
		WithClassName(i.cfg.Class).
		WithFields(fields...).
		WithWhere(namespaceFilter).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if len(result.Errors) > 0 {
		// GraphQL-level errors mean the query itself was rejected.
		return nil, eris.Errorf("weaviate: query rejected: %s", result.Errors[0].Message)
	}

	passages := parsePassages(result, i.cfg.Class)
	zap.L().Debug("index search complete",
		zap.String("namespace", i.namespace),
		zap.Int("passages", len(passages)),
	)
	return passages, nil
}

// Close releases the handle. The client holds no pooled state of its own, so
// this only marks the handle retired.
func (i *Index) Close() error {
	i.client = nil
	return nil
}

// classify maps client faults onto the shared error taxonomy so the engine
// can decide retry and handle-invalidation without inspecting messages.
func classify(err error) error {
	var we *fault.WeaviateClientError
	if errors.As(err, &we) {
		switch {
		case resilience.IsAuthHTTPStatus(we.StatusCode):
			return resilience.NewAuthError(err)
		case we.StatusCode == 0 || resilience.IsTransientHTTPStatus(we.StatusCode):
			// Code 0 is a connection-level failure before any response.
			return resilience.NewTransientError(err, we.StatusCode)
		default:
			return eris.Wrap(err, "weaviate: search failed")
		}
	}
	if resilience.IsTransient(err) {
		return resilience.NewTransientError(err, 0)
	}
	return eris.Wrap(err, "weaviate: search failed")
}

func parsePassages(result *models.GraphQLResponse, class string) []model.Passage {
	get, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := get[class].([]interface{})
	if !ok {
		return nil
	}

	passages := make([]model.Passage, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		p := model.Passage{
			Content: getString(m, "content"),
			Source:  getString(m, "source"),
		}
		if additional, ok := m["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				p.Score = certainty
			}
		}
		if p.Content == "" {
			continue
		}
		passages = append(passages, p)
	}
	return passages
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
