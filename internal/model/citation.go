package model

import "time"

// ErrKind classifies how a provider call finally failed.
type ErrKind string

const (
	ErrKindNone      ErrKind = ""
	ErrKindTransient ErrKind = "transient" // retries exhausted
	ErrKindTerminal  ErrKind = "terminal"
	ErrKindAuth      ErrKind = "auth"
)

// ProviderResponse is the finalized outcome of dispatching one query to one
// provider. A provider that errored still produces a response with Err set;
// failures are never silently dropped.
type ProviderResponse struct {
	ProviderID string        `json:"provider_id"`
	Text       string        `json:"text,omitempty"`
	Err        string        `json:"error,omitempty"`
	ErrKind    ErrKind       `json:"error_kind,omitempty"`
	Latency    time.Duration `json:"latency"`
}

// Failed reports whether the provider never produced a usable answer.
func (r ProviderResponse) Failed() bool {
	return r.Err != ""
}

// CitationRecord is the pure derivation of one provider response against a
// brand identity.
type CitationRecord struct {
	Cited        bool     `json:"cited"`
	MentionCount int      `json:"mention_count"`
	Sentences    []string `json:"sentences"`
}

// ProviderCitation is the per-provider slice of a query's visibility.
// Failed distinguishes "provider never answered" from "answered, brand
// absent" — the two are never conflated into the same zero.
type ProviderCitation struct {
	Cited        bool     `json:"cited"`
	MentionCount int      `json:"mention_count"`
	Sentences    []string `json:"sentences,omitempty"`
	Response     string   `json:"response,omitempty"`
	Failed       bool     `json:"failed,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// QueryVisibility aggregates a single query's citation records across every
// provider attempted for it. Immutable once computed.
type QueryVisibility struct {
	Query         Query                       `json:"query"`
	Percentage    float64                     `json:"percentage"`
	TotalMentions int                         `json:"total_mentions"`
	Providers     map[string]ProviderCitation `json:"providers"`
	ContextFailed bool                        `json:"context_failed,omitempty"`
}

// ProviderStats is one provider's performance across a whole run.
type ProviderStats struct {
	QueriesAsked  int     `json:"queries_asked"`
	QueriesCited  int     `json:"queries_cited"`
	CitationRate  float64 `json:"citation_rate"`
	TotalMentions int     `json:"total_mentions"`
}

// IntentStats is the run-level visibility restricted to queries of one intent.
type IntentStats struct {
	TotalQueries         int     `json:"total_queries"`
	QueriesWithCitations int     `json:"queries_with_citations"`
	AveragePercentage    float64 `json:"average_percentage"`
	CitationRate         float64 `json:"citation_rate"`
}

// RunVisibility is the run-level rollup over all query visibilities.
type RunVisibility struct {
	AveragePercentage    float64                  `json:"average_percentage"`
	TotalQueries         int                      `json:"total_queries"`
	QueriesWithCitations int                      `json:"queries_with_citations"`
	Providers            map[string]ProviderStats `json:"providers"`
	Intents              map[Intent]IntentStats   `json:"intents"`
}
