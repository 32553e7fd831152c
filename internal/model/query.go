package model

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
)

// Intent is the customer-journey category a query belongs to.
type Intent string

const (
	IntentNavigational  Intent = "navigational"
	IntentInformational Intent = "informational"
	IntentCommercial    Intent = "commercial"
	IntentTransactional Intent = "transactional"
	IntentAwareness     Intent = "awareness"
	IntentConsideration Intent = "consideration"
)

// AllIntents returns the supported intents in canonical order. The order
// matters: the allocator assigns remainder queries to the first intents.
func AllIntents() []Intent {
	return []Intent{
		IntentNavigational,
		IntentInformational,
		IntentCommercial,
		IntentTransactional,
		IntentAwareness,
		IntentConsideration,
	}
}

// Valid reports whether the intent is one of the supported categories.
func (i Intent) Valid() bool {
	switch i {
	case IntentNavigational, IntentInformational, IntentCommercial,
		IntentTransactional, IntentAwareness, IntentConsideration:
		return true
	}
	return false
}

// Query is a single natural-language search query with its targeting
// metadata. Queries are immutable once produced.
type Query struct {
	Text              string `json:"query" yaml:"query"`
	Intent            Intent `json:"intent" yaml:"intent"`
	SubIntent         string `json:"sub_intent" yaml:"sub_intent"`
	Persona           string `json:"persona" yaml:"persona"`
	Category          string `json:"category" yaml:"category"`
	ExpectedRelevance string `json:"expected_relevance" yaml:"expected_relevance"`
	Locale            string `json:"locale" yaml:"locale"`
	Notes             string `json:"notes" yaml:"notes"`
}

// Validate checks that every required field is present and well-formed.
// The returned error names all missing or invalid fields, not just the first.
func (q Query) Validate() error {
	var problems []string

	if strings.TrimSpace(q.Text) == "" {
		problems = append(problems, "query")
	}
	if q.Intent == "" {
		problems = append(problems, "intent")
	} else if !q.Intent.Valid() {
		problems = append(problems, "intent (unknown value "+string(q.Intent)+")")
	}
	if strings.TrimSpace(q.Persona) == "" {
		problems = append(problems, "persona")
	}
	if strings.TrimSpace(q.Category) == "" {
		problems = append(problems, "category")
	}
	switch q.ExpectedRelevance {
	case "high", "medium", "low":
	case "":
		problems = append(problems, "expected_relevance")
	default:
		problems = append(problems, "expected_relevance (must be high|medium|low)")
	}
	if strings.TrimSpace(q.Locale) == "" {
		problems = append(problems, "locale")
	} else if _, err := language.Parse(q.Locale); err != nil {
		problems = append(problems, "locale (not a valid IETF tag)")
	}

	if len(problems) > 0 {
		return eris.Errorf("query invalid, missing or bad fields: %s", strings.Join(problems, ", "))
	}
	return nil
}
