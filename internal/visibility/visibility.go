// Package visibility turns citation records into per-query and run-level
// visibility metrics. All math is pure and deterministic: percentages are
// rounded to one decimal place, and a provider that errored counts against
// visibility exactly like a provider that answered without citing — the
// denominator is the number of providers asked, always.
package visibility

import (
	"math"

	"github.com/sells-group/visibility-cli/internal/citation"
	"github.com/sells-group/visibility-cli/internal/model"
)

// Options controls what makes it into the computed records.
type Options struct {
	// IncludeResponses copies full provider answer text into each
	// ProviderCitation. Off by default to keep persisted results small.
	IncludeResponses bool
}

// ForQuery derives one query's visibility from its provider responses.
// Every response gets a provider entry; failed providers are recorded as
// not cited with their error preserved, never silently dropped.
func ForQuery(q model.Query, responses map[string]model.ProviderResponse, det *citation.Detector, opts Options) model.QueryVisibility {
	qv := model.QueryVisibility{
		Query:     q,
		Providers: make(map[string]model.ProviderCitation, len(responses)),
	}

	cited := 0
	for id, resp := range responses {
		pc := model.ProviderCitation{}
		if resp.Failed() {
			pc.Failed = true
			pc.Error = resp.Err
		} else {
			record := det.Detect(resp.Text)
			pc.Cited = record.Cited
			pc.MentionCount = record.MentionCount
			pc.Sentences = record.Sentences
			if opts.IncludeResponses {
				pc.Response = resp.Text
			}
			if record.Cited {
				cited++
			}
			qv.TotalMentions += record.MentionCount
		}
		qv.Providers[id] = pc
	}

	if len(responses) > 0 {
		qv.Percentage = round1(float64(cited) / float64(len(responses)) * 100)
	}
	return qv
}

// ForFailedContext records a query whose context retrieval failed terminally.
// The query still appears in the run with zero visibility so that run-level
// averages reflect the failure instead of hiding it.
func ForFailedContext(q model.Query) model.QueryVisibility {
	return model.QueryVisibility{
		Query:         q,
		Providers:     map[string]model.ProviderCitation{},
		ContextFailed: true,
	}
}

// ForRun rolls per-query visibilities up to run level.
func ForRun(queries []model.QueryVisibility) model.RunVisibility {
	rv := model.RunVisibility{
		TotalQueries: len(queries),
		Providers:    make(map[string]model.ProviderStats),
		Intents:      make(map[model.Intent]model.IntentStats),
	}
	if len(queries) == 0 {
		return rv
	}

	var pctSum float64
	intentPctSum := make(map[model.Intent]float64)

	for _, qv := range queries {
		pctSum += qv.Percentage

		anyCited := false
		for id, pc := range qv.Providers {
			stats := rv.Providers[id]
			stats.QueriesAsked++
			if pc.Cited {
				stats.QueriesCited++
				anyCited = true
			}
			stats.TotalMentions += pc.MentionCount
			rv.Providers[id] = stats
		}
		if anyCited {
			rv.QueriesWithCitations++
		}

		is := rv.Intents[qv.Query.Intent]
		is.TotalQueries++
		if anyCited {
			is.QueriesWithCitations++
		}
		intentPctSum[qv.Query.Intent] += qv.Percentage
		rv.Intents[qv.Query.Intent] = is
	}

	rv.AveragePercentage = round1(pctSum / float64(len(queries)))

	for id, stats := range rv.Providers {
		if stats.QueriesAsked > 0 {
			stats.CitationRate = round1(float64(stats.QueriesCited) / float64(stats.QueriesAsked) * 100)
		}
		rv.Providers[id] = stats
	}
	for intent, is := range rv.Intents {
		is.AveragePercentage = round1(intentPctSum[intent] / float64(is.TotalQueries))
		is.CitationRate = round1(float64(is.QueriesWithCitations) / float64(is.TotalQueries) * 100)
		rv.Intents[intent] = is
	}
	return rv
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
