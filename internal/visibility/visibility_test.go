package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-cli/internal/citation"
	"github.com/sells-group/visibility-cli/internal/model"
)

func acmeDetector(t *testing.T) *citation.Detector {
	t.Helper()
	d, err := citation.NewDetector(model.BrandIdentity{Name: "Acme", Aliases: []string{"Acme Corp"}})
	require.NoError(t, err)
	return d
}

func ok(id, text string) model.ProviderResponse {
	return model.ProviderResponse{ProviderID: id, Text: text}
}

func failed(id, msg string, kind model.ErrKind) model.ProviderResponse {
	return model.ProviderResponse{ProviderID: id, Err: msg, ErrKind: kind}
}

func TestForQueryAllProvidersCite(t *testing.T) {
	qv := ForQuery(model.Query{Text: "q", Intent: model.IntentCommercial}, map[string]model.ProviderResponse{
		"openai": ok("openai", "Acme is the leader."),
		"gemini": ok("gemini", "Consider Acme Corp first."),
	}, acmeDetector(t), Options{})

	assert.Equal(t, 100.0, qv.Percentage)
	assert.Equal(t, 2, qv.TotalMentions)
	assert.True(t, qv.Providers["openai"].Cited)
	assert.True(t, qv.Providers["gemini"].Cited)
}

func TestForQueryErroredProviderCountsInDenominator(t *testing.T) {
	// Two of three providers cite; the third errored. The errored provider
	// drags visibility down rather than shrinking the denominator.
	qv := ForQuery(model.Query{Text: "q"}, map[string]model.ProviderResponse{
		"openai":     ok("openai", "Acme leads the market."),
		"gemini":     ok("gemini", "Acme is solid."),
		"perplexity": failed("perplexity", "503 upstream", model.ErrKindTransient),
	}, acmeDetector(t), Options{})

	assert.Equal(t, 66.7, qv.Percentage)
	require.Contains(t, qv.Providers, "perplexity")
	assert.True(t, qv.Providers["perplexity"].Failed)
	assert.False(t, qv.Providers["perplexity"].Cited)
	assert.Equal(t, "503 upstream", qv.Providers["perplexity"].Error)
}

func TestForQueryNoCitations(t *testing.T) {
	qv := ForQuery(model.Query{Text: "q"}, map[string]model.ProviderResponse{
		"openai": ok("openai", "Many vendors compete here."),
		"gemini": ok("gemini", "It depends on budget."),
	}, acmeDetector(t), Options{})

	assert.Zero(t, qv.Percentage)
	assert.Zero(t, qv.TotalMentions)
	assert.False(t, qv.Providers["openai"].Cited)
}

func TestForQueryIncludeResponses(t *testing.T) {
	det := acmeDetector(t)
	answer := "Acme ships fast."

	with := ForQuery(model.Query{}, map[string]model.ProviderResponse{"p": ok("p", answer)}, det, Options{IncludeResponses: true})
	without := ForQuery(model.Query{}, map[string]model.ProviderResponse{"p": ok("p", answer)}, det, Options{})

	assert.Equal(t, answer, with.Providers["p"].Response)
	assert.Empty(t, without.Providers["p"].Response)
}

func TestForFailedContext(t *testing.T) {
	qv := ForFailedContext(model.Query{Text: "q", Intent: model.IntentAwareness})

	assert.True(t, qv.ContextFailed)
	assert.Zero(t, qv.Percentage)
	assert.Empty(t, qv.Providers)
}

func TestForRunAveragesAcrossQueries(t *testing.T) {
	det := acmeDetector(t)
	q1 := ForQuery(model.Query{Text: "a", Intent: model.IntentCommercial}, map[string]model.ProviderResponse{
		"openai": ok("openai", "Acme wins."),
		"gemini": ok("gemini", "Acme again."),
	}, det, Options{})
	q2 := ForQuery(model.Query{Text: "b", Intent: model.IntentCommercial}, map[string]model.ProviderResponse{
		"openai": ok("openai", "No brands worth naming."),
		"gemini": ok("gemini", "Acme maybe."),
	}, det, Options{})
	q3 := ForFailedContext(model.Query{Text: "c", Intent: model.IntentInformational})

	rv := ForRun([]model.QueryVisibility{q1, q2, q3})

	// (100 + 50 + 0) / 3 = 50.0
	assert.Equal(t, 50.0, rv.AveragePercentage)
	assert.Equal(t, 3, rv.TotalQueries)
	assert.Equal(t, 2, rv.QueriesWithCitations)
}

func TestForRunProviderStats(t *testing.T) {
	det := acmeDetector(t)
	q1 := ForQuery(model.Query{Text: "a"}, map[string]model.ProviderResponse{
		"openai": ok("openai", "Acme and Acme Corp."),
		"gemini": ok("gemini", "nothing"),
	}, det, Options{})
	q2 := ForQuery(model.Query{Text: "b"}, map[string]model.ProviderResponse{
		"openai": ok("openai", "nothing here"),
		"gemini": ok("gemini", "Acme listed."),
	}, det, Options{})

	rv := ForRun([]model.QueryVisibility{q1, q2})

	openai := rv.Providers["openai"]
	assert.Equal(t, 2, openai.QueriesAsked)
	assert.Equal(t, 1, openai.QueriesCited)
	assert.Equal(t, 50.0, openai.CitationRate)
	assert.Equal(t, 2, openai.TotalMentions)

	gemini := rv.Providers["gemini"]
	assert.Equal(t, 1, gemini.QueriesCited)
	assert.Equal(t, 1, gemini.TotalMentions)
}

func TestForRunIntentBreakdown(t *testing.T) {
	det := acmeDetector(t)
	commercial := ForQuery(model.Query{Text: "a", Intent: model.IntentCommercial}, map[string]model.ProviderResponse{
		"p": ok("p", "Acme."),
	}, det, Options{})
	informational := ForQuery(model.Query{Text: "b", Intent: model.IntentInformational}, map[string]model.ProviderResponse{
		"p": ok("p", "no brands"),
	}, det, Options{})

	rv := ForRun([]model.QueryVisibility{commercial, informational})

	require.Contains(t, rv.Intents, model.IntentCommercial)
	assert.Equal(t, 100.0, rv.Intents[model.IntentCommercial].AveragePercentage)
	assert.Equal(t, 100.0, rv.Intents[model.IntentCommercial].CitationRate)
	assert.Equal(t, 0.0, rv.Intents[model.IntentInformational].AveragePercentage)
	assert.Equal(t, 1, rv.Intents[model.IntentInformational].TotalQueries)
}

func TestForRunEmpty(t *testing.T) {
	rv := ForRun(nil)
	assert.Zero(t, rv.AveragePercentage)
	assert.Zero(t, rv.TotalQueries)
}

func TestRoundingToOneDecimal(t *testing.T) {
	det := acmeDetector(t)
	// 1 of 3 cite → 33.333… → 33.3
	qv := ForQuery(model.Query{}, map[string]model.ProviderResponse{
		"a": ok("a", "Acme."),
		"b": ok("b", "no"),
		"c": ok("c", "no"),
	}, det, Options{})
	assert.Equal(t, 33.3, qv.Percentage)
}
