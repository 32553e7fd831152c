package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-cli/internal/audit"
	"github.com/sells-group/visibility-cli/internal/model"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadBrandFile(t *testing.T) {
	path := writeTempFile(t, "brand.yaml", `
name: Acme Corp
aliases:
  - Acme
  - ACME Industries
`)

	brand, err := loadBrandFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", brand.Name)
	assert.Equal(t, []string{"Acme", "ACME Industries"}, brand.Aliases)
}

func TestLoadBrandFileRejectsMissingName(t *testing.T) {
	path := writeTempFile(t, "brand.yaml", `aliases: [Acme]`)

	_, err := loadBrandFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestLoadBrandFileMissingFile(t *testing.T) {
	_, err := loadBrandFile("/nonexistent/brand.yaml")
	assert.Error(t, err)
}

func TestLoadQueriesFileBareList(t *testing.T) {
	path := writeTempFile(t, "queries.yaml", `
- query: best widgets
  intent: commercial
  persona: pro
  category: widgets
  expected_relevance: high
  locale: en-US
- query: what is a widget
  intent: informational
  persona: novice
  category: widgets
  expected_relevance: low
  locale: en-US
`)

	queries, err := loadQueriesFile(path)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, "best widgets", queries[0].Text)
	assert.Equal(t, model.IntentCommercial, queries[0].Intent)
	assert.Equal(t, "en-US", queries[1].Locale)
}

func TestLoadQueriesFileWrapped(t *testing.T) {
	path := writeTempFile(t, "queries.yaml", `
queries:
  - query: best widgets
    intent: commercial
    persona: pro
    category: widgets
    expected_relevance: high
    locale: en-US
`)

	queries, err := loadQueriesFile(path)
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, "best widgets", queries[0].Text)
}

func TestLoadQueriesFileMalformed(t *testing.T) {
	path := writeTempFile(t, "queries.yaml", `not: [valid`)

	_, err := loadQueriesFile(path)
	assert.Error(t, err)
}

func TestFormatAuditReport(t *testing.T) {
	result := &audit.Result{
		RunID: "0b5fca1d-1234-5678-9abc-def012345678",
		Visibility: model.RunVisibility{
			AveragePercentage:    66.7,
			TotalQueries:         3,
			QueriesWithCitations: 2,
			Providers: map[string]model.ProviderStats{
				"claude": {QueriesAsked: 3, QueriesCited: 2, CitationRate: 66.7, TotalMentions: 5},
				"openai": {QueriesAsked: 3, QueriesCited: 1, CitationRate: 33.3, TotalMentions: 1},
			},
			Intents: map[model.Intent]model.IntentStats{
				model.IntentCommercial: {TotalQueries: 3, QueriesWithCitations: 2, AveragePercentage: 66.7},
			},
		},
		FailedCount: 1,
	}

	var buf bytes.Buffer
	formatAuditReport(&buf, model.BrandIdentity{Name: "Acme"}, result)
	out := buf.String()

	assert.Contains(t, out, "Visibility audit for Acme")
	assert.Contains(t, out, "run 0b5fca1d")
	assert.Contains(t, out, "66.7% across 3 queries")
	assert.Contains(t, out, "1 failed retrieval")
	assert.Contains(t, out, "claude")
	assert.Contains(t, out, "openai")
	assert.Contains(t, out, "commercial")
}

func TestResolveBrandFromFlags(t *testing.T) {
	origFile, origName, origAliases := auditBrandFile, auditBrandName, auditAliases
	t.Cleanup(func() {
		auditBrandFile, auditBrandName, auditAliases = origFile, origName, origAliases
	})

	auditBrandFile = ""
	auditBrandName = "Acme"
	auditAliases = []string{"ACME"}

	brand, err := resolveBrand()
	require.NoError(t, err)
	assert.Equal(t, "Acme", brand.Name)
	assert.Equal(t, []string{"ACME"}, brand.Aliases)

	auditBrandName = ""
	auditAliases = nil
	_, err = resolveBrand()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--brand or --brand-file")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "0b5fca1d", truncateID("0b5fca1d-1234-5678-9abc-def012345678"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestFormatRunsList(t *testing.T) {
	var buf bytes.Buffer
	formatRunsList(&buf, []model.Run{*testRun()})
	out := buf.String()

	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "Acme")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "50.0%")
}
