package allocate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-cli/internal/model"
)

func validQuery(text string) model.Query {
	return model.Query{
		Text:              text,
		Intent:            model.IntentCommercial,
		Persona:           "procurement lead",
		Category:          "industrial supplies",
		ExpectedRelevance: "high",
		Locale:            "en-US",
	}
}

func TestPlanEvenSplit(t *testing.T) {
	plan, err := Plan(12, model.AllIntents())
	require.NoError(t, err)
	require.Len(t, plan, 6)
	for intent, n := range plan {
		assert.Equal(t, 2, n, "intent %s", intent)
	}
}

func TestPlanRemainderGoesToFirstIntents(t *testing.T) {
	intents := model.AllIntents()
	plan, err := Plan(31, intents)
	require.NoError(t, err)

	assert.Equal(t, 6, plan[intents[0]])
	for _, in := range intents[1:] {
		assert.Equal(t, 5, plan[in])
	}

	total := 0
	for _, n := range plan {
		total += n
	}
	assert.Equal(t, 31, total)
}

func TestPlanSubsetOfIntents(t *testing.T) {
	plan, err := Plan(10, []model.Intent{model.IntentCommercial, model.IntentInformational, model.IntentAwareness})
	require.NoError(t, err)
	assert.Equal(t, 4, plan[model.IntentCommercial])
	assert.Equal(t, 3, plan[model.IntentInformational])
	assert.Equal(t, 3, plan[model.IntentAwareness])
}

func TestPlanBudgetBounds(t *testing.T) {
	tests := []struct {
		name   string
		budget int
		wantOK bool
	}{
		{"below minimum", MinBudget - 1, false},
		{"at minimum", MinBudget, true},
		{"at maximum", MaxBudget, true},
		{"above maximum", MaxBudget + 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Plan(tt.budget, model.AllIntents())
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, "out of range")
			}
		})
	}
}

func TestPlanRejectsBadIntentSets(t *testing.T) {
	_, err := Plan(10, nil)
	assert.ErrorContains(t, err, "empty")

	_, err = Plan(10, []model.Intent{"celebratory"})
	assert.ErrorContains(t, err, "unknown intent")

	_, err = Plan(10, []model.Intent{model.IntentCommercial, model.IntentCommercial})
	assert.ErrorContains(t, err, "duplicate intent")
}

func TestValidateSupplied(t *testing.T) {
	queries := []model.Query{validQuery("best widgets"), validQuery("widget pricing")}
	assert.NoError(t, ValidateSupplied(queries, 0))
}

func TestValidateSuppliedEmpty(t *testing.T) {
	assert.ErrorContains(t, ValidateSupplied(nil, 0), "empty")
}

func TestValidateSuppliedOverCap(t *testing.T) {
	queries := make([]model.Query, 5)
	for i := range queries {
		queries[i] = validQuery("q")
	}
	err := ValidateSupplied(queries, 3)
	assert.ErrorContains(t, err, "maximum is 3")
}

func TestValidateSuppliedNamesEveryBadQuery(t *testing.T) {
	bad := validQuery("")
	bad.Locale = "not a locale!!"
	queries := []model.Query{validQuery("ok"), bad, {Text: "only text"}}

	err := ValidateSupplied(queries, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query 1:")
	assert.Contains(t, err.Error(), "query 2:")
	assert.NotContains(t, err.Error(), "query 0:")
}
