package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/allocate"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/resilience"
)

// Generator produces a completion for a system/user prompt pair. The OpenAI
// chat client satisfies this.
type Generator interface {
	ChatCompletion(ctx context.Context, system, prompt string) (string, error)
}

const generateSystem = `You are a marketing research copilot that generates realistic user queries for large-language-model assistants and labels user intent.

You receive a brand's product category and audience. Generate queries a real user matching that audience would ask, WITHOUT naming any brand (real or fictitious). De-duplicate: no paraphrase duplicates. Vary specificity, persona, and query shape.

For each query annotate:
- intent: the customer journey stage, exactly as instructed
- persona: who is asking (e.g. novice, pro, budget_shopper, eco_conscious)
- category: the product category the query belongs to
- expected_relevance: "high" | "medium" | "low" likelihood an unbiased assistant would cite a specific brand when answering
- locale: an IETF tag such as "en-US"
- notes: one short reason this query occurs in the real world

Return ONLY a JSON array, no prose, no markdown fences:
[{"query": "...", "intent": "...", "sub_intent": "...", "persona": "...", "category": "...", "expected_relevance": "high|medium|low", "locale": "en-US", "notes": "..."}]`

// GenerateQueries asks an LLM to produce budget-many queries split across the
// given intents. Intents default to the full canonical set. The result always
// satisfies the same validation rules as an externally supplied list.
func GenerateQueries(ctx context.Context, gen Generator, brand model.BrandIdentity, budget int, intents []model.Intent) ([]model.Query, error) {
	if len(intents) == 0 {
		intents = model.AllIntents()
	}
	plan, err := allocate.Plan(budget, intents)
	if err != nil {
		return nil, err
	}

	prompt := generatePrompt(brand, budget, intents, plan)

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("generator", "generate_queries")
	raw, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (string, error) {
		return gen.ChatCompletion(ctx, generateSystem, prompt)
	})
	if err != nil {
		return nil, eris.Wrap(err, "audit: generate queries")
	}

	queries, err := parseGenerated(raw)
	if err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, eris.New("audit: generator returned no usable queries")
	}
	if err := allocate.ValidateSupplied(queries, allocate.MaxSupplied); err != nil {
		return nil, err
	}
	return queries, nil
}

func generatePrompt(brand model.BrandIdentity, budget int, intents []model.Intent, plan map[model.Intent]int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate EXACTLY %d queries about the market the brand %q competes in. Do not mention the brand.\n\n", budget, brand.Name)

	sb.WriteString("Use exactly these intent labels with exactly these counts:\n")
	ordered := make([]model.Intent, 0, len(plan))
	for in := range plan {
		ordered = append(ordered, in)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
	for _, in := range ordered {
		fmt.Fprintf(&sb, "- %s: %d queries\n", in, plan[in])
	}

	sb.WriteString("\nAllowed intent values: ")
	parts := make([]string, len(intents))
	for i, in := range intents {
		parts[i] = string(in)
	}
	sb.WriteString(strings.Join(parts, ", "))
	return sb.String()
}

// parseGenerated turns raw model output into validated queries, dropping
// entries that cannot be repaired. Missing locale and relevance fall back to
// defaults rather than discarding an otherwise usable query.
func parseGenerated(raw string) ([]model.Query, error) {
	text := extractJSONArray(raw)

	var items []model.Query
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, eris.Wrap(err, "audit: parse generated queries")
	}

	queries := make([]model.Query, 0, len(items))
	for i, q := range items {
		if q.Locale == "" {
			q.Locale = "en-US"
		}
		if q.ExpectedRelevance == "" {
			q.ExpectedRelevance = "medium"
		}
		if q.Persona == "" {
			q.Persona = "general"
		}
		if err := q.Validate(); err != nil {
			zap.L().Warn("audit: dropping generated query",
				zap.Int("position", i),
				zap.Error(err),
			)
			continue
		}
		queries = append(queries, q)
	}
	return queries, nil
}

// extractJSONArray strips markdown fences and surrounding prose, leaving the
// outermost JSON array.
func extractJSONArray(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
