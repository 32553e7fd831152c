// Package allocate plans how a query budget is split across intent
// categories, and validates externally supplied query lists.
package allocate

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/internal/model"
)

const (
	// MinBudget is the smallest query budget an audit accepts.
	MinBudget = 6
	// MaxBudget is the largest query budget an audit accepts.
	MaxBudget = 100
	// MaxSupplied caps an externally supplied query list.
	MaxSupplied = 100
)

// Plan distributes a total query budget across the given intents as evenly
// as possible. The remainder of total/len(intents) goes to the first intents
// in the given order, so the split is deterministic: 31 over 6 intents gives
// the first intent 6 and the other five 5 each. The returned counts always
// sum exactly to total.
func Plan(total int, intents []model.Intent) (map[model.Intent]int, error) {
	if total < MinBudget || total > MaxBudget {
		return nil, eris.Errorf("allocate: budget %d out of range [%d, %d]", total, MinBudget, MaxBudget)
	}
	if len(intents) == 0 {
		return nil, eris.New("allocate: intent set is empty")
	}

	seen := make(map[model.Intent]bool, len(intents))
	for _, in := range intents {
		if !in.Valid() {
			return nil, eris.Errorf("allocate: unknown intent %q", in)
		}
		if seen[in] {
			return nil, eris.Errorf("allocate: duplicate intent %q", in)
		}
		seen[in] = true
	}

	base := total / len(intents)
	remainder := total % len(intents)

	plan := make(map[model.Intent]int, len(intents))
	for i, in := range intents {
		n := base
		if i < remainder {
			n++
		}
		plan[in] = n
	}
	return plan, nil
}

// ValidateSupplied checks an externally supplied query list: non-empty,
// under the cap, and every query carrying all required fields. The error
// names each offending query by position together with its missing fields.
func ValidateSupplied(queries []model.Query, max int) error {
	if max <= 0 {
		max = MaxSupplied
	}
	if len(queries) == 0 {
		return eris.New("allocate: supplied query list is empty")
	}
	if len(queries) > max {
		return eris.Errorf("allocate: %d queries supplied, maximum is %d", len(queries), max)
	}

	var problems []string
	for i, q := range queries {
		if err := q.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("query %d: %s", i, err.Error()))
		}
	}
	if len(problems) > 0 {
		return eris.Errorf("allocate: invalid supplied queries: %s", strings.Join(problems, "; "))
	}
	return nil
}
