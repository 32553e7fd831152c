// Package audit orchestrates a full brand visibility audit: query
// generation or validation, context retrieval, optional passage enrichment,
// provider fan-out, citation detection, and run-level aggregation.
package audit

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/visibility-cli/internal/allocate"
	"github.com/sells-group/visibility-cli/internal/assemble"
	"github.com/sells-group/visibility-cli/internal/citation"
	"github.com/sells-group/visibility-cli/internal/dispatch"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/retrieval"
	"github.com/sells-group/visibility-cli/internal/store"
	"github.com/sells-group/visibility-cli/internal/visibility"
)

// Request describes one audit. Either Queries is supplied directly, or
// Budget (with optional Intents) drives LLM query generation.
type Request struct {
	Brand            model.BrandIdentity
	Queries          []model.Query
	Budget           int
	Intents          []model.Intent
	IncludeResponses bool
}

// Result is the completed audit with its stored run ID.
type Result struct {
	RunID      string
	Visibility model.RunVisibility
	Queries    []model.QueryVisibility
	DurationMS int64
	// FailedCount is the number of queries whose context retrieval failed.
	FailedCount int
}

// Runner wires the audit stages together. The assembler and generator are
// optional; a nil assembler skips enrichment and a nil generator rejects
// budget-driven requests.
type Runner struct {
	store      store.Store
	engine     *retrieval.Engine
	assembler  *assemble.Assembler
	dispatcher *dispatch.Dispatcher
	generator  Generator
	maxWorkers int
}

// New creates a Runner. maxWorkers bounds how many queries move through the
// dispatch stage at once; values below 1 fall back to 4.
func New(
	st store.Store,
	engine *retrieval.Engine,
	assembler *assemble.Assembler,
	dispatcher *dispatch.Dispatcher,
	generator Generator,
	maxWorkers int,
) *Runner {
	if maxWorkers < 1 {
		maxWorkers = 4
	}
	return &Runner{
		store:      st,
		engine:     engine,
		assembler:  assembler,
		dispatcher: dispatcher,
		generator:  generator,
		maxWorkers: maxWorkers,
	}
}

// Run executes a full audit. Per-query failures are recorded in the result
// but never abort the run; only brand validation, query preparation, and
// run bookkeeping errors are fatal.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Brand.Validate(); err != nil {
		return nil, err
	}
	detector, err := citation.NewDetector(req.Brand)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("brand", req.Brand.Name))
	start := time.Now()

	run, err := r.store.CreateRun(ctx, req.Brand)
	if err != nil {
		return nil, eris.Wrap(err, "audit: create run")
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("audit: starting run")

	setStatus := func(status model.RunStatus) {
		if statusErr := r.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("audit: failed to update status", zap.Error(statusErr))
		}
	}
	fail := func(err error) (*Result, error) {
		setStatus(model.RunStatusFailed)
		return nil, err
	}

	// ===== Stage 1: queries =====
	queries := req.Queries
	if len(queries) > 0 {
		if err := allocate.ValidateSupplied(queries, allocate.MaxSupplied); err != nil {
			return fail(err)
		}
	} else {
		if r.generator == nil {
			return fail(eris.New("audit: no queries supplied and no generator configured"))
		}
		setStatus(model.RunStatusGenerating)
		queries, err = GenerateQueries(ctx, r.generator, req.Brand, req.Budget, req.Intents)
		if err != nil {
			return fail(err)
		}
		log.Info("audit: queries generated", zap.Int("count", len(queries)))
	}

	// ===== Stage 2: retrieval =====
	setStatus(model.RunStatusRetrieving)
	bundles := r.engine.RetrieveAll(ctx, queries)

	failedContexts := 0
	for _, b := range bundles {
		if b.Failed {
			failedContexts++
		}
	}
	log.Info("audit: retrieval complete",
		zap.Int("queries", len(queries)),
		zap.Int("failed_contexts", failedContexts),
	)

	if r.assembler != nil {
		bundles = r.assembler.EnrichAll(ctx, bundles)
	}

	// ===== Stage 3: dispatch + detection =====
	setStatus(model.RunStatusDispatching)
	opts := visibility.Options{IncludeResponses: req.IncludeResponses}
	perQuery := make([]model.QueryVisibility, len(bundles))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxWorkers)
	for i, bundle := range bundles {
		g.Go(func() error {
			if bundle.Failed {
				perQuery[i] = visibility.ForFailedContext(bundle.Query)
				return nil
			}
			responses := r.dispatcher.Ask(gCtx, bundle.Query, bundle.Text())
			perQuery[i] = visibility.ForQuery(bundle.Query, responses, detector, opts)
			return nil
		})
	}
	_ = g.Wait()

	// ===== Stage 4: aggregation =====
	setStatus(model.RunStatusAggregating)
	rollup := visibility.ForRun(perQuery)

	result := &Result{
		RunID:       run.ID,
		Visibility:  rollup,
		Queries:     perQuery,
		DurationMS:  time.Since(start).Milliseconds(),
		FailedCount: failedContexts,
	}

	runResult := &model.RunResult{
		Visibility:  rollup,
		Queries:     perQuery,
		DurationMS:  result.DurationMS,
		FailedCount: failedContexts,
	}
	if saveErr := r.store.UpdateRunResult(ctx, run.ID, runResult); saveErr != nil {
		log.Warn("audit: failed to save run result", zap.Error(saveErr))
	}

	log.Info("audit: run complete",
		zap.Float64("average_percentage", rollup.AveragePercentage),
		zap.Int("queries_with_citations", rollup.QueriesWithCitations),
		zap.Int("failed_contexts", failedContexts),
		zap.Int64("duration_ms", result.DurationMS),
	)
	return result, nil
}
