package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feasibility.app/etl/common/logger"
	"feasibility.app/etl/internal/service/issue_tracker"
)

const (
	StageFetchPrimary  = "fetch_primary"
	StageFetchSupplied = "fetch_supplemental"
	StageReconcile     = "reconcile"
	StageTransform     = "transform"
	StageLoad          = "load"
)

type Config struct {
	Search           issue_tracker.SearchParams
	Fields           FieldMapping
	Concurrency      int
	ThresholdPercent float64
}

// Report summarizes one run. It is returned even when the run fails, filled
// in up to the stage that stopped it.
type Report struct {
	Fetched        int
	Descriptors    int
	Failures       []SubFetchFailure
	Dropped        []string
	DroppedPercent float64
	Derived        int
	Written        int
	RowFailures    []*RowWriteError
	Duration       time.Duration
}

// Pipeline runs the five stages in order. The working set is owned by Run and
// is only touched between stages.
type Pipeline struct {
	cfg        Config
	fetcher    *PrimaryFetcher
	executor   *Executor
	reconciler *Reconciler
	loader     *Loader
}

func New(cfg Config, tracker issue_tracker.IssueTracker, sink RowSink, recorder WriteRecorder) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		fetcher:    NewPrimaryFetcher(tracker, cfg.Fields),
		executor:   NewExecutor(tracker, cfg.Concurrency),
		reconciler: NewReconciler(cfg.Fields, cfg.ThresholdPercent),
		loader:     NewLoader(sink, recorder),
	}
}

// Run executes the stages in order. Cancelling ctx never interrupts a stage:
// work in flight drains on a detached context and the run stops at the next
// stage boundary with an error wrapping the context's cause.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}
	defer func() { report.Duration = time.Since(start) }()

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "etl.pipeline"})

	sc := logger.StartSpan(context.WithoutCancel(ctx), "pipeline.run")
	defer sc.End()
	work := sc.Context()

	fail := func(err error) (*Report, error) {
		sc.RecordError(err)
		return report, err
	}

	// 1
	if err := stopped(ctx, StageFetchPrimary); err != nil {
		return fail(err)
	}
	stageCtx, end := p.stage(work, StageFetchPrimary)
	set, descriptors, err := p.fetcher.Fetch(stageCtx, p.cfg.Search)
	end(err)
	if err != nil {
		return fail(err)
	}
	report.Fetched = len(set)
	report.Descriptors = len(descriptors)
	slog.InfoContext(stageCtx, "primary records fetched", "records", len(set), "supplemental_fetches", len(descriptors))

	// 2
	if err := stopped(ctx, StageFetchSupplied); err != nil {
		return fail(err)
	}
	stageCtx, end = p.stage(work, StageFetchSupplied)
	outcomes := p.executor.Execute(stageCtx, descriptors)
	end(nil)

	// 3
	if err := stopped(ctx, StageReconcile); err != nil {
		return fail(err)
	}
	stageCtx, end = p.stage(work, StageReconcile)
	rec, err := p.reconciler.Reconcile(stageCtx, set, outcomes)
	end(err)
	if rec != nil {
		report.Failures = rec.Failures
		report.Dropped = rec.Dropped
		report.DroppedPercent = rec.DroppedPercent
	}
	if err != nil {
		return fail(err)
	}

	// 4
	if err := stopped(ctx, StageTransform); err != nil {
		return fail(err)
	}
	_, end = p.stage(work, StageTransform)
	rows, err := Transform(set)
	end(err)
	if err != nil {
		return fail(err)
	}
	report.Derived = len(rows)

	// 5
	if err := stopped(ctx, StageLoad); err != nil {
		return fail(err)
	}
	stageCtx, end = p.stage(work, StageLoad)
	loaded, err := p.loader.Load(stageCtx, rows)
	end(err)
	if err != nil {
		return fail(err)
	}
	report.Written = loaded.Written
	report.RowFailures = loaded.Failures

	sc.SetInt("records.fetched", report.Fetched)
	sc.SetInt("records.written", report.Written)
	slog.InfoContext(work, "pipeline finished",
		"fetched", report.Fetched,
		"dropped", len(report.Dropped),
		"written", report.Written,
		"row_failures", len(report.RowFailures))

	return report, nil
}

// stopped reports a cancelled or expired caller context before stage next.
func stopped(ctx context.Context, next string) error {
	if ctx.Err() == nil {
		return nil
	}
	return fmt.Errorf("pipeline stopped before %s: %w", next, context.Cause(ctx))
}

func (p *Pipeline) stage(ctx context.Context, name string) (context.Context, func(error)) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Stage: logger.Ptr(name)})
	sc := logger.StartSpan(ctx, "pipeline."+name)
	started := time.Now()
	slog.DebugContext(sc.Context(), "stage started")

	return sc.Context(), func(err error) {
		if err != nil {
			sc.RecordError(err)
		}
		slog.DebugContext(sc.Context(), "stage finished", "duration_ms", time.Since(started).Milliseconds())
		sc.End()
	}
}
