package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"feasibility.app/etl/common/id"
	"feasibility.app/etl/common/logger"
	"feasibility.app/etl/internal/model"
	"feasibility.app/etl/internal/pipeline"
	"feasibility.app/etl/internal/queue"
	"feasibility.app/etl/internal/store"
)

var (
	ErrRunInProgress = errors.New("a pipeline run is already in progress")
	ErrRunNotFound   = errors.New("pipeline run not found")
)

// PipelineRunner is satisfied by *pipeline.Pipeline.
type PipelineRunner interface {
	Run(ctx context.Context) (*pipeline.Report, error)
}

type RunService interface {
	// Execute runs the pipeline to completion and returns its ledger entry
	// and report. The returned error is the pipeline's fatal error, if any.
	Execute(ctx context.Context, trigger model.RunTrigger) (*model.PipelineRun, *pipeline.Report, error)
	// Start takes the run lock and runs the pipeline in the background.
	Start(ctx context.Context, trigger model.RunTrigger) (*model.PipelineRun, error)
	Get(ctx context.Context, id int64) (*model.PipelineRun, error)
	List(ctx context.Context, limit int32) ([]model.PipelineRun, error)
	// Wait blocks until every background run has finished.
	Wait()
}

type runService struct {
	runner   PipelineRunner
	runs     store.PipelineRunStore
	lock     queue.Lock
	producer queue.Producer

	wg sync.WaitGroup
}

// NewRunService wires the run lifecycle. producer may be nil.
func NewRunService(runner PipelineRunner, runs store.PipelineRunStore, lock queue.Lock, producer queue.Producer) RunService {
	if lock == nil {
		lock = queue.NewLocalLock()
	}
	return &runService{
		runner:   runner,
		runs:     runs,
		lock:     lock,
		producer: producer,
	}
}

func (s *runService) Execute(ctx context.Context, trigger model.RunTrigger) (*model.PipelineRun, *pipeline.Report, error) {
	run, token, err := s.begin(ctx, trigger)
	if err != nil {
		return nil, nil, err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{RunID: &run.ID})
	report, err := s.run(ctx, run, token)
	return run, report, err
}

func (s *runService) Start(ctx context.Context, trigger model.RunTrigger) (*model.PipelineRun, error) {
	run, token, err := s.begin(ctx, trigger)
	if err != nil {
		return nil, err
	}

	snapshot := *run
	bg := logger.WithLogFields(context.WithoutCancel(ctx), logger.LogFields{RunID: &run.ID})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.run(bg, run, token)
	}()

	return &snapshot, nil
}

func (s *runService) Get(ctx context.Context, id int64) (*model.PipelineRun, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("getting pipeline run: %w", err)
	}
	return run, nil
}

func (s *runService) List(ctx context.Context, limit int32) ([]model.PipelineRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	runs, err := s.runs.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pipeline runs: %w", err)
	}
	return runs, nil
}

func (s *runService) Wait() {
	s.wg.Wait()
}

// begin takes the lock and opens the ledger entry.
func (s *runService) begin(ctx context.Context, trigger model.RunTrigger) (*model.PipelineRun, string, error) {
	run := &model.PipelineRun{
		ID:        id.New(),
		Trigger:   trigger,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now(),
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{RunID: &run.ID})

	token, err := s.lock.Acquire(ctx, run.ID)
	if err != nil {
		if errors.Is(err, queue.ErrLockHeld) {
			return nil, "", ErrRunInProgress
		}
		return nil, "", err
	}

	created, err := s.runs.Create(ctx, run)
	if err != nil {
		slog.WarnContext(ctx, "failed to record pipeline run start", "error", err)
	} else {
		run = created
	}

	slog.InfoContext(ctx, "pipeline run started", "trigger", trigger)
	return run, token, nil
}

func (s *runService) run(ctx context.Context, run *model.PipelineRun, token string) (*pipeline.Report, error) {
	report, runErr := s.runner.Run(ctx)

	// The outcome is recorded even when the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	defer func() {
		if err := s.lock.Release(ctx, token); err != nil {
			slog.WarnContext(ctx, "failed to release run lock", "error", err)
		}
	}()

	if report != nil {
		run.Fetched = report.Fetched
		run.Dropped = len(report.Dropped)
		run.Loaded = report.Written
		run.FailedRows = len(report.RowFailures)
		run.DroppedPercent = report.DroppedPercent
	}
	now := time.Now()
	run.FinishedAt = &now
	run.Status = model.RunStatusSucceeded
	if runErr != nil {
		run.Status = model.RunStatusFailed
		msg := runErr.Error()
		run.Error = &msg
		slog.ErrorContext(ctx, "pipeline run failed", "error", runErr)
	} else {
		slog.InfoContext(ctx, "pipeline run succeeded",
			"loaded", run.Loaded,
			"failed_rows", run.FailedRows,
			"dropped", run.Dropped)
	}

	if err := s.runs.Finish(ctx, run); err != nil {
		slog.WarnContext(ctx, "failed to record pipeline run result", "error", err)
	}

	if s.producer != nil {
		event := queue.RunEventFrom(run)
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			event.TraceID = logger.Ptr(sc.TraceID().String())
		}
		if err := s.producer.Publish(ctx, event); err != nil {
			slog.WarnContext(ctx, "failed to publish run event", "error", err)
		}
	}

	return report, runErr
}
