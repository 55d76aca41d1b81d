package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"feasibility.app/etl/common/logger"
	"feasibility.app/etl/internal/model"
	"feasibility.app/etl/internal/pipeline"
	"feasibility.app/etl/internal/service"
)

type runner interface {
	Execute(ctx context.Context, trigger model.RunTrigger) (*model.PipelineRun, *pipeline.Report, error)
}

// Cron triggers pipeline runs on a five-field cron schedule.
type Cron struct {
	svc     runner
	timeout time.Duration // checked between pipeline stages
	c       *cron.Cron
}

func NewCron(schedule string, loc *time.Location, timeout time.Duration, svc runner) (*Cron, error) {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)),
	)
	cr := &Cron{svc: svc, timeout: timeout, c: c}
	if _, err := c.AddFunc(schedule, cr.run); err != nil {
		return nil, fmt.Errorf("parsing run schedule %q: %w", schedule, err)
	}
	return cr, nil
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop halts the scheduler and returns a context that is done once a
// running job has finished.
func (cr *Cron) Stop() context.Context { return cr.c.Stop() }

func (cr *Cron) run() {
	ctx := context.Background()
	if cr.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cr.timeout)
		defer cancel()
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "etl.jobs.cron"})

	slog.InfoContext(ctx, "cron: scheduled pipeline run")
	_, _, err := cr.svc.Execute(ctx, model.RunTriggerSchedule)
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		slog.InfoContext(ctx, "cron: run already in progress elsewhere, skipping")
	case err != nil:
		slog.ErrorContext(ctx, "cron: scheduled run failed", "error", err)
	}
}
