package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"feasibility.app/etl/common/logger"
	"feasibility.app/etl/internal/model"
	"feasibility.app/etl/internal/service/issue_tracker"
)

const DefaultFetchConcurrency = 5

// FetchOutcome is the immutable result of one supplemental fetch. Exactly
// one of the payloads (Worklog or Detail, by descriptor kind) or Failure is set.
type FetchOutcome struct {
	Descriptor model.FetchDescriptor
	Worklog    *issue_tracker.WorklogPage
	Detail     *issue_tracker.Issue
	Failure    *model.FetchFailure
}

func (o FetchOutcome) Failed() bool {
	return o.Failure != nil
}

// Executor runs supplemental fetches on a fixed-size worker pool.
type Executor struct {
	tracker     issue_tracker.IssueTracker
	concurrency int
}

func NewExecutor(tracker issue_tracker.IssueTracker, concurrency int) *Executor {
	if concurrency < 1 {
		concurrency = DefaultFetchConcurrency
	}
	return &Executor{tracker: tracker, concurrency: concurrency}
}

// Execute runs every descriptor with at most e.concurrency fetches in flight
// and returns one outcome per descriptor, in descriptor order. Failures are
// captured in the outcomes; Execute itself never fails.
func (e *Executor) Execute(ctx context.Context, descriptors []model.FetchDescriptor) []FetchOutcome {
	outcomes := make([]FetchOutcome, len(descriptors))

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i, d := range descriptors {
		g.Go(func() error {
			outcomes[i] = e.fetch(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (e *Executor) fetch(ctx context.Context, d model.FetchDescriptor) FetchOutcome {
	ctx = logger.WithLogFields(ctx, logger.LogFields{IssueKey: logger.Ptr(d.Key)})
	out := FetchOutcome{Descriptor: d}

	switch d.Kind {
	case model.FetchKindWorklog:
		page, err := e.tracker.Worklog(ctx, d.Key)
		if err != nil {
			out.Failure = failureFromError(err)
			break
		}
		out.Worklog = page
	case model.FetchKindIssueDetail:
		issue, err := e.tracker.Issue(ctx, d.Key)
		if err != nil {
			out.Failure = failureFromError(err)
			break
		}
		out.Detail = issue
	default:
		out.Failure = &model.FetchFailure{Message: fmt.Sprintf("unknown fetch kind %q", d.Kind)}
	}

	if out.Failure != nil {
		slog.WarnContext(ctx, "supplemental fetch failed",
			"descriptor", d.String(),
			"uri", out.Failure.URI,
			"status", out.Failure.StatusCode,
			"error", out.Failure.Message)
	}
	return out
}

func failureFromError(err error) *model.FetchFailure {
	var protoErr *issue_tracker.ProtocolError
	if errors.As(err, &protoErr) {
		return &model.FetchFailure{URI: protoErr.URI, StatusCode: protoErr.StatusCode, Message: err.Error()}
	}
	var transportErr *issue_tracker.TransportError
	if errors.As(err, &transportErr) {
		return &model.FetchFailure{URI: transportErr.URI, Message: err.Error()}
	}
	return &model.FetchFailure{Message: err.Error()}
}
