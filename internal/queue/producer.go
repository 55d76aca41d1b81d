package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"feasibility.app/etl/internal/model"
)

const EventRunFinished = "run_finished"

// RunEvent announces the end of a pipeline run to downstream consumers.
type RunEvent struct {
	RunID          int64
	Trigger        model.RunTrigger
	Status         model.RunStatus
	Fetched        int
	Dropped        int
	Loaded         int
	FailedRows     int
	DroppedPercent float64
	Error          *string
	TraceID        *string
}

func RunEventFrom(run *model.PipelineRun) RunEvent {
	return RunEvent{
		RunID:          run.ID,
		Trigger:        run.Trigger,
		Status:         run.Status,
		Fetched:        run.Fetched,
		Dropped:        run.Dropped,
		Loaded:         run.Loaded,
		FailedRows:     run.FailedRows,
		DroppedPercent: run.DroppedPercent,
		Error:          run.Error,
	}
}

type Producer interface {
	Publish(ctx context.Context, event RunEvent) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Publish(ctx context.Context, event RunEvent) error {
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: event.fields(),
	}).Err(); err != nil {
		return fmt.Errorf("publish run event: %w", err)
	}

	p.logger.InfoContext(ctx, "published run event", "run_id", event.RunID, "status", event.Status, "stream", p.stream)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}

func (e RunEvent) fields() map[string]any {
	fields := map[string]any{
		"event_type":      EventRunFinished,
		"run_id":          strconv.FormatInt(e.RunID, 10),
		"trigger":         string(e.Trigger),
		"status":          string(e.Status),
		"fetched":         e.Fetched,
		"dropped":         e.Dropped,
		"loaded":          e.Loaded,
		"failed_rows":     e.FailedRows,
		"dropped_percent": strconv.FormatFloat(e.DroppedPercent, 'f', 2, 64),
	}
	if e.Error != nil && *e.Error != "" {
		fields["error"] = *e.Error
	}
	if e.TraceID != nil && *e.TraceID != "" {
		fields["trace_id"] = *e.TraceID
	}
	return fields
}
