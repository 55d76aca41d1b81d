package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"feasibility.app/etl/common/logger"
	"feasibility.app/etl/core/config"
	"feasibility.app/etl/core/db"
	"feasibility.app/etl/internal/pipeline"
	"feasibility.app/etl/internal/queue"
	"feasibility.app/etl/internal/service"
	"feasibility.app/etl/internal/service/issue_tracker"
	"feasibility.app/etl/internal/store"
)

// App holds the wired dependencies shared by the command-line runner and the
// server.
type App struct {
	Runs service.RunService

	database    *db.DB
	transcript  *logger.Transcript
	redisClient *redis.Client
	producer    queue.Producer
}

// New opens the transcript, the database pool and (when configured) Redis,
// and wires the pipeline behind a RunService. cfg must already be valid.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{}

	transcript, err := logger.OpenTranscript(logger.TranscriptOptions{
		Dir:           cfg.Transcript.Dir,
		RetentionDays: cfg.Transcript.RetentionDays,
		Echo:          cfg.Verbose,
	}, time.Now())
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	a.transcript = transcript

	tracker, err := issue_tracker.NewJiraClient(issue_tracker.JiraConfig{
		BaseURL:    cfg.Jira.BaseURL,
		APIVersion: cfg.Jira.APIVersion,
		Username:   cfg.Jira.Username,
		Password:   cfg.Jira.Password,
		Timeout:    cfg.Jira.HTTPTimeout,
	}, transcript)
	if err != nil {
		a.Close()
		return nil, &config.ConfigError{Field: "JIRA_*", Reason: err.Error()}
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		a.Close()
		return nil, &pipeline.ConnectionError{Err: err}
	}
	a.database = database
	slog.InfoContext(ctx, "database connected")

	stores := store.NewStores(database.Conn(), store.FeasibilityConfig{
		Table:  cfg.Load.Table,
		Upsert: cfg.Load.Mode == config.LoadModeUpsert,
	})

	var lock queue.Lock
	if cfg.Redis.Enabled() {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, &config.ConfigError{Field: "REDIS_URL", Reason: err.Error()}
		}
		a.redisClient = redis.NewClient(opts)
		if err := a.redisClient.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		slog.InfoContext(ctx, "redis connected", "stream", cfg.Redis.RunStream)

		lock = queue.NewRedisLock(a.redisClient, cfg.Redis.LockKey, cfg.Redis.LockTTL)
		a.producer = queue.NewRedisProducer(a.redisClient, cfg.Redis.RunStream, nil)
	} else {
		lock = queue.NewLocalLock()
	}

	p := pipeline.New(PipelineConfig(cfg), tracker, stores.Feasibility(), transcript)
	a.Runs = service.NewRunService(p, stores.PipelineRuns(), lock, a.producer)

	return a, nil
}

// PipelineConfig maps the loaded configuration onto the pipeline's.
func PipelineConfig(cfg config.Config) pipeline.Config {
	var estimates [6]string
	copy(estimates[:], cfg.Fields.EstimateFields())

	return pipeline.Config{
		Search: issue_tracker.SearchParams{
			JQL:        cfg.Jira.JQL,
			MaxResults: cfg.Jira.MaxResults,
		},
		Fields: pipeline.FieldMapping{
			Reviewer:            cfg.Fields.Reviewer,
			FeasibilityLinkType: cfg.Fields.FeasibilityLinkType,
			Estimates:           estimates,
		},
		Concurrency:      cfg.Pipeline.FetchConcurrency,
		ThresholdPercent: cfg.Pipeline.ThresholdPercent,
	}
}

// Close waits for background runs and releases every resource New opened.
func (a *App) Close() error {
	if a.Runs != nil {
		a.Runs.Wait()
	}

	var errs []error
	if a.redisClient != nil {
		// the producer shares this client
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing redis: %w", err))
		}
	}
	if a.database != nil {
		a.database.Close()
	}
	if err := a.transcript.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing transcript: %w", err))
	}
	return errors.Join(errs...)
}
