package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"feasibility.app/etl/common/id"
	"feasibility.app/etl/common/logger"
	"feasibility.app/etl/common/otel"
	"feasibility.app/etl/core/config"
	"feasibility.app/etl/internal/app"
	"feasibility.app/etl/internal/model"
	"feasibility.app/etl/internal/pipeline"
)

const nodeID = 1

func main() {
	os.Exit(run())
}

func run() int {
	configFile := flag.String("config", "", "TOML config file (overrides ETL_CONFIG_FILE)")
	jql := flag.String("jql", "", "search query expression")
	maxResults := flag.Int("max-results", 0, "maximum number of primary records to fetch")
	concurrency := flag.Int("concurrency", 0, "supplemental fetch concurrency ceiling")
	threshold := flag.Float64("threshold", 0, "dropped-ratio threshold percentage")
	verbose := flag.Bool("verbose", false, "debug console logging and transcript echo")
	flag.Parse()

	if *configFile != "" {
		os.Setenv("ETL_CONFIG_FILE", *configFile)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return 1
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "jql":
			cfg.Jira.JQL = *jql
		case "max-results":
			cfg.Jira.MaxResults = *maxResults
		case "concurrency":
			cfg.Pipeline.FetchConcurrency = *concurrency
		case "threshold":
			cfg.Pipeline.ThresholdPercent = *threshold
		case "verbose":
			cfg.Verbose = *verbose
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx := context.Background()

	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env, otel.Process{Role: "cli", NodeID: nodeID})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize otel:", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}()

	logger.Setup(cfg)
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "etl.cli"})

	if err := id.Init(nodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		return 1
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to start", "error", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.WarnContext(ctx, "shutdown error", "error", err)
		}
	}()

	pr, report, err := a.Runs.Execute(ctx, model.RunTriggerCLI)
	if err != nil {
		var thresholdErr *pipeline.ThresholdExceededError
		if errors.As(err, &thresholdErr) {
			fmt.Fprintf(os.Stderr, "failed requests:\n%s\n", strings.Join(thresholdErr.URIs(), "\n"))
		}
		slog.ErrorContext(ctx, "feasibility etl failed", "error", err)
		return 1
	}

	for _, f := range report.RowFailures {
		slog.WarnContext(ctx, "row not written", "key", f.Key, "error", f.Err)
	}
	slog.InfoContext(ctx, "feasibility etl complete",
		"run_id", pr.ID,
		"fetched", report.Fetched,
		"dropped", len(report.Dropped),
		"written", report.Written,
		"row_failures", len(report.RowFailures),
		"duration_ms", report.Duration.Milliseconds())
	return 0
}
