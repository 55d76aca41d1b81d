package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"feasibility.app/etl/common/id"
	"feasibility.app/etl/common/logger"
	"feasibility.app/etl/common/otel"
	"feasibility.app/etl/core/config"
	"feasibility.app/etl/internal/app"
	"feasibility.app/etl/internal/http/middleware"
	httprouter "feasibility.app/etl/internal/http/router"
	"feasibility.app/etl/internal/jobs"
	"feasibility.app/etl/internal/service"
)

const nodeID = 2

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env, otel.Process{Role: "server", NodeID: nodeID})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize otel:", err)
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "feasibility etl server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(nodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to start", "error", err)
		os.Exit(1)
	}

	var scheduler *jobs.Cron
	if cfg.Schedule != "" {
		loc := time.Local
		if cfg.ScheduleTZ != "" {
			if loc, err = time.LoadLocation(cfg.ScheduleTZ); err != nil {
				slog.ErrorContext(ctx, "invalid schedule timezone", "tz", cfg.ScheduleTZ, "error", err)
				os.Exit(1)
			}
		}
		scheduler, err = jobs.NewCron(cfg.Schedule, loc, cfg.Redis.LockTTL, a.Runs)
		if err != nil {
			slog.ErrorContext(ctx, "failed to set up scheduler", "error", err)
			os.Exit(1)
		}
		scheduler.Start()
		slog.InfoContext(ctx, "scheduled runs enabled", "schedule", cfg.Schedule, "tz", loc.String())
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(cfg, a.Runs),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	// waits for background runs started through the API
	if err := a.Close(); err != nil {
		slog.ErrorContext(shutdownCtx, "shutdown error", "error", err)
	}

	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, runs service.RunService) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, runs, httprouter.RouterConfig{
		AdminAPIKey: cfg.AdminAPIKey,
	})

	return router
}
