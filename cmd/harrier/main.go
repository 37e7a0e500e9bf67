// Harrier - Hybrid fraud scoring with explainable transaction graphs.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/opensource-finance/harrier/internal/alert"
	"github.com/opensource-finance/harrier/internal/api"
	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/config"
	"github.com/opensource-finance/harrier/internal/dataset"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/logging"
	"github.com/opensource-finance/harrier/internal/neo4j"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/service"
	"github.com/opensource-finance/harrier/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"detectors", cfg.Anomaly.Detectors,
		"edge_scoring", cfg.Graph.EdgeScoring,
		"tracing", cfg.Tracing.Enabled,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize alert stream
	alerts, err := alert.New(cfg.Alerts, logger)
	if err != nil {
		slog.Error("failed to initialize alert producer", "error", err)
		os.Exit(1)
	}
	defer alerts.Close()

	engine, err := rules.NewDefaultEngine(cfg.Scoring.BalanceEpsilon)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	deps := service.Dependencies{
		Repository: repo,
		Cache:      cacheImpl,
		Bus:        busImpl,
		Alerts:     alerts,
		Logger:     logger,
	}
	svc := service.New(cfg, engine, deps)

	if err := loadStartupDataset(ctx, cfg, svc); err != nil {
		slog.Error("failed to load startup dataset", "error", err)
		os.Exit(1)
	}

	// Async detection worker
	batchWorker := worker.NewWorker(busImpl, svc, logger)
	if err := batchWorker.Start(); err != nil {
		slog.Error("failed to start detection worker", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, svc, deps, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	if err := batchWorker.Stop(); err != nil {
		slog.Error("failed to stop detection worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("harrier shutdown complete")
}

// loadStartupDataset loads the graph dataset from a CSV file, or from Neo4j
// when no file is configured. With neither the graph starts empty.
func loadStartupDataset(ctx context.Context, cfg *domain.Config, svc *service.Service) error {
	if cfg.Dataset.Path != "" {
		return svc.LoadDataset(ctx, dataset.FileSource{Path: cfg.Dataset.Path})
	}
	if cfg.Neo4j.URI == "" {
		slog.Info("no dataset configured - graph requests need a trained model")
		return nil
	}

	client, err := neo4j.NewClient(ctx, cfg.Neo4j)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	return svc.LoadDataset(ctx, dataset.Neo4jSource{Client: client})
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  HARRIER - Hybrid Fraud Scoring Engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Uploads:  up to %s\n", humanize.IBytes(uint64(cfg.Server.MaxUploadMB)<<20))
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/train                    - Train the anomaly scorer")
	fmt.Println("    POST /api/detect                   - Score a batch (?async=true to queue)")
	fmt.Println("    POST /api/analyze                  - Score a batch with distributions")
	fmt.Println("    GET  /api/stats                    - Model and dataset statistics")
	fmt.Println("    GET  /api/detections/{id}          - Detection run with suspicious rows")
	fmt.Println("    GET  /api/detections/{id}/export   - Scored rows as CSV")
	fmt.Println("    GET  /api/batches/{id}             - Detection run of an async batch")
	fmt.Println("    GET  /api/training-runs            - Recent training runs")
	fmt.Println("    GET  /api/rules                    - Loaded rules")
	fmt.Println("    POST /api/graph/ego-tree           - Ego graph around a client")
	fmt.Println("    GET  /health                       - Health check")
	fmt.Println("    GET  /metrics                      - Prometheus metrics")
	fmt.Println()
}
