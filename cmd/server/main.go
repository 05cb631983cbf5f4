package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/deckcheck/internal/api"
	"github.com/dgallion1/deckcheck/internal/config"
	"github.com/dgallion1/deckcheck/internal/inference"
	"github.com/dgallion1/deckcheck/internal/pathstore"
	"github.com/dgallion1/deckcheck/internal/pipeline"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadFile("")
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	stats := inference.NewLLMStats(cfg.StatsWindow)
	provider, err := pipeline.NewProvider(ctx, cfg, stats, log)
	if err != nil {
		log.Error("create inference client", "provider", cfg.Provider, "error", err)
		os.Exit(1)
	}

	var (
		ps   *pathstore.Client
		sink pipeline.Sink
		deps = api.Deps{Stats: stats, Model: provider.Model}
	)
	if cfg.PathstoreURL != "" {
		ps = pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
		archive := pathstore.NewSink(ps)
		sink, deps.Archive = archive, archive
	}

	// Initialize pipeline.
	analyzer := pipeline.NewAnalyzer(provider.Client, pipeline.NewRendererFromConfig(cfg, log),
		pipeline.AnalyzerOptions(cfg, provider.Model), log)
	orch := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		Workers:   cfg.WorkerCount,
		QueueSize: cfg.MaxQueueSize,
		JobTTL:    cfg.JobTTL,
	}, analyzer, sink, log)
	orch.Start(ctx)
	deps.Orchestrator = orch

	// Initialize HTTP server.
	srv := api.NewServer(deps, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		provider.Close()
		if ps != nil {
			ps.Close()
		}
	}()

	log.Info("starting deckcheck", "port", cfg.Port, "provider", cfg.Provider, "model", provider.Model,
		"render_images", cfg.RenderImages, "archive", ps != nil)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
