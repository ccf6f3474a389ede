package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coachvault/coachd/internal/api"
	"github.com/coachvault/coachd/internal/coach"
	"github.com/coachvault/coachd/internal/config"
	"github.com/coachvault/coachd/internal/events"
	"github.com/coachvault/coachd/internal/inference"
	"github.com/coachvault/coachd/internal/prompt"
	"github.com/coachvault/coachd/internal/repo"
	"github.com/coachvault/coachd/internal/snapshot"
	"github.com/coachvault/coachd/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("coachd starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Entity store. The memory store is rehydrated from the snapshot file
	// before anything else touches it; a corrupt snapshot is fatal rather
	// than partially applied.
	var entityStore store.EntityStore
	var snap *snapshot.Manager
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		entityStore = pg
		slog.Info("database store ready")
	} else {
		mem := store.NewMemoryStore(cfg.StoreMaxBytes)
		snap = snapshot.NewManager(cfg.SnapshotPath)
		n, err := snap.Load(ctx, mem)
		if err != nil {
			slog.Error("snapshot rehydration failed", "path", snap.Path(), "error", err)
			os.Exit(1)
		}
		entityStore = mem
		slog.Info("store rehydrated", "path", snap.Path(), "entries", n)
	}

	// Inference gateway.
	if cfg.AnthropicAPIKey == "" {
		slog.Error("ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}
	client := inference.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	gateway := inference.NewGateway(client, inference.Config{
		Timeout:    cfg.InferTimeout,
		MaxRetries: cfg.InferMaxRetries,
		Backoff:    cfg.InferBackoff,
		MaxTokens:  cfg.InferMaxTokens,
	}, slog.Default())
	slog.Info("inference gateway ready", "model", cfg.AnthropicModel)

	// Events are optional: coachd works without NATS, just no event stream.
	var publisher *events.Publisher
	if cfg.NatsURL != "" {
		var err error
		publisher, err = events.Connect(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, running without event publishing")
	}

	r := repo.New(entityStore)
	builder := prompt.NewBuilder(r, cfg.PromptBudget)
	manager := coach.NewManager(r, builder, gateway, publisher, slog.Default())

	// Turns left pending by the previous process can never resolve.
	if err := manager.RecoverPending(ctx); err != nil {
		slog.Error("pending turn recovery failed", "error", err)
		os.Exit(1)
	}

	// Periodic snapshots bound data loss on hard kills.
	if snap != nil && cfg.SnapshotInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.SnapshotInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := snap.Save(ctx, entityStore); err != nil {
						slog.Error("periodic snapshot failed", "error", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	srv := api.NewServer(cfg.Port, manager)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("coachd ready", "port", cfg.Port)

	// Graceful shutdown: drain in-flight turns, then snapshot across the
	// restart/upgrade boundary.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	manager.Wait()
	if snap != nil {
		if err := snap.Save(context.Background(), entityStore); err != nil {
			slog.Error("final snapshot failed", "error", err)
			os.Exit(1)
		}
		slog.Info("snapshot written", "path", snap.Path())
	}
	slog.Info("coachd stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
