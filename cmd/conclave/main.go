// Conclave server: runs the multi-model deliberation pipeline behind the
// conversation HTTP API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/conclave-labs/conclave/pkg/api"
	"github.com/conclave-labs/conclave/pkg/config"
	"github.com/conclave-labs/conclave/pkg/council"
	"github.com/conclave-labs/conclave/pkg/llm"
	"github.com/conclave-labs/conclave/pkg/store"
	"github.com/conclave-labs/conclave/pkg/version"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"error", err)
	}

	// 1. Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.APIKey == "" {
		slog.Warn("MODEL_API_KEY is not set; message requests will fail until it is configured")
	}

	slog.Info("Starting conclave",
		"version", version.Full(),
		"http_port", cfg.HTTPPort,
		"council_size", len(cfg.Council),
		"chairman", cfg.ChairmanModel,
		"persist_storage", cfg.PersistStorage)

	// 2. Open the conversation store
	st, err := store.Open(cfg.ConversationsFile, cfg.PersistStorage)
	if err != nil {
		slog.Error("Failed to open conversation store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Error closing conversation store", "error", err)
		}
	}()

	// 3. Wire the model gateway and orchestrator
	client := llm.NewOpenRouterClient(cfg.APIURL, cfg.APIKey)
	orchestrator := council.NewOrchestrator(cfg, client, st)

	// 4. Start the HTTP server
	server := api.NewServer(cfg, st, orchestrator)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 5. Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		slog.Info("Shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
