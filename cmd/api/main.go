// @title Splits Coordination Service API
// @version 1.0
// @description Coordinates multi-party ERC-20 payment splits on an EVM chain
// @description using EIP-712 signed approvals and on-chain settlement via a
// @description coordinator contract.
// @description
// @description ## Flow
// @description Create a split, issue an approve-intent per participant, collect
// @description their EIP-712 signatures, then settle on-chain once every
// @description participant has signed.

// @contact.name Splits Coordination Service
// @contact.url https://github.com/yv-was-taken/splitcoord

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @tag.name health
// @tag.description Health check endpoints for monitoring
// @tag.name splits
// @tag.description Split creation, approval and settlement
// @tag.name tokens
// @tag.description Supported token catalog

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"splitcoord/internal/config"
	"splitcoord/internal/server"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup structured logging - JSON for production, text for development
	setupLogging(cfg)

	// Validate configuration - fails if required values are missing or malformed
	if err := cfg.Validate(); err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// Create server
	srv, err := server.New(cfg)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Create a context that will be cancelled on shutdown signal
	ctx, cancel := context.WithCancel(context.Background())

	// Start server in a goroutine (includes the orphan-create reconciler)
	go func() {
		if err := srv.Start(ctx); err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")

	// Cancel context to signal workers to stop
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited")
}

// setupLogging configures the global slog logger
func setupLogging(cfg *config.Config) {
	var handler slog.Handler

	if cfg.IsProduction() {
		// JSON output for production - easy to parse by log aggregators
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		// Text output for development - human readable
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}
