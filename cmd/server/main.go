// Voice platform server - character voice sessions over a live model channel
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/charvoice/platform/internal/character"
	"github.com/charvoice/platform/internal/config"
	"github.com/charvoice/platform/internal/metrics"
	"github.com/charvoice/platform/internal/server"
	"github.com/charvoice/platform/internal/voice"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	chars, err := character.NewStore(cfg.CharactersFile)
	if err != nil {
		slog.Error("failed to load characters", "file", cfg.CharactersFile, "error", err)
		os.Exit(1)
	}

	m := metrics.New("charvoice", prometheus.DefaultRegisterer)
	sessions := voice.NewManager(cfg, chars, m)
	srv := server.New(sessions, chars, prometheus.DefaultGatherer)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("voice platform starting", "http", cfg.HTTPAddr, "model", cfg.LiveModel)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	sessions.StopAll()
	slog.Info("shutdown complete")
}
