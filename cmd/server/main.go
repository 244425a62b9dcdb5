package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/amazon-listing-scraper/internal/api"
	"github.com/maltedev/amazon-listing-scraper/internal/app"
	"github.com/maltedev/amazon-listing-scraper/internal/config"
	"github.com/maltedev/amazon-listing-scraper/internal/jobs"
	"github.com/maltedev/amazon-listing-scraper/internal/queue"
	"github.com/maltedev/amazon-listing-scraper/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	q := queue.NewInMemoryQueue()
	manager := jobs.NewManager(a.Runner, q, jobs.Options{
		DefaultPages: cfg.Scraper.MaxPages,
		MaxPages:     cfg.Server.MaxPages,
	}, logger)
	switch {
	case a.Repository != nil:
		manager.WithStore(a.Repository)
	case a.Snapshots != nil:
		manager.WithStore(a.Snapshots)
	}

	workerDone := make(chan struct{})
	go func() {
		manager.StartWorker(ctx)
		close(workerDone)
	}()

	handlers := api.NewHandlers(manager, logger)
	router := api.NewRouter(handlers, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.WriteTimeout,
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		q.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}

		select {
		case <-workerDone:
		case <-shutdownCtx.Done():
			logger.Warn("worker still running, cancelling crawl")
			cancel()
			<-workerDone
		}
	}()

	logger.Info("starting server", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	<-workerDone
	logger.Info("server stopped")
}
