package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chorusapp/chorus/internal/cache"
	"github.com/chorusapp/chorus/internal/config"
	"github.com/chorusapp/chorus/internal/database"
	"github.com/chorusapp/chorus/internal/history"
	"github.com/chorusapp/chorus/internal/logging"
	"github.com/chorusapp/chorus/internal/metrics"
	"github.com/chorusapp/chorus/internal/queue"
	"github.com/chorusapp/chorus/pkg/models"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewDefaultLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	// Initialize database
	db, err := database.New(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := database.NewRepository(db)

	// Initialize cache
	c, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer c.Close()

	// Initialize queue
	q, err := queue.New(cfg.Queue)
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	historyService := history.NewService(repo, c, logger)

	// Metrics server for the worker process
	metricsServer := metrics.NewServer(cfg.Metrics.Port + 1)
	go func() {
		if err := metricsServer.Start(); err != nil {
			logger.WithError(err).Error("Metrics server failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down worker gracefully...")
		cancel()
	}()

	handler := func(event *models.PracticeEvent) error {
		return historyService.HandleEvent(ctx, event)
	}

	logger.Info("Worker started, waiting for practice events...")
	if err := q.ConsumeEvents(ctx, handler); err != nil {
		logger.Fatalf("Failed to consume events: %v", err)
	}

	// Wait for shutdown
	<-ctx.Done()

	if err := metricsServer.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Warn("Metrics server shutdown failed")
	}
	logger.Info("Worker stopped")
}
