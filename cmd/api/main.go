package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chorusapp/chorus/internal/audio"
	"github.com/chorusapp/chorus/internal/cache"
	"github.com/chorusapp/chorus/internal/capture"
	"github.com/chorusapp/chorus/internal/config"
	"github.com/chorusapp/chorus/internal/database"
	"github.com/chorusapp/chorus/internal/logging"
	"github.com/chorusapp/chorus/internal/metrics"
	"github.com/chorusapp/chorus/internal/middleware"
	"github.com/chorusapp/chorus/internal/playback"
	"github.com/chorusapp/chorus/internal/queue"
	"github.com/chorusapp/chorus/internal/recorder"
	"github.com/chorusapp/chorus/internal/session"
	"github.com/chorusapp/chorus/internal/storage"
	"github.com/chorusapp/chorus/internal/subtitles"
	"github.com/chorusapp/chorus/internal/tracing"
	"github.com/chorusapp/chorus/pkg/models"
	"github.com/gin-gonic/gin"
)

// API carries the wired services the handlers work against.
type API struct {
	cfg       *config.Config
	repo      *database.Repository
	storage   *storage.Storage
	cache     *cache.Cache
	queue     *queue.Queue
	subtitles *subtitles.Service
	sessions  *session.Manager
	decoder   *audio.Decoder
	logger    *logging.Logger
}

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

	middleware.SetJWTSecret(cfg.Auth.JWTSecret)

	// Initialize tracing
	tracer, closer, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint)
	if err != nil {
		logger.WithError(err).Warn("Tracing disabled")
	} else {
		defer closer.Close()
		_ = tracer
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

	// Initialize storage
	stor, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// Initialize queue
	q, err := queue.New(cfg.Queue)
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	// Wire the practice pipeline
	decoder := audio.NewDecoder(cfg.Practice.FFmpegPath, cfg.Practice.SampleRate)
	subs := subtitles.NewService(c, cfg.Practice.SubtitleTTL, logger)
	capSvc := capture.NewService(capture.Config{
		SeekTimeout: cfg.Practice.SeekTimeout,
		Margin:      cfg.Practice.CaptureMargin,
	}, logger)
	player := playback.NewTimedPlayer(func(ctx context.Context, clip *models.AudioClip) (time.Duration, error) {
		decoded, err := decoder.Decode(ctx, clip)
		if err != nil {
			return 0, err
		}
		return time.Duration(decoded.Duration() * float64(time.Second)), nil
	})
	rec := recorder.New(recorder.Config{
		CountdownTicks: cfg.Practice.CountdownTicks,
		TickInterval:   cfg.Practice.TickInterval,
	}, player, logger)

	practiceQueue := session.NewPracticeQueue(context.Background(), c, logger)
	sessions := session.NewManager(subs, capSvc, rec, decoder, repo, stor, q, practiceQueue, logger)

	api := &API{
		cfg:       cfg,
		repo:      repo,
		storage:   stor,
		cache:     c,
		queue:     q,
		subtitles: subs,
		sessions:  sessions,
		decoder:   decoder,
		logger:    logger,
	}

	// Start metrics server
	metricsServer := metrics.NewServer(cfg.Metrics.Port)
	go func() {
		if err := metricsServer.Start(); err != nil {
			logger.WithError(err).Error("Metrics server failed")
		}
	}()

	router := setupRouter(api)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Destroy the active session so clips and devices are released.
	sessions.Close(ctx)

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("Metrics server shutdown failed")
	}

	logger.Info("Server stopped")
}

func setupRouter(api *API) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(api.logger))

	// Health check
	router.GET("/health", api.healthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.OptionalAuth(api.repo))
	v1.Use(middleware.SharedRateLimit(api.cache, 120, time.Minute))
	{
		// Subtitles
		v1.POST("/subtitles", api.ingestSubtitles)
		v1.GET("/subtitles/:videoID", api.getSubtitles)
		v1.GET("/subtitles/:videoID/current", api.getCurrentSegment)
		v1.POST("/subtitles/:videoID/selection", api.buildSelection)
		v1.GET("/subtitles/:videoID/bookmarks", api.listBookmarks)
		v1.POST("/subtitles/:videoID/bookmarks", api.addBookmark)
		v1.DELETE("/subtitles/:videoID/bookmarks/:index", api.removeBookmark)

		// Media
		v1.POST("/media", api.uploadMedia)

		// Sessions
		v1.POST("/sessions", api.startPractice)
		v1.POST("/sessions/review", api.startReview)
		v1.GET("/sessions/current", api.getSession)
		v1.POST("/sessions/record", api.recordSession)
		v1.POST("/sessions/recording", api.attachRecording)
		v1.POST("/sessions/recording/stop", api.stopRecording)
		v1.POST("/sessions/promote", api.promoteCard)
		v1.POST("/sessions/rate", api.rateSessionCard)
		v1.DELETE("/sessions/current", api.closeSession)

		// Practice queue
		v1.POST("/practice-queue", api.addQueueItem)
		v1.GET("/practice-queue", api.listQueueItems)
		v1.POST("/practice-queue/next", api.nextQueueItem)
		v1.DELETE("/practice-queue", api.clearQueue)

		// SRS cards
		v1.GET("/cards", api.listCards)
		v1.GET("/cards/due", api.listDueCards)
		v1.POST("/cards/:id/review", api.reviewCard)
		v1.DELETE("/cards/:id", api.deleteCard)

		// History and stats
		v1.GET("/history", api.listHistory)
		v1.GET("/stats", api.getStats)
	}

	return router
}
