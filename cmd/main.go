package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docllama/internal/app"
	"docllama/internal/config"
	"docllama/internal/logger"
	"docllama/internal/queue"
	"docllama/internal/telemetry"
	"docllama/middleware"
	"docllama/routes"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	ctx := context.Background()

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal("Failed to initialize tracing:", err)
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
	}

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = config.NewRedisClient(cfg)
		if err != nil {
			log.Fatal("Failed to connect to Redis:", err)
		}
		defer rdb.Close()
	}

	services, err := app.New(ctx, cfg, rdb, metrics)
	if err != nil {
		log.Fatal("Failed to initialize services:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := services.Close(ctx); err != nil {
			logger.Error("Failed to close vector index", "error", err)
		}
	}()

	var ingestQueue routes.IngestQueue
	if cfg.AsyncIngestEnabled {
		redisOpt, err := queue.RedisConnOpt(cfg)
		if err != nil {
			log.Fatal("Failed to configure task queue:", err)
		}
		enqueuer := queue.NewEnqueuer(redisOpt, cfg.IngestTimeout)
		defer enqueuer.Close()
		ingestQueue = enqueuer
	}

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware(telemetry.ServiceName))
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddlewareWithOrigins(cfg.CORSOrigins))
	if rdb != nil && cfg.RateLimitReqs > 0 {
		router.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitReqs, time.Duration(cfg.RateLimitWindow)*time.Second))
	}

	routes.SetupRoutes(router, cfg, &routes.Services{
		Models: services.Ollama,
		Chat:   services.Chat,
		Ingest: services.Ingest,
		Search: services.Search,
		Queue:  ingestQueue,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port, "async_ingest", cfg.AsyncIngestEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
