package main

import (
	"context"
	"log"
	"time"

	"docllama/internal/app"
	"docllama/internal/config"
	"docllama/internal/logger"
	"docllama/internal/queue"
	"docllama/internal/telemetry"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)
	if !cfg.RedisEnabled() {
		log.Fatal("REDIS_URL is required to run the ingest worker")
	}

	ctx := context.Background()

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.ServiceName+"-worker", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal("Failed to initialize tracing:", err)
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
	}

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

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

	redisOpt, err := queue.RedisConnOpt(cfg)
	if err != nil {
		log.Fatal("Failed to configure task queue:", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queue.QueueIngest: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(services.Ingest)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestDocument, processor.ProcessIngest)

	logger.Info("Starting ingest worker",
		"concurrency", cfg.WorkerConcurrency,
		"queue", queue.QueueIngest,
		"redis", redisOpt.Addr)

	// Run blocks until SIGINT or SIGTERM.
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
