package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/product-ingest/internal/config"
	"github.com/ignite/product-ingest/internal/ingest"
	"github.com/ignite/product-ingest/internal/pkg/distlock"
	"github.com/ignite/product-ingest/internal/pkg/logger"
	"github.com/ignite/product-ingest/internal/trigger"
)

func main() {
	log := logger.With("component", "worker")
	log.Info("Starting ingestion worker")

	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if err := cfg.Source.CheckExposed(); err != nil {
		log.Error("Unsafe source config", "error", err)
		os.Exit(1)
	}

	if cfg.Trigger.QueueURL == "" {
		log.Error("SQS_TRIGGER_QUEUE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, clients, err := ingest.Bootstrap(ctx, cfg, logger.Default())
	if err != nil {
		log.Error("Failed to build ingestion service", "error", err)
		os.Exit(1)
	}

	// Leases are optional; without Redis every delivery is processed.
	var rdb *redis.Client
	if cfg.Lock.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Lock.RedisURL)
		if err != nil {
			log.Error("Invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("Failed to reach Redis", "error", err)
			os.Exit(1)
		}
		log.Info("Object leases enabled", "ttl", cfg.Lock.TTL())
	}

	consumer := trigger.NewConsumer(clients.SQS, svc, distlock.NewFactory(rdb, cfg.Lock.TTL()), trigger.Options{
		QueueURL:          cfg.Trigger.QueueURL,
		WaitSeconds:       int32(cfg.Trigger.WaitSeconds),
		MaxMessages:       int32(cfg.Trigger.MaxMessages),
		VisibilityTimeout: int32(cfg.Trigger.VisibilityTimeoutSeconds),
		LeaseTTL:          cfg.Lock.TTL(),
	}, logger.Default())
	consumer.Start(ctx)
	log.Info("Worker running", "queue", cfg.Trigger.QueueURL)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down worker")
	cancel()
	consumer.Stop()
	log.Info("Worker stopped")
}
