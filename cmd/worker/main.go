package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/qdmz/webchaxun/internal/cache"
	"github.com/qdmz/webchaxun/internal/config"
	"github.com/qdmz/webchaxun/internal/database"
	"github.com/qdmz/webchaxun/internal/log"
	"github.com/qdmz/webchaxun/internal/queue"
	"github.com/qdmz/webchaxun/internal/repository"
	"github.com/qdmz/webchaxun/internal/session"
	"github.com/qdmz/webchaxun/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.Component(log.New(cfg.Environment, cfg.Logging.Level), "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	var sweeper tasks.SessionSweeper
	if cfg.Session.Backend == config.SessionBackendPostgres {
		sweeper = session.NewPostgresStore(dbPool)
	}

	processor := tasks.NewProcessor(repository.NewActionRepository(dbPool), sweeper, logger)
	consumer := queue.NewConsumer(
		client,
		cfg.Redis.Stream,
		cfg.Redis.Group,
		cfg.Redis.Consumer,
		cfg.Queues.ClaimInterval,
		logger,
		processor,
	)

	logger.Info().Str("stream", cfg.Redis.Stream).Str("group", cfg.Redis.Group).Msg("worker started")
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("consumer stopped unexpectedly")
		return
	}
	logger.Info().Msg("worker stopped")
}
