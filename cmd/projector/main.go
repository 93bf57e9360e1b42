package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-b2b-orders/internal/config"
	kafkax "github.com/ariefcatur/go-b2b-orders/internal/kafka"
	"github.com/ariefcatur/go-b2b-orders/internal/observability"
	"github.com/ariefcatur/go-b2b-orders/internal/projection"
	"github.com/ariefcatur/go-b2b-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("service", cfg.ServiceName+"-projector"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis ping", zap.Error(err))
	}

	svc := &projection.Service{
		Redis:       rdb,
		Cache:       redisx.NewStatusCache(rdb, redisx.TTLStatusCache, logger),
		ServiceName: "projector",
		Log:         logger,
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, cfg.KafkaTopic, cfg.ProjectorWorkers, logger.Named("consumer"))
	logger.Info("projector consumer started",
		zap.String("group", cfg.ProjectorGroup), zap.String("topic", cfg.KafkaTopic), zap.Int("workers", cfg.ProjectorWorkers))

	if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
		logger.Fatal("consumer exit", zap.Error(err))
	}
	logger.Info("projector stopped")
}
