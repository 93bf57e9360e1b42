package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-b2b-orders/internal/config"
	"github.com/ariefcatur/go-b2b-orders/internal/customers"
	"github.com/ariefcatur/go-b2b-orders/internal/events"
	"github.com/ariefcatur/go-b2b-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-b2b-orders/internal/kafka"
	"github.com/ariefcatur/go-b2b-orders/internal/observability"
	"github.com/ariefcatur/go-b2b-orders/internal/orders"
	"github.com/ariefcatur/go-b2b-orders/internal/postgres"
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
	logger = logger.With(zap.String("service", cfg.ServiceName))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, 1024, logger.Named("producer"))
	prod.Start(ctx)

	engine := orders.NewEngine(db,
		customers.NewClient(cfg.CustomersAPIBase, cfg.CustomersAPIToken, cfg.CustomersAPITimeout),
		orders.WithLogger(logger.Named("orders")),
		orders.WithEvents(events.NewPublisher(prod, cfg.ServiceName, logger)),
		orders.WithCancelGrace(cfg.CancelGrace),
		orders.WithKeyTTL(cfg.IdempotencyTTL),
	)

	router := httpx.NewRouter(logger.Named("http"))
	oh := &httpx.OrdersHandler{
		Engine: engine,
		Cache:  redisx.NewStatusCache(rdb, redisx.TTLStatusCache, logger),
		Log:    logger,
	}
	oh.Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		prod.Close()      // tutup inbox -> flush & close writer
		prod.WaitClosed() // drain
		return err
	})
	return g.Wait()
}
