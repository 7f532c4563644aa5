package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/growlock/store-engine/internal/config"
	"github.com/growlock/store-engine/internal/ingest"
	kafkax "github.com/growlock/store-engine/internal/kafka"
	"github.com/growlock/store-engine/internal/orders"
	"github.com/growlock/store-engine/internal/postgres"
	"github.com/growlock/store-engine/internal/redisx"
	"github.com/growlock/store-engine/internal/stock"
	pgstore "github.com/growlock/store-engine/internal/store/postgres"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := pgstore.Migrate(ctx, db); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producer: ingestion results
	pIngested := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockIngested, 1024, log)
	pIngested.Start(ctx)

	st := pgstore.New(db)
	worker := &ingest.Worker{
		Stock:       stock.New(st, log),
		Redis:       rdb,
		Producer:    pIngested,
		Log:         log,
		ServiceName: cfg.ServiceName + "-stockworker",
	}

	group := getenv("STOCKWORKER_GROUP", "stockworker-svc")
	workers := mustAtoi(os.Getenv("STOCKWORKER_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicStockBatch, workers, log)

	go func() {
		log.Info("stock batch consumer started",
			zap.String("group", group),
			zap.String("topic", orders.TopicStockBatch),
			zap.Int("workers", workers))
		if err := cons.Start(ctx, worker.HandleStockBatch); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
	pIngested.Close()
	pIngested.WaitClosed()
}
