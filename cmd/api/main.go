package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/growlock/store-engine/internal/config"
	"github.com/growlock/store-engine/internal/httpx"
	kafkax "github.com/growlock/store-engine/internal/kafka"
	"github.com/growlock/store-engine/internal/ledger"
	"github.com/growlock/store-engine/internal/orders"
	"github.com/growlock/store-engine/internal/postgres"
	"github.com/growlock/store-engine/internal/redisx"
	"github.com/growlock/store-engine/internal/stock"
	pgstore "github.com/growlock/store-engine/internal/store/postgres"
)

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

	// Kafka producers
	pOrder := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCompleted, 1024, log)
	pOrder.Start(ctx)
	pGrant := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockGranted, 1024, log)
	pGrant.Start(ctx)

	// Engine
	st := pgstore.New(db)
	handler := &httpx.Handler{
		Ledger: ledger.New(st, log),
		Stock:  stock.New(st, log),
		Processor: &orders.Processor{
			Store:         st,
			ProducerOrder: pOrder,
			ProducerGrant: pGrant,
			Log:           log,
			Service:       cfg.ServiceName,
		},
		Redis: rdb,
		Log:   log,
	}

	router := httpx.NewRouter()
	handler.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pOrder.Close() // close inbox -> flush & close writer
	pGrant.Close()
	cancel()
	pOrder.WaitClosed()
	pGrant.WaitClosed()
}
