package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/retailcore/checkout-engine/internal/config"
	"github.com/retailcore/checkout-engine/internal/events"
	kafkax "github.com/retailcore/checkout-engine/internal/kafka"
	"github.com/retailcore/checkout-engine/internal/ledger"
	"github.com/retailcore/checkout-engine/internal/logging"
	"github.com/retailcore/checkout-engine/internal/postgres"
	"github.com/retailcore/checkout-engine/internal/receipts"
	"github.com/retailcore/checkout-engine/internal/redisx"
	"github.com/retailcore/checkout-engine/internal/reservation"
	"github.com/retailcore/checkout-engine/internal/sweeper"
)

// The worker hosts the expiry sweeper and the deferred receipt retry
// consumer, so the api binary stays request-only.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.ServiceName + "-worker")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicStockReleased, 1024, log)
	prod.Start(ctx)

	sw := &sweeper.Sweeper{
		Ledger:       &ledger.Postgres{DB: db, Log: log},
		Reservations: &reservation.Postgres{DB: db},
		Producer:     prod,
		Interval:     cfg.SweepInterval,
		ServiceName:  cfg.ServiceName + "-worker",
		Log:          log,
	}
	go sw.Run(ctx)
	log.Info("sweeper started", "interval", cfg.SweepInterval.String())

	rw := &receipts.Worker{
		Issuer: &receipts.Service{DB: db},
		Redis:  rdb,
		Log:    log,
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, events.TopicSaleCompleted, cfg.WorkerConcurrency, log)
	consDone := make(chan struct{})
	go func() {
		defer close(consDone)
		log.Info("receipt consumer started",
			"group", cfg.WorkerGroup,
			"topic", events.TopicSaleCompleted,
			"workers", cfg.WorkerConcurrency)
		if err := cons.Start(ctx, rw.HandleSaleCompleted); err != nil {
			log.Error("consumer exit", "err", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down worker")
	cancel()
	<-consDone
	prod.WaitClosed()
}
