package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/retailcore/checkout-engine/internal/cart"
	"github.com/retailcore/checkout-engine/internal/checkout"
	"github.com/retailcore/checkout-engine/internal/config"
	"github.com/retailcore/checkout-engine/internal/events"
	"github.com/retailcore/checkout-engine/internal/httpx"
	kafkax "github.com/retailcore/checkout-engine/internal/kafka"
	"github.com/retailcore/checkout-engine/internal/ledger"
	"github.com/retailcore/checkout-engine/internal/logging"
	"github.com/retailcore/checkout-engine/internal/orders"
	"github.com/retailcore/checkout-engine/internal/postgres"
	"github.com/retailcore/checkout-engine/internal/receipts"
	"github.com/retailcore/checkout-engine/internal/redisx"
	"github.com/retailcore/checkout-engine/internal/reservation"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.ServiceName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if err := postgres.Migrate(cfg.PostgresDSN, cfg.MigrationsDir); err != nil {
		log.Error("migrate", "err", err)
		os.Exit(1)
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer for sale events
	prod := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicSaleCompleted, 1024, log)
	prod.Start(ctx)

	// Core wiring
	repo := &orders.Repo{DB: db}
	stockLedger := &ledger.Postgres{DB: db, Log: log}
	reservations := &reservation.Postgres{DB: db}
	cartSvc := &cart.Service{
		Ledger:       stockLedger,
		Reservations: reservations,
		Lines:        &cart.RedisLines{Client: rdb, BaseTTL: cfg.ReservationTTL},
		Catalog:      repo,
		TTL:          cfg.ReservationTTL,
		Log:          log,
	}
	orch := &checkout.Orchestrator{
		Cart:        cartSvc,
		Sales:       repo,
		Receipts:    &receipts.Service{DB: db},
		Producer:    prod,
		Redis:       rdb,
		TaxRateBps:  cfg.TaxRateBps,
		ServiceName: cfg.ServiceName,
		Log:         log,
	}

	router := httpx.NewRouter()
	(&httpx.CartHandler{Cart: cartSvc}).Register(router)
	(&httpx.CheckoutHandler{Orchestrator: orch}).Register(router)
	(&httpx.OrdersHandler{Queries: repo}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel()          // stop producer loop, flush buffered events
	prod.WaitClosed() // drain
}
