package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shopflow/backend/internal/cart"
	"github.com/shopflow/backend/internal/catalog"
	"github.com/shopflow/backend/internal/checkout"
	"github.com/shopflow/backend/internal/config"
	"github.com/shopflow/backend/internal/messaging"
	"github.com/shopflow/backend/internal/orders"
	"github.com/shopflow/backend/internal/paypal"
	"github.com/shopflow/backend/internal/reconciler"
	"github.com/shopflow/backend/internal/telemetry"
	"github.com/shopflow/backend/internal/users"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := config.Load()

	if cfg.PostgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	tel, err := telemetry.Init(ctx, "shop-reconciler", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() { _ = tel.Shutdown(ctx) }()

	db, err := telemetry.OpenDB("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var publisher checkout.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicOrderCompleted)
		defer func() { _ = producer.Close() }()
		publisher = producer
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	orderRepo := orders.NewOrderRepository(db)
	userRepo := users.NewUserRepository(db)
	cartRepo := cart.NewCartRepository(db)
	productRepo := catalog.NewProductRepository(db)

	gateway := paypal.NewClient(paypal.Config{
		BaseURL:   cfg.PayPal.BaseURL,
		ClientID:  cfg.PayPal.ClientID,
		Secret:    cfg.PayPal.Secret,
		ReturnURL: cfg.PayPal.ReturnURL,
		CancelURL: cfg.PayPal.CancelURL,
	}, httpClient, logger)

	checkoutSvc, err := checkout.NewService(cartRepo, productRepo, orderRepo, gateway, publisher, userRepo, logger)
	if err != nil {
		logger.Error("failed to create checkout service", "error", err)
		os.Exit(1)
	}

	worker := reconciler.NewWorker(orderRepo, checkoutSvc, cfg.ReconcileInterval, cfg.ReconcileAfter, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		cancel()
	}()

	worker.Run(runCtx)
}
