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

	"github.com/shopflow/backend/internal/auth"
	"github.com/shopflow/backend/internal/cart"
	"github.com/shopflow/backend/internal/catalog"
	"github.com/shopflow/backend/internal/checkout"
	"github.com/shopflow/backend/internal/config"
	"github.com/shopflow/backend/internal/messaging"
	"github.com/shopflow/backend/internal/orders"
	"github.com/shopflow/backend/internal/paypal"
	"github.com/shopflow/backend/internal/telemetry"
	"github.com/shopflow/backend/internal/upload"
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
	if cfg.JWTSigningKey == "" {
		logger.Error("JWT_SIGNING_KEY environment variable is required")
		os.Exit(1)
	}

	tel, err := telemetry.Init(ctx, "shop-api", "0.1.0")
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

	userRepo := users.NewUserRepository(db)
	productRepo := catalog.NewProductRepository(db)
	cartRepo := cart.NewCartRepository(db)
	orderRepo := orders.NewOrderRepository(db)

	authSvc := auth.NewService([]byte(cfg.JWTSigningKey), cfg.JWTTTL)
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

	userHandler := users.NewHandler(userRepo, authSvc, logger)
	productHandler := catalog.NewHandler(productRepo, logger)
	cartHandler := cart.NewHandler(cartRepo, productRepo, logger)
	orderHandler := orders.NewHandler(orderRepo, logger)
	checkoutHandler := checkout.NewHandler(checkoutSvc, checkout.RedirectTargets{
		Success: cfg.FrontendSuccessURL,
		Failure: cfg.FrontendFailureURL,
		Cancel:  cfg.FrontendCancelURL,
	}, logger)
	uploadHandler, err := upload.NewHandler(cfg.UploadDir, logger)
	if err != nil {
		logger.Error("failed to create upload handler", "error", err)
		os.Exit(1)
	}

	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return telemetry.WithHTTPRoute(authSvc.Middleware(h))
	}
	admin := func(h http.HandlerFunc) http.HandlerFunc {
		return telemetry.WithHTTPRoute(authSvc.AdminOnly(h))
	}
	public := telemetry.WithHTTPRoute

	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/register", public(userHandler.HandleRegister))
	mux.HandleFunc("POST /auth/login", public(userHandler.HandleLogin))

	mux.HandleFunc("GET /products", public(productHandler.HandleList))
	mux.HandleFunc("GET /products/{id}", public(productHandler.HandleGet))

	mux.HandleFunc("GET /cart", authed(cartHandler.HandleList))
	mux.HandleFunc("POST /cart", authed(cartHandler.HandleAdd))
	mux.HandleFunc("PUT /cart/{id}", authed(cartHandler.HandleUpdate))
	mux.HandleFunc("DELETE /cart/{id}", authed(cartHandler.HandleRemove))
	mux.HandleFunc("DELETE /cart", authed(cartHandler.HandleClear))

	mux.HandleFunc("POST /checkout", authed(checkoutHandler.HandleCheckout))
	mux.HandleFunc("GET /payment/success", public(checkoutHandler.HandleSuccess))
	mux.HandleFunc("GET /payment/cancel", public(checkoutHandler.HandleCancel))

	mux.HandleFunc("GET /orders", authed(orderHandler.HandleListMine))
	mux.HandleFunc("GET /orders/{id}", authed(orderHandler.HandleGet))

	mux.HandleFunc("POST /admin/products", admin(productHandler.HandleCreate))
	mux.HandleFunc("PUT /admin/products/{id}", admin(productHandler.HandleUpdate))
	mux.HandleFunc("DELETE /admin/products/{id}", admin(productHandler.HandleDelete))
	mux.HandleFunc("POST /admin/images", admin(uploadHandler.HandleUpload))
	mux.HandleFunc("GET /admin/users", admin(userHandler.HandleList))
	mux.HandleFunc("PUT /admin/users/{id}/role", admin(userHandler.HandleUpdateRole))
	mux.HandleFunc("PUT /admin/users/{id}", admin(userHandler.HandleUpdateAccount))
	mux.HandleFunc("DELETE /admin/users/{id}", admin(userHandler.HandleDelete))

	mux.Handle("GET /images/", uploadHandler.FileServer())
	mux.Handle("GET /metrics", tel.MetricsHandler)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, "shop-api",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting shop api", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
