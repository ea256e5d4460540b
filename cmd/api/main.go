package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safar/farmstand/internal/cache"
	"github.com/safar/farmstand/internal/cart"
	"github.com/safar/farmstand/internal/catalog"
	"github.com/safar/farmstand/internal/checkout"
	"github.com/safar/farmstand/internal/config"
	"github.com/safar/farmstand/internal/database"
	"github.com/safar/farmstand/internal/fulfillment"
	"github.com/safar/farmstand/internal/httpapi"
	"github.com/safar/farmstand/internal/notify"
	"github.com/safar/farmstand/internal/payment"
	"github.com/safar/farmstand/internal/telemetry"
	"github.com/safar/farmstand/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	telemetry.InitLogger(os.Stdout, cfg.LogLevel)

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("Setup tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slog.Error("tracer shutdown failed", "error", err)
		}
	}()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	slog.Info("connected to database")

	if cfg.Payment.StripeSecretKey == "" {
		slog.Warn("STRIPE_SECRET_KEY is not set, checkout calls to the processor will fail")
	}
	gateway := payment.NewStripeGateway(cfg.Payment.StripeSecretKey)

	var dedup payment.Deduplicator
	if cfg.Redis.Addr != "" {
		rdb := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, webhook de-duplication falls back to the database", "error", err)
		}
		dedup = cache.NewEventStore(rdb, cfg.Telemetry.ServiceName, cfg.Redis.EventTTL)
	}

	carts := cart.NewService(db, cfg.Cart.TTL)
	handler := httpapi.NewHandler(httpapi.Services{
		Carts: carts,
		Checkouts: checkout.NewService(db, gateway, notify.New(cfg.Mail), checkout.NewDBRecorder(db),
			cfg.Payment.Currency, cfg.Payment.CaptureTimeout),
		Orders:    fulfillment.NewService(db, gateway),
		Catalog:   catalog.NewService(db),
		Addresses: httpapi.NewStoreAddressBook(db),
		Wallet:    wallet.NewService(db, gateway),
		Webhooks:  payment.NewVerifier(cfg.Payment.WebhookSecret),
		Events:    payment.NewSynchronizer(db, dedup),
	})

	go sweepCarts(ctx, carts, cfg.Cart.SweepInterval)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      httpapi.NewRouter(handler, httpapi.NewAuthenticator(cfg.Auth.JWTSecret), cfg.Telemetry.ServiceName),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}
}

func sweepCarts(ctx context.Context, carts *cart.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := carts.SweepExpiredCarts(ctx); err != nil {
				slog.ErrorContext(ctx, "cart sweep failed", "error", err)
			}
		}
	}
}
