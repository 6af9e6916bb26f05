package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joseph3559/letrents-backend/api/routes"
	"github.com/joseph3559/letrents-backend/internal/correlation"
	"github.com/joseph3559/letrents-backend/internal/cron"
	"github.com/joseph3559/letrents-backend/internal/documents"
	"github.com/joseph3559/letrents-backend/internal/invoices"
	"github.com/joseph3559/letrents-backend/internal/notifications"
	"github.com/joseph3559/letrents-backend/internal/reconciliation"
	"github.com/joseph3559/letrents-backend/internal/settlement"
	"github.com/joseph3559/letrents-backend/internal/unmatched"
	"github.com/joseph3559/letrents-backend/internal/webhooks/guard"
	mpesawebhook "github.com/joseph3559/letrents-backend/internal/webhooks/mpesa"
	paystackwebhook "github.com/joseph3559/letrents-backend/internal/webhooks/paystack"
	"github.com/joseph3559/letrents-backend/pkg/config"
	"github.com/joseph3559/letrents-backend/pkg/db"
	"github.com/joseph3559/letrents-backend/pkg/logger"
	"github.com/joseph3559/letrents-backend/pkg/metrics"
	"github.com/joseph3559/letrents-backend/pkg/migrate"
	"github.com/joseph3559/letrents-backend/pkg/outbox"
	"github.com/joseph3559/letrents-backend/pkg/redis"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	invoiceRepo := invoices.NewRepository(dbClient.DB())
	paymentRepo := settlement.NewRepository(dbClient.DB())
	unmatchedRepo := unmatched.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	notifier, err := notifications.NewLogDispatcher(logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}
	docs, err := documents.NewLogService(logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create document service", err)
		os.Exit(1)
	}

	settlementService, err := settlement.NewService(settlement.ServiceParams{
		DB:       dbClient,
		Payments: paymentRepo,
		Invoices: invoiceRepo,
		Outbox:   outboxService,
		Logger:   logg,
		Notifier: notifier,
		Docs:     docs,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	resolver, err := correlation.NewResolver(correlation.ResolverParams{
		Invoices:   invoiceRepo,
		Logger:     logg,
		ScanWindow: cfg.Reconciliation.ScanWindow,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create correlation resolver", err)
		os.Exit(1)
	}

	paystackService, err := paystackwebhook.NewService(paystackwebhook.ServiceParams{
		DB:         dbClient,
		Resolver:   resolver,
		Settlement: settlementService,
		Unmatched:  unmatchedRepo,
		Outbox:     outboxService,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack webhook service", err)
		os.Exit(1)
	}

	paystackGuard, err := guard.New(redisClient, cfg.Paystack.IdempotencyTTL, "paystack")
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack idempotency guard", err)
		os.Exit(1)
	}

	mpesaService, err := mpesawebhook.NewService(mpesawebhook.ServiceParams{
		Config:     cfg.Mpesa,
		DB:         dbClient,
		Resolver:   resolver,
		Settlement: settlementService,
		Unmatched:  unmatchedRepo,
		Outbox:     outboxService,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create mpesa webhook service", err)
		os.Exit(1)
	}

	sweepService, err := reconciliation.NewService(reconciliation.ServiceParams{
		DB:           dbClient,
		Invoices:     invoiceRepo,
		Unmatched:    unmatchedRepo,
		Resolver:     resolver,
		Settlement:   settlementService,
		Outbox:       outboxService,
		Logger:       logg,
		InvoiceLimit: cfg.Reconciliation.InvoiceBatch,
		ParkedLimit:  cfg.Reconciliation.ScanWindow,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation service", err)
		os.Exit(1)
	}

	// Same key as the scheduled worker, so a manual sweep and a scheduled one
	// exclude each other.
	sweepLock, err := cron.NewRedisLock(
		redisClient,
		redisClient.LockKey("cron-worker"),
		time.Duration(cfg.Reconciliation.LockTTLMinutes)*time.Minute,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep lock", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:          cfg,
			Logger:          logg,
			DB:              dbClient,
			Redis:           redisClient,
			PaystackService: paystackService,
			PaystackGuard:   paystackGuard,
			MpesaService:    mpesaService,
			Settlement:      settlementService,
			Sweep:           sweepService,
			SweepLock:       sweepLock,
			WebhookMetrics:  webhookMetrics,
			Registry:        registry,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
