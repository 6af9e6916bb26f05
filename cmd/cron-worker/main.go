package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joseph3559/letrents-backend/internal/correlation"
	"github.com/joseph3559/letrents-backend/internal/cron"
	"github.com/joseph3559/letrents-backend/internal/documents"
	"github.com/joseph3559/letrents-backend/internal/invoices"
	"github.com/joseph3559/letrents-backend/internal/notifications"
	"github.com/joseph3559/letrents-backend/internal/reconciliation"
	"github.com/joseph3559/letrents-backend/internal/settlement"
	"github.com/joseph3559/letrents-backend/internal/unmatched"
	"github.com/joseph3559/letrents-backend/pkg/config"
	"github.com/joseph3559/letrents-backend/pkg/db"
	"github.com/joseph3559/letrents-backend/pkg/logger"
	"github.com/joseph3559/letrents-backend/pkg/metrics"
	"github.com/joseph3559/letrents-backend/pkg/migrate"
	"github.com/joseph3559/letrents-backend/pkg/outbox"
	"github.com/joseph3559/letrents-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	invoiceRepo := invoices.NewRepository(dbClient.DB())
	paymentRepo := settlement.NewRepository(dbClient.DB())
	unmatchedRepo := unmatched.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)

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

	sweepJob, err := cron.NewReconciliationSweepJob(cron.ReconciliationSweepJobParams{
		Logger: logg,
		Sweep:  sweepService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation sweep job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	pendingCleanupJob, err := cron.NewPendingPaymentCleanupJob(cron.PendingPaymentCleanupJobParams{
		Logger: logg,
		Repo:   paymentRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pending payment cleanup job", err)
		os.Exit(1)
	}

	lockTTL := time.Duration(cfg.Reconciliation.LockTTLMinutes) * time.Minute
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), lockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweepJob, retentionJob, pendingCleanupJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Reconciliation.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
