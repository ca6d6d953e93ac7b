package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adops_backend/internal/audit"
	"adops_backend/internal/email"
	"adops_backend/internal/events"
	"adops_backend/internal/inventory"
	"adops_backend/internal/notification"
	"adops_backend/internal/scheduler"
	"adops_backend/internal/storage"
	"adops_backend/internal/tenant"
	"adops_backend/internal/workflow"
	"adops_backend/platform/config"
	"adops_backend/platform/db"
	"adops_backend/platform/logger"
	"adops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()
	resolver := tenant.NewResolver(tenant.NewAuditRepo(pool), log)

	contracts, err := storage.NewContractStorage(cfg, log)
	if err != nil {
		log.Error("failed to initialize contract storage", "error", err)
		panic("failed to initialize contract storage: " + err.Error())
	}

	// Worker-side module wiring (no HTTP handlers required).
	defaults := cfg.GetWorkflowDefaults()
	inventoryModule := inventory.NewModule(pool, eventBus, resolver, cfg, defaults, val, log)
	workflowModule := workflow.NewModule(pool, eventBus, resolver, inventoryModule.Reservations, contracts, defaults, val, log)
	auditModule := audit.NewModule(
		pool,
		inventoryModule.Ledger,
		inventoryModule.Repo,
		inventoryModule.Reservations,
		inventoryModule.Alerts,
		workflowModule.Trigger,
		resolver,
		log,
	)

	// Sweep-filed alerts publish on this bus, so the fan-out handlers must be
	// subscribed here just like in the API binary.
	notificationModule := notification.NewModule(pool, resolver, workflowModule.Campaigns, cfg, log)
	notificationModule.RegisterHandlers(eventBus)

	sender := email.NewSMTPSender(cfg, log)
	if !sender.Enabled() {
		log.Warn("email sending disabled; outbox messages will be marked delivered without sending")
	}
	dispatcher := scheduler.NewOutboxDispatcher(notificationModule.Outbox, sender, log)
	go dispatcher.Run(ctx)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}
	go periodic.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, auditModule.Sweep, client, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
