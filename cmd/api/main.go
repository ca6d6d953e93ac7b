package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adops_backend/internal/audit"
	"adops_backend/internal/events"
	apphttp "adops_backend/internal/http"
	"adops_backend/internal/http/router"
	"adops_backend/internal/inventory"
	"adops_backend/internal/notification"
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
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()
	resolver := tenant.NewResolver(tenant.NewAuditRepo(pool), log)

	contracts, err := storage.NewContractStorage(cfg, log)
	if err != nil {
		log.Error("failed to initialize contract storage", "error", err)
		panic("failed to initialize contract storage: " + err.Error())
	}
	if contracts.Enabled() {
		if err := withRetry(ctx, log, "ensure contracts bucket", 5, 2*time.Second, func() error {
			return contracts.EnsureBucket(ctx)
		}); err != nil {
			log.Error("failed to ensure contracts bucket", "error", err)
			panic("failed to ensure contracts bucket: " + err.Error())
		}
		log.Info("contract storage initialized", "bucket", cfg.GetMinioBucketContracts())
	} else {
		log.Warn("MinIO not configured; contract documents will not be stored")
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

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

	notificationModule := notification.NewModule(pool, resolver, workflowModule.Campaigns, cfg, log)
	notificationModule.RegisterHandlers(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			inventoryModule,
			workflowModule,
			auditModule,
			notificationModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
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
