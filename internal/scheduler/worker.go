package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	auditservice "adops_backend/internal/audit/service"
	"adops_backend/internal/tenant"
	"adops_backend/platform/config"
	"adops_backend/platform/logger"
)

// Sweeper runs the reconciliation audit for the worker.
type Sweeper interface {
	ListTenantIDs(ctx context.Context) ([]uuid.UUID, error)
	RunSweep(ctx context.Context, scope tenant.Scope) (auditservice.Report, error)
}

// Worker consumes background tasks: the periodic sweep dispatch and the
// per-tenant inventory audits it fans out into.
type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	sweeper Sweeper
	client  SweepEnqueuer
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sweeper Sweeper, client SweepEnqueuer, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		sweeper: sweeper,
		client:  client,
		log:     log,
	}

	mux.HandleFunc(TaskSweepDispatch, w.handleSweepDispatch)
	mux.HandleFunc(TaskTenantSweep, w.handleTenantSweep)

	return w, nil
}

// handleSweepDispatch enumerates tenants with inventory and enqueues one
// audit task each, so a slow tenant never delays the others.
func (w *Worker) handleSweepDispatch(ctx context.Context, _ *asynq.Task) error {
	tenantIDs, err := w.sweeper.ListTenantIDs(ctx)
	if err != nil {
		return fmt.Errorf("list tenants for sweep: %w", err)
	}

	for _, tenantID := range tenantIDs {
		if err := w.client.EnqueueTenantSweep(ctx, tenantID); err != nil {
			w.log.Error("failed to enqueue tenant sweep", "tenantId", tenantID, "error", err)
		}
	}

	w.log.Info("sweep dispatched", "tenants", len(tenantIDs))
	return nil
}

func (w *Worker) handleTenantSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseTenantSweepPayload(task)
	if err != nil {
		return err
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return err
	}

	// Sweeps run as the system, not a user.
	_, err = w.sweeper.RunSweep(ctx, tenant.NewScope(tenantID, uuid.Nil))
	return err
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
