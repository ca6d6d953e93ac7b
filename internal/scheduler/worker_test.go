package scheduler

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	auditservice "adops_backend/internal/audit/service"
	"adops_backend/internal/tenant"
	"adops_backend/platform/logger"
)

type fakeSweeper struct {
	tenants []uuid.UUID
	swept   []uuid.UUID
}

func (f *fakeSweeper) ListTenantIDs(_ context.Context) ([]uuid.UUID, error) {
	return f.tenants, nil
}

func (f *fakeSweeper) RunSweep(_ context.Context, scope tenant.Scope) (auditservice.Report, error) {
	f.swept = append(f.swept, scope.TenantID())
	return auditservice.Report{TenantID: scope.TenantID()}, nil
}

type fakeEnqueuer struct {
	enqueued []uuid.UUID
}

func (f *fakeEnqueuer) EnqueueTenantSweep(_ context.Context, tenantID uuid.UUID) error {
	f.enqueued = append(f.enqueued, tenantID)
	return nil
}

func TestSweepDispatchFansOutPerTenant(t *testing.T) {
	sweeper := &fakeSweeper{tenants: []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}}
	enqueuer := &fakeEnqueuer{}
	w := &Worker{sweeper: sweeper, client: enqueuer, log: logger.New("development")}

	if err := w.handleSweepDispatch(context.Background(), NewSweepDispatchTask()); err != nil {
		t.Fatalf("handleSweepDispatch: %v", err)
	}
	if got := len(enqueuer.enqueued); got != 3 {
		t.Fatalf("enqueued = %d, want 3", got)
	}
}

func TestTenantSweepRunsUnderTenantScope(t *testing.T) {
	sweeper := &fakeSweeper{}
	w := &Worker{sweeper: sweeper, log: logger.New("development")}
	tenantID := uuid.New()

	task, err := NewTenantSweepTask(TenantSweepPayload{TenantID: tenantID.String()})
	if err != nil {
		t.Fatalf("NewTenantSweepTask: %v", err)
	}
	if err := w.handleTenantSweep(context.Background(), task); err != nil {
		t.Fatalf("handleTenantSweep: %v", err)
	}
	if len(sweeper.swept) != 1 || sweeper.swept[0] != tenantID {
		t.Fatalf("swept = %v, want [%s]", sweeper.swept, tenantID)
	}
}

func TestTenantSweepRejectsMalformedPayload(t *testing.T) {
	w := &Worker{sweeper: &fakeSweeper{}, log: logger.New("development")}

	task := asynq.NewTask(TaskTenantSweep, []byte(`{"tenantId":"not-a-uuid"}`))
	if err := w.handleTenantSweep(context.Background(), task); err == nil {
		t.Fatal("expected error for malformed tenant id")
	}
}

func TestEnqueueTenantSweepDeduplicatesByTenant(t *testing.T) {
	mr := miniredis.RunT(t)

	opt := asynq.RedisClientOpt{Addr: mr.Addr()}
	c := &Client{client: asynq.NewClient(opt), queue: "default"}
	defer c.Close()

	tenantID := uuid.New()
	if err := c.EnqueueTenantSweep(context.Background(), tenantID); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := c.EnqueueTenantSweep(context.Background(), tenantID); err != nil {
		t.Fatalf("duplicate enqueue: %v", err)
	}

	inspector := asynq.NewInspector(opt)
	defer inspector.Close()

	pending, err := inspector.ListPendingTasks("default")
	if err != nil {
		t.Fatalf("ListPendingTasks: %v", err)
	}
	if got := len(pending); got != 1 {
		t.Fatalf("pending tasks = %d, want 1", got)
	}
	if pending[0].Type != TaskTenantSweep {
		t.Fatalf("task type = %q, want %q", pending[0].Type, TaskTenantSweep)
	}
}
