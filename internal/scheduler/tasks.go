package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskSweepDispatch fans the periodic reconciliation run out into one task
// per tenant.
const TaskSweepDispatch = "inventory.sweep.dispatch"

// TaskTenantSweep audits a single tenant's inventory.
const TaskTenantSweep = "inventory.sweep.tenant"

type TenantSweepPayload struct {
	TenantID string `json:"tenantId"`
}

func NewSweepDispatchTask() *asynq.Task {
	return asynq.NewTask(TaskSweepDispatch, nil)
}

func NewTenantSweepTask(payload TenantSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTenantSweep, data), nil
}

func ParseTenantSweepPayload(task *asynq.Task) (TenantSweepPayload, error) {
	var payload TenantSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TenantSweepPayload{}, err
	}
	return payload, nil
}
