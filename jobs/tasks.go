package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBalancesRefresh recomputes account balance snapshots for a period.
	TaskBalancesRefresh = "balances:refresh"
	// TaskGLIntegrity sweeps posted entries for debit/credit drift.
	TaskGLIntegrity = "gl:integrity"
)

// BalancesRefreshPayload selects the fiscal period to refresh. A zero value
// means the period containing the current date.
type BalancesRefreshPayload struct {
	FiscalYear  int `json:"fiscalYear"`
	FiscalMonth int `json:"fiscalMonth"`
}

// NewBalancesRefreshTask constructs an Asynq task.
func NewBalancesRefreshTask(payload BalancesRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBalancesRefresh, data), nil
}

// NewGLIntegrityTask constructs an Asynq task with no payload.
func NewGLIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskGLIntegrity, nil)
}
