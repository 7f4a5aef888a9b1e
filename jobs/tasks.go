package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeGLIntegrity sweeps the ledger verifying global debit/credit balance.
	TaskTypeGLIntegrity = "gl:integrity"
	// TaskTypeReconcile recomputes cached account balances from ledger entries.
	TaskTypeReconcile = "gl:reconcile"
)

// GLIntegrityPayload configures the scope of the ledger integrity sweep.
// OrgID zero means every organization.
type GLIntegrityPayload struct {
	OrgID int64 `json:"org_id"`
}

// NewGLIntegrityTask constructs an Asynq task.
func NewGLIntegrityTask(payload GLIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGLIntegrity, data), nil
}

// ReconcilePayload configures the balance reconciliation job.
type ReconcilePayload struct {
	OrgID  int64 `json:"org_id"`
	Repair bool  `json:"repair"`
}

// NewReconcileTask constructs an Asynq task.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeReconcile, data), nil
}
