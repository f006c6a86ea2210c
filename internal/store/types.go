package store

import (
	"time"

	"github.com/stepwise-engine/stepwise/pkg/schema"
)

// ExecutionRecord is the persisted form of an execution. The context and
// step result payloads are stored as JSON documents so a fresh engine can
// rebuild in-memory state from the record alone.
type ExecutionRecord struct {
	ID            string                `json:"id"`
	TemplateID    string                `json:"template_id"`
	OwnerID       string                `json:"owner_id"`
	Status        string                `json:"status"`
	CurrentStepID string                `json:"current_step_id,omitempty"`
	Context       map[string]any        `json:"context,omitempty"`
	StepResults   []schema.StepResult   `json:"step_results,omitempty"`
	ErrorMessage  string                `json:"error_message,omitempty"`
	StartedAt     *time.Time            `json:"started_at,omitempty"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// ExecutionUpdate carries a partial update. Nil fields are left untouched;
// CurrentStepID uses a pointer so the column can be explicitly cleared when
// an execution reaches a terminal status.
type ExecutionUpdate struct {
	Status        *string
	CurrentStepID *string
	Context       map[string]any
	StepResults   []schema.StepResult
	ErrorMessage  *string
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// ExecutionFilter narrows ListExecutions. Zero values mean "no constraint".
type ExecutionFilter struct {
	OwnerID    string
	TemplateID string
	Status     string
	Limit      int
}

// RecordFromExecution converts an in-memory execution into its persisted form.
func RecordFromExecution(exec *schema.Execution) *ExecutionRecord {
	now := time.Now().UTC()
	rec := &ExecutionRecord{
		ID:            exec.ID,
		TemplateID:    exec.TemplateID,
		OwnerID:       exec.OwnerID,
		Status:        string(exec.Status),
		CurrentStepID: exec.CurrentStepID,
		Context:       exec.Context,
		StepResults:   exec.StepResults,
		ErrorMessage:  exec.ErrorMessage,
		StartedAt:     exec.StartedAt,
		CompletedAt:   exec.CompletedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return rec
}

// Execution rebuilds the in-memory representation from a record.
func (r *ExecutionRecord) Execution() *schema.Execution {
	return &schema.Execution{
		ID:            r.ID,
		TemplateID:    r.TemplateID,
		OwnerID:       r.OwnerID,
		Status:        schema.ExecutionStatus(r.Status),
		CurrentStepID: r.CurrentStepID,
		Context:       r.Context,
		StepResults:   r.StepResults,
		ErrorMessage:  r.ErrorMessage,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
	}
}
