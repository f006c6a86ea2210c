package schema

import "time"

// StepType enumerates the kinds of steps in a template.
type StepType string

const (
	StepTypeTrigger   StepType = "trigger"
	StepTypeAction    StepType = "action"
	StepTypeDelay     StepType = "delay"
	StepTypeCondition StepType = "condition"
	StepTypeWebhook   StepType = "webhook"
)

// ExecutionStatus enumerates the lifecycle states of an execution.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusPaused    ExecutionStatus = "paused"
)

// Terminal reports whether the status is a terminal one.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Step is a single unit of work in a template.
type Step struct {
	ID          string         `json:"id" yaml:"id"`
	Type        StepType       `json:"type" yaml:"type"`
	Name        string         `json:"name,omitempty" yaml:"name,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	// NextSteps overrides sequence order; only the first entry is followed.
	NextSteps []string `json:"next_steps,omitempty" yaml:"next_steps,omitempty"`
}

// WorkflowTemplate is an immutable automation template.
type WorkflowTemplate struct {
	ID                   string   `json:"id" yaml:"id"`
	Name                 string   `json:"name" yaml:"name"`
	Description          string   `json:"description,omitempty" yaml:"description,omitempty"`
	BusinessType         string   `json:"business_type,omitempty" yaml:"business_type,omitempty"`
	Category             string   `json:"category,omitempty" yaml:"category,omitempty"`
	Steps                []Step   `json:"steps" yaml:"steps"`
	RequiredIntegrations []string `json:"required_integrations,omitempty" yaml:"required_integrations,omitempty"`
	// EstimatedExecutionTime is an informational estimate in seconds.
	EstimatedExecutionTime int `json:"estimated_execution_time,omitempty" yaml:"estimated_execution_time,omitempty"`
}

// FindStep returns the step with the given id, or nil.
func (t *WorkflowTemplate) FindStep(id string) *Step {
	for i := range t.Steps {
		if t.Steps[i].ID == id {
			return &t.Steps[i]
		}
	}
	return nil
}

// StepResult records the outcome of a single step execution.
type StepResult struct {
	StepID      string          `json:"step_id"`
	Status      StepResultStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Output      map[string]any  `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	RetryCount  int             `json:"retry_count,omitempty"`
}

// StepResultStatus is the status of a single step result.
type StepResultStatus string

const (
	StepResultRunning   StepResultStatus = "running"
	StepResultCompleted StepResultStatus = "completed"
	StepResultFailed    StepResultStatus = "failed"
)

// Execution is one running instance of a template.
type Execution struct {
	ID            string          `json:"id"`
	TemplateID    string          `json:"template_id"`
	OwnerID       string          `json:"owner_id"`
	Status        ExecutionStatus `json:"status"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CurrentStepID string          `json:"current_step_id,omitempty"`
	Context       map[string]any  `json:"context,omitempty"`
	StepResults   []StepResult    `json:"step_results,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
}

// Clone returns a deep-enough copy for handing to callbacks and caches:
// the step result slice and the top-level context map are copied; values
// nested inside the context are shared read-only.
func (e *Execution) Clone() *Execution {
	cp := *e
	if e.StepResults != nil {
		cp.StepResults = make([]StepResult, len(e.StepResults))
		copy(cp.StepResults, e.StepResults)
	}
	if e.Context != nil {
		cp.Context = make(map[string]any, len(e.Context))
		for k, v := range e.Context {
			cp.Context[k] = v
		}
	}
	return &cp
}

// RetryPolicy configures integration retry behavior.
type RetryPolicy struct {
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts"`
	BaseDelay       time.Duration `json:"base_delay" yaml:"base_delay"`
	MaxDelay        time.Duration `json:"max_delay" yaml:"max_delay"`
	ExponentialBase float64       `json:"exponential_base" yaml:"exponential_base"`
	Jitter          bool          `json:"jitter" yaml:"jitter"`
}

// DefaultRetryPolicy mirrors the defaults used for integrations that
// register without an explicit policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		BaseDelay:       time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}
