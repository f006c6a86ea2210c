package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stepwise-engine/stepwise/internal/logging"
	"github.com/stepwise-engine/stepwise/internal/store"
	"github.com/stepwise-engine/stepwise/internal/webhook"
	"github.com/stepwise-engine/stepwise/pkg/schema"
)

// Callback receives lifecycle notifications for an execution. The execution
// is a snapshot copy; callbacks may inspect it freely but mutations are lost.
type Callback func(exec *schema.Execution, event string)

// Options configures a new Engine. Zero values select reasonable defaults:
// an in-memory store, a static webhook dispatcher, the default breaker
// config and a pool of DefaultMaxConcurrent workers.
type Options struct {
	Store         store.Store
	Dispatcher    webhook.Dispatcher
	BreakerConfig CircuitBreakerConfig
	MaxConcurrent int
	Logger        *slog.Logger
}

// DefaultMaxConcurrent bounds how many executions run at once when no
// explicit limit is configured.
const DefaultMaxConcurrent = 32

// Engine is the execution supervisor. It owns the template registry, the
// integration manager and the in-memory execution index, and drives each
// started execution through its step sequence on a bounded worker pool.
type Engine struct {
	templates    *TemplateRegistry
	integrations *IntegrationManager
	executor     *stepExecutor
	store        store.Store
	journal      *journal
	pool         *WorkerPool
	logger       *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu         sync.RWMutex
	executions map[string]*schema.Execution

	cbMu      sync.RWMutex
	callbacks []Callback
}

// NewEngine wires up an Engine from the given options.
func NewEngine(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}
	if opts.BreakerConfig.FailureThreshold == 0 {
		opts.BreakerConfig = DefaultCircuitBreakerConfig()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}

	integrations := NewIntegrationManager(opts.BreakerConfig, opts.Logger)
	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		templates:    NewTemplateRegistry(),
		integrations: integrations,
		executor:     newStepExecutor(integrations, opts.Dispatcher, opts.Logger),
		store:        opts.Store,
		journal:      newJournal(opts.Store, opts.Logger),
		pool:         NewWorkerPool(opts.MaxConcurrent),
		logger:       opts.Logger,
		baseCtx:      ctx,
		cancel:       cancel,
		executions:   make(map[string]*schema.Execution),
	}
}

// Templates exposes the template registry.
func (e *Engine) Templates() *TemplateRegistry { return e.templates }

// Integrations exposes the integration manager.
func (e *Engine) Integrations() *IntegrationManager { return e.integrations }

// AddCallback registers a lifecycle notification callback. Callbacks run
// synchronously in the driving goroutine; panics are recovered and logged.
func (e *Engine) AddCallback(cb Callback) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.callbacks = append(e.callbacks, cb)
}

// Start launches a new execution of the given template and returns its id
// without waiting for any step to run. The only synchronous failure mode is
// an unknown template id.
func (e *Engine) Start(ctx context.Context, templateID, ownerID string, triggerData map[string]any) (string, error) {
	tpl, err := e.templates.Get(templateID)
	if err != nil {
		return "", err
	}

	exec := &schema.Execution{
		ID:         uuid.NewString(),
		TemplateID: templateID,
		OwnerID:    ownerID,
		Status:     schema.StatusPending,
		Context:    map[string]any{"trigger_data": triggerData},
	}

	e.mu.Lock()
	e.executions[exec.ID] = exec
	e.mu.Unlock()

	rec := store.RecordFromExecution(exec)
	e.journal.enqueue(exec.ID, "create", func(ctx context.Context, s store.Store) error {
		return s.CreateExecution(ctx, rec)
	})

	e.notify(exec.ID, schema.EventStarted)

	id := exec.ID
	if err := e.pool.Submit(ctx, func(poolCtx context.Context) error {
		return e.run(id, tpl)
	}); err != nil {
		e.failBeforeRun(id, fmt.Sprintf("submit execution: %v", err))
		return "", schema.NewErrorf(schema.ErrCodeExecution, "start execution: %v", err).WithCause(err)
	}

	return id, nil
}

// GetStatus returns a snapshot of the execution. Unknown ids are looked up
// in the store and the reconstructed execution is cached back into the
// index before returning.
func (e *Engine) GetStatus(ctx context.Context, id string) (*schema.Execution, error) {
	e.mu.RLock()
	exec, ok := e.executions[id]
	if ok {
		snapshot := exec.Clone()
		e.mu.RUnlock()
		return snapshot, nil
	}
	e.mu.RUnlock()

	rec, err := e.store.GetExecution(ctx, id)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "execution %q not found", id)
	}
	restored := rec.Execution()

	e.mu.Lock()
	// Another goroutine may have raced the reconstruction.
	if existing, ok := e.executions[id]; ok {
		restored = existing
	} else {
		e.executions[id] = restored
	}
	snapshot := restored.Clone()
	e.mu.Unlock()
	return snapshot, nil
}

// ListExecutions returns snapshots of all known executions for an owner,
// newest first by store order for persisted ones.
func (e *Engine) ListExecutions(ctx context.Context, ownerID string) ([]*schema.Execution, error) {
	recs, err := e.store.ListExecutions(ctx, store.ExecutionFilter{OwnerID: ownerID})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list executions: %v", err).WithCause(err)
	}

	seen := make(map[string]bool, len(recs))
	var out []*schema.Execution

	// In-memory entries win over their persisted counterparts since the
	// journal may still be catching up.
	e.mu.RLock()
	for _, rec := range recs {
		if exec, ok := e.executions[rec.ID]; ok {
			out = append(out, exec.Clone())
		} else {
			out = append(out, rec.Execution())
		}
		seen[rec.ID] = true
	}
	for id, exec := range e.executions {
		if !seen[id] && exec.OwnerID == ownerID {
			out = append(out, exec.Clone())
		}
	}
	e.mu.RUnlock()

	return out, nil
}

// Shutdown stops accepting new executions, waits for in-flight ones to
// finish and drains the persistence journal.
func (e *Engine) Shutdown() {
	e.pool.Shutdown()
	e.cancel()
	e.journal.Wait()
}

// run drives one execution from Pending to a terminal status. It is the
// only goroutine that mutates the execution after Start, so all writes go
// through mutate to stay visible to concurrent GetStatus readers.
func (e *Engine) run(id string, tpl *schema.WorkflowTemplate) (runErr error) {
	ctx := logging.WithExecutionID(e.baseCtx, id)
	log := logging.LogWith(ctx, e.logger)

	defer func() {
		if r := recover(); r != nil {
			log.Error("execution panicked", "panic", r)
			e.finalize(id, schema.StatusFailed, fmt.Sprintf("internal error: %v", r))
			runErr = fmt.Errorf("execution %s panicked: %v", id, r)
		}
	}()

	now := time.Now().UTC()
	e.mutate(id, func(exec *schema.Execution) {
		exec.Status = schema.StatusRunning
		exec.StartedAt = &now
	})
	e.persistUpdate(id, "running", store.ExecutionUpdate{
		Status:    strPtr(string(schema.StatusRunning)),
		StartedAt: &now,
	})
	e.notify(id, schema.EventRunning)
	log.Info("execution running", "template_id", tpl.ID)

	failed := false
	errorMessage := ""

	step := firstStep(tpl)
	for step != nil {
		stepCtx := logging.WithStepID(ctx, step.ID)

		e.mutate(id, func(exec *schema.Execution) {
			exec.CurrentStepID = step.ID
		})
		e.persistUpdate(id, "current_step", store.ExecutionUpdate{
			CurrentStepID: strPtr(step.ID),
		})

		execCtx := e.contextSnapshot(id)
		result := e.executor.executeStep(stepCtx, step, execCtx)

		var results []schema.StepResult
		e.mutate(id, func(exec *schema.Execution) {
			exec.StepResults = append(exec.StepResults, result)
			results = append(results[:0:0], exec.StepResults...)
		})
		e.persistUpdate(id, "step_result", store.ExecutionUpdate{
			StepResults: results,
		})

		if result.Status == schema.StepResultFailed {
			failed = true
			errorMessage = result.Error
			logging.LogWith(stepCtx, e.logger).Warn("step failed", "error", result.Error)
			break
		}

		step = nextStep(tpl, step)
	}

	if failed {
		e.finalize(id, schema.StatusFailed, errorMessage)
		log.Warn("execution failed", "error", errorMessage)
		return fmt.Errorf("execution %s failed: %s", id, errorMessage)
	}
	e.finalize(id, schema.StatusCompleted, "")
	log.Info("execution completed")
	return nil
}

// finalize applies the terminal status, clears the current step, emits the
// terminal notification and closes the execution's journal queue.
func (e *Engine) finalize(id string, status schema.ExecutionStatus, errorMessage string) {
	now := time.Now().UTC()
	e.mutate(id, func(exec *schema.Execution) {
		if exec.Status.Terminal() {
			return
		}
		exec.Status = status
		exec.CompletedAt = &now
		exec.CurrentStepID = ""
		exec.ErrorMessage = errorMessage
	})
	e.persistUpdate(id, "finalize", store.ExecutionUpdate{
		Status:        strPtr(string(status)),
		CurrentStepID: strPtr(""),
		ErrorMessage:  &errorMessage,
		CompletedAt:   &now,
	})

	if status == schema.StatusCompleted {
		e.notify(id, schema.EventCompleted)
	} else {
		e.notify(id, schema.EventFailed)
	}
	e.journal.finish(id)
}

// failBeforeRun marks an execution Failed when its unit of work never got
// scheduled.
func (e *Engine) failBeforeRun(id, errorMessage string) {
	e.finalize(id, schema.StatusFailed, errorMessage)
}

func (e *Engine) mutate(id string, fn func(exec *schema.Execution)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if exec, ok := e.executions[id]; ok {
		fn(exec)
	}
}

func (e *Engine) contextSnapshot(id string) map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if exec, ok := e.executions[id]; ok {
		return exec.Context
	}
	return nil
}

func (e *Engine) persistUpdate(id, name string, update store.ExecutionUpdate) {
	e.journal.enqueue(id, name, func(ctx context.Context, s store.Store) error {
		return s.UpdateExecution(ctx, id, update)
	})
}

func (e *Engine) notify(id, event string) {
	e.mu.RLock()
	exec, ok := e.executions[id]
	var snapshot *schema.Execution
	if ok {
		snapshot = exec.Clone()
	}
	e.mu.RUnlock()
	if snapshot == nil {
		return
	}

	e.cbMu.RLock()
	callbacks := append([]Callback(nil), e.callbacks...)
	e.cbMu.RUnlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("notification callback panicked",
						"execution_id", id, "event", event, "panic", r)
				}
			}()
			cb(snapshot, event)
		}()
	}
}

// firstStep returns the entry step of a template, nil when it has none.
func firstStep(tpl *schema.WorkflowTemplate) *schema.Step {
	if len(tpl.Steps) == 0 {
		return nil
	}
	return &tpl.Steps[0]
}

// nextStep picks the successor of the given step. An explicit next_steps
// entry wins; an unknown id there ends the run. Otherwise the next step in
// sequence order follows.
func nextStep(tpl *schema.WorkflowTemplate, current *schema.Step) *schema.Step {
	if len(current.NextSteps) > 0 {
		return tpl.FindStep(current.NextSteps[0])
	}
	for i := range tpl.Steps {
		if tpl.Steps[i].ID == current.ID {
			if i+1 < len(tpl.Steps) {
				return &tpl.Steps[i+1]
			}
			return nil
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }
