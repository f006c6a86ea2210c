package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stepwise-engine/stepwise/internal/expressions"
	"github.com/stepwise-engine/stepwise/internal/webhook"
	"github.com/stepwise-engine/stepwise/pkg/schema"
)

// stepExecutor dispatches a single step by type, using the variable
// resolver and the integration manager.
type stepExecutor struct {
	integrations *IntegrationManager
	conditions   *expressions.ConditionEvaluator
	dispatcher   webhook.Dispatcher
	logger       *slog.Logger
}

func newStepExecutor(integrations *IntegrationManager, dispatcher webhook.Dispatcher, logger *slog.Logger) *stepExecutor {
	if dispatcher == nil {
		dispatcher = webhook.NewStaticDispatcher()
	}
	return &stepExecutor{
		integrations: integrations,
		conditions:   expressions.NewConditionEvaluator(),
		dispatcher:   dispatcher,
		logger:       logger,
	}
}

// executeStep runs one step against the execution context, timing it and
// converting any handler error or panic into a failed StepResult.
func (x *stepExecutor) executeStep(ctx context.Context, step *schema.Step, execCtx map[string]any) (result schema.StepResult) {
	result = schema.StepResult{
		StepID:    step.ID,
		Status:    schema.StepResultRunning,
		StartedAt: time.Now().UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			now := time.Now().UTC()
			result.Status = schema.StepResultFailed
			result.Error = fmt.Sprintf("step handler panic: %v", r)
			result.CompletedAt = &now
			x.logger.Error("step panicked",
				slog.String("step_id", step.ID),
				slog.Any("panic", r),
			)
		}
	}()

	var output map[string]any
	var err error

	switch step.Type {
	case schema.StepTypeTrigger:
		output = x.handleTrigger(step, execCtx)
	case schema.StepTypeAction:
		var attempts int
		output, attempts, err = x.handleAction(ctx, step, execCtx)
		if attempts > 0 {
			result.RetryCount = attempts - 1
		}
	case schema.StepTypeDelay:
		output, err = x.handleDelay(ctx, step)
	case schema.StepTypeCondition:
		output, err = x.handleCondition(ctx, step, execCtx)
	case schema.StepTypeWebhook:
		output, err = x.handleWebhook(ctx, step, execCtx)
	default:
		err = schema.NewErrorf(schema.ErrCodeUnknownStepType,
			"unknown step type: %q", step.Type).WithStep(step.ID)
	}

	now := time.Now().UTC()
	result.CompletedAt = &now
	if err != nil {
		result.Status = schema.StepResultFailed
		result.Error = err.Error()
		x.logger.Error("step failed",
			slog.String("step_id", step.ID),
			slog.String("type", string(step.Type)),
			slog.String("error", err.Error()),
		)
		return result
	}

	result.Status = schema.StepResultCompleted
	result.Output = output
	return result
}

// handleTrigger surfaces the trigger event and the seeded trigger data.
// Never fails.
func (x *stepExecutor) handleTrigger(step *schema.Step, execCtx map[string]any) map[string]any {
	event := stringConfig(step.Config, "event", "manual")
	triggerData, _ := execCtx["trigger_data"].(map[string]any)

	x.logger.Info("processing trigger", slog.String("event", event))

	return map[string]any{
		"event":     event,
		"data":      triggerData,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}

// handleAction resolves params against the execution context and invokes
// the integration through the retrying manager. The second return is the
// attempt count reported by the integration manager.
func (x *stepExecutor) handleAction(ctx context.Context, step *schema.Step, execCtx map[string]any) (map[string]any, int, error) {
	service := stringConfig(step.Config, "service", "")
	if service == "" {
		return nil, 0, schema.NewError(schema.ErrCodeMissingService,
			"action step must specify a service").WithStep(step.ID)
	}
	action := stringConfig(step.Config, "action", "send")

	params, _ := step.Config["params"].(map[string]any)
	resolved, _ := expressions.Resolve(params, execCtx).(map[string]any)

	x.logger.Info("executing action",
		slog.String("service", service),
		slog.String("action", action),
	)

	result, err := x.integrations.ExecuteWithRetry(ctx, service, action, resolved)
	if err != nil {
		return nil, 0, err
	}
	if !result.Success {
		return nil, result.Attempts, schema.NewErrorf(schema.ErrCodeStepFailed,
			"action %s.%s failed after %d attempts: %s",
			service, action, result.Attempts, result.Error).WithStep(step.ID)
	}

	return result.Data, result.Attempts, nil
}

// handleDelay suspends only this execution's goroutine.
func (x *stepExecutor) handleDelay(ctx context.Context, step *schema.Step) (map[string]any, error) {
	seconds := floatConfig(step.Config, "seconds", 0)
	minutes := floatConfig(step.Config, "minutes", 0)
	hours := floatConfig(step.Config, "hours", 0)

	total := seconds + minutes*60 + hours*3600
	wait := time.Duration(total * float64(time.Second))

	if wait > 0 {
		x.logger.Info("delaying execution", slog.Duration("wait", wait))
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
	}

	return map[string]any{
		"delay_seconds": total,
		"delayed_until": time.Now().UTC().Add(wait).Format(time.RFC3339),
	}, nil
}

// handleCondition evaluates the restricted condition grammar. Only numeric
// parse errors fail the step; unrecognized conditions evaluate to true.
func (x *stepExecutor) handleCondition(ctx context.Context, step *schema.Step, execCtx map[string]any) (map[string]any, error) {
	condition := stringConfig(step.Config, "condition", "true")

	result, err := x.conditions.Evaluate(ctx, condition, execCtx)
	if err != nil {
		return nil, err
	}

	x.logger.Info("condition evaluated",
		slog.String("condition", condition),
		slog.Bool("result", result),
	)

	return map[string]any{
		"condition":       condition,
		"result":          result,
		"evaluation_time": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// handleWebhook resolves the payload, builds the request descriptor, and
// delegates the transport to the dispatcher.
func (x *stepExecutor) handleWebhook(ctx context.Context, step *schema.Step, execCtx map[string]any) (map[string]any, error) {
	url := stringConfig(step.Config, "url", "")
	if url == "" {
		return nil, schema.NewError(schema.ErrCodeValidation,
			"webhook step must specify a url").WithStep(step.ID)
	}
	method := stringConfig(step.Config, "method", "POST")

	payload, _ := step.Config["payload"].(map[string]any)
	resolved, _ := expressions.Resolve(payload, execCtx).(map[string]any)

	x.logger.Info("webhook call", slog.String("method", method), slog.String("url", url))

	resp, err := x.dispatcher.Dispatch(ctx, webhook.Request{
		URL:     url,
		Method:  method,
		Payload: resolved,
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"webhook %s %s: %s", method, url, err.Error()).WithStep(step.ID).WithCause(err)
	}

	return map[string]any{
		"url":         url,
		"method":      method,
		"payload":     resolved,
		"status_code": resp.StatusCode,
		"response":    resp.Body,
	}, nil
}

// --- Config param helpers ---

func stringConfig(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return defaultVal
	}
	return s
}

func floatConfig(m map[string]any, key string, defaultVal float64) float64 {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return defaultVal
	}
}
