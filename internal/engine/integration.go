package engine

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/stepwise-engine/stepwise/pkg/schema"
)

// Handler is the integration handler contract: invoked with an action name
// and resolved params, returning a result mapping or an error.
type Handler func(ctx context.Context, action string, params map[string]any) (map[string]any, error)

// InvocationResult is the outcome of a retrying integration call.
type InvocationResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	// Attempts is the attempt that succeeded, or max_attempts on failure.
	Attempts int `json:"attempts"`
}

// integration bundles a handler with its retry policy, breaker, and stats.
// The stats counters are guarded by mu since multiple executions may call
// the same integration concurrently.
type integration struct {
	mu           sync.Mutex
	handler      Handler
	policy       schema.RetryPolicy
	breaker      *CircuitBreaker
	successCount int64
	errorCount   int64
	lastUsed     *time.Time
}

// IntegrationManager registers integration handlers and exposes retrying,
// fault-isolated invocation.
type IntegrationManager struct {
	mu            sync.RWMutex
	integrations  map[string]*integration
	breakerConfig CircuitBreakerConfig
	logger        *slog.Logger
}

// NewIntegrationManager creates an empty manager. Breakers for registered
// integrations are created with the given config.
func NewIntegrationManager(breakerConfig CircuitBreakerConfig, logger *slog.Logger) *IntegrationManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntegrationManager{
		integrations:  make(map[string]*integration),
		breakerConfig: breakerConfig,
		logger:        logger,
	}
}

// Register stores a handler and retry policy under name with a fresh circuit
// breaker. Re-registering replaces the handler, policy, and breaker, and
// resets the stats.
func (m *IntegrationManager) Register(name string, handler Handler, policy schema.RetryPolicy) {
	if policy.MaxAttempts < 1 {
		policy = schema.DefaultRetryPolicy()
	}

	m.mu.Lock()
	m.integrations[name] = &integration{
		handler: handler,
		policy:  policy,
		breaker: NewCircuitBreaker(name, m.breakerConfig),
	}
	m.mu.Unlock()

	m.logger.Info("registered integration", slog.String("integration", name))
}

// Registered reports whether an integration with the given name exists.
func (m *IntegrationManager) Registered(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.integrations[name]
	return ok
}

// ExecuteWithRetry invokes the named integration's handler through its
// circuit breaker, retrying per the registered policy. A breaker rejection
// counts as a failed attempt and is subject to the same backoff; it never
// shortens the attempt budget. The inter-attempt sleep blocks only the
// calling goroutine.
func (m *IntegrationManager) ExecuteWithRetry(ctx context.Context, name, action string, params map[string]any) (*InvocationResult, error) {
	m.mu.RLock()
	integ, ok := m.integrations[name]
	m.mu.RUnlock()
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeIntegrationNotRegistered,
			"integration %q not registered", name)
	}

	policy := integ.policy
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		data, err := m.callThroughBreaker(ctx, integ, action, params)
		if err == nil {
			now := time.Now()
			integ.mu.Lock()
			integ.successCount++
			integ.lastUsed = &now
			integ.mu.Unlock()
			return &InvocationResult{Success: true, Data: data, Attempts: attempt}, nil
		}

		lastErr = err
		integ.mu.Lock()
		integ.errorCount++
		integ.mu.Unlock()

		if attempt == policy.MaxAttempts {
			m.logger.Error("integration failed after all attempts",
				slog.String("integration", name),
				slog.String("action", action),
				slog.Int("attempts", policy.MaxAttempts),
				slog.String("error", err.Error()),
			)
			break
		}

		delay := backoffDelay(policy, attempt)
		m.logger.Warn("integration attempt failed, retrying",
			slog.String("integration", name),
			slog.String("action", action),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if err := sleepCtx(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	return &InvocationResult{
		Success:  false,
		Error:    lastErr.Error(),
		Attempts: policy.MaxAttempts,
	}, nil
}

// callThroughBreaker runs one handler invocation guarded by the breaker.
// Breaker rejections return the CIRCUIT_OPEN error without invoking the
// handler and without touching the breaker's failure counter.
func (m *IntegrationManager) callThroughBreaker(ctx context.Context, integ *integration, action string, params map[string]any) (map[string]any, error) {
	if err := integ.breaker.Allow(); err != nil {
		return nil, err
	}

	data, err := integ.handler(ctx, action, params)
	if err != nil {
		if integ.breaker.RecordFailure() == CircuitOpen {
			m.logger.Warn("circuit breaker opened", slog.String("integration", integ.breaker.name))
		}
		return nil, err
	}

	integ.breaker.RecordSuccess()
	return data, nil
}

// Stats returns a snapshot of the named integration's counters and breaker
// state, or nil if the integration is unknown.
func (m *IntegrationManager) Stats(name string) map[string]any {
	m.mu.RLock()
	integ, ok := m.integrations[name]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	integ.mu.Lock()
	stats := map[string]any{
		"integration":   name,
		"success_count": integ.successCount,
		"error_count":   integ.errorCount,
	}
	if integ.lastUsed != nil {
		stats["last_used"] = integ.lastUsed.Format(time.RFC3339)
	}
	integ.mu.Unlock()

	stats["circuit"] = integ.breaker.Stats()
	return stats
}

// backoffDelay computes min(base × exp^(attempt-1), max), optionally scaled
// by a uniform jitter factor in [0.5, 1.0).
func backoffDelay(policy schema.RetryPolicy, attempt int) time.Duration {
	base := policy.ExponentialBase
	if base <= 0 {
		base = 2.0
	}
	delay := time.Duration(float64(policy.BaseDelay) * math.Pow(base, float64(attempt-1)))
	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	if policy.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
	}
	return delay
}

// sleepCtx sleeps for d or returns early if the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
