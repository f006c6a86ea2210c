package integrations

import (
	"context"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/stepwise-engine/stepwise/internal/engine"
	"github.com/stepwise-engine/stepwise/pkg/schema"
)

// Transformer is a jq-backed data reshaping integration. The "apply" action
// takes a "query" jq expression and an "input" object, runs the query and
// returns the outputs. Compiled *gojq.Code objects are cached and reused
// across goroutines.
type Transformer struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewTransformer creates a Transformer with an empty program cache.
func NewTransformer() *Transformer {
	return &Transformer{cache: make(map[string]*gojq.Code)}
}

// Handler adapts the Transformer to the integration Handler contract.
func (t *Transformer) Handler() engine.Handler {
	return func(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
		if action != "apply" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "transform: unsupported action %q", action)
		}
		query, _ := params["query"].(string)
		if query == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "transform: missing param \"query\"")
		}
		input, _ := params["input"].(map[string]any)

		result, err := t.apply(ctx, query, input)
		if err != nil {
			return nil, err
		}
		return map[string]any{"result": result}, nil
	}
}

// apply compiles (or retrieves from cache) the jq query and evaluates it
// against the input. A single output is returned directly; multiple outputs
// are collected into a slice.
func (t *Transformer) apply(ctx context.Context, query string, input map[string]any) (any, error) {
	code, err := t.getOrCompile(query)
	if err != nil {
		return nil, err
	}

	var in any = input
	if input == nil {
		in = map[string]any{}
	}
	iter := code.RunWithContext(ctx, in)

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"transform: jq evaluation failed for %q: %s", query, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"query": query})
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

func (t *Transformer) getOrCompile(query string) (*gojq.Code, error) {
	t.mu.RLock()
	if code, ok := t.cache[query]; ok {
		t.mu.RUnlock()
		return code, nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring write lock.
	if code, ok := t.cache[query]; ok {
		return code, nil
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"transform: jq parse error in %q: %s", query, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"query": query})
	}

	code, err := gojq.Compile(parsed,
		// Sandbox: return empty env to block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"transform: jq compile error in %q: %s", query, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"query": query})
	}

	t.cache[query] = code
	return code, nil
}
