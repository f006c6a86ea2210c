package integrations

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepwise-engine/stepwise/pkg/schema"
)

func TestTransformerSingleOutput(t *testing.T) {
	handler := NewTransformer().Handler()

	out, err := handler(context.Background(), "apply", map[string]any{
		"query": "{name: .user.name, total: (.amount * 2)}",
		"input": map[string]any{
			"user":   map[string]any{"name": "ada"},
			"amount": 21,
		},
	})
	require.NoError(t, err)

	result, ok := out["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ada", result["name"])
	assert.Equal(t, 42, result["total"])
}

func TestTransformerMultipleOutputs(t *testing.T) {
	handler := NewTransformer().Handler()

	out, err := handler(context.Background(), "apply", map[string]any{
		"query": ".items[].id",
		"input": map[string]any{
			"items": []any{
				map[string]any{"id": "a"},
				map[string]any{"id": "b"},
				map[string]any{"id": "c"},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, out["result"])
}

func TestTransformerNoOutput(t *testing.T) {
	handler := NewTransformer().Handler()

	out, err := handler(context.Background(), "apply", map[string]any{
		"query": ".items[]",
		"input": map[string]any{"items": []any{}},
	})
	require.NoError(t, err)
	assert.Nil(t, out["result"])
}

func TestTransformerNilInput(t *testing.T) {
	handler := NewTransformer().Handler()

	out, err := handler(context.Background(), "apply", map[string]any{
		"query": ".missing",
	})
	require.NoError(t, err)
	assert.Nil(t, out["result"])
}

func TestTransformerParseError(t *testing.T) {
	handler := NewTransformer().Handler()

	_, err := handler(context.Background(), "apply", map[string]any{
		"query": ".items[",
		"input": map[string]any{},
	})
	var swErr *schema.StepwiseError
	require.ErrorAs(t, err, &swErr)
	assert.Equal(t, schema.ErrCodeValidation, swErr.Code)
	assert.Equal(t, ".items[", swErr.Details["query"])
}

func TestTransformerEvaluationError(t *testing.T) {
	handler := NewTransformer().Handler()

	_, err := handler(context.Background(), "apply", map[string]any{
		"query": ".name | ascii_downcase",
		"input": map[string]any{"name": 42},
	})
	var swErr *schema.StepwiseError
	require.ErrorAs(t, err, &swErr)
	assert.Equal(t, schema.ErrCodeExecution, swErr.Code)
}

func TestTransformerMissingQuery(t *testing.T) {
	handler := NewTransformer().Handler()

	_, err := handler(context.Background(), "apply", map[string]any{
		"input": map[string]any{"a": 1},
	})
	var swErr *schema.StepwiseError
	require.ErrorAs(t, err, &swErr)
	assert.Equal(t, schema.ErrCodeValidation, swErr.Code)
}

func TestTransformerUnsupportedAction(t *testing.T) {
	handler := NewTransformer().Handler()

	_, err := handler(context.Background(), "map", map[string]any{"query": "."})
	var swErr *schema.StepwiseError
	require.ErrorAs(t, err, &swErr)
	assert.Equal(t, schema.ErrCodeValidation, swErr.Code)
}

func TestTransformerEnvBlocked(t *testing.T) {
	t.Setenv("TRANSFORM_SECRET", "hunter2")
	handler := NewTransformer().Handler()

	out, err := handler(context.Background(), "apply", map[string]any{
		"query": "$ENV.TRANSFORM_SECRET",
		"input": map[string]any{},
	})
	require.NoError(t, err)
	assert.Nil(t, out["result"])
}

func TestTransformerCacheReuse(t *testing.T) {
	tr := NewTransformer()
	handler := tr.Handler()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := handler(context.Background(), "apply", map[string]any{
				"query": ".n + 1",
				"input": map[string]any{"n": 1},
			})
			assert.NoError(t, err)
			assert.Equal(t, 2, out["result"])
		}()
	}
	wg.Wait()

	tr.mu.RLock()
	defer tr.mu.RUnlock()
	assert.Len(t, tr.cache, 1)
}
