package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusPaused.Terminal())
}

func TestFindStep(t *testing.T) {
	tpl := &WorkflowTemplate{
		Steps: []Step{
			{ID: "start", Type: StepTypeTrigger},
			{ID: "notify", Type: StepTypeAction},
		},
	}

	step := tpl.FindStep("notify")
	require.NotNil(t, step)
	assert.Equal(t, StepTypeAction, step.Type)

	assert.Nil(t, tpl.FindStep("absent"))
}

func TestExecutionClone(t *testing.T) {
	exec := &Execution{
		ID:      "exec-1",
		Status:  StatusRunning,
		Context: map[string]any{"trigger_data": map[string]any{"email": "a@b.c"}},
		StepResults: []StepResult{
			{StepID: "start", Status: StepResultCompleted},
		},
	}

	cp := exec.Clone()
	cp.Status = StatusFailed
	cp.Context["extra"] = true
	cp.StepResults[0].Status = StepResultFailed
	cp.StepResults = append(cp.StepResults, StepResult{StepID: "next"})

	assert.Equal(t, StatusRunning, exec.Status)
	assert.NotContains(t, exec.Context, "extra")
	assert.Equal(t, StepResultCompleted, exec.StepResults[0].Status)
	assert.Len(t, exec.StepResults, 1)
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.True(t, p.Jitter)
	assert.Greater(t, p.MaxDelay, p.BaseDelay)
}
