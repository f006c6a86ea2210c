package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepwise-engine/stepwise/pkg/schema"
)

func newRecord(id, owner string) *ExecutionRecord {
	return &ExecutionRecord{
		ID:         id,
		TemplateID: "tpl-1",
		OwnerID:    owner,
		Status:     string(schema.StatusPending),
		Context:    map[string]any{"trigger_data": map[string]any{"k": "v"}},
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateExecution(ctx, newRecord("e1", "u1")))

	rec, err := s.GetExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "tpl-1", rec.TemplateID)
	assert.Equal(t, "u1", rec.OwnerID)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestMemoryStoreGetUnknown(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.GetExecution(context.Background(), "nope")
	require.Error(t, err)
	var serr *schema.StepwiseError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, schema.ErrCodeNotFound, serr.Code)
}

func TestMemoryStoreUpdate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateExecution(ctx, newRecord("e1", "u1")))

	status := string(schema.StatusCompleted)
	stepID := ""
	now := time.Now().UTC()
	require.NoError(t, s.UpdateExecution(ctx, "e1", ExecutionUpdate{
		Status:        &status,
		CurrentStepID: &stepID,
		StepResults:   []schema.StepResult{{StepID: "a", Status: schema.StepResultCompleted}},
		CompletedAt:   &now,
	}))

	rec, err := s.GetExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, status, rec.Status)
	assert.Empty(t, rec.CurrentStepID)
	require.Len(t, rec.StepResults, 1)
	require.NotNil(t, rec.CompletedAt)
}

func TestMemoryStoreUpdatePartial(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := newRecord("e1", "u1")
	rec.CurrentStepID = "step-2"
	require.NoError(t, s.CreateExecution(ctx, rec))

	status := string(schema.StatusRunning)
	require.NoError(t, s.UpdateExecution(ctx, "e1", ExecutionUpdate{Status: &status}))

	got, err := s.GetExecution(ctx, "e1")
	require.NoError(t, err)
	// Fields not named in the update are untouched.
	assert.Equal(t, "step-2", got.CurrentStepID)
	assert.Equal(t, status, got.Status)
}

func TestMemoryStoreUpdateUnknown(t *testing.T) {
	s := NewMemoryStore()
	status := "running"

	err := s.UpdateExecution(context.Background(), "nope", ExecutionUpdate{Status: &status})
	assert.Error(t, err)
}

func TestMemoryStoreList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateExecution(ctx, newRecord("e1", "alice")))
	require.NoError(t, s.CreateExecution(ctx, newRecord("e2", "bob")))
	require.NoError(t, s.CreateExecution(ctx, newRecord("e3", "alice")))

	all, err := s.ListExecutions(ctx, ExecutionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, "e3", all[0].ID)

	forAlice, err := s.ListExecutions(ctx, ExecutionFilter{OwnerID: "alice"})
	require.NoError(t, err)
	assert.Len(t, forAlice, 2)

	limited, err := s.ListExecutions(ctx, ExecutionFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryStoreCopiesRecords(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := newRecord("e1", "u1")
	require.NoError(t, s.CreateExecution(ctx, rec))

	// Mutating the caller's record must not affect the stored copy.
	rec.Status = "mangled"
	rec.Context["injected"] = true

	got, err := s.GetExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, string(schema.StatusPending), got.Status)
	assert.NotContains(t, got.Context, "injected")

	// And mutating a returned record must not affect later reads.
	got.Status = "mangled"
	again, err := s.GetExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, string(schema.StatusPending), again.Status)
}

func TestRecordRoundTrip(t *testing.T) {
	started := time.Now().UTC()
	exec := &schema.Execution{
		ID:          "e1",
		TemplateID:  "tpl",
		OwnerID:     "u1",
		Status:      schema.StatusRunning,
		StartedAt:   &started,
		Context:     map[string]any{"trigger_data": map[string]any{}},
		StepResults: []schema.StepResult{{StepID: "a", Status: schema.StepResultCompleted}},
	}

	back := RecordFromExecution(exec).Execution()
	assert.Equal(t, exec.ID, back.ID)
	assert.Equal(t, exec.Status, back.Status)
	assert.Equal(t, exec.StartedAt, back.StartedAt)
	assert.Len(t, back.StepResults, 1)
}
