package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepwise-engine/stepwise/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func seedExecution(t *testing.T, s *LibSQLStore, owner string) *ExecutionRecord {
	t.Helper()
	rec := &ExecutionRecord{
		ID:         uuid.NewString(),
		TemplateID: "tpl-1",
		OwnerID:    owner,
		Status:     string(schema.StatusPending),
		Context:    map[string]any{"trigger_data": map[string]any{"order_id": "o-1"}},
	}
	require.NoError(t, s.CreateExecution(context.Background(), rec))
	return rec
}

func TestCreateAndGetExecution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedExecution(t, s, "u1")

	got, err := s.GetExecution(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "tpl-1", got.TemplateID)
	assert.Equal(t, "u1", got.OwnerID)
	assert.Equal(t, string(schema.StatusPending), got.Status)
	assert.Equal(t, map[string]any{"trigger_data": map[string]any{"order_id": "o-1"}}, got.Context)
	assert.Empty(t, got.StepResults)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
}

func TestGetExecution_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetExecution(context.Background(), "nonexistent")
	require.Error(t, err)
	serr, ok := err.(*schema.StepwiseError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, serr.Code)
}

func TestUpdateExecutionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedExecution(t, s, "u1")

	started := time.Now().UTC().Truncate(time.Second)
	running := string(schema.StatusRunning)
	require.NoError(t, s.UpdateExecution(ctx, rec.ID, ExecutionUpdate{
		Status:    &running,
		StartedAt: &started,
	}))

	stepID := "notify"
	require.NoError(t, s.UpdateExecution(ctx, rec.ID, ExecutionUpdate{
		CurrentStepID: &stepID,
	}))

	results := []schema.StepResult{
		{StepID: "start", Status: schema.StepResultCompleted, StartedAt: started},
		{StepID: "notify", Status: schema.StepResultCompleted, StartedAt: started, RetryCount: 1},
	}
	completed := started.Add(time.Second)
	done := string(schema.StatusCompleted)
	cleared := ""
	require.NoError(t, s.UpdateExecution(ctx, rec.ID, ExecutionUpdate{
		Status:        &done,
		CurrentStepID: &cleared,
		StepResults:   results,
		CompletedAt:   &completed,
	}))

	got, err := s.GetExecution(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, done, got.Status)
	assert.Empty(t, got.CurrentStepID)
	require.Len(t, got.StepResults, 2)
	assert.Equal(t, "notify", got.StepResults[1].StepID)
	assert.Equal(t, 1, got.StepResults[1].RetryCount)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
}

func TestUpdateExecutionErrorMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedExecution(t, s, "u1")

	failed := string(schema.StatusFailed)
	msg := "action sms.send failed after 3 attempts: hard down"
	require.NoError(t, s.UpdateExecution(ctx, rec.ID, ExecutionUpdate{
		Status:       &failed,
		ErrorMessage: &msg,
	}))

	got, err := s.GetExecution(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, failed, got.Status)
	assert.Equal(t, msg, got.ErrorMessage)
}

func TestUpdateExecution_NotFound(t *testing.T) {
	s := newTestStore(t)
	status := "running"

	err := s.UpdateExecution(context.Background(), "nonexistent", ExecutionUpdate{Status: &status})
	require.Error(t, err)
	serr, ok := err.(*schema.StepwiseError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, serr.Code)
}

func TestUpdateExecutionEmptyUpdate(t *testing.T) {
	s := newTestStore(t)
	rec := seedExecution(t, s, "u1")

	// No fields set: a no-op, not an error.
	require.NoError(t, s.UpdateExecution(context.Background(), rec.ID, ExecutionUpdate{}))
}

func TestListExecutionsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedExecution(t, s, "alice")
	seedExecution(t, s, "alice")
	seedExecution(t, s, "bob")

	failed := string(schema.StatusFailed)
	require.NoError(t, s.UpdateExecution(ctx, a.ID, ExecutionUpdate{Status: &failed}))

	all, err := s.ListExecutions(ctx, ExecutionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	forAlice, err := s.ListExecutions(ctx, ExecutionFilter{OwnerID: "alice"})
	require.NoError(t, err)
	assert.Len(t, forAlice, 2)

	onlyFailed, err := s.ListExecutions(ctx, ExecutionFilter{Status: failed})
	require.NoError(t, err)
	require.Len(t, onlyFailed, 1)
	assert.Equal(t, a.ID, onlyFailed[0].ID)

	limited, err := s.ListExecutions(ctx, ExecutionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}
