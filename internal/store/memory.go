package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used for tests and for running the engine
// without a database file. Records are deep-copied on the way in and out so
// callers never share mutable state with the store.
type MemoryStore struct {
	mu         sync.RWMutex
	executions map[string]*ExecutionRecord
	order      []string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{executions: make(map[string]*ExecutionRecord)}
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateExecution(ctx context.Context, rec *ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := copyRecord(rec)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = cp.CreatedAt
	s.executions[cp.ID] = cp
	s.order = append(s.order, cp.ID)
	return nil
}

func (s *MemoryStore) GetExecution(ctx context.Context, id string) (*ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.executions[id]
	if !ok {
		return nil, storeNotFound("execution", id)
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.executions[id]
	if !ok {
		return storeNotFound("execution", id)
	}
	if update.Status != nil {
		rec.Status = *update.Status
	}
	if update.CurrentStepID != nil {
		rec.CurrentStepID = *update.CurrentStepID
	}
	if update.Context != nil {
		rec.Context = copyMap(update.Context)
	}
	if update.StepResults != nil {
		rec.StepResults = append(rec.StepResults[:0:0], update.StepResults...)
	}
	if update.ErrorMessage != nil {
		rec.ErrorMessage = *update.ErrorMessage
	}
	if update.StartedAt != nil {
		t := *update.StartedAt
		rec.StartedAt = &t
	}
	if update.CompletedAt != nil {
		t := *update.CompletedAt
		rec.CompletedAt = &t
	}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*ExecutionRecord
	// Newest first, matching the SQL store's ORDER BY created_at DESC.
	for i := len(s.order) - 1; i >= 0; i-- {
		rec, ok := s.executions[s.order[i]]
		if !ok {
			continue
		}
		if filter.OwnerID != "" && rec.OwnerID != filter.OwnerID {
			continue
		}
		if filter.TemplateID != "" && rec.TemplateID != filter.TemplateID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		records = append(records, copyRecord(rec))
		if filter.Limit > 0 && len(records) >= filter.Limit {
			break
		}
	}
	return records, nil
}

func copyRecord(rec *ExecutionRecord) *ExecutionRecord {
	cp := *rec
	cp.Context = copyMap(rec.Context)
	cp.StepResults = append(rec.StepResults[:0:0], rec.StepResults...)
	if rec.StartedAt != nil {
		t := *rec.StartedAt
		cp.StartedAt = &t
	}
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			cp[k] = copyMap(nested)
			continue
		}
		cp[k] = v
	}
	return cp
}
