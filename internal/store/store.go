package store

import "context"

// Store defines the persistence contract for execution records. From the
// engine's perspective every write is best-effort: errors are logged by the
// caller and never fail an execution. All implementations must be safe for
// concurrent use.
type Store interface {
	CreateExecution(ctx context.Context, rec *ExecutionRecord) error
	UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error
	// GetExecution returns a typed NOT_FOUND error when the id is unknown.
	GetExecution(ctx context.Context, id string) (*ExecutionRecord, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*ExecutionRecord, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
