package schema

// Notification events emitted by the execution supervisor.
const (
	EventStarted   = "started"
	EventRunning   = "running"
	EventCompleted = "completed"
	EventFailed    = "failed"
)
