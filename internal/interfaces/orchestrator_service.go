package interfaces

import "context"

// QueueProcessor drains pending jobs into worker dispatch tasks
type QueueProcessor interface {
	// ProcessQueue claims and dispatches one batch of due jobs.
	// Returns the number of jobs it attempted to dispatch.
	ProcessQueue(ctx context.Context) (int, error)
}

// Reconciler recovers jobs whose worker responses were lost
type Reconciler interface {
	// Poll queries worker status endpoints for in-flight jobs and
	// settles any whose outcome the orchestrator missed
	Poll(ctx context.Context) error
}

