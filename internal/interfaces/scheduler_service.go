package interfaces

import "time"

// TaskStatus represents the current status of a scheduled task
type TaskStatus struct {
	Name        string     `json:"name"`
	Enabled     bool       `json:"enabled"`
	Schedule    string     `json:"schedule"`
	Description string     `json:"description"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	IsRunning   bool       `json:"is_running"`
	LastError   string     `json:"last_error,omitempty"`
	RunCount    int64      `json:"run_count"`
}

// SchedulerService manages cron-based scheduling of orchestrator tasks
type SchedulerService interface {
	// Start the scheduler
	Start() error

	// Stop the scheduler
	Stop() error

	// IsRunning returns true if scheduler is active
	IsRunning() bool

	// RegisterTask registers a new task with the scheduler
	RegisterTask(name, schedule, description string, handler func() error) error

	// TriggerTask manually runs a registered task
	TriggerTask(name string) error

	// EnableTask enables a disabled task
	EnableTask(name string) error

	// DisableTask disables an enabled task
	DisableTask(name string) error

	// GetTaskStatus returns the status of a specific task
	GetTaskStatus(name string) (*TaskStatus, error)

	// GetAllTaskStatuses returns all task statuses
	GetAllTaskStatuses() map[string]*TaskStatus

	// Reset stops the scheduler, rebuilds tasks from config, and restarts
	Reset() error
}
