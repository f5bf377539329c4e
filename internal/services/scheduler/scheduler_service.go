// -----------------------------------------------------------------------
// Scheduler service - cron-backed periodic task runner
// -----------------------------------------------------------------------

package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fibreflow/internal/common"
	"github.com/ternarybob/fibreflow/internal/interfaces"
)

// taskEntry is one registered periodic task.
type taskEntry struct {
	name        string
	schedule    string
	description string
	handler     func() error
	enabled     bool
	cronID      cron.EntryID
	lastRun     *time.Time
	isRunning   bool
	lastError   string
	runCount    int64
}

// Service drives registered tasks off a shared cron runner. Each task
// runs at most one instance at a time: a tick that fires while the
// previous run is still in flight is skipped, not queued.
type Service struct {
	cron    *cron.Cron
	logger  arbor.ILogger
	mu      sync.Mutex
	tasks   map[string]*taskEntry
	order   []string
	running bool
}

// NewService creates a stopped scheduler. Tasks are registered by the
// application during wiring and the runner is started once afterwards.
func NewService(logger arbor.ILogger) interfaces.SchedulerService {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Service{
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
		tasks:  make(map[string]*taskEntry),
	}
}

// EverySchedule renders a fixed-interval cron expression.
func EverySchedule(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

// DailyAtHour renders a cron expression that fires once a day at the
// given hour, on the hour.
func DailyAtHour(hour int) string {
	return fmt.Sprintf("0 0 %d * * *", hour)
}

// Start begins firing registered tasks on their schedules.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Int("tasks", len(s.tasks)).Msg("Scheduler started")
	return nil
}

// Stop halts the cron runner. Tasks already executing finish on their
// own; no new ticks fire after Stop returns.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cron.Stop()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning reports whether the cron runner is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RegisterTask adds a named task to the runner. The schedule accepts
// six-field cron expressions (seconds first) and "@every <duration>"
// forms. Registration can happen before or after Start.
func (s *Service) RegisterTask(name, schedule, description string, handler func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return fmt.Errorf("task name is required")
	}
	if handler == nil {
		return fmt.Errorf("task %s has no handler", name)
	}
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task %s already registered", name)
	}

	entry := &taskEntry{
		name:        name,
		schedule:    schedule,
		description: description,
		handler:     handler,
		enabled:     true,
	}

	taskName := name
	cronID, err := s.cron.AddFunc(schedule, func() { s.executeTask(taskName) })
	if err != nil {
		return fmt.Errorf("failed to schedule task %s: %w", name, err)
	}
	entry.cronID = cronID

	s.tasks[name] = entry
	s.order = append(s.order, name)

	s.logger.Info().
		Str("task", name).
		Str("schedule", schedule).
		Msg("Scheduled task registered")
	return nil
}

// TriggerTask runs a task immediately, outside its schedule. A task
// that is currently executing cannot be triggered again.
func (s *Service) TriggerTask(name string) error {
	s.mu.Lock()
	entry, exists := s.tasks[name]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("task %s not found", name)
	}
	if entry.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("task %s is already running", name)
	}
	s.mu.Unlock()

	s.logger.Info().Str("task", name).Msg("Task triggered manually")
	go s.executeTask(name)
	return nil
}

// EnableTask resumes scheduled execution of a disabled task.
func (s *Service) EnableTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.tasks[name]
	if !exists {
		return fmt.Errorf("task %s not found", name)
	}
	if entry.enabled {
		return nil
	}

	taskName := name
	cronID, err := s.cron.AddFunc(entry.schedule, func() { s.executeTask(taskName) })
	if err != nil {
		return fmt.Errorf("failed to reschedule task %s: %w", name, err)
	}
	entry.cronID = cronID
	entry.enabled = true

	s.logger.Info().Str("task", name).Msg("Task enabled")
	return nil
}

// DisableTask removes a task from the schedule without forgetting its
// registration. A run already in flight completes normally.
func (s *Service) DisableTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.tasks[name]
	if !exists {
		return fmt.Errorf("task %s not found", name)
	}
	if !entry.enabled {
		return nil
	}

	s.cron.Remove(entry.cronID)
	entry.enabled = false

	s.logger.Info().Str("task", name).Msg("Task disabled")
	return nil
}

// GetTaskStatus returns the current state of one task.
func (s *Service) GetTaskStatus(name string) (*interfaces.TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.tasks[name]
	if !exists {
		return nil, fmt.Errorf("task %s not found", name)
	}
	return s.statusLocked(entry), nil
}

// GetAllTaskStatuses returns the state of every registered task keyed
// by task name.
func (s *Service) GetAllTaskStatuses() map[string]*interfaces.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make(map[string]*interfaces.TaskStatus, len(s.tasks))
	for _, name := range s.order {
		statuses[name] = s.statusLocked(s.tasks[name])
	}
	return statuses
}

// Reset tears down the cron runner and rebuilds it from the registered
// tasks, clearing stuck run flags and stale errors. The scheduler is
// left running.
func (s *Service) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.cron.Stop()
		s.running = false
	}

	s.cron = cron.New(cron.WithSeconds())
	for _, name := range s.order {
		entry := s.tasks[name]
		entry.isRunning = false
		entry.lastError = ""
		if !entry.enabled {
			continue
		}

		taskName := name
		cronID, err := s.cron.AddFunc(entry.schedule, func() { s.executeTask(taskName) })
		if err != nil {
			return fmt.Errorf("failed to reschedule task %s: %w", name, err)
		}
		entry.cronID = cronID
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Int("tasks", len(s.tasks)).Msg("Scheduler reset")
	return nil
}

// executeTask runs one task with panic recovery and records the
// outcome. A tick that lands while the previous run is still going is
// dropped so long tasks collapse overlapping runs into one.
func (s *Service) executeTask(name string) {
	s.mu.Lock()
	entry, exists := s.tasks[name]
	if !exists {
		s.mu.Unlock()
		return
	}
	if entry.isRunning {
		s.mu.Unlock()
		s.logger.Debug().Str("task", name).Msg("Previous run still active, tick skipped")
		return
	}
	entry.isRunning = true
	handler := entry.handler
	s.mu.Unlock()

	start := time.Now()
	var runErr error

	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("panic: %v", r)
				s.logger.Error().
					Str("task", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Msg("Recovered from panic in scheduled task")
			}
		}()
		runErr = handler()
	}()

	finished := time.Now()

	s.mu.Lock()
	entry.isRunning = false
	entry.lastRun = &finished
	entry.runCount++
	if runErr != nil {
		entry.lastError = runErr.Error()
	} else {
		entry.lastError = ""
	}
	s.mu.Unlock()

	if runErr != nil {
		s.logger.Warn().
			Err(runErr).
			Str("task", name).
			Dur("duration", finished.Sub(start)).
			Msg("Scheduled task failed")
	} else {
		s.logger.Debug().
			Str("task", name).
			Dur("duration", finished.Sub(start)).
			Msg("Scheduled task completed")
	}
}

// statusLocked builds a TaskStatus snapshot. Callers hold s.mu.
func (s *Service) statusLocked(entry *taskEntry) *interfaces.TaskStatus {
	status := &interfaces.TaskStatus{
		Name:        entry.name,
		Enabled:     entry.enabled,
		Schedule:    entry.schedule,
		Description: entry.description,
		IsRunning:   entry.isRunning,
		LastError:   entry.lastError,
		RunCount:    entry.runCount,
	}
	if entry.lastRun != nil {
		last := *entry.lastRun
		status.LastRun = &last
	}
	if entry.enabled && s.running {
		for _, ce := range s.cron.Entries() {
			if ce.ID == entry.cronID {
				next := ce.Next
				status.NextRun = &next
				break
			}
		}
	}
	return status
}
