package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned by TriggerNow before Start or after Stop
	ErrSchedulerNotRunning = errors.New("order sync scheduler is not running")

	// ErrJobQueueFull means a sync is already waiting to run
	ErrJobQueueFull = errors.New("order sync already queued")

	ErrInvalidConfig = errors.New("invalid order sync scheduler configuration")

	// ErrOrderSyncTimeout is returned when a job outlives its job timeout
	ErrOrderSyncTimeout = errors.New("order sync timed out")
)
