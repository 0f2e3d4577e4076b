package scheduler

import "context"

//go:generate mockgen -destination=mocks/mock_scheduler.go -package=mocks github.com/mattjoyce/courier/internal/scheduler Task,TaskRunner

// Task is a repeatable unit of cooperative work. Iterate performs one bounded
// step and reports whether more work is pending. A Runner never calls
// Iterate concurrently with itself.
type Task interface {
	Iterate() (more bool, err error)
}

// TaskFunc adapts a function to Task.
type TaskFunc func() (bool, error)

func (f TaskFunc) Iterate() (bool, error) { return f() }

// TaskRunner drives one Task on a shared Pool.
type TaskRunner interface {
	// Wakeup asks for Iterate to be called at least once soon. Requests made
	// while a run is pending or in flight collapse into one further run.
	Wakeup(ctx context.Context) error
	// Shutdown stops future runs and blocks until the in-flight run, if any,
	// has returned.
	Shutdown(ctx context.Context) error
}
