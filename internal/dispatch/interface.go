package dispatch

import (
	"github.com/mattjoyce/courier/internal/protocol"
	"github.com/mattjoyce/courier/internal/scheduler"
)

//go:generate mockgen -destination=mocks/mock_dispatch.go -package=mocks github.com/mattjoyce/courier/internal/dispatch Session,Consumer,RunnerFactory

// Consumer receives the messages addressed to its ID.
type Consumer interface {
	ConsumerID() protocol.ConsumerID
	Dispatch(msg *protocol.Message) error
}

// Session is the executor's read-only view of its owning session.
type Session interface {
	ID() string
	IsAsyncDispatch() bool
	// Consumers returns the current consumer set. The executor never
	// modifies the returned slice.
	Consumers() []Consumer
}

// RunnerFactory hands out task runners backed by a shared worker pool.
type RunnerFactory interface {
	CreateTaskRunner(task scheduler.Task, name string) scheduler.TaskRunner
}
