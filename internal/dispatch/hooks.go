package dispatch

import (
	"log/slog"
	"time"

	"github.com/mattjoyce/courier/internal/protocol"
)

// DeliveryInfo describes one call into a consumer.
type DeliveryInfo struct {
	SessionID  string
	ConsumerID protocol.ConsumerID
	Message    *protocol.Message
	Duration   time.Duration
	Err        error
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithRunnerFactory lets the executor acquire a task runner on Start. Without
// one, queued messages are drained inline by whichever call wakes the
// executor.
func WithRunnerFactory(f RunnerFactory) Option {
	return func(e *Executor) {
		e.factory = f
	}
}

// WithOnDeliver registers a hook called after every consumer delivery,
// successful or not. Hooks run on the delivering goroutine in registration
// order.
func WithOnDeliver(fn func(DeliveryInfo)) Option {
	return func(e *Executor) {
		e.onDeliver = append(e.onDeliver, fn)
	}
}

// WithOnDrop registers a hook called when a message matches no consumer.
func WithOnDrop(fn func(sessionID string, msg *protocol.Message)) Option {
	return func(e *Executor) {
		e.onDrop = append(e.onDrop, fn)
	}
}
