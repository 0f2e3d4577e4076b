package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/courier/internal/log"
	"github.com/mattjoyce/courier/internal/protocol"
	"github.com/mattjoyce/courier/internal/queue"
	"github.com/mattjoyce/courier/internal/scheduler"
)

// runnerNamePrefix tags task runners so pool logs name the owning session.
const runnerNamePrefix = "courier session: "

var (
	// ErrInterrupted is returned when the caller's context ended before the
	// message could be queued. The message was not queued.
	ErrInterrupted = errors.New("dispatch interrupted")
	// ErrShutdown wraps a task runner shutdown failure surfaced by Stop.
	ErrShutdown = errors.New("dispatch shutdown failed")
)

// Executor delivers one session's messages, inline or through its own queue.
type Executor struct {
	session   Session
	factory   RunnerFactory
	queue     *queue.Queue
	logger    *slog.Logger
	onDeliver []func(DeliveryInfo)
	onDrop    []func(string, *protocol.Message)

	dispatchedBySessionPool atomic.Bool

	lifecycle sync.Mutex // serializes Start and Stop

	runnerMu sync.RWMutex
	runner   scheduler.TaskRunner

	// wip counts inline drain requests; only the caller that moves it from
	// zero drains, the others leave their request for it to pick up.
	wip atomic.Int64
}

// New creates a stopped Executor for session.
func New(session Session, opts ...Option) *Executor {
	e := &Executor{
		session: session,
		queue:   queue.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.WithComponent("dispatch")
	}
	e.logger = e.logger.With("session_id", session.ID())
	return e
}

// Execute delivers msg inline when the session dispatches synchronously and
// no session pool owns the executor. Otherwise it queues msg and wakes the
// executor. Inline delivery errors are returned as is.
func (e *Executor) Execute(ctx context.Context, msg *protocol.Message) error {
	if !e.session.IsAsyncDispatch() && !e.dispatchedBySessionPool.Load() {
		return e.dispatch(msg)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: execute %s: %w", ErrInterrupted, msg.ID, err)
	}
	if err := e.queue.Enqueue(msg); err != nil {
		return fmt.Errorf("execute %s: %w", msg.ID, err)
	}
	return e.wakeup(ctx)
}

// ExecuteFirst queues msg ahead of everything already buffered and wakes the
// executor. It never delivers inline.
func (e *Executor) ExecuteFirst(ctx context.Context, msg *protocol.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: execute first %s: %w", ErrInterrupted, msg.ID, err)
	}
	if err := e.queue.EnqueueFirst(msg); err != nil {
		return fmt.Errorf("execute first %s: %w", msg.ID, err)
	}
	return e.wakeup(ctx)
}

// SetDispatchedBySessionPool records whether an external session pool owns
// delivery for this executor, then wakes it so buffered work is not
// stranded.
func (e *Executor) SetDispatchedBySessionPool(ctx context.Context, value bool) error {
	e.dispatchedBySessionPool.Store(value)
	return e.wakeup(ctx)
}

// DispatchedBySessionPool reports the flag set by SetDispatchedBySessionPool.
func (e *Executor) DispatchedBySessionPool() bool {
	return e.dispatchedBySessionPool.Load()
}

// HasUnconsumedMessages reports whether the queue is open, running and
// holds at least one message.
func (e *Executor) HasUnconsumedMessages() bool {
	return !e.queue.IsClosed() && e.queue.IsRunning() && !e.queue.IsEmpty()
}

// Start is idempotent. It acquires a task runner when queued delivery is in
// effect, marks the queue running and flushes the backlog. A runner left
// behind by a Stop that timed out is shut down first; if it is still
// delivering when ctx ends, Start fails with ErrShutdown and the queue stays
// stopped.
func (e *Executor) Start(ctx context.Context) error {
	e.lifecycle.Lock()
	if e.queue.IsRunning() || e.queue.IsClosed() {
		e.lifecycle.Unlock()
		return nil
	}
	if err := e.retireRunner(ctx); err != nil {
		e.lifecycle.Unlock()
		return err
	}
	if e.session.IsAsyncDispatch() || e.dispatchedBySessionPool.Load() {
		if e.factory != nil {
			e.setRunner(e.factory.CreateTaskRunner(e, runnerNamePrefix+e.session.ID()))
		} else {
			e.logger.Warn("no runner factory configured, queued messages are drained inline")
		}
	}
	// The runner must be in place before the queue runs, or a concurrent
	// wakeup would drain inline alongside it.
	e.queue.Start()
	e.lifecycle.Unlock()

	e.logger.Debug("executor started", "pending", e.queue.Len())
	return e.wakeup(ctx)
}

// Stop is idempotent. It marks the queue stopped and, if a task runner was
// acquired, shuts it down, waiting for an in-flight Iterate to return.
// Buffered messages are kept. If ctx ends first the runner stays recorded
// and the next Start or Stop waits for it again.
func (e *Executor) Stop(ctx context.Context) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if !e.queue.IsRunning() && e.taskRunner() == nil {
		return nil
	}
	e.queue.Stop()

	if err := e.retireRunner(ctx); err != nil {
		return err
	}
	e.logger.Debug("executor stopped", "pending", e.queue.Len())
	return nil
}

// retireRunner shuts down the current runner and forgets it once it is idle.
// Callers hold lifecycle.
func (e *Executor) retireRunner(ctx context.Context) error {
	r := e.taskRunner()
	if r == nil {
		return nil
	}
	if err := r.Shutdown(ctx); err != nil {
		return fmt.Errorf("%w: session %s: %w", ErrShutdown, e.session.ID(), err)
	}
	e.setRunner(nil)
	return nil
}

// IsRunning reports whether the queue is running.
func (e *Executor) IsRunning() bool {
	return e.queue.IsRunning()
}

// Close permanently closes the queue. Call Stop first to release the runner.
func (e *Executor) Close() {
	e.queue.Close()
}

// Clear drops every buffered message.
func (e *Executor) Clear() {
	e.queue.Clear()
}

// ClearMessagesInProgress drops every buffered message. Used on rollback and
// recover paths.
func (e *Executor) ClearMessagesInProgress() {
	e.queue.Clear()
}

// IsEmpty reports whether nothing is buffered.
func (e *Executor) IsEmpty() bool {
	return e.queue.IsEmpty()
}

// Pending returns the number of buffered messages.
func (e *Executor) Pending() int {
	return e.queue.Len()
}

// DequeueNoWait pops one message for manual consumption outside the runner.
// It returns nil when nothing is available.
func (e *Executor) DequeueNoWait() *protocol.Message {
	return e.queue.DequeueNoWait()
}

// GetUnconsumedMessages drains and returns every buffered message in queue
// order.
func (e *Executor) GetUnconsumedMessages() []*protocol.Message {
	return e.queue.RemoveAll()
}

// Iterate implements scheduler.Task. It delivers at most one message and
// reports whether more are waiting.
func (e *Executor) Iterate() (bool, error) {
	msg := e.queue.DequeueNoWait()
	if msg == nil {
		return false, nil
	}
	err := e.dispatch(msg)
	return !e.queue.IsEmpty(), err
}

func (e *Executor) wakeup(ctx context.Context) error {
	if e.dispatchedBySessionPool.Load() || !e.HasUnconsumedMessages() {
		return nil
	}
	if r := e.taskRunner(); r != nil {
		if err := r.Wakeup(ctx); err != nil {
			e.logger.Warn("wakeup abandoned", "error", err)
		}
		return nil
	}
	return e.drain()
}

// drain runs Iterate on the calling goroutine until the queue is empty. It
// keeps going past delivery errors and returns the first one.
func (e *Executor) drain() error {
	if e.wip.Add(1) != 1 {
		return nil
	}

	var first error
	missed := int64(1)
	for {
		for {
			more, err := e.Iterate()
			if err != nil && first == nil {
				first = err
			}
			if !more {
				break
			}
		}
		missed = e.wip.Add(-missed)
		if missed == 0 {
			return first
		}
	}
}

// dispatch hands msg to the consumer whose ID matches. A message for which
// no consumer is registered is dropped.
func (e *Executor) dispatch(msg *protocol.Message) error {
	// TODO: index consumers by ID once sessions routinely hold more than a handful.
	for _, c := range e.session.Consumers() {
		if c.ConsumerID() != msg.ConsumerID {
			continue
		}

		start := time.Now()
		err := c.Dispatch(msg)
		info := DeliveryInfo{
			SessionID:  e.session.ID(),
			ConsumerID: msg.ConsumerID,
			Message:    msg,
			Duration:   time.Since(start),
			Err:        err,
		}
		for _, fn := range e.onDeliver {
			fn(info)
		}
		if err != nil {
			return fmt.Errorf("deliver %s to %s: %w", msg.ID, msg.ConsumerID, err)
		}
		return nil
	}

	e.logger.Debug("no consumer for message, dropping", "message_id", msg.ID, "consumer_id", msg.ConsumerID)
	for _, fn := range e.onDrop {
		fn(e.session.ID(), msg)
	}
	return nil
}

func (e *Executor) taskRunner() scheduler.TaskRunner {
	e.runnerMu.RLock()
	defer e.runnerMu.RUnlock()
	return e.runner
}

func (e *Executor) setRunner(r scheduler.TaskRunner) {
	e.runnerMu.Lock()
	defer e.runnerMu.Unlock()
	e.runner = r
}
