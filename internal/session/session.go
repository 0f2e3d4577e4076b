package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/courier/internal/dispatch"
	"github.com/mattjoyce/courier/internal/events"
	"github.com/mattjoyce/courier/internal/protocol"
)

// Publisher receives session lifecycle events. *events.Hub satisfies it.
type Publisher interface {
	Publish(eventType string, data any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}

// Options describe a session at creation.
type Options struct {
	// ID names the session. A random UUID is used when empty.
	ID string
	// AsyncDispatch queues every message for the shared pool instead of
	// delivering on the producer's goroutine.
	AsyncDispatch bool
	// DispatchedByPool hands delivery to an external session pool that calls
	// Iterate itself.
	DispatchedByPool bool
}

// Session owns a consumer set and the executor delivering to it.
type Session struct {
	id              string
	async           bool
	executor        *dispatch.Executor
	logger          *slog.Logger
	events          Publisher
	shutdownTimeout time.Duration

	// consumers is replaced wholesale on every change so the executor can
	// read it without locking.
	consumers atomic.Pointer[[]dispatch.Consumer]
	mu        sync.Mutex // guards consumer set changes

	lifecycle sync.Mutex // serializes Start, Stop, Recover, CloseConsumer, Close
	closed    atomic.Bool
}

// ID implements dispatch.Session.
func (s *Session) ID() string {
	return s.id
}

// IsAsyncDispatch implements dispatch.Session.
func (s *Session) IsAsyncDispatch() bool {
	return s.async
}

// Consumers implements dispatch.Session. The returned slice must not be
// modified.
func (s *Session) Consumers() []dispatch.Consumer {
	if p := s.consumers.Load(); p != nil {
		return *p
	}
	return nil
}

// CreateConsumer registers listener under id.
func (s *Session) CreateConsumer(id protocol.ConsumerID, listener Listener) (*Consumer, error) {
	if listener == nil {
		return nil, fmt.Errorf("consumer %s: listener is nil", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, fmt.Errorf("create consumer %s: %w", id, ErrSessionClosed)
	}
	cur := s.Consumers()
	for _, c := range cur {
		if c.ConsumerID() == id {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateConsumer, id)
		}
	}

	c := &Consumer{id: id, listener: listener}
	next := append(slices.Clip(cur), c)
	s.consumers.Store(&next)

	s.logger.Debug("consumer created", "consumer_id", id)
	s.events.Publish(events.ConsumerCreated, map[string]any{"session_id": s.id, "consumer_id": id})
	return c, nil
}

// Consumer returns the consumer registered under id.
func (s *Session) Consumer(id protocol.ConsumerID) (*Consumer, error) {
	for _, c := range s.Consumers() {
		if c.ConsumerID() == id {
			return c.(*Consumer), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrConsumerNotFound, id)
}

// CloseConsumer unregisters id and returns the messages that were still
// buffered for it. Messages buffered for other consumers keep their order
// and stay queued.
func (s *Session) CloseConsumer(ctx context.Context, id protocol.ConsumerID) ([]*protocol.Message, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	c, err := s.removeConsumer(id)
	if err != nil {
		return nil, err
	}
	c.close()

	var handback []*protocol.Message
	err = s.rebuffer(ctx, func(pending []*protocol.Message) []*protocol.Message {
		keep := pending[:0:0]
		for _, m := range pending {
			if m.ConsumerID == id {
				handback = append(handback, m)
				continue
			}
			keep = append(keep, m)
		}
		return keep
	})
	if err != nil {
		return handback, fmt.Errorf("close consumer %s: %w", id, err)
	}

	s.logger.Debug("consumer closed", "consumer_id", id, "handed_back", len(handback))
	s.events.Publish(events.ConsumerClosed, map[string]any{
		"session_id":  s.id,
		"consumer_id": id,
		"handed_back": len(handback),
	})
	return handback, nil
}

// Deliver hands msg to the executor.
func (s *Session) Deliver(ctx context.Context, msg *protocol.Message) error {
	if s.closed.Load() {
		return fmt.Errorf("deliver %s: %w", msg.ID, ErrSessionClosed)
	}
	return s.executor.Execute(ctx, msg)
}

// DeliverFirst queues msg ahead of everything already buffered.
func (s *Session) DeliverFirst(ctx context.Context, msg *protocol.Message) error {
	if s.closed.Load() {
		return fmt.Errorf("deliver first %s: %w", msg.ID, ErrSessionClosed)
	}
	return s.executor.ExecuteFirst(ctx, msg)
}

// Recover re-queues every buffered message at the head, in its original
// order and marked redelivered. It returns the number of messages recovered.
func (s *Session) Recover(ctx context.Context) (int, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.closed.Load() {
		return 0, fmt.Errorf("recover: %w", ErrSessionClosed)
	}

	var n int
	err := s.rebuffer(ctx, func(pending []*protocol.Message) []*protocol.Message {
		out := make([]*protocol.Message, len(pending))
		for i, m := range pending {
			out[i] = m.Redelivered()
		}
		n = len(out)
		return out
	})
	if err != nil {
		return n, fmt.Errorf("recover: %w", err)
	}

	s.logger.Info("session recovered", "redelivered", n)
	s.events.Publish(events.SessionRecovered, map[string]any{"session_id": s.id, "redelivered": n})
	return n, nil
}

// Start begins delivery.
func (s *Session) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.closed.Load() {
		return fmt.Errorf("start: %w", ErrSessionClosed)
	}
	if s.executor.IsRunning() {
		return nil
	}
	ctx, cancel := s.withShutdownTimeout(ctx)
	defer cancel()
	if err := s.executor.Start(ctx); err != nil {
		return fmt.Errorf("start session %s: %w", s.id, err)
	}
	s.events.Publish(events.SessionStarted, map[string]any{"session_id": s.id})
	return nil
}

// Stop halts delivery, waiting for an in-flight delivery to finish. When ctx
// has no deadline the session's shutdown timeout applies.
func (s *Session) Stop(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	wasRunning := s.executor.IsRunning()
	if err := s.stop(ctx); err != nil {
		return err
	}
	if wasRunning {
		s.events.Publish(events.SessionStopped, map[string]any{"session_id": s.id, "pending": s.executor.Pending()})
	}
	return nil
}

// Close stops the session for good. Buffered messages are discarded and
// every consumer is closed.
func (s *Session) Close(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.closed.Swap(true) {
		return nil
	}

	stopErr := s.stop(ctx)
	s.executor.Close()
	discarded := len(s.executor.GetUnconsumedMessages())

	s.mu.Lock()
	for _, c := range s.Consumers() {
		c.(*Consumer).close()
	}
	s.consumers.Store(nil)
	s.mu.Unlock()

	if discarded > 0 {
		s.logger.Warn("session closed with undelivered messages", "discarded", discarded)
	} else {
		s.logger.Debug("session closed")
	}
	s.events.Publish(events.SessionClosed, map[string]any{"session_id": s.id, "discarded": discarded})
	return stopErr
}

// SetDispatchedBySessionPool toggles external session-pool delivery.
func (s *Session) SetDispatchedBySessionPool(ctx context.Context, value bool) error {
	return s.executor.SetDispatchedBySessionPool(ctx, value)
}

// Iterate delivers one buffered message. A session pool calls it when the
// session is dispatched by the pool.
func (s *Session) Iterate() (bool, error) {
	return s.executor.Iterate()
}

func (s *Session) IsRunning() bool { return s.executor.IsRunning() }
func (s *Session) IsClosed() bool  { return s.closed.Load() }
func (s *Session) Pending() int    { return s.executor.Pending() }

// Info is a point-in-time view of a session.
type Info struct {
	ID               string         `json:"id"`
	AsyncDispatch    bool           `json:"async_dispatch"`
	DispatchedByPool bool           `json:"dispatched_by_pool"`
	Running          bool           `json:"running"`
	Closed           bool           `json:"closed"`
	Pending          int            `json:"pending"`
	Consumers        []ConsumerInfo `json:"consumers"`
}

type ConsumerInfo struct {
	ID        protocol.ConsumerID `json:"id"`
	Delivered int64               `json:"delivered"`
	Failed    int64               `json:"failed"`
}

func (s *Session) Info() Info {
	info := Info{
		ID:               s.id,
		AsyncDispatch:    s.async,
		DispatchedByPool: s.executor.DispatchedBySessionPool(),
		Running:          s.executor.IsRunning(),
		Closed:           s.closed.Load(),
		Pending:          s.executor.Pending(),
		Consumers:        []ConsumerInfo{},
	}
	for _, dc := range s.Consumers() {
		c := dc.(*Consumer)
		info.Consumers = append(info.Consumers, ConsumerInfo{
			ID:        c.id,
			Delivered: c.Delivered(),
			Failed:    c.Failed(),
		})
	}
	return info
}

func (s *Session) removeConsumer(id protocol.ConsumerID) (*Consumer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.Consumers()
	i := slices.IndexFunc(cur, func(c dispatch.Consumer) bool { return c.ConsumerID() == id })
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrConsumerNotFound, id)
	}
	next := slices.Delete(slices.Clone(cur), i, i+1)
	s.consumers.Store(&next)
	return cur[i].(*Consumer), nil
}

// rebuffer stops delivery, drains the queue through edit and puts the result
// back at the head in order, then restarts delivery if it was running.
// Caller holds lifecycle.
func (s *Session) rebuffer(ctx context.Context, edit func([]*protocol.Message) []*protocol.Message) error {
	wasRunning := s.executor.IsRunning()
	if err := s.stop(ctx); err != nil {
		return err
	}

	requeue := edit(s.executor.GetUnconsumedMessages())
	var errs []error
	for i := len(requeue) - 1; i >= 0; i-- {
		// The context may already be done; the messages must go back regardless.
		if err := s.executor.ExecuteFirst(context.WithoutCancel(ctx), requeue[i]); err != nil {
			errs = append(errs, err)
		}
	}

	if wasRunning {
		if err := s.executor.Start(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withShutdownTimeout bounds ctx by the shutdown timeout unless it already
// has a deadline.
func (s *Session) withShutdownTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.shutdownTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.shutdownTimeout)
}

func (s *Session) stop(ctx context.Context) error {
	ctx, cancel := s.withShutdownTimeout(ctx)
	defer cancel()
	if err := s.executor.Stop(ctx); err != nil {
		return fmt.Errorf("stop session %s: %w", s.id, err)
	}
	return nil
}
