package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/courier/internal/dispatch"
	"github.com/mattjoyce/courier/internal/events"
	"github.com/mattjoyce/courier/internal/log"
)

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the connection's logger. Sessions derive theirs from it.
func WithLogger(l *slog.Logger) Option {
	return func(c *Connection) {
		c.logger = l
	}
}

// WithPublisher routes lifecycle events to p.
func WithPublisher(p Publisher) Option {
	return func(c *Connection) {
		c.events = p
	}
}

// WithShutdownTimeout bounds Stop calls made without a deadline.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Connection) {
		c.shutdownTimeout = d
	}
}

// WithDispatchOptions appends executor options applied to every session, such
// as delivery and drop hooks.
func WithDispatchOptions(opts ...dispatch.Option) Option {
	return func(c *Connection) {
		c.dispatchOpts = append(c.dispatchOpts, opts...)
	}
}

// Connection groups sessions that share one runner factory, normally a
// scheduler.Pool.
type Connection struct {
	id              string
	factory         dispatch.RunnerFactory
	base            *slog.Logger
	logger          *slog.Logger
	events          Publisher
	shutdownTimeout time.Duration
	dispatchOpts    []dispatch.Option

	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
	started  bool
	closed   bool
}

// NewConnection creates a stopped connection. factory may be nil, in which
// case asynchronous sessions drain on the producer's goroutine.
func NewConnection(factory dispatch.RunnerFactory, opts ...Option) *Connection {
	c := &Connection{
		id:       uuid.NewString(),
		factory:  factory,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.Get()
	}
	if c.events == nil {
		c.events = nopPublisher{}
	}
	c.base = c.logger.With("connection_id", c.id)
	c.logger = c.base.With("component", "session")
	return c
}

func (c *Connection) ID() string {
	return c.id
}

// CreateSession registers a new session. It starts immediately when the
// connection is started.
func (c *Connection) CreateSession(ctx context.Context, opts Options) (*Session, error) {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("create session %s: %w", id, ErrConnectionClosed)
	}
	if _, ok := c.sessions[id]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, id)
	}

	logger := c.logger.With("session_id", id)
	s := &Session{
		id:              id,
		async:           opts.AsyncDispatch,
		logger:          logger,
		events:          c.events,
		shutdownTimeout: c.shutdownTimeout,
	}
	dopts := append([]dispatch.Option{
		dispatch.WithLogger(c.base.With("component", "dispatch")),
	}, c.dispatchOpts...)
	if c.factory != nil {
		dopts = append(dopts, dispatch.WithRunnerFactory(c.factory))
	}
	s.executor = dispatch.New(s, dopts...)

	c.sessions[id] = s
	c.order = append(c.order, id)
	started := c.started
	c.mu.Unlock()

	logger.Info("session created", "async_dispatch", opts.AsyncDispatch, "dispatched_by_pool", opts.DispatchedByPool)
	c.events.Publish(events.SessionCreated, map[string]any{"session_id": id, "async_dispatch": opts.AsyncDispatch})

	if opts.DispatchedByPool {
		if err := s.SetDispatchedBySessionPool(ctx, true); err != nil {
			return s, err
		}
	}
	if started {
		if err := s.Start(ctx); err != nil {
			return s, err
		}
	}
	return s, nil
}

// Session returns the session registered under id.
func (c *Connection) Session(id string) (*Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Sessions returns every session in creation order.
func (c *Connection) Sessions() []*Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Session, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.sessions[id])
	}
	return out
}

// Start starts every session and marks the connection started so later
// sessions start on creation.
func (c *Connection) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("start: %w", ErrConnectionClosed)
	}
	c.started = true
	c.mu.Unlock()

	var errs []error
	for _, s := range c.Sessions() {
		if err := s.Start(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.logger.Info("connection started")
	return errors.Join(errs...)
}

// Stop stops every session. Buffered messages are kept.
func (c *Connection) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.started = false
	c.mu.Unlock()

	var errs []error
	for _, s := range c.Sessions() {
		if err := s.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.logger.Info("connection stopped")
	return errors.Join(errs...)
}

// Close closes every session. The runner factory is left to its owner.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.started = false
	c.mu.Unlock()

	var errs []error
	for _, s := range c.Sessions() {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.logger.Info("connection closed")
	return errors.Join(errs...)
}
