package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

const (
	defaultWorkers             = 4
	defaultMaxIterationsPerRun = 1000
)

var (
	// ErrInterrupted reports that a wakeup or shutdown wait was abandoned
	// because its context ended.
	ErrInterrupted = errors.New("interrupted")
	// ErrPoolStopped is returned when work is submitted after Pool.Stop.
	ErrPoolStopped = errors.New("worker pool stopped")
)

// PoolConfig sizes a Pool.
type PoolConfig struct {
	// Workers is the number of goroutines shared by every runner.
	Workers int
	// MaxIterationsPerRun bounds how many Iterate calls one runner makes
	// before yielding its worker to other runners.
	MaxIterationsPerRun int
}

// Pool is a bounded set of worker goroutines shared by many task runners,
// typically every session of one connection.
type Pool struct {
	cfg    PoolConfig
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*Runner
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// NewPool creates a Pool. Workers are launched by Start.
func NewPool(cfg PoolConfig, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxIterationsPerRun <= 0 {
		cfg.MaxIterationsPerRun = defaultMaxIterationsPerRun
	}
	p := &Pool{
		cfg:    cfg,
		logger: logger.With("component", "scheduler"),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the worker goroutines. Runs submitted earlier are picked up.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for i := range p.cfg.Workers {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started", "workers", p.cfg.Workers, "max_iterations_per_run", p.cfg.MaxIterationsPerRun)
}

// Stop rejects new submissions, lets workers finish the runs already
// submitted, and waits for them to exit.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.logger.Info("stopping worker pool")
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: stop worker pool: %w", ErrInterrupted, ctx.Err())
	}
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.cfg.Workers
}

// CreateTaskRunner binds task to this pool. The name shows up in logs.
func (p *Pool) CreateTaskRunner(task Task, name string) TaskRunner {
	return &Runner{
		pool:          p,
		task:          task,
		name:          name,
		maxIterations: p.cfg.MaxIterationsPerRun,
		logger:        p.logger.With("task", name),
	}
}

func (p *Pool) submit(r *Runner) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}
	p.pending = append(p.pending, r)
	p.cond.Signal()
	return nil
}

func (p *Pool) next() (*Runner, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.pending) == 0 && !p.stopped {
		p.cond.Wait()
	}
	if len(p.pending) == 0 {
		return nil, false
	}
	r := p.pending[0]
	p.pending[0] = nil
	p.pending = p.pending[1:]
	return r, true
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		r, ok := p.next()
		if !ok {
			p.logger.Debug("worker exiting", "worker", id)
			return
		}
		r.run()
	}
}

// Runner schedules one Task on a Pool. At most one run of a given Runner is
// submitted or in flight at any time.
type Runner struct {
	pool          *Pool
	task          Task
	name          string
	maxIterations int
	logger        *slog.Logger

	mu        sync.Mutex
	queued    bool
	iterating bool
	shutdown  bool
	idle      chan struct{} // closed when the in-flight run returns
}

// Name returns the diagnostic name given at creation.
func (r *Runner) Name() string {
	return r.name
}

// Wakeup implements TaskRunner.
func (r *Runner) Wakeup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: wakeup %s: %w", ErrInterrupted, r.name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queued || r.shutdown {
		return nil
	}
	r.queued = true
	if r.iterating {
		// The in-flight run resubmits when it sees queued.
		return nil
	}
	if err := r.pool.submit(r); err != nil {
		r.queued = false
		return fmt.Errorf("wakeup %s: %w", r.name, err)
	}
	return nil
}

// Shutdown implements TaskRunner. It is safe to call more than once.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.shutdown = true
	if !r.iterating {
		r.mu.Unlock()
		return nil
	}
	idle := r.idle
	r.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: shutdown %s: %w", ErrInterrupted, r.name, ctx.Err())
	}
}

func (r *Runner) run() {
	r.mu.Lock()
	r.queued = false
	if r.shutdown {
		r.mu.Unlock()
		return
	}
	r.iterating = true
	r.idle = make(chan struct{})
	r.mu.Unlock()

	done := r.iterate()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.iterating = false
	close(r.idle)
	if r.shutdown {
		r.queued = false
		return
	}
	if !done {
		r.queued = true
	}
	if r.queued {
		if err := r.pool.submit(r); err != nil {
			r.queued = false
			r.logger.Warn("could not resubmit task", "error", err)
		}
	}
}

// iterate runs up to maxIterations steps and reports whether the task ran
// out of work.
func (r *Runner) iterate() bool {
	for range r.maxIterations {
		more, err := r.safeIterate()
		if err != nil {
			// One failing step must not take the worker or other tasks down.
			r.logger.Error("task iteration failed", "error", err)
			continue
		}
		if !more {
			return true
		}
	}
	return false
}

func (r *Runner) safeIterate() (more bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			more = true
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return r.task.Iterate()
}
