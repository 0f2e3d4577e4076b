package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/courier/internal/dispatch"
	"github.com/mattjoyce/courier/internal/protocol"
)

type statsKey struct {
	session  string
	consumer protocol.ConsumerID
}

// Recorder accumulates delivery counters in memory and flushes them to a
// Store. OnDeliver and OnDrop run on delivery goroutines and never block on
// the database.
type Recorder struct {
	store  *Store
	logger *slog.Logger

	mu      sync.Mutex
	pending map[statsKey]*Stats
}

func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:   store,
		logger:  logger.With("component", "stats"),
		pending: make(map[statsKey]*Stats),
	}
}

// OnDeliver is a dispatch delivery hook.
func (r *Recorder) OnDeliver(info dispatch.DeliveryInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.entry(info.SessionID, info.ConsumerID)
	if info.Err != nil {
		st.Failed++
		return
	}
	st.Delivered++
}

// OnDrop is a dispatch drop hook.
func (r *Recorder) OnDrop(sessionID string, msg *protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(sessionID, msg.ConsumerID).Dropped++
}

// Flush writes accumulated counters. Counters that fail to write are kept for
// the next flush.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.pending
	r.pending = make(map[statsKey]*Stats)
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	deltas := make([]Stats, 0, len(batch))
	for _, st := range batch {
		deltas = append(deltas, *st)
	}
	if err := r.store.Add(ctx, deltas); err != nil {
		r.mu.Lock()
		for k, st := range batch {
			cur := r.entry(k.session, k.consumer)
			cur.Delivered += st.Delivered
			cur.Failed += st.Failed
			cur.Dropped += st.Dropped
		}
		r.mu.Unlock()
		return err
	}
	r.logger.Debug("stats flushed", "rows", len(deltas))
	return nil
}

// Run flushes every interval until ctx is done, then flushes once more.
func (r *Recorder) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil {
				r.logger.Warn("stats flush failed", "error", err)
			}
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := r.Flush(fctx); err != nil {
				r.logger.Error("final stats flush failed", "error", err)
			}
			cancel()
			return
		}
	}
}

func (r *Recorder) entry(session string, consumer protocol.ConsumerID) *Stats {
	k := statsKey{session: session, consumer: consumer}
	st, ok := r.pending[k]
	if !ok {
		st = &Stats{SessionID: session, ConsumerID: string(consumer)}
		r.pending[k] = st
	}
	return st
}
