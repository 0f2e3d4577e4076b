package queue

import (
	"sync"

	"github.com/mattjoyce/courier/internal/protocol"
)

// Queue is the ordered buffer of messages waiting to be dispatched for one
// session. It starts stopped: messages may be buffered but DequeueNoWait
// hands nothing out until Start is called. Close is terminal.
type Queue struct {
	mu      sync.Mutex
	items   []*protocol.Message
	running bool
	closed  bool
}

func New() *Queue {
	return &Queue{}
}

// Enqueue appends msg to the tail.
func (q *Queue) Enqueue(msg *protocol.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, msg)
	return nil
}

// EnqueueFirst inserts msg at the head so it is handed out before anything
// already buffered.
func (q *Queue) EnqueueFirst(msg *protocol.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, nil)
	copy(q.items[1:], q.items)
	q.items[0] = msg
	return nil
}

// DequeueNoWait removes and returns the head message. It never blocks and
// returns nil when the queue is empty, stopped or closed.
func (q *Queue) DequeueNoWait() *protocol.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || !q.running || len(q.items) == 0 {
		return nil
	}
	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return msg
}

func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

func (q *Queue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

func (q *Queue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of buffered messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Status reports the lifecycle state. Closed wins over running.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case q.closed:
		return StatusClosed
	case q.running:
		return StatusRunning
	default:
		return StatusStopped
	}
}

// Start allows buffered messages to be handed out. It has no effect on a
// closed queue.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.running = true
}

// Stop suspends hand-out. Buffered messages are kept.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.running = false
}

// Close permanently stops the queue. Further enqueues fail with ErrClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.running = false
}

// Clear drops every buffered message without touching the lifecycle flags.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.items)
	q.items = nil
}

// RemoveAll drains the queue and returns the messages in queue order. The
// result is never nil.
func (q *Queue) RemoveAll() []*protocol.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	if out == nil {
		out = []*protocol.Message{}
	}
	return out
}
