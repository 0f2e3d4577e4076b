package queue

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/courier/internal/protocol"
)

func msg(id string) *protocol.Message {
	return &protocol.Message{ID: id, ConsumerID: "c1"}
}

func ids(msgs []*protocol.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestQueueFIFO(t *testing.T) {
	t.Parallel()

	q := New()
	q.Start()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(msg(id)))
	}

	assert.Equal(t, "a", q.DequeueNoWait().ID)
	assert.Equal(t, "b", q.DequeueNoWait().ID)
	assert.Equal(t, "c", q.DequeueNoWait().ID)
	assert.Nil(t, q.DequeueNoWait())
	assert.True(t, q.IsEmpty())
}

func TestQueueEnqueueFirstTakesPrecedence(t *testing.T) {
	t.Parallel()

	q := New()
	q.Start()
	require.NoError(t, q.Enqueue(msg("a")))
	require.NoError(t, q.Enqueue(msg("b")))
	require.NoError(t, q.EnqueueFirst(msg("retry")))

	assert.Equal(t, []string{"retry", "a", "b"}, ids(q.RemoveAll()))
}

func TestQueueStoppedBuffersButDoesNotHandOut(t *testing.T) {
	t.Parallel()

	q := New()
	assert.False(t, q.IsRunning())
	assert.Equal(t, StatusStopped, q.Status())

	require.NoError(t, q.Enqueue(msg("a")))
	assert.Nil(t, q.DequeueNoWait())
	assert.False(t, q.IsEmpty())

	q.Start()
	q.Start()
	assert.True(t, q.IsRunning())
	assert.Equal(t, "a", q.DequeueNoWait().ID)

	require.NoError(t, q.Enqueue(msg("b")))
	q.Stop()
	q.Stop()
	assert.False(t, q.IsRunning())
	assert.Equal(t, 1, q.Len(), "stop must not drop buffered content")
}

func TestQueueCloseIsTerminal(t *testing.T) {
	t.Parallel()

	q := New()
	q.Start()
	require.NoError(t, q.Enqueue(msg("a")))
	q.Close()

	assert.True(t, q.IsClosed())
	assert.False(t, q.IsRunning())
	assert.Equal(t, StatusClosed, q.Status())
	assert.ErrorIs(t, q.Enqueue(msg("b")), ErrClosed)
	assert.True(t, errors.Is(q.EnqueueFirst(msg("c")), ErrClosed))
	assert.Nil(t, q.DequeueNoWait())

	q.Start()
	assert.False(t, q.IsRunning(), "start after close must be a no-op")

	assert.Equal(t, []string{"a"}, ids(q.RemoveAll()))
	assert.True(t, q.IsEmpty())
	assert.ErrorIs(t, q.Enqueue(msg("d")), ErrClosed)
	assert.True(t, q.IsEmpty())
}

func TestQueueClearKeepsState(t *testing.T) {
	t.Parallel()

	q := New()
	q.Start()
	require.NoError(t, q.Enqueue(msg("a")))
	require.NoError(t, q.Enqueue(msg("b")))
	q.Clear()

	assert.True(t, q.IsEmpty())
	assert.True(t, q.IsRunning())
	assert.False(t, q.IsClosed())
}

func TestQueueRemoveAllTwice(t *testing.T) {
	t.Parallel()

	q := New()
	require.NoError(t, q.Enqueue(msg("a")))
	require.NoError(t, q.Enqueue(msg("b")))

	assert.Equal(t, []string{"a", "b"}, ids(q.RemoveAll()))
	second := q.RemoveAll()
	assert.NotNil(t, second)
	assert.Empty(t, second)
}

func TestQueueConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	t.Parallel()

	const producers = 8
	const perProducer = 200

	q := New()
	q.Start()

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				m := &protocol.Message{ID: fmt.Sprintf("%d-%d", p, i), ConsumerID: protocol.ConsumerID(fmt.Sprint(p))}
				if err := q.Enqueue(m); err != nil {
					t.Errorf("Enqueue: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	next := make(map[protocol.ConsumerID]int)
	seen := make(map[string]bool)
	for m := q.DequeueNoWait(); m != nil; m = q.DequeueNoWait() {
		require.False(t, seen[m.ID], "duplicate %s", m.ID)
		seen[m.ID] = true
		want := fmt.Sprintf("%s-%d", m.ConsumerID, next[m.ConsumerID])
		require.Equal(t, want, m.ID)
		next[m.ConsumerID]++
	}
	assert.Len(t, seen, producers*perProducer)
}
