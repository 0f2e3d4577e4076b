package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/courier/internal/events"
	"github.com/mattjoyce/courier/internal/protocol"
	"github.com/mattjoyce/courier/internal/scheduler"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newConnection(t *testing.T, withPool bool, opts ...Option) *Connection {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger()), WithShutdownTimeout(2 * time.Second)}, opts...)
	if !withPool {
		return NewConnection(nil, opts...)
	}
	p := scheduler.NewPool(scheduler.PoolConfig{Workers: 2}, quietLogger())
	p.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Stop(ctx)
	})
	return NewConnection(p, opts...)
}

// inbox collects messages handed to a listener.
type inbox struct {
	mu   sync.Mutex
	msgs []*protocol.Message
}

func (b *inbox) listen(msg *protocol.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
	return nil
}

func (b *inbox) ids() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.msgs))
	for _, m := range b.msgs {
		out = append(out, m.ID)
	}
	return out
}

func (b *inbox) all() []*protocol.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*protocol.Message(nil), b.msgs...)
}

func msg(id string, consumer protocol.ConsumerID) *protocol.Message {
	return &protocol.Message{ID: id, ConsumerID: consumer}
}

func TestCreateConsumerRejectsDuplicates(t *testing.T) {
	t.Parallel()
	conn := newConnection(t, false)
	s, err := conn.CreateSession(context.Background(), Options{ID: "orders"})
	require.NoError(t, err)

	_, err = s.CreateConsumer("c1", func(*protocol.Message) error { return nil })
	require.NoError(t, err)

	_, err = s.CreateConsumer("c1", func(*protocol.Message) error { return nil })
	require.ErrorIs(t, err, ErrDuplicateConsumer)

	_, err = s.CreateConsumer("c2", nil)
	require.Error(t, err)

	_, err = s.Consumer("nope")
	require.ErrorIs(t, err, ErrConsumerNotFound)
}

func TestSyncSessionDeliversInline(t *testing.T) {
	t.Parallel()
	conn := newConnection(t, false)
	s, err := conn.CreateSession(context.Background(), Options{ID: "sync"})
	require.NoError(t, err)

	var box inbox
	c, err := s.CreateConsumer("c1", box.listen)
	require.NoError(t, err)

	require.NoError(t, s.Deliver(context.Background(), msg("m1", "c1")))
	assert.Equal(t, []string{"m1"}, box.ids())
	assert.Equal(t, int64(1), c.Delivered())
}

func TestAsyncSessionDeliversInOrderThroughPool(t *testing.T) {
	t.Parallel()
	conn := newConnection(t, true)
	ctx := context.Background()
	require.NoError(t, conn.Start(ctx))

	s, err := conn.CreateSession(ctx, Options{ID: "async", AsyncDispatch: true})
	require.NoError(t, err)
	assert.True(t, s.IsRunning(), "sessions created on a started connection start immediately")

	var box inbox
	_, err = s.CreateConsumer("c1", box.listen)
	require.NoError(t, err)

	want := []string{"a", "b", "c", "d", "e"}
	for _, id := range want {
		require.NoError(t, s.Deliver(ctx, msg(id, "c1")))
	}

	assert.Eventually(t, func() bool { return len(box.ids()) == len(want) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, box.ids())

	info := s.Info()
	assert.Equal(t, "async", info.ID)
	assert.True(t, info.Running)
	require.Len(t, info.Consumers, 1)
	assert.Equal(t, int64(5), info.Consumers[0].Delivered)
}

func TestRecoverRequeuesInOrderAsRedelivered(t *testing.T) {
	t.Parallel()
	conn := newConnection(t, true)
	ctx := context.Background()
	s, err := conn.CreateSession(ctx, Options{ID: "recover", AsyncDispatch: true})
	require.NoError(t, err)

	var box inbox
	_, err = s.CreateConsumer("c1", box.listen)
	require.NoError(t, err)

	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, s.Deliver(ctx, msg(id, "c1")))
	}

	n, err := s.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, s.Pending())

	require.NoError(t, s.Start(ctx))
	assert.Eventually(t, func() bool { return len(box.ids()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"m1", "m2", "m3"}, box.ids())
	for _, m := range box.all() {
		assert.Equal(t, 1, m.RedeliveryCount, m.ID)
	}
}

func TestCloseConsumerHandsBackItsBacklog(t *testing.T) {
	t.Parallel()
	conn := newConnection(t, true)
	ctx := context.Background()
	s, err := conn.CreateSession(ctx, Options{ID: "handback", AsyncDispatch: true})
	require.NoError(t, err)

	var one, two inbox
	c1, err := s.CreateConsumer("c1", one.listen)
	require.NoError(t, err)
	_, err = s.CreateConsumer("c2", two.listen)
	require.NoError(t, err)

	for _, m := range []*protocol.Message{msg("m1", "c1"), msg("m2", "c2"), msg("m3", "c1"), msg("m4", "c2")} {
		require.NoError(t, s.Deliver(ctx, m))
	}

	handback, err := s.CloseConsumer(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, handback, 2)
	assert.Equal(t, "m1", handback[0].ID)
	assert.Equal(t, "m3", handback[1].ID)
	assert.True(t, c1.IsClosed())

	_, err = s.CloseConsumer(ctx, "c1")
	require.ErrorIs(t, err, ErrConsumerNotFound)

	require.NoError(t, s.Start(ctx))
	assert.Eventually(t, func() bool { return len(two.ids()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"m2", "m4"}, two.ids())
	assert.Empty(t, one.ids())
}

func TestClosedConsumerRejectsDispatch(t *testing.T) {
	t.Parallel()
	c := &Consumer{id: "c1", listener: func(*protocol.Message) error { return nil }}
	c.close()

	err := c.Dispatch(msg("m1", "c1"))
	require.ErrorIs(t, err, ErrConsumerClosed)
}

func TestConsumerCountsFailures(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	c := &Consumer{id: "c1", listener: func(*protocol.Message) error { return boom }}

	require.ErrorIs(t, c.Dispatch(msg("m1", "c1")), boom)
	assert.Equal(t, int64(1), c.Failed())
	assert.Zero(t, c.Delivered())
}

func TestCloseSessionDiscardsAndRejects(t *testing.T) {
	t.Parallel()
	hub := events.NewHub(32)
	conn := newConnection(t, true, WithPublisher(hub))
	ctx := context.Background()
	s, err := conn.CreateSession(ctx, Options{ID: "closing", AsyncDispatch: true})
	require.NoError(t, err)
	c, err := s.CreateConsumer("c1", func(*protocol.Message) error { return nil })
	require.NoError(t, err)
	require.NoError(t, s.Deliver(ctx, msg("m1", "c1")))

	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))

	assert.True(t, s.IsClosed())
	assert.True(t, c.IsClosed())
	assert.Zero(t, s.Pending())
	require.ErrorIs(t, s.Deliver(ctx, msg("m2", "c1")), ErrSessionClosed)
	require.ErrorIs(t, s.DeliverFirst(ctx, msg("m3", "c1")), ErrSessionClosed)
	require.ErrorIs(t, s.Start(ctx), ErrSessionClosed)
	_, err = s.CreateConsumer("c2", func(*protocol.Message) error { return nil })
	require.ErrorIs(t, err, ErrSessionClosed)

	var types []string
	for _, ev := range hub.Since(0) {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, events.SessionCreated)
	assert.Contains(t, types, events.ConsumerCreated)
	assert.Contains(t, types, events.SessionClosed)
}

func TestDispatchedByPoolWaitsForIterate(t *testing.T) {
	t.Parallel()
	conn := newConnection(t, false)
	ctx := context.Background()
	s, err := conn.CreateSession(ctx, Options{ID: "pooled", DispatchedByPool: true})
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))

	var box inbox
	_, err = s.CreateConsumer("c1", box.listen)
	require.NoError(t, err)

	require.NoError(t, s.Deliver(ctx, msg("m1", "c1")))
	require.NoError(t, s.DeliverFirst(ctx, msg("m0", "c1")))
	assert.Empty(t, box.ids())
	assert.True(t, s.Info().DispatchedByPool)

	for {
		more, err := s.Iterate()
		require.NoError(t, err)
		if !more {
			break
		}
	}
	assert.Equal(t, []string{"m0", "m1"}, box.ids())
}

func TestConnectionSessionRegistry(t *testing.T) {
	t.Parallel()
	conn := newConnection(t, false)
	ctx := context.Background()

	a, err := conn.CreateSession(ctx, Options{ID: "a"})
	require.NoError(t, err)
	anon, err := conn.CreateSession(ctx, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, anon.ID())

	_, err = conn.CreateSession(ctx, Options{ID: "a"})
	require.ErrorIs(t, err, ErrDuplicateSession)

	got, err := conn.Session("a")
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = conn.Session("missing")
	require.ErrorIs(t, err, ErrSessionNotFound)

	sessions := conn.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "a", sessions[0].ID())

	require.NoError(t, conn.Start(ctx))
	assert.True(t, a.IsRunning())
	require.NoError(t, conn.Stop(ctx))
	assert.False(t, a.IsRunning())

	require.NoError(t, conn.Close(ctx))
	assert.True(t, a.IsClosed())
	_, err = conn.CreateSession(ctx, Options{ID: "late"})
	require.ErrorIs(t, err, ErrConnectionClosed)
	require.ErrorIs(t, conn.Start(ctx), ErrConnectionClosed)
}

func TestSinkListeners(t *testing.T) {
	t.Parallel()
	hub := events.NewHub(4)

	l, err := NewSinkListener(SinkEvents, quietLogger(), hub)
	require.NoError(t, err)
	require.NoError(t, l(msg("m1", "c1")))
	got := hub.Since(0)
	require.Len(t, got, 1)
	assert.Equal(t, events.MessageSunk, got[0].Type)

	for _, kind := range []string{SinkLog, SinkDiscard, ""} {
		l, err := NewSinkListener(kind, quietLogger(), nil)
		require.NoError(t, err, kind)
		assert.NoError(t, l(msg("m1", "c1")))
	}

	_, err = NewSinkListener(SinkEvents, quietLogger(), nil)
	require.Error(t, err)
	_, err = NewSinkListener("kafka", quietLogger(), nil)
	require.Error(t, err)
}
