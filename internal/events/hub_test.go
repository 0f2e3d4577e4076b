package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubSinceReturnsNewerEvents(t *testing.T) {
	t.Parallel()
	h := NewHub(10)
	h.Publish(SessionStarted, map[string]string{"session_id": "orders"})
	h.Publish(MessageDelivered, map[string]string{"message_id": "m1"})
	h.Publish(SessionStopped, nil)

	all := h.Since(0)
	require.Len(t, all, 3)
	assert.Equal(t, SessionStarted, all[0].Type)
	assert.JSONEq(t, `{"session_id":"orders"}`, string(all[0].Data))
	assert.JSONEq(t, `{}`, string(all[2].Data))

	tail := h.Since(all[1].ID)
	require.Len(t, tail, 1)
	assert.Equal(t, SessionStopped, tail[0].Type)
	assert.Equal(t, int64(3), h.LastID())
}

func TestHubRingOverwritesOldest(t *testing.T) {
	t.Parallel()
	h := NewHub(3)
	for range 5 {
		h.Publish(MessageDropped, nil)
	}

	got := h.Since(0)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{got[0].ID, got[1].ID, got[2].ID})
}

func TestHubDefaultCapacity(t *testing.T) {
	t.Parallel()
	h := NewHub(0)
	assert.Len(t, h.ring, defaultCapacity)
}

func TestHubUnmarshallableDataPublishesEmptyObject(t *testing.T) {
	t.Parallel()
	h := NewHub(2)
	h.Publish(MessageFailed, map[string]any{"bad": make(chan int)})

	got := h.Since(0)
	require.Len(t, got, 1)
	assert.Equal(t, json.RawMessage(`{}`), got[0].Data)
}

func TestHubSubscribe(t *testing.T) {
	t.Parallel()
	h := NewHub(4)
	ch, cancel := h.Subscribe()

	h.Publish(ConsumerCreated, map[string]string{"consumer_id": "c1"})

	select {
	case ev := <-ch:
		assert.Equal(t, ConsumerCreated, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open, "cancel closes the channel")

	h.Publish(ConsumerClosed, nil)
}
