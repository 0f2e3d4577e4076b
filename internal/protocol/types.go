package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ConsumerID names one consumer within a session. Two consumers in the same
// session never share an ID.
type ConsumerID string

// Message is the unit of dispatch: an opaque payload addressed to a consumer.
// A Message is not modified after it is handed to a session.
type Message struct {
	ID              string          `json:"id"`
	ConsumerID      ConsumerID      `json:"consumer_id"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	RedeliveryCount int             `json:"redelivery_count,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// NewMessage returns a message with a fresh ID addressed to consumer.
func NewMessage(consumer ConsumerID, payload json.RawMessage) *Message {
	return &Message{
		ID:         uuid.NewString(),
		ConsumerID: consumer,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}
}

// Redelivered returns a copy of m with the redelivery counter incremented.
func (m *Message) Redelivered() *Message {
	cp := *m
	cp.RedeliveryCount++
	return &cp
}
