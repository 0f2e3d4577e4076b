package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// DecodeMessage builds a Message from a raw JSON envelope of the form
//
//	{"consumer_id": "c1", "payload": {...}, "id": "...", "redelivery_count": 0}
//
// Only consumer_id is required. A missing id is generated.
func DecodeMessage(raw []byte) (*Message, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("message is empty")
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("message is not valid JSON")
	}

	res := gjson.GetManyBytes(raw, "consumer_id", "payload", "id", "redelivery_count", "timestamp")
	consumer, payload, id, redeliveries, ts := res[0], res[1], res[2], res[3], res[4]

	if consumer.Type != gjson.String || consumer.Str == "" {
		return nil, fmt.Errorf("message missing required field: consumer_id")
	}

	msg := &Message{
		ID:         id.String(),
		ConsumerID: ConsumerID(consumer.Str),
		Timestamp:  time.Now().UTC(),
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if payload.Exists() {
		msg.Payload = json.RawMessage(payload.Raw)
	}
	if redeliveries.Exists() {
		if redeliveries.Type != gjson.Number || redeliveries.Int() < 0 {
			return nil, fmt.Errorf("invalid redelivery_count: %s", redeliveries.Raw)
		}
		msg.RedeliveryCount = int(redeliveries.Int())
	}
	if ts.Exists() {
		t, err := time.Parse(time.RFC3339Nano, ts.String())
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp: %w", err)
		}
		msg.Timestamp = t.UTC()
	}
	return msg, nil
}

// EncodeMessage writes m to w as a single JSON line.
func EncodeMessage(w io.Writer, m *Message) error {
	if m == nil {
		return fmt.Errorf("message is nil")
	}
	if err := json.NewEncoder(w).Encode(m); err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return nil
}
