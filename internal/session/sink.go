package session

import (
	"fmt"
	"log/slog"

	"github.com/mattjoyce/courier/internal/events"
	"github.com/mattjoyce/courier/internal/protocol"
)

// Sink kinds accepted in consumer configuration.
const (
	SinkLog     = "log"
	SinkEvents  = "events"
	SinkDiscard = "discard"
)

// NewSinkListener builds a Listener for one of the configured sink kinds.
func NewSinkListener(kind string, logger *slog.Logger, pub Publisher) (Listener, error) {
	switch kind {
	case SinkLog, "":
		return func(msg *protocol.Message) error {
			logger.Info("message received",
				"message_id", msg.ID,
				"consumer_id", msg.ConsumerID,
				"redelivery_count", msg.RedeliveryCount,
				"payload_bytes", len(msg.Payload),
			)
			return nil
		}, nil
	case SinkEvents:
		if pub == nil {
			return nil, fmt.Errorf("sink %q needs an event publisher", kind)
		}
		return func(msg *protocol.Message) error {
			pub.Publish(events.MessageSunk, msg)
			return nil
		}, nil
	case SinkDiscard:
		return func(*protocol.Message) error { return nil }, nil
	default:
		return nil, fmt.Errorf("unknown sink %q", kind)
	}
}
