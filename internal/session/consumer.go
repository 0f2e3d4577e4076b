package session

import (
	"fmt"
	"sync/atomic"

	"github.com/mattjoyce/courier/internal/protocol"
)

// Listener handles one message. It runs on whichever goroutine the session's
// executor delivers on.
type Listener func(msg *protocol.Message) error

// Consumer is a registered message target within a session.
type Consumer struct {
	id       protocol.ConsumerID
	listener Listener

	delivered atomic.Int64
	failed    atomic.Int64
	closed    atomic.Bool
}

// ConsumerID implements dispatch.Consumer.
func (c *Consumer) ConsumerID() protocol.ConsumerID {
	return c.id
}

// Dispatch implements dispatch.Consumer.
func (c *Consumer) Dispatch(msg *protocol.Message) error {
	if c.closed.Load() {
		return fmt.Errorf("%w: %s", ErrConsumerClosed, c.id)
	}
	if err := c.listener(msg); err != nil {
		c.failed.Add(1)
		return err
	}
	c.delivered.Add(1)
	return nil
}

func (c *Consumer) Delivered() int64 { return c.delivered.Load() }
func (c *Consumer) Failed() int64    { return c.failed.Load() }
func (c *Consumer) IsClosed() bool   { return c.closed.Load() }

func (c *Consumer) close() {
	c.closed.Store(true)
}
