package queue

import "errors"

// ErrClosed is returned when a message is offered to a closed queue. It is
// expected during session teardown races and is never fatal.
var ErrClosed = errors.New("dispatch queue closed")

// Status is a point-in-time view of a queue's lifecycle flags.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusClosed  Status = "closed"
)
