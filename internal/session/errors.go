package session

import "errors"

var (
	ErrConnectionClosed  = errors.New("connection closed")
	ErrSessionClosed     = errors.New("session closed")
	ErrSessionNotFound   = errors.New("session not found")
	ErrDuplicateSession  = errors.New("duplicate session")
	ErrDuplicateConsumer = errors.New("duplicate consumer")
	ErrConsumerNotFound  = errors.New("consumer not found")
	ErrConsumerClosed    = errors.New("consumer closed")
)
