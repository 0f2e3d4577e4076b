package api

import (
	"github.com/mattjoyce/courier/internal/events"
	"github.com/mattjoyce/courier/internal/session"
)

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Sessions      int    `json:"sessions"`
	Pending       int    `json:"pending"`
}

// SessionsResponse is returned by GET /sessions.
type SessionsResponse struct {
	Sessions []session.Info `json:"sessions"`
}

// MessageResponse is returned once a message is accepted.
type MessageResponse struct {
	MessageID  string `json:"message_id"`
	SessionID  string `json:"session_id"`
	ConsumerID string `json:"consumer_id"`
	First      bool   `json:"first"`
}

// RecoverResponse is returned by POST /sessions/{sessionID}/recover.
type RecoverResponse struct {
	SessionID string `json:"session_id"`
	Recovered int    `json:"recovered"`
}

// EventsResponse is returned by GET /events.
type EventsResponse struct {
	Events []events.Event `json:"events"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}
