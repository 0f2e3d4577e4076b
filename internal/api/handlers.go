package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/courier/internal/dispatch"
	"github.com/mattjoyce/courier/internal/protocol"
	"github.com/mattjoyce/courier/internal/queue"
	"github.com/mattjoyce/courier/internal/session"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.Sessions()
	pending := 0
	for _, sess := range sessions {
		pending += sess.Pending()
	}
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Sessions:      len(sessions),
		Pending:       pending,
	})
}

// handleListSessions handles GET /sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	resp := SessionsResponse{Sessions: []session.Info{}}
	for _, sess := range s.sessions.Sessions() {
		resp.Sessions = append(resp.Sessions, sess.Info())
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleGetSession handles GET /sessions/{sessionID}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sess.Info())
}

// handlePostMessage handles POST /sessions/{sessionID}/messages. The body is
// a message envelope; ?first=true queues it ahead of the backlog.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "message too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	msg, err := protocol.DecodeMessage(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	first := r.URL.Query().Get("first") == "true"
	if first {
		err = sess.DeliverFirst(r.Context(), msg)
	} else {
		err = sess.Deliver(r.Context(), msg)
	}
	if err != nil {
		s.logger.Warn("message rejected", "session_id", sess.ID(), "message_id", msg.ID, "error", err)
		writeError(w, deliveryStatus(err), err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, MessageResponse{
		MessageID:  msg.ID,
		SessionID:  sess.ID(),
		ConsumerID: string(msg.ConsumerID),
		First:      first,
	})
}

// handleStart handles POST /sessions/{sessionID}/start.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := sess.Start(r.Context()); err != nil {
		writeError(w, deliveryStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess.Info())
}

// handleStop handles POST /sessions/{sessionID}/stop.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := sess.Stop(r.Context()); err != nil {
		writeError(w, deliveryStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess.Info())
}

// handleRecover handles POST /sessions/{sessionID}/recover.
func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	n, err := sess.Recover(r.Context())
	if err != nil {
		writeError(w, deliveryStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, RecoverResponse{SessionID: sess.ID(), Recovered: n})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Session(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

// deliveryStatus maps session and executor errors to HTTP status codes. Any
// other error came out of a consumer during inline delivery.
func deliveryStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionClosed), errors.Is(err, queue.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrInterrupted), errors.Is(err, dispatch.ErrShutdown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func parseEventID(v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
