package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mattjoyce/courier/internal/events"
)

// handleEvents handles GET /events. It returns buffered events newer than
// ?since=N as JSON, or streams them as server-sent events when the client
// accepts text/event-stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	since := parseEventID(r.URL.Query().Get("since"))
	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		evs := s.events.Since(since)
		if evs == nil {
			evs = []events.Event{}
		}
		respondJSON(w, http.StatusOK, EventsResponse{Events: evs})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if id := parseEventID(r.Header.Get("Last-Event-ID")); id > since {
		since = id
	}

	// Subscribe before replaying so nothing published in between is lost.
	ch, cancel := s.events.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for _, ev := range s.events.Since(since) {
		if err := writeSSE(w, ev); err != nil {
			return
		}
		since = ev.ID
	}
	flusher.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.ID <= since {
				continue
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev events.Event) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, ev.Data)
	return err
}
