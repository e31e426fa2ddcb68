package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pleiades-agents/pleiades/internal/event"
)

// SDKEvent is the payload of every SSE message: {"type": "...", "properties": {...}}.
type SDKEvent struct {
	Type       event.EventType `json:"type"`
	Properties any             `json:"properties"`
}

const (
	// SSEHeartbeatInterval is the interval for SSE heartbeats.
	SSEHeartbeatInterval = 30 * time.Second
)

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter creates a new SSE writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeEvent writes one SSE event and flushes it.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData)
	if err != nil {
		return err
	}

	// ResponseController reaches through middleware wrappers.
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}

	return nil
}

// writeHeartbeat writes an SSE heartbeat comment.
func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// typeFilter parses ?type=a,b into a set. An empty set lets everything through.
func typeFilter(r *http.Request) map[event.EventType]bool {
	raw := r.URL.Query().Get("type")
	if raw == "" {
		return nil
	}
	set := make(map[event.EventType]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			set[event.EventType(t)] = true
		}
	}
	return set
}

// allEvents handles GET /event. It relays the bus stream as SSE, optionally
// limited to the comma separated event types in ?type=.
func (s *Server) allEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	messages, err := s.bus.Stream(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternalError, err.Error())
		return
	}

	// Headers go out before the first event.
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	connected := SDKEvent{
		Type:       "server.connected",
		Properties: map[string]any{"registry": s.dispatcher.Snapshot().ID()},
	}
	if err := sse.writeEvent("message", connected); err != nil {
		return
	}

	filter := typeFilter(r)

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			msg.Ack()
			env, err := event.Decode(msg)
			if err != nil {
				s.log.Warn().Err(err).Msg("dropping undecodable event")
				continue
			}
			if filter != nil && !filter[env.Type] {
				continue
			}
			if err := sse.writeEvent("message", SDKEvent{Type: env.Type, Properties: env.Properties}); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}
