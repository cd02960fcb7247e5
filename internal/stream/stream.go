// ABOUTME: Server-Sent Events framing shared by push streams and RPC response streams
// ABOUTME: Wraps a go-sse session in a Sink that serializes writes and can be closed once

package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/tmaxmax/go-sse"
)

// Event type tokens. Done and Error are terminal: nothing follows them on a
// response stream.
const (
	EventConnected = "connected"
	EventHeartbeat = "heartbeat"
	EventMessage   = "message"
	EventDone      = "done"
	EventError     = "error"
)

var (
	// ErrClosed is returned when writing to a sink that has been closed.
	ErrClosed = errors.New("stream closed")

	// ErrInvalidEvent is returned for event tokens that would break the framing.
	ErrInvalidEvent = errors.New("invalid event type")
)

// Sink emits framed events to exactly one client.
type Sink interface {
	Send(event string, payload any) error
	Close()
}

// IsTerminal reports whether the event type ends a response stream.
func IsTerminal(event string) bool {
	return event == EventDone || event == EventError
}

// SessionSink is a Sink backed by an upgraded go-sse session.
type SessionSink struct {
	mu     sync.Mutex
	sess   *sse.Session
	closed bool
}

// Open sets the event-stream headers and upgrades the response.
// Callers must finish any non-streaming error handling (e.g. 401) before Open.
func Open(w http.ResponseWriter, r *http.Request) (*SessionSink, error) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sess, err := sse.Upgrade(w, r)
	if err != nil {
		return nil, fmt.Errorf("upgrading to event stream: %w", err)
	}
	return &SessionSink{sess: sess}, nil
}

// Send frames payload as JSON under the given event type and flushes it.
func (s *SessionSink) Send(event string, payload any) error {
	msg, err := Encode(event, payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.sess.Send(msg); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	if err := s.sess.Flush(); err != nil {
		return fmt.Errorf("flushing event: %w", err)
	}
	return nil
}

// Close marks the sink closed. It waits for an in-flight Send to finish, so no
// bytes reach the client once Close has returned.
func (s *SessionSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Encode builds the SSE message for an event without writing it.
func Encode(event string, payload any) (*sse.Message, error) {
	if event == "" || strings.ContainsAny(event, "\r\n") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEvent, event)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", event, err)
	}

	msg := &sse.Message{Type: sse.Type(event)}
	msg.AppendData(string(data))
	return msg, nil
}
