// ABOUTME: In-memory Sink that records frames, for tests of stream producers
// ABOUTME: Supports injected write failures to exercise transport-failure cleanup

package stream

import (
	"encoding/json"
	"sync"
)

// Frame is one recorded event.
type Frame struct {
	Event string
	Data  json.RawMessage
}

// Recorder is a Sink that keeps every frame in memory.
// Set FailAfter to make writes fail once that many frames have been accepted
// (a negative value never fails).
type Recorder struct {
	mu        sync.Mutex
	frames    []Frame
	closed    bool
	failAfter int
	failErr   error
}

// NewRecorder returns a Recorder that accepts every write.
func NewRecorder() *Recorder {
	return &Recorder{failAfter: -1}
}

// FailAfter makes the recorder reject writes after n accepted frames with err.
func (r *Recorder) FailAfter(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAfter = n
	r.failErr = err
}

// Send records the frame.
func (r *Recorder) Send(event string, payload any) error {
	if _, err := Encode(event, payload); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.failAfter >= 0 && len(r.frames) >= r.failAfter {
		if r.failErr != nil {
			return r.failErr
		}
		return ErrClosed
	}
	r.frames = append(r.frames, Frame{Event: event, Data: data})
	return nil
}

// Close marks the recorder closed.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// Frames returns a copy of the recorded frames.
func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

// Count returns the number of recorded frames of the given event type.
func (r *Recorder) Count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.frames {
		if f.Event == event {
			n++
		}
	}
	return n
}

// Closed reports whether Close has been called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
