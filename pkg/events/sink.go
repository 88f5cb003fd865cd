package events

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// SSESink writes events as server-sent-event frames: a "data: {json}" line
// followed by a blank line, flushed after every event so the client sees
// stage progress as it happens.
type SSESink struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

// NewSSESink wraps an HTTP response writer. The flusher may be nil when the
// writer does not support streaming; frames are then delivered on close.
func NewSSESink(w io.Writer) *SSESink {
	s := &SSESink{w: w}
	if f, ok := w.(http.Flusher); ok {
		s.flusher = f
	}
	return s
}

// Emit serializes and flushes one event. Returns the write error unchanged
// so the caller can detect client disconnect.
func (s *SSESink) Emit(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.Type, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Collector is an in-memory sink that records every event, for the JSON
// fallback path and for tests.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Emit records the event. Never fails.
func (c *Collector) Emit(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

// Events returns a copy of the recorded events in emit order.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Types returns just the recorded event types, in order.
func (c *Collector) Types() []Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Type, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}
