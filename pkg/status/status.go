// Package status carries human-readable run events from the core to
// whatever is watching: the terminal, the log, the state history.
//
// Delivery is fire-and-forget. A Sink must never block the run for long
// and must swallow its own failures.
package status

import (
	"sync"
	"time"

	"grokfav/pkg/models"
)

// State is the coarse run state attached to every event
type State string

const (
	StateRunning State = "running"
	StateDebug   State = "debug"
	StateIdle    State = "idle"
	StateError   State = "error"
)

// DefaultHistorySize bounds the retained event history
const DefaultHistorySize = 500

// Event is a single status notification
type Event struct {
	Text      string           `json:"text"`
	State     State            `json:"state"`
	Timestamp time.Time        `json:"timestamp"`
	Progress  *models.Progress `json:"progress,omitempty"`
}

// Sink receives status events
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(Event)

// Publish calls f(e)
func (f SinkFunc) Publish(e Event) {
	f(e)
}

// Multi fans an event out to several sinks in order
type Multi []Sink

// Publish delivers e to every non-nil sink
func (m Multi) Publish(e Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(e)
		}
	}
}

// Discard drops every event
var Discard Sink = SinkFunc(func(Event) {})

// History keeps the most recent events and implements Sink
type History struct {
	mu     sync.Mutex
	max    int
	events []Event
}

// NewHistory creates a history bounded to max entries
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &History{max: max}
}

// Publish appends e, dropping the oldest entries past the bound
func (h *History) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, e)
	if over := len(h.events) - h.max; over > 0 {
		h.events = append(h.events[:0:0], h.events[over:]...)
	}
}

// Events returns a copy of the retained events, oldest first
func (h *History) Events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

// Reset drops all retained events
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = nil
}

// Len returns the number of retained events
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

// Recorder captures every event; handy in tests
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish records e
func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Texts returns the text of every recorded event
func (r *Recorder) Texts() []string {
	events := r.Events()
	texts := make([]string, len(events))
	for i, e := range events {
		texts[i] = e.Text
	}
	return texts
}

// Truncate shortens s to max runes, marking the cut with "..."
func Truncate(s string, max int) string {
	runes := []rune(s)
	if max <= 3 || len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
