// ABOUTME: Observer that records every delivered event
// ABOUTME: Query helpers filter the recording by type
package sequencertest

import (
	"sync"

	"github.com/harperreed/seqplay/pkg/sequencer"
)

// Recorder is a sequencer.Observer that keeps every event it receives
type Recorder struct {
	mu     sync.Mutex
	events []sequencer.Event
}

// OnEvent records e
func (r *Recorder) OnEvent(e sequencer.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recording
func (r *Recorder) Events() []sequencer.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sequencer.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order, skipping progress
func (r *Recorder) Types() []sequencer.EventType {
	var types []sequencer.EventType
	for _, e := range r.Events() {
		if e.Type != sequencer.EventProgress {
			types = append(types, e.Type)
		}
	}
	return types
}

// Of returns the recorded events of type t
func (r *Recorder) Of(t sequencer.EventType) []sequencer.Event {
	var out []sequencer.Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// IDs returns the ids of recorded events of type t
func (r *Recorder) IDs(t sequencer.EventType) []int64 {
	var ids []int64
	for _, e := range r.Of(t) {
		ids = append(ids, e.ID)
	}
	return ids
}

// Count returns how many events of type t were recorded
func (r *Recorder) Count(t sequencer.EventType) int {
	return len(r.Of(t))
}

// Reset forgets everything recorded so far
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
