// Package stream tracks which conversations currently have an in-flight
// streamed response. The sync service consults it read-only; the app shell
// drives Begin/End through the local API when a response starts and finishes.
package stream

import "sync"

// State is the read-only view handed to the sync service.
type State interface {
	// Streaming reports whether any conversation is actively streaming.
	Streaming() bool
	// StreamingConversation reports whether the given conversation is
	// actively streaming.
	StreamingConversation(id string) bool
}

// Tracker is the process-wide stream state. Begin/End calls may be unbalanced
// across reconnects, so active counts are clamped at zero.
type Tracker struct {
	mu     sync.RWMutex
	active map[string]int
}

func NewTracker() *Tracker {
	return &Tracker{active: make(map[string]int)}
}

// Begin marks a conversation as streaming.
func (t *Tracker) Begin(id string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[id]++
}

// End marks a conversation's stream as finished.
func (t *Tracker) End(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.active[id]; ok {
		if n <= 1 {
			delete(t.active, id)
		} else {
			t.active[id] = n - 1
		}
	}
}

func (t *Tracker) Streaming() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.active) > 0
}

func (t *Tracker) StreamingConversation(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.active[id]
	return ok
}
