// Package store holds pieces shared by the storage backends: the typed change
// notification bus and timestamp helpers. The backends themselves live in the
// sqlite and postgres subpackages.
package store

import (
	"sync"
	"time"

	"github.com/heygaia/chat-sync/internal/domain"
)

// Bus fans out store change events to subscribers. Both storage backends embed
// one; listeners run synchronously on the write path after the mutation has
// settled, so they should stay cheap and must not call back into the store.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]func(domain.Event)
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(domain.Event))}
}

// Subscribe registers fn and returns its unsubscribe func.
func (b *Bus) Subscribe(fn func(domain.Event)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers ev to every subscriber.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.RLock()
	fns := make([]func(domain.Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Millis converts a timestamp to epoch milliseconds, normalizing the zero
// value to 0 so missing timestamps always compare older than real ones.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis is the inverse of Millis.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
