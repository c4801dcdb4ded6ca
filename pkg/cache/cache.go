// Package cache provides the tag-based invalidation signal the core emits
// toward the presentation layer. The core only publishes tags; caching
// itself lives with the subscribers.
package cache

import (
	"sync"

	"anonboard/pkg/logger"
)

// Tag helpers used across the core.
func BoardTag(boardID string) string   { return "board-" + boardID }
func ThreadTag(threadID string) string { return "thread-" + threadID }

// AllThreadsTag covers the global active-thread listing.
const AllThreadsTag = "all-threads"

// Invalidator is the signal consumed by the core.
type Invalidator interface {
	Invalidate(tag string)
}

// Broker fans invalidation tags out to subscribers. Subscribe order is
// preserved; delivery is synchronous.
type Broker struct {
	mu   sync.RWMutex
	subs []func(tag string)
}

func NewBroker() *Broker { return &Broker{} }

// Subscribe registers a callback for every invalidated tag.
func (b *Broker) Subscribe(fn func(tag string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

func (b *Broker) Invalidate(tag string) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	logger.Debug("cache_invalidate", "tag", tag)
	for _, fn := range subs {
		fn(tag)
	}
}

// Nop discards all invalidations; handy in tests.
type Nop struct{}

func (Nop) Invalidate(string) {}
