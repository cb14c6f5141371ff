// Package eventbus is an in-memory fanout used to decouple request timing
// from reporting.
//
// Contract:
//   - Publish never blocks.
//   - Subscribers receive on buffered channels.
//   - Slow subscribers drop events; drops are counted.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// Bus fans out values of type T to every subscriber.
// The zero value is not usable; call New.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[uint64]chan T
	seq    atomic.Uint64
	drops  atomic.Uint64
	closed bool
}

// New returns an empty bus. It owns no goroutines.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: map[uint64]chan T{}}
}

// Publish delivers v to each subscriber that has room and returns how many
// received it.
func (b *Bus[T]) Publish(v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	n := 0
	for _, ch := range b.subs {
		select {
		case ch <- v:
			n++
		default:
			b.drops.Add(1)
		}
	}
	return n
}

// Subscribe registers a channel with the given buffer (8 when <= 0).
// The returned func unsubscribes and closes the channel; it is idempotent.
func (b *Bus[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan T, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
			b.mu.Unlock()
		})
	}
}

// Subscribers reports the current subscriber count.
func (b *Bus[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Bus[T]) Dropped() uint64 { return b.drops.Load() }

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
