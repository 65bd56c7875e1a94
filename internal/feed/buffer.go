package feed

import (
	"sync"

	"github.com/abelbrown/imageshelf/internal/notify"
)

// DefaultCapacity is the number of items kept when no capacity is configured.
const DefaultCapacity = 50

// Buffer is a fixed-capacity ring of feed items, read newest first.
// Goroutine-safe. Every mutation fires the change signal.
type Buffer struct {
	mu      sync.Mutex
	buf     []Item
	size    int
	head    int // next write position
	count   int // number of valid entries (0..size)
	changed *notify.Signal
}

// NewBuffer creates a buffer holding at most capacity items.
// A non-positive capacity selects DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		buf:     make([]Item, capacity),
		size:    capacity,
		changed: notify.NewSignal(),
	}
}

// Insert places item at the front, evicting the oldest item when full.
func (b *Buffer) Insert(item Item) {
	item = item.clone()
	b.mu.Lock()
	b.buf[b.head] = item
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
	b.mu.Unlock()
	b.changed.Notify()
}

// Clear removes every item and returns how many were dropped.
func (b *Buffer) Clear() int {
	b.mu.Lock()
	n := b.count
	clear(b.buf)
	b.head = 0
	b.count = 0
	b.mu.Unlock()
	b.changed.Notify()
	return n
}

// Snapshot returns a copy of the buffered items, newest first.
// The returned slice is safe to use without locks.
func (b *Buffer) Snapshot() []Item {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Item, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.buf[(b.head-1-i+b.size)%b.size]
	}
	return out
}

// Len returns the number of buffered items.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return b.size
}

// Changed returns a channel closed on the next mutation.
func (b *Buffer) Changed() <-chan struct{} {
	return b.changed.C()
}
