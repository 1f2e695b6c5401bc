package security

import (
	"sync"

	audit "certregistry/pkg/platform/audit"
)

// RingBuffer is a bounded, thread-safe FIFO of security events. When full,
// the oldest event is overwritten.
type RingBuffer struct {
	mu       sync.Mutex
	events   []audit.SecurityEvent
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int
	dropped  int64
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 10000
	}
	return &RingBuffer{
		events:   make([]audit.SecurityEvent, capacity),
		capacity: capacity,
	}
}

// Enqueue adds an event, dropping the oldest if necessary.
func (b *RingBuffer) Enqueue(event audit.SecurityEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == b.capacity {
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
	}
	b.events[b.head] = event
	b.head = (b.head + 1) % b.capacity
	b.count++
}

// DequeueBatch removes up to n events, oldest first.
func (b *RingBuffer) DequeueBatch(n int) []audit.SecurityEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	n = min(n, b.count)
	if n <= 0 {
		return nil
	}
	out := make([]audit.SecurityEvent, n)
	for i := range out {
		out[i] = b.events[b.tail]
		b.events[b.tail] = audit.SecurityEvent{}
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n
	return out
}

func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns the total number of overwritten events.
func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
