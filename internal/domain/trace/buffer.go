package trace

import "sync"

const defaultCapacity = 100

// Buffer is a concurrent-safe ring of the most recent entries.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// NewBuffer creates a buffer holding up to capacity entries. A non-positive
// capacity falls back to 100.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Buffer{entries: make([]Entry, capacity)}
}

// Record stores e, evicting the oldest entry when full.
func (b *Buffer) Record(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Recent returns up to n entries, oldest first.
func (b *Buffer) Recent(n int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	size := b.lenLocked()
	if n > size {
		n = size
	}
	if n <= 0 {
		return nil
	}

	out := make([]Entry, n)
	start := (b.next - n + len(b.entries)) % len(b.entries)
	for i := range n {
		out[i] = b.entries[(start+i)%len(b.entries)]
	}
	return out
}

// Len returns the number of stored entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lenLocked()
}

func (b *Buffer) lenLocked() int {
	if b.full {
		return len(b.entries)
	}
	return b.next
}
