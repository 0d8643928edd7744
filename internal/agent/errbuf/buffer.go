// Package errbuf holds runtime failures captured inside the sandbox.
package errbuf

import (
	"sync"

	"github.com/draftforge/preview/internal/protocol"
)

// DefaultCapacity bounds the buffer when no explicit capacity is given.
const DefaultCapacity = 50

// Buffer is a bounded ring of the most recent error records. When full,
// the oldest entry is dropped first; the newest capture is always kept.
type Buffer struct {
	mu      sync.Mutex
	records []protocol.ErrorRecord
	cap     int
}

// New creates a buffer holding at most capacity records.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{cap: capacity}
}

// Capture appends a record, evicting the oldest if the ring is full.
func (b *Buffer) Capture(rec protocol.ErrorRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records = append(b.records, rec)
	if len(b.records) > b.cap {
		b.records = b.records[len(b.records)-b.cap:]
	}
}

// Snapshot returns a copy of the current records, oldest first.
func (b *Buffer) Snapshot() []protocol.ErrorRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]protocol.ErrorRecord, len(b.records))
	copy(out, b.records)
	return out
}

// Len reports the number of buffered records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = nil
}
