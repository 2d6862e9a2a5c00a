package alert

import (
	"sync"

	"netsentry/internal/model"
)

// Ring keeps the most recent alert records in memory for the operator API.
// It implements model.RecordWriter so it can subscribe to the hub like any
// other sink.
type Ring struct {
	mu   sync.RWMutex
	buf  []model.AlertRecord
	next int
	full bool
}

// NewRing holds at most capacity records, overwriting the oldest.
func NewRing(capacity int) *Ring {
	return &Ring{buf: make([]model.AlertRecord, capacity)}
}

// WriteRecord stores one record, evicting the oldest when full.
func (r *Ring) WriteRecord(rec model.AlertRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = rec
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

// Recent returns up to n records, newest first.
func (r *Ring) Recent(n int) []model.AlertRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	size := r.next
	if r.full {
		size = len(r.buf)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]model.AlertRecord, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Close satisfies model.RecordWriter.
func (r *Ring) Close() error { return nil }
