// Package ringbuf implements the shared-memory boundary between the
// capture callback and spectrum readers: a fixed-capacity ring of mono
// float32 samples with one writer, any number of readers, and a version
// counter that lets readers detect and retry torn copies instead of
// blocking the writer.
package ringbuf

import (
	"errors"
	"sync/atomic"
)

// ErrInsufficient is returned by Snapshot when fewer samples than requested
// have ever been written, or when a bounded number of retries could not
// obtain a copy that no write raced with.
var ErrInsufficient = errors.New("not enough samples buffered")

// snapshotRetries bounds how often a reader re-copies after losing a race
// with the writer before giving up. Correctness over freshness.
const snapshotRetries = 4

// Ring is a single-writer, multi-reader circular sample buffer.
// Write must only ever be called from one goroutine; Snapshot may be
// called from any number of goroutines concurrently.
type Ring struct {
	buf     []float32
	mask    uint64
	written atomic.Uint64 // total samples written since creation
	version atomic.Uint64 // odd while a write batch is in progress
}

// New returns a ring holding capacity samples. Capacity must be a positive
// power of two so that positions can wrap with a mask.
func New(capacity int) *Ring {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("ringbuf: capacity must be a positive power of two")
	}
	return &Ring{
		buf:  make([]float32, capacity),
		mask: uint64(capacity - 1),
	}
}

// Cap returns the ring capacity in samples.
func (r *Ring) Cap() int { return len(r.buf) }

// Written returns the total number of samples written so far.
func (r *Ring) Written() uint64 { return r.written.Load() }

// Write appends samples, overwriting the oldest history once the capacity
// is exceeded; the ring always holds the most recent Cap() samples.
// It never blocks and performs no allocation.
func (r *Ring) Write(samples []float32) {
	if len(samples) == 0 {
		return
	}
	r.version.Add(1) // odd: write in progress
	pos := r.written.Load()
	for _, s := range samples {
		r.buf[pos&r.mask] = s
		pos++
	}
	r.written.Store(pos)
	r.version.Add(1) // even: write complete
}

// Snapshot copies the most recent len(dst) samples into dst. The copy is
// consistent: if a write raced with it, the race is detected through the
// version counter and the copy is retried a bounded number of times.
func (r *Ring) Snapshot(dst []float32) error {
	count := uint64(len(dst))
	if count == 0 {
		return nil
	}
	if count > uint64(len(r.buf)) {
		return ErrInsufficient
	}
	for range snapshotRetries {
		v := r.version.Load()
		if v&1 != 0 {
			continue // write in progress
		}
		end := r.written.Load()
		if end < count {
			return ErrInsufficient
		}
		start := end - count
		for i := range dst {
			dst[i] = r.buf[(start+uint64(i))&r.mask]
		}
		if r.version.Load() == v {
			return nil
		}
	}
	return ErrInsufficient
}
