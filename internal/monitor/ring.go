package monitor

import "github.com/pkg/errors"

// ErrCapacityExceeded is returned by TryPut when the chunk does not fit in the
// remaining space.
var ErrCapacityExceeded = errors.New("monitor: capacity exceeded")

// Ring is a fixed-capacity byte ring with an end-of-stream flag.
// It is not safe for concurrent use; Monitor provides the locking.
type Ring struct {
	data   []byte
	start  int
	count  int
	closed bool
}

// NewRing creates an empty ring holding at most capacity bytes.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{data: make([]byte, capacity)}
}

// Cap returns the total capacity.
func (r *Ring) Cap() int { return len(r.data) }

// Len returns the number of buffered bytes.
func (r *Ring) Len() int { return r.count }

// Remaining returns the free space.
func (r *Ring) Remaining() int { return len(r.data) - r.count }

// TryPut stores all of p or nothing.
func (r *Ring) TryPut(p []byte) error {
	if len(p) > r.Remaining() {
		return ErrCapacityExceeded
	}
	if len(p) == 0 {
		return nil
	}

	end := (r.start + r.count) % len(r.data)
	n := copy(r.data[end:], p)
	if n < len(p) {
		copy(r.data, p[n:])
	}
	r.count += len(p)
	return nil
}

// Take moves up to len(dst) bytes into dst and returns how many were moved.
// A closed, empty ring returns 0, which callers treat as end of stream.
func (r *Ring) Take(dst []byte) int {
	toRead := min(len(dst), r.count)
	if toRead == 0 {
		return 0
	}

	first := min(toRead, len(r.data)-r.start)
	copy(dst[:first], r.data[r.start:r.start+first])
	if first < toRead {
		copy(dst[first:toRead], r.data[:toRead-first])
	}

	r.start = (r.start + toRead) % len(r.data)
	r.count -= toRead
	return toRead
}

// Close marks the ring as receiving no more bytes. It is idempotent.
func (r *Ring) Close() { r.closed = true }

// Closed reports whether Close has been called.
func (r *Ring) Closed() bool { return r.closed }
