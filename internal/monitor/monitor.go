// Package monitor implements a bounded single-producer, single-consumer byte
// channel. Put enqueues a whole chunk or blocks until it fits; Get drains
// whatever is available and returns 0 once the producer has closed the
// channel and every buffered byte has been delivered.
package monitor

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrChunkTooLarge is returned by Put when a chunk can never fit.
	ErrChunkTooLarge = errors.New("monitor: chunk larger than capacity")
	// ErrClosed is returned by Put after Close.
	ErrClosed = errors.New("monitor: put on closed channel")
	// ErrAborted is the default error reported after Abort.
	ErrAborted = errors.New("monitor: aborted")
)

// Monitor guards a Ring with one mutex and two conditions.
type Monitor struct {
	mu       sync.Mutex
	notFull  sync.Cond
	notEmpty sync.Cond

	ring     *Ring
	abortErr error
}

// New creates a monitor over a fresh ring of the given capacity.
func New(capacity int) *Monitor {
	m := &Monitor{ring: NewRing(capacity)}
	m.notFull.L = &m.mu
	m.notEmpty.L = &m.mu
	return m
}

// Cap returns the capacity of the underlying ring.
func (m *Monitor) Cap() int {
	return m.ring.Cap()
}

// Put blocks until p fits, then stores it as one unit.
func (m *Monitor) Put(p []byte) error {
	if len(p) > m.ring.Cap() {
		return errors.Wrapf(ErrChunkTooLarge, "chunk of %d bytes, capacity %d", len(p), m.ring.Cap())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.waitForSpaceLocked(len(p)); err != nil {
		return err
	}

	if err := m.ring.TryPut(p); err != nil {
		return err
	}
	m.notEmpty.Broadcast()
	return nil
}

// Get blocks until data is available or the channel is closed, then moves up
// to len(p) bytes into p. A return of 0 with a nil error is end of stream.
// An empty p returns 0 immediately without consuming anything.
func (m *Monitor) Get(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.waitForDataLocked(); err != nil {
		return 0, err
	}

	n := m.ring.Take(p)
	m.notFull.Broadcast()
	return n, nil
}

// Close marks end of stream and wakes every waiter. It is idempotent.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ring.Close()
	m.notEmpty.Broadcast()
	m.notFull.Broadcast()
}

// Abort fails every pending and future Put and Get with err, or ErrAborted
// when err is nil. Only the first abort error is kept.
func (m *Monitor) Abort(err error) {
	if err == nil {
		err = ErrAborted
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.abortErr == nil {
		m.abortErr = err
	}
	m.notEmpty.Broadcast()
	m.notFull.Broadcast()
}

// Occupancy returns the fraction of capacity in use.
func (m *Monitor) Occupancy() float64 {
	m.mu.Lock()
	n := m.ring.Len()
	m.mu.Unlock()
	return float64(n) / float64(m.ring.Cap())
}

// Len returns the number of buffered bytes.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ring.Len()
}

// Remaining returns the free space.
func (m *Monitor) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ring.Remaining()
}

func (m *Monitor) waitForSpaceLocked(need int) error {
	for {
		if m.abortErr != nil {
			return m.abortErr
		}
		if m.ring.Closed() {
			return ErrClosed
		}
		if m.ring.Remaining() >= need {
			return nil
		}
		m.notFull.Wait()
	}
}

func (m *Monitor) waitForDataLocked() error {
	for {
		if m.abortErr != nil {
			return m.abortErr
		}
		if m.ring.Len() > 0 || m.ring.Closed() {
			return nil
		}
		m.notEmpty.Wait()
	}
}
