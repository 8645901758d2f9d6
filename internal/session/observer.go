package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Info describes a session to observers.
type Info struct {
	ID       string
	Inbound  string
	Outbound string
	Started  time.Time
}

// Stats are the byte counters of a session.
type Stats struct {
	BytesIn  int64
	BytesOut int64
}

// Observer receives session lifecycle events and occupancy samples.
// Calls are made from the session's goroutines and must not block.
type Observer interface {
	Started(info Info)
	Sampled(id string, occupancy float64, stats Stats)
	Finished(id string, stats Stats, err error)
}

type nopObserver struct{}

func (nopObserver) Started(Info)                   {}
func (nopObserver) Sampled(string, float64, Stats) {}
func (nopObserver) Finished(string, Stats, error)  {}

// NewID returns a random session identifier.
func NewID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
