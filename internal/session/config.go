package session

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dimaskiddo/bufrelay/internal/monitor"
)

const (
	DefaultCapacity       = 4 * 1024 * 1024
	DefaultChunkSize      = 512
	DefaultSampleInterval = time.Second
)

// Config controls one relay session.
type Config struct {
	// Capacity is the size of the session buffer in bytes.
	Capacity int
	// ChunkSize is the largest inbound read, and so the largest Put.
	ChunkSize int
	// DrainSize is the largest Get issued by the writer. Defaults to ChunkSize.
	DrainSize int
	// SampleInterval is the occupancy sampling period. Zero disables sampling.
	SampleInterval time.Duration
	// PropagateWriteFailure stops the reader when the writer fails. When false
	// the reader keeps filling the buffer after the writer is gone and may
	// block once it is full.
	PropagateWriteFailure bool

	Logger   *zap.Logger
	Observer Observer
}

// DefaultConfig returns the settings the relay uses when no flags are given.
func DefaultConfig() Config {
	return Config{
		Capacity:       DefaultCapacity,
		ChunkSize:      DefaultChunkSize,
		SampleInterval: DefaultSampleInterval,
	}
}

func (c Config) normalize() (Config, error) {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.DrainSize <= 0 {
		c.DrainSize = c.ChunkSize
	}
	if c.ChunkSize > c.Capacity {
		return c, errors.Wrapf(monitor.ErrChunkTooLarge, "chunk size %d, capacity %d", c.ChunkSize, c.Capacity)
	}
	if c.SampleInterval < 0 {
		c.SampleInterval = 0
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	return c, nil
}
