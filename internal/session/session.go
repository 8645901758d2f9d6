// Package session relays one inbound byte stream to one outbound byte stream
// through a bounded buffer.
//
// A reader goroutine puts inbound chunks into the buffer and closes it at end
// of stream. A writer goroutine drains the buffer to the outbound stream until
// it reports end of stream. An optional sampler logs buffer occupancy while
// both run. A slow outbound peer fills the buffer and so blocks the reader.
package session

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dimaskiddo/bufrelay/internal/monitor"
)

// Session owns one buffer and the two streams it connects.
// A Session runs once; build a new one per connection.
type Session struct {
	id  string
	cfg Config
	log *zap.Logger
	mon *monitor.Monitor

	in  io.ReadCloser
	out io.WriteCloser

	inOnce  sync.Once
	outOnce sync.Once

	bytesIn  atomic.Int64
	bytesOut atomic.Int64
}

// New builds a session relaying in to out.
func New(id string, in io.ReadCloser, out io.WriteCloser, cfg Config) (*Session, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = NewID()
	}

	return &Session{
		id:  id,
		cfg: cfg,
		log: cfg.Logger.With(zap.String("session", id)),
		mon: monitor.New(cfg.Capacity),
		in:  in,
		out: out,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Stats returns the bytes received and sent so far.
func (s *Session) Stats() Stats {
	return Stats{
		BytesIn:  s.bytesIn.Load(),
		BytesOut: s.bytesOut.Load(),
	}
}

// Run relays until the inbound stream ends and the buffer is drained, or a
// task fails. Both streams are closed before Run returns. Cancelling ctx
// aborts the buffer and closes the streams so that blocked tasks return.
func (s *Session) Run(ctx context.Context) error {
	info := Info{
		ID:       s.id,
		Inbound:  remoteAddr(s.in),
		Outbound: remoteAddr(s.out),
		Started:  time.Now(),
	}
	s.cfg.Observer.Started(info)
	s.log.Info("session started",
		zap.String("inbound", info.Inbound),
		zap.String("outbound", info.Outbound),
		zap.Int("capacity", s.cfg.Capacity))

	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.log.Debug("session cancelled", zap.Error(ctx.Err()))
			s.mon.Abort(ctx.Err())
			s.closeInbound()
			s.closeOutbound()
		case <-finished:
		}
	}()

	stopSampler := make(chan struct{})
	samplerDone := make(chan struct{})
	if s.cfg.SampleInterval > 0 {
		go func() {
			defer close(samplerDone)
			s.sample(stopSampler)
		}()
	} else {
		close(samplerDone)
	}

	var (
		wg       sync.WaitGroup
		readErr  error
		writeErr error
	)
	wg.Go(func() {
		readErr = s.read()
	})
	wg.Go(func() {
		writeErr = s.write()
	})
	wg.Wait()
	close(finished)

	close(stopSampler)
	<-samplerDone

	s.closeInbound()
	s.closeOutbound()

	err := multierr.Combine(readErr, writeErr)
	stats := s.Stats()
	fields := []zap.Field{
		zap.Int64("bytes_in", stats.BytesIn),
		zap.Int64("bytes_out", stats.BytesOut),
		zap.Duration("elapsed", time.Since(info.Started)),
	}
	if err != nil {
		s.log.Warn("session failed", append(fields, zap.Error(err))...)
	} else {
		s.log.Info("session finished", fields...)
	}
	s.cfg.Observer.Finished(s.id, stats, err)
	return err
}

func (s *Session) read() error {
	buf := make([]byte, s.cfg.ChunkSize)
	for {
		n, err := s.in.Read(buf)
		if n > 0 {
			if perr := s.mon.Put(buf[:n]); perr != nil {
				s.mon.Close()
				return errors.Wrap(perr, "buffer inbound chunk")
			}
			s.bytesIn.Add(int64(n))
		}
		if err == io.EOF {
			s.log.Debug("inbound end of stream")
			s.mon.Close()
			return nil
		}
		if err != nil {
			s.mon.Close()
			return &ReadError{Err: err}
		}
	}
}

func (s *Session) write() error {
	buf := make([]byte, s.cfg.DrainSize)
	for {
		n, err := s.mon.Get(buf)
		if err != nil {
			return errors.Wrap(err, "drain buffer")
		}
		if n == 0 {
			s.log.Debug("buffer drained")
			return nil
		}

		wrote, err := writeAll(s.out, buf[:n])
		s.bytesOut.Add(int64(wrote))
		if err != nil {
			werr := &WriteError{Err: err}
			if s.cfg.PropagateWriteFailure {
				s.mon.Abort(werr)
				s.closeInbound()
			}
			return werr
		}
	}
}

// writeAll retries short writes until p is sent. A write that makes no
// progress without reporting an error fails with io.ErrShortWrite.
func writeAll(w io.Writer, p []byte) (int, error) {
	var total int
	for len(p) > 0 {
		n, err := w.Write(p)
		if n < 0 || n > len(p) {
			n = 0
			if err == nil {
				err = io.ErrShortWrite
			}
		}
		total += n
		p = p[n:]
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

func (s *Session) closeInbound() {
	s.inOnce.Do(func() {
		if err := s.in.Close(); err != nil {
			s.log.Debug("close inbound", zap.Error(err))
		}
	})
}

func (s *Session) closeOutbound() {
	s.outOnce.Do(func() {
		if err := s.out.Close(); err != nil {
			s.log.Debug("close outbound", zap.Error(err))
		}
	})
}

func remoteAddr(v any) string {
	if c, ok := v.(interface{ RemoteAddr() net.Addr }); ok && c.RemoteAddr() != nil {
		return c.RemoteAddr().String()
	}
	return ""
}
