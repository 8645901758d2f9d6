package session

import (
	"strconv"
	"time"

	"go.uber.org/zap"
)

// sample reports occupancy every tick and once more when stop is closed.
func (s *Session) sample(stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		s.emitSample()
		select {
		case <-stop:
			s.emitSample()
			return
		case <-ticker.C:
		}
	}
}

func (s *Session) emitSample() {
	occupancy := s.mon.Occupancy()
	stats := s.Stats()

	s.log.Info("buffer occupancy",
		zap.String("percent", strconv.FormatFloat(occupancy*100, 'f', 2, 64)),
		zap.Int64("bytes_in", stats.BytesIn),
		zap.Int64("bytes_out", stats.BytesOut))
	s.cfg.Observer.Sampled(s.id, occupancy, stats)
}
