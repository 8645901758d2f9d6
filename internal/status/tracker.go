// Package status keeps relay session counters and serves them over HTTP.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/dimaskiddo/bufrelay/internal/session"
)

// SessionStatus is the latest view of one active session.
type SessionStatus struct {
	ID               string    `json:"id"`
	Inbound          string    `json:"inbound"`
	Outbound         string    `json:"outbound"`
	Started          time.Time `json:"started"`
	OccupancyPercent float64   `json:"occupancyPercent"`
	BytesIn          int64     `json:"bytesIn"`
	BytesOut         int64     `json:"bytesOut"`
}

// Snapshot is what the /status endpoint returns.
type Snapshot struct {
	Uptime         string          `json:"uptime"`
	SessionsTotal  int64           `json:"sessionsTotal"`
	SessionsFailed int64           `json:"sessionsFailed"`
	BytesIn        int64           `json:"bytesIn"`
	BytesOut       int64           `json:"bytesOut"`
	Active         []SessionStatus `json:"active"`
}

// Tracker records session events. It implements session.Observer.
type Tracker struct {
	mu        sync.Mutex
	startTime time.Time
	total     int64
	failed    int64
	bytesIn   int64
	bytesOut  int64
	active    map[string]*SessionStatus
}

var _ session.Observer = (*Tracker)(nil)

func NewTracker() *Tracker {
	return &Tracker{
		startTime: time.Now(),
		active:    make(map[string]*SessionStatus),
	}
}

func (t *Tracker) Started(info session.Info) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total++
	t.active[info.ID] = &SessionStatus{
		ID:       info.ID,
		Inbound:  info.Inbound,
		Outbound: info.Outbound,
		Started:  info.Started,
	}
}

func (t *Tracker) Sampled(id string, occupancy float64, stats session.Stats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.active[id]; ok {
		s.OccupancyPercent = occupancy * 100
		s.BytesIn = stats.BytesIn
		s.BytesOut = stats.BytesOut
	}
}

func (t *Tracker) Finished(id string, stats session.Stats, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, id)
	t.bytesIn += stats.BytesIn
	t.bytesOut += stats.BytesOut
	if err != nil {
		t.failed++
	}
}

// Snapshot returns a copy of the current counters. Active sessions are
// ordered by start time.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		Uptime:         time.Since(t.startTime).Truncate(time.Second).String(),
		SessionsTotal:  t.total,
		SessionsFailed: t.failed,
		BytesIn:        t.bytesIn,
		BytesOut:       t.bytesOut,
		Active:         make([]SessionStatus, 0, len(t.active)),
	}
	for _, s := range t.active {
		snap.Active = append(snap.Active, *s)
	}
	sort.Slice(snap.Active, func(i, j int) bool {
		return snap.Active[i].Started.Before(snap.Active[j].Started)
	})
	return snap
}
