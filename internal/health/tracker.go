package health

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/postalsys/muti-ping/internal/ping"
)

// Tracker collects probe outcomes per destination. It implements
// StatsProvider and is safe for concurrent use.
type Tracker struct {
	running atomic.Bool

	mu    sync.RWMutex
	order []string
	byDst map[string]*tracked
}

type tracked struct {
	stats ping.Statistics
	last  ping.Outcome
	seen  bool
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{byDst: make(map[string]*tracked)}
}

// SetRunning marks sessions as running or finished.
func (t *Tracker) SetRunning(running bool) {
	t.running.Store(running)
}

// Add registers a destination so it is reported before its first outcome.
func (t *Tracker) Add(destination string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(destination)
}

// Record accounts for an outcome of the session against destination.
func (t *Tracker) Record(destination string, o ping.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entry(destination)
	e.stats.Add(o)
	e.last = o
	e.seen = true
}

// Statistics returns a copy of the statistics for destination.
func (t *Tracker) Statistics(destination string) (ping.Statistics, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.byDst[destination]
	if !ok {
		return ping.Statistics{}, false
	}
	return e.stats, true
}

// IsRunning implements StatsProvider.
func (t *Tracker) IsRunning() bool {
	return t.running.Load()
}

// Stats implements StatsProvider.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := Stats{Sessions: make([]SessionStats, 0, len(t.order))}
	for _, dst := range t.order {
		e := t.byDst[dst]
		ss := SessionStats{
			Destination: dst,
			Sent:        e.stats.Sent,
			Received:    e.stats.Received,
			LossPercent: e.stats.LossPercent(),
		}
		if e.stats.HasRTT() {
			ss.MinRTTMs = millis(e.stats.MinRTT)
			ss.AvgRTTMs = millis(e.stats.AvgRTT())
			ss.MaxRTTMs = millis(e.stats.MaxRTT)
		}
		if e.seen {
			ss.LastStatus = e.last.Status.String()
			ss.LastSeq = e.last.Seq
		}
		out.Sessions = append(out.Sessions, ss)
	}
	return out
}

func (t *Tracker) entry(destination string) *tracked {
	e, ok := t.byDst[destination]
	if !ok {
		e = &tracked{}
		t.byDst[destination] = e
		t.order = append(t.order, destination)
	}
	return e
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
