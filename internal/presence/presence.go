// Package presence is the process-wide liveness ledger. One Tracker serves
// every room; rooms mirror its advisory telemetry into their participants but
// never gate gameplay on it.
package presence

import (
	"sync"
	"time"

	"gridkeep/internal/config"
)

// Tier labels for both connection status and network quality.
const (
	TierGreen  = "green"
	TierYellow = "yellow"
	TierRed    = "red"
)

// Record is the per-participant liveness entry.
type Record struct {
	LastSeen  time.Time
	Status    string
	LatencyMs float64
	NetTier   string
	Online    bool
}

// Tracker maps participant id -> liveness record. Safe for concurrent use
// from multiple rooms' timelines.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*Record
	cfg     config.PresenceConfig

	stopChan chan struct{}
	stopOnce sync.Once

	now func() time.Time // swappable for tests
}

// NewTracker creates a tracker and starts its background sweep.
func NewTracker(cfg config.PresenceConfig) *Tracker {
	t := &Tracker{
		records:  make(map[string]*Record),
		cfg:      cfg,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
	go t.sweepLoop()
	return t
}

// Stop halts the background sweep. Idempotent.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
	})
}

// Beat records a liveness signal: gameplay input, heartbeats and pong replies
// all land here. Status flips to green optimistically; the sweep is what
// demotes it later.
func (t *Tracker) Beat(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.record(id)
	r.LastSeen = t.now()
	r.Status = TierGreen
}

// SetOnline marks the participant connected and seeds its record.
func (t *Tracker) SetOnline(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.record(id)
	r.Online = true
	r.LastSeen = t.now()
	r.Status = TierGreen
}

// SetOffline forces status red. LastSeen is kept for diagnostics.
func (t *Tracker) SetOffline(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.record(id)
	r.Online = false
	r.Status = TierRed
}

// SetPing feeds one RTT sample through exponential smoothing and re-derives
// the network tier.
func (t *Tracker) SetPing(id string, rttMs float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.record(id)
	if r.LatencyMs == 0 {
		r.LatencyMs = rttMs
	} else {
		prev := t.cfg.SmoothingPrev
		r.LatencyMs = r.LatencyMs*prev + rttMs*(1-prev)
	}

	switch {
	case r.LatencyMs <= t.cfg.PingGreenMs:
		r.NetTier = TierGreen
	case r.LatencyMs <= t.cfg.PingYellowMs:
		r.NetTier = TierYellow
	default:
		r.NetTier = TierRed
	}
}

// Get returns a copy of the record for id, and whether one exists.
func (t *Tracker) Get(id string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Forget drops the record for id. Called when a room disposes its players.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, id)
}

// Sweep recomputes every status purely from heartbeat age. Exported so rooms
// and tests can force a recompute; the background loop calls it on a timer.
func (t *Tracker) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for _, r := range t.records {
		if !r.Online {
			r.Status = TierRed
			continue
		}
		age := now.Sub(r.LastSeen)
		switch {
		case age <= t.cfg.GreenWithin:
			r.Status = TierGreen
		case age <= t.cfg.YellowWithin:
			r.Status = TierYellow
		default:
			r.Status = TierRed
		}
	}
}

func (t *Tracker) sweepLoop() {
	ticker := time.NewTicker(t.cfg.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopChan:
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// record returns the entry for id, creating it if needed. Caller holds mu.
func (t *Tracker) record(id string) *Record {
	r, ok := t.records[id]
	if !ok {
		r = &Record{Status: TierGreen, NetTier: TierGreen, LastSeen: t.now()}
		t.records[id] = r
	}
	return r
}
