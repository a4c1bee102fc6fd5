// Package activity keeps short-lived, per-dimension event counters in memory.
package activity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agritrade/agritrade-backend/pkg/logger"
)

const (
	defaultRetention     = 24 * time.Hour
	defaultPruneInterval = time.Minute
)

// TrackerParams configure the tracker. Retention bounds the largest window
// Counts can answer.
type TrackerParams struct {
	Logger        *logger.Logger
	Retention     time.Duration
	PruneInterval time.Duration
	Now           func() time.Time
}

// Tracker counts events per key inside a sliding time window. Timestamps are
// kept sorted per key so window queries and eviction are binary searches.
type Tracker struct {
	logg          *logger.Logger
	retention     time.Duration
	pruneInterval time.Duration
	now           func() time.Time

	mu     sync.Mutex
	events map[string][]time.Time
}

func NewTracker(params TrackerParams) (*Tracker, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	interval := params.PruneInterval
	if interval <= 0 {
		interval = defaultPruneInterval
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		logg:          params.Logger,
		retention:     retention,
		pruneInterval: interval,
		now:           now,
		events:        map[string][]time.Time{},
	}, nil
}

// Record adds one event for key at the given time.
func (t *Tracker) Record(key string, at time.Time) {
	at = at.UTC()
	t.mu.Lock()
	defer t.mu.Unlock()

	stamps := t.events[key]
	if n := len(stamps); n == 0 || !at.Before(stamps[n-1]) {
		t.events[key] = append(stamps, at)
		return
	}
	idx := sort.Search(len(stamps), func(i int) bool { return stamps[i].After(at) })
	stamps = append(stamps, time.Time{})
	copy(stamps[idx+1:], stamps[idx:])
	stamps[idx] = at
	t.events[key] = stamps
}

// Count returns the events recorded for key within window of now.
func (t *Tracker) Count(key string, window time.Duration) int {
	cutoff := t.now().UTC().Add(-t.clampWindow(window))
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.events[key], cutoff)
}

// Counts returns every key with at least one event within window of now.
func (t *Tracker) Counts(window time.Duration) map[string]int {
	cutoff := t.now().UTC().Add(-t.clampWindow(window))
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int, len(t.events))
	for key, stamps := range t.events {
		if n := countSince(stamps, cutoff); n > 0 {
			out[key] = n
		}
	}
	return out
}

// Prune drops events older than the retention period and returns how many
// were removed.
func (t *Tracker) Prune() int {
	cutoff := t.now().UTC().Add(-t.retention)
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, stamps := range t.events {
		idx := sort.Search(len(stamps), func(i int) bool { return !stamps[i].Before(cutoff) })
		if idx == 0 {
			continue
		}
		removed += idx
		if idx == len(stamps) {
			delete(t.events, key)
			continue
		}
		t.events[key] = append([]time.Time(nil), stamps[idx:]...)
	}
	return removed
}

// Run prunes on a fixed cadence until the context is canceled.
func (t *Tracker) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := time.NewTicker(t.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logg.Info(ctx, "activity tracker context canceled")
			return ctx.Err()
		case <-ticker.C:
			if removed := t.Prune(); removed > 0 {
				t.logg.Debug(t.logg.WithField(ctx, "removed", removed), "activity events pruned")
			}
		}
	}
}

func (t *Tracker) clampWindow(window time.Duration) time.Duration {
	if window <= 0 || window > t.retention {
		return t.retention
	}
	return window
}

func countSince(stamps []time.Time, cutoff time.Time) int {
	idx := sort.Search(len(stamps), func(i int) bool { return !stamps[i].Before(cutoff) })
	return len(stamps) - idx
}
