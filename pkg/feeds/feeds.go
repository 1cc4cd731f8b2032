// Package feeds implements the live telemetry producers: a low-frequency
// HTTP polling feed, a high-frequency WebSocket push feed, and an exclusive
// SBS-1 (BaseStation) TCP feed. Every producer exposes the same interface so
// the fusion layer does not care how the data arrives.
package feeds

import (
	"sync/atomic"
	"time"

	"github.com/unklstewy/globe-replay/pkg/telemetry"
)

// Producer is the interface every live data feed must implement.
// Implementations publish complete immutable state maps by atomic
// replacement; a map handed out by CurrentStates is never mutated again.
type Producer interface {
	// CurrentStates returns the most recently published state map.
	// Returns an empty map when no update has arrived yet.
	CurrentStates() telemetry.StateMap

	// PreviousStates returns the state map published before the current one.
	// For the first update it equals CurrentStates.
	PreviousStates() telemetry.StateMap

	// UpdateInterval returns the measured time between the last two
	// published updates, or the feed's nominal interval before that.
	UpdateInterval() time.Duration

	// Connected reports whether the feed currently has a working
	// connection to its upstream source.
	Connected() bool
}

// published is one immutable generation of feed output. The whole struct is
// swapped atomically so a reader always sees a consistent pair of maps.
type published struct {
	current   telemetry.StateMap
	previous  telemetry.StateMap
	interval  time.Duration
	updatedAt time.Time
}

// publisher holds the double-buffered feed state shared by all producers.
type publisher struct {
	nominal   time.Duration
	state     atomic.Pointer[published]
	connected atomic.Bool
}

func newPublisher(nominal time.Duration) *publisher {
	p := &publisher{nominal: nominal}
	empty := telemetry.StateMap{}
	p.state.Store(&published{
		current:  empty,
		previous: empty,
		interval: nominal,
	})
	return p
}

// publish installs a new current map. The old current map becomes the
// previous map and the measured interval is derived from wall time.
//
// Every entity in the new map gets its timestamp bumped one update interval
// into the future: the interpolation consumer treats "current" as the target
// to animate toward, so the target must sit ahead of the render clock.
func (p *publisher) publish(states telemetry.StateMap, now time.Time) {
	old := p.state.Load()

	interval := p.nominal
	if !old.updatedAt.IsZero() {
		if measured := now.Sub(old.updatedAt); measured > 0 {
			interval = measured
		}
	}

	target := now.Add(interval)
	for id, s := range states {
		s.Timestamp = target
		states[id] = s
	}

	previous := old.current
	if len(previous) == 0 {
		previous = states
	}

	p.state.Store(&published{
		current:   states,
		previous:  previous,
		interval:  interval,
		updatedAt: now,
	})
}

// reset clears both maps, used when a feed disconnects so consumers see
// "no data" instead of a stale picture.
func (p *publisher) reset() {
	empty := telemetry.StateMap{}
	p.state.Store(&published{
		current:  empty,
		previous: empty,
		interval: p.nominal,
	})
}

func (p *publisher) CurrentStates() telemetry.StateMap  { return p.state.Load().current }
func (p *publisher) PreviousStates() telemetry.StateMap { return p.state.Load().previous }
func (p *publisher) UpdateInterval() time.Duration      { return p.state.Load().interval }
func (p *publisher) Connected() bool                    { return p.connected.Load() }
