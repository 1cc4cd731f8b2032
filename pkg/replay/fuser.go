package replay

import (
	"time"

	"github.com/unklstewy/globe-replay/pkg/feeds"
	"github.com/unklstewy/globe-replay/pkg/telemetry"
)

// Fuser merges the independently-timed live producers into one logical
// "current state" view. The poll feed supplies the broad picture every
// ~15 seconds; the push feed overrides matching aircraft at ~1 Hz; an
// exclusive feed, when selected, replaces both outright.
//
// Producers publish immutable maps, so Fuse can be called concurrently with
// feed updates; each call sees a consistent generation of every feed.
type Fuser struct {
	poll      feeds.Producer
	push      feeds.Producer
	exclusive feeds.Producer

	// useExclusive selects the exclusive feed, disabling all merging
	useExclusive bool
}

// NewFuser creates a fuser over the given producers. Any producer may be
// nil when that feed is not configured.
func NewFuser(poll, push, exclusive feeds.Producer) *Fuser {
	return &Fuser{poll: poll, push: push, exclusive: exclusive}
}

// SelectExclusive switches between the merged poll+push view (false) and
// the exclusive feed (true).
func (f *Fuser) SelectExclusive(on bool) {
	f.useExclusive = on
}

// ExclusiveSelected reports whether the exclusive feed is active.
func (f *Fuser) ExclusiveSelected() bool { return f.useExclusive }

// Fuse produces the fused (previous, current, updateInterval) triple for the
// live logical source.
//
// Priority: push feed entries override poll entries for matching ids in both
// maps whenever the push feed is connected and non-empty; poll-only ids pass
// through unchanged. The reported interval is the push feed's while it is
// active, else the poll feed's.
//
// With the exclusive feed selected there is no merging at all — and if it is
// selected but disconnected, the result is empty rather than a silent
// fallback, so the caller can surface the absence.
func (f *Fuser) Fuse() (previous, current telemetry.StateMap, interval time.Duration) {
	if f.useExclusive {
		if f.exclusive == nil || !f.exclusive.Connected() {
			return telemetry.StateMap{}, telemetry.StateMap{}, 0
		}
		previous = f.exclusive.PreviousStates()
		current = f.exclusive.CurrentStates()
		return synthesizeNew(previous, current), current, f.exclusive.UpdateInterval()
	}

	var pollPrev, pollCur telemetry.StateMap
	if f.poll != nil {
		pollPrev = f.poll.PreviousStates()
		pollCur = f.poll.CurrentStates()
		interval = f.poll.UpdateInterval()
	}

	pushActive := f.push != nil && f.push.Connected() && len(f.push.CurrentStates()) > 0
	if !pushActive {
		if pollCur == nil {
			return telemetry.StateMap{}, telemetry.StateMap{}, interval
		}
		return synthesizeNew(pollPrev, pollCur), pollCur, interval
	}

	pushPrev := f.push.PreviousStates()
	pushCur := f.push.CurrentStates()
	interval = f.push.UpdateInterval()

	current = overlay(pollCur, pushCur)
	previous = overlay(pollPrev, pushPrev)
	return synthesizeNew(previous, current), current, interval
}

// overlay copies base and writes top's entries over it.
func overlay(base, top telemetry.StateMap) telemetry.StateMap {
	merged := make(telemetry.StateMap, len(base)+len(top))
	for id, s := range base {
		merged[id] = s
	}
	for id, s := range top {
		merged[id] = s
	}
	return merged
}

// synthesizeNew guarantees every id in current has a previous entry: a
// newly-appeared aircraft gets its previous synthesized as a copy of its
// current state, so the consumer never interpolates it from a stale
// position. Returns previous unchanged when nothing is missing.
func synthesizeNew(previous, current telemetry.StateMap) telemetry.StateMap {
	missing := 0
	for id := range current {
		if _, ok := previous[id]; !ok {
			missing++
		}
	}
	if missing == 0 {
		return previous
	}

	out := make(telemetry.StateMap, len(previous)+missing)
	for id, s := range previous {
		out[id] = s
	}
	for id, s := range current {
		if _, ok := out[id]; !ok {
			out[id] = s
		}
	}
	return out
}
