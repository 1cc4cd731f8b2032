package replay

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/unklstewy/globe-replay/pkg/coordinates"
	"github.com/unklstewy/globe-replay/pkg/telemetry"
)

// Frame is what the Resolver hands the renderer each display refresh: a
// consistent pair of state maps plus the blend timing needed to interpolate
// between them.
//
// keys(Current) is always a subset of keys(Previous), so the consumer never
// sees an aircraft in one map but not the other.
type Frame struct {
	// Previous is the "from" state map
	Previous telemetry.StateMap

	// Current is the "to" state map
	Current telemetry.StateMap

	// EffectiveTime is the instant the blend represents
	EffectiveTime time.Time

	// UpdateInterval is the duration of the segment being blended
	UpdateInterval time.Duration

	// Mode is the playback mode the frame was sourced under
	Mode Mode
}

// Resolver turns the controller's position (or the live fuser) into a Frame.
// It owns no persistent state beyond two small caches: the deserialization
// cache (snapshot records → state map, keyed by capture time) and the last
// filtered pair. Both are instance fields so parallel engines never share
// state.
//
// Resolver is not safe for concurrent use; the Engine serializes access.
type Resolver struct {
	// cache holds the two decoded snapshots currently in play. Only two are
	// ever live at once (the segment's endpoints), so a two-entry LRU means
	// crossing a segment boundary re-decodes only the new endpoint.
	cache *lru.Cache[int64, telemetry.StateMap]

	// Spatial filter: entities outside radiusNM of reference are dropped so
	// replays can be viewed from any vantage point. Zero radius disables
	// distance filtering; the subset guarantee is applied regardless.
	reference coordinates.Geographic
	radiusNM  float64

	// filtered is the memoized output for the current segment; reused until
	// the segment endpoints or the filter change.
	filtered struct {
		prevKey, curKey int64
		gen             int
		previous        telemetry.StateMap
		current         telemetry.StateMap
	}
	filterGen int

	now func() time.Time
}

// NewResolver creates a resolver with empty caches.
func NewResolver() *Resolver {
	cache, _ := lru.New[int64, telemetry.StateMap](2)
	return &Resolver{cache: cache, filterGen: 1, now: time.Now}
}

// SetSpatialFilter configures the reference position and radius (nautical
// miles) used to restrict resolved frames. A radius <= 0 disables distance
// filtering.
func (r *Resolver) SetSpatialFilter(reference coordinates.Geographic, radiusNM float64) {
	r.reference = reference
	r.radiusNM = radiusNM
	r.filterGen++
}

// ResolveLive builds a frame straight from the fuser.
func (r *Resolver) ResolveLive(f *Fuser) Frame {
	previous, current, interval := f.Fuse()
	previous, current = r.applyFilter(previous, current)
	return Frame{
		Previous:       previous,
		Current:        current,
		EffectiveTime:  r.now(),
		UpdateInterval: interval,
		Mode:           ModeLive,
	}
}

// ResolveScrubbing builds a frame from the active buffer at the given
// position. At the final snapshot both maps resolve to the same snapshot and
// the frame holds static.
func (r *Resolver) ResolveScrubbing(buf *Buffer, pos Position, mode Mode) Frame {
	if buf.Len() == 0 {
		return Frame{
			Previous: telemetry.StateMap{},
			Current:  telemetry.StateMap{},
			Mode:     mode,
		}
	}

	index := pos.Index
	if index > buf.Len()-1 {
		index = buf.Len() - 1
	}

	prevSnap := buf.At(index)
	if index+1 >= buf.Len() {
		// End of the buffer: static display, no further segment.
		states := r.deserialize(prevSnap)
		previous, current := r.applyFilterSame(states, prevSnap.CapturedAt.UnixNano())
		return Frame{
			Previous:      previous,
			Current:       current,
			EffectiveTime: prevSnap.CapturedAt,
			Mode:          mode,
		}
	}

	curSnap := buf.At(index + 1)
	segment := curSnap.CapturedAt.Sub(prevSnap.CapturedAt)
	effective := prevSnap.CapturedAt.Add(time.Duration(pos.Progress * float64(segment)))

	previous := r.deserialize(prevSnap)
	current := r.deserialize(curSnap)
	previous, current = r.applyFilterKeyed(previous, current,
		prevSnap.CapturedAt.UnixNano(), curSnap.CapturedAt.UnixNano())

	return Frame{
		Previous:       previous,
		Current:        current,
		EffectiveTime:  effective,
		UpdateInterval: segment,
		Mode:           mode,
	}
}

// deserialize converts a snapshot's records into a state map, re-decoding
// only when this capture time is not already cached.
func (r *Resolver) deserialize(snap telemetry.Snapshot) telemetry.StateMap {
	key := snap.CapturedAt.UnixNano()
	if states, ok := r.cache.Get(key); ok {
		return states
	}
	states := snap.States()
	r.cache.Add(key, states)
	return states
}

// applyFilterKeyed memoizes the filtered pair per segment: while the
// position stays between the same two snapshots and the filter is
// unchanged, the previously built maps are returned without reallocation.
func (r *Resolver) applyFilterKeyed(previous, current telemetry.StateMap, prevKey, curKey int64) (telemetry.StateMap, telemetry.StateMap) {
	f := &r.filtered
	if f.gen == r.filterGen && f.prevKey == prevKey && f.curKey == curKey {
		return f.previous, f.current
	}
	fp, fc := r.applyFilter(previous, current)
	f.prevKey, f.curKey = prevKey, curKey
	f.gen = r.filterGen
	f.previous, f.current = fp, fc
	return fp, fc
}

func (r *Resolver) applyFilterSame(states telemetry.StateMap, key int64) (telemetry.StateMap, telemetry.StateMap) {
	return r.applyFilterKeyed(states, states, key, key)
}

// applyFilter restricts both maps to the configured radius and then
// restricts current to ids surviving in the filtered previous. The second
// restriction runs even without a radius so the subset invariant holds for
// every frame — an aircraft appearing mid-segment would otherwise pop in
// with no "from" state.
func (r *Resolver) applyFilter(previous, current telemetry.StateMap) (telemetry.StateMap, telemetry.StateMap) {
	radiusFilter := r.radiusNM > 0

	filteredPrev := previous
	if radiusFilter {
		filteredPrev = make(telemetry.StateMap, len(previous))
		for id, s := range previous {
			if coordinates.WithinRadius(r.reference, s.Position, r.radiusNM) {
				filteredPrev[id] = s
			}
		}
	}

	needsRestrict := radiusFilter
	if !needsRestrict {
		for id := range current {
			if _, ok := filteredPrev[id]; !ok {
				needsRestrict = true
				break
			}
		}
	}
	if !needsRestrict {
		return filteredPrev, current
	}

	filteredCur := make(telemetry.StateMap, len(current))
	for id, s := range current {
		if _, ok := filteredPrev[id]; !ok {
			continue
		}
		if radiusFilter && !coordinates.WithinRadius(r.reference, s.Position, r.radiusNM) {
			continue
		}
		filteredCur[id] = s
	}
	return filteredPrev, filteredCur
}
