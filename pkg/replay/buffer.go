// Package replay implements the telemetry recording, fusion, and playback
// engine: a bounded snapshot history, a live feed fuser, a playback state
// machine with a frame-rate-independent clock, and the interpolation source
// resolver consumed once per render frame.
package replay

import (
	"time"

	"github.com/unklstewy/globe-replay/pkg/telemetry"
)

// Buffer is a bounded, time-ordered ring of snapshots. Oldest entries are
// evicted first when the buffer is full; append plus eviction is O(1).
//
// Buffer is not safe for concurrent use; the Engine serializes access.
type Buffer struct {
	// storage is the ring array, length == capacity once allocated
	storage []telemetry.Snapshot

	// head is the index of the oldest snapshot in storage
	head int

	// size is the number of live snapshots
	size int
}

// CapacityFor computes the ring capacity needed to hold the configured
// history window at the given sampling interval, rounding up.
func CapacityFor(historyMinutes int, samplingInterval time.Duration) int {
	if historyMinutes <= 0 || samplingInterval <= 0 {
		return 1
	}
	window := time.Duration(historyMinutes) * time.Minute
	capacity := int((window + samplingInterval - 1) / samplingInterval)
	if capacity < 1 {
		capacity = 1
	}
	return capacity
}

// NewBuffer creates an empty buffer holding at most capacity snapshots.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{storage: make([]telemetry.Snapshot, capacity)}
}

// Append adds a snapshot, evicting the oldest entry if at capacity.
func (b *Buffer) Append(snap telemetry.Snapshot) {
	if b.size == len(b.storage) {
		// Overwrite the oldest slot and advance the head
		b.storage[b.head] = snap
		b.head = (b.head + 1) % len(b.storage)
		return
	}
	b.storage[(b.head+b.size)%len(b.storage)] = snap
	b.size++
}

// Len returns the number of snapshots currently held.
func (b *Buffer) Len() int { return b.size }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return len(b.storage) }

// At returns the snapshot at logical index i, where 0 is the oldest.
// Panics if i is out of range; callers index from controller positions
// which are always clamped to the buffer length.
func (b *Buffer) At(i int) telemetry.Snapshot {
	if i < 0 || i >= b.size {
		panic("replay: buffer index out of range")
	}
	return b.storage[(b.head+i)%len(b.storage)]
}

// Last returns the newest snapshot and whether the buffer is non-empty.
func (b *Buffer) Last() (telemetry.Snapshot, bool) {
	if b.size == 0 {
		return telemetry.Snapshot{}, false
	}
	return b.At(b.size - 1), true
}

// Snapshots returns the contents oldest-first as a fresh slice.
func (b *Buffer) Snapshots() []telemetry.Snapshot {
	out := make([]telemetry.Snapshot, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.At(i)
	}
	return out
}

// Replace swaps the entire contents, oldest-first. Used by replay import.
// Capacity grows to fit if needed.
func (b *Buffer) Replace(snapshots []telemetry.Snapshot) {
	capacity := len(b.storage)
	if capacity < len(snapshots) {
		capacity = len(snapshots)
	}
	b.storage = make([]telemetry.Snapshot, capacity)
	copy(b.storage, snapshots)
	b.head = 0
	b.size = len(snapshots)
}

// SetCapacity resizes the ring. When shrinking, older entries beyond the new
// capacity are truncated immediately, keeping the most recent captures.
func (b *Buffer) SetCapacity(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	if capacity == len(b.storage) {
		return
	}

	keep := b.size
	if keep > capacity {
		keep = capacity
	}
	next := make([]telemetry.Snapshot, capacity)
	for i := 0; i < keep; i++ {
		// Copy the newest `keep` snapshots, preserving order
		next[i] = b.At(b.size - keep + i)
	}
	b.storage = next
	b.head = 0
	b.size = keep
}

// Clear empties the buffer without changing capacity.
func (b *Buffer) Clear() {
	b.head = 0
	b.size = 0
}

// Recorder owns all mutation of the live recording buffer. Each feed tick
// becomes one immutable snapshot; nothing is pushed to any external system.
type Recorder struct {
	buf     *Buffer
	enabled bool
	now     func() time.Time
}

// NewRecorder creates a recorder over the given buffer with recording
// enabled.
func NewRecorder(buf *Buffer) *Recorder {
	return &Recorder{buf: buf, enabled: true, now: time.Now}
}

// Record captures the given entities as a new snapshot stamped with the
// local clock. A no-op while recording is disabled.
func (r *Recorder) Record(entities telemetry.StateMap, sourceTime time.Time, feedInterval time.Duration) {
	if !r.enabled {
		return
	}
	r.buf.Append(telemetry.Snapshot{
		CapturedAt:   r.now(),
		SourceTime:   sourceTime,
		Entities:     telemetry.RecordsFromStates(entities),
		FeedInterval: feedInterval,
	})
}

// SetEnabled turns recording on or off.
func (r *Recorder) SetEnabled(enabled bool) { r.enabled = enabled }

// Enabled reports whether recording is active.
func (r *Recorder) Enabled() bool { return r.enabled }
