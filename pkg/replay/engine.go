package replay

import (
	"io"
	"sync"
	"time"

	"github.com/unklstewy/globe-replay/pkg/coordinates"
	"github.com/unklstewy/globe-replay/pkg/feeds"
	"github.com/unklstewy/globe-replay/pkg/telemetry"
)

// Options configures a new Engine.
type Options struct {
	// SamplingInterval is the nominal time between recorded snapshots
	// (default: 15 seconds, matching the bulk feed cadence)
	SamplingInterval time.Duration

	// HistoryMinutes sizes the live recording ring (default: 30)
	HistoryMinutes int

	// Poll, Push, and Exclusive are the live producers; any may be nil
	Poll, Push, Exclusive feeds.Producer
}

// Engine is the explicit owner of the whole playback subsystem: both
// snapshot buffers, the recorder, the playback controller, the feed fuser,
// the resolver, and the clock driver. Construct one per visualization and
// hand it to the render loop and the UI layer; there is no package-level
// state, so engines in parallel tests never interfere.
//
// All methods are safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	samplingInterval time.Duration

	recorded   *Buffer
	imported   *Buffer
	recorder   *Recorder
	controller *Controller
	fuser      *Fuser
	resolver   *Resolver
	clock      *ClockDriver
}

// NewEngine builds an engine from options, applying defaults for zero
// values.
func NewEngine(opts Options) *Engine {
	if opts.SamplingInterval <= 0 {
		opts.SamplingInterval = feeds.DefaultPollInterval
	}
	if opts.HistoryMinutes <= 0 {
		opts.HistoryMinutes = 30
	}

	recorded := NewBuffer(CapacityFor(opts.HistoryMinutes, opts.SamplingInterval))
	imported := NewBuffer(1)

	e := &Engine{
		samplingInterval: opts.SamplingInterval,
		recorded:         recorded,
		imported:         imported,
		recorder:         NewRecorder(recorded),
		controller:       NewController(recorded, imported, opts.SamplingInterval),
		fuser:            NewFuser(opts.Poll, opts.Push, opts.Exclusive),
		resolver:         NewResolver(),
	}
	e.clock = NewClockDriver(e.advanceTick)
	return e
}

// advanceTick is the clock driver callback: one clamped wall-time delta per
// display refresh while playing.
func (e *Engine) advanceTick(elapsed time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.controller.Advance(elapsed)
	return e.controller.IsPlaying()
}

// Record captures a fused feed tick into the live recording buffer.
func (e *Engine) Record(entities telemetry.StateMap, sourceTime time.Time, feedInterval time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorder.Record(entities, sourceTime, feedInterval)
}

// RecordFused records whatever the fuser currently sees. Convenience for
// the recording loop.
func (e *Engine) RecordFused() {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, current, interval := e.fuser.Fuse()
	e.recorder.Record(current, time.Now(), interval)
}

// SetRecording enables or disables capture into the live buffer.
func (e *Engine) SetRecording(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorder.SetEnabled(enabled)
}

// RecordingEnabled reports whether capture is active.
func (e *Engine) RecordingEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recorder.Enabled()
}

// ClearRecording empties the live buffer and rewinds playback position if
// the live buffer was the active one.
func (e *Engine) ClearRecording() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorded.Clear()
	if e.controller.Mode() != ModeScrubbingImported {
		e.controller.ResetPosition()
	}
}

// Play starts playback; see Controller.Play for the transition rules.
func (e *Engine) Play() {
	e.mu.Lock()
	e.controller.Play()
	playing := e.controller.IsPlaying()
	e.mu.Unlock()
	if playing {
		e.clock.Start()
	}
}

// Pause stops playback and the clock loop.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.controller.Pause()
	e.mu.Unlock()
	e.clock.Stop()
}

// GoLive returns to the live feeds, stopping playback.
func (e *Engine) GoLive() {
	e.mu.Lock()
	e.controller.GoLive()
	e.mu.Unlock()
	e.clock.Stop()
}

// SeekTo jumps to a snapshot index; playback pauses.
func (e *Engine) SeekTo(index int) {
	e.mu.Lock()
	e.controller.SeekTo(index)
	e.mu.Unlock()
	e.clock.Stop()
}

// StepBackward steps one snapshot back; playback pauses.
func (e *Engine) StepBackward() {
	e.mu.Lock()
	e.controller.StepBackward()
	e.mu.Unlock()
	e.clock.Stop()
}

// StepForward steps one snapshot ahead; playback pauses.
func (e *Engine) StepForward() {
	e.mu.Lock()
	e.controller.StepForward()
	e.mu.Unlock()
	e.clock.Stop()
}

// SetSpeed changes the playback rate multiplier.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.controller.SetSpeed(speed)
}

// ImportReplay loads a replay document. On validation failure the current
// imported buffer and playback state are left untouched.
func (e *Engine) ImportReplay(r io.Reader) error {
	snapshots, err := Import(r)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.controller.SetImported(snapshots)
	e.mu.Unlock()
	e.clock.Stop()
	return nil
}

// ImportReplayFile loads a replay from disk (".gz" supported).
func (e *Engine) ImportReplayFile(path string) error {
	snapshots, err := ImportFile(path)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.controller.SetImported(snapshots)
	e.mu.Unlock()
	e.clock.Stop()
	return nil
}

// ClearImported drops the imported buffer, returning to live if it was
// active.
func (e *Engine) ClearImported() {
	e.mu.Lock()
	e.controller.ClearImported()
	e.mu.Unlock()
	e.clock.Stop()
}

// Export writes the active buffer as a replay document.
func (e *Engine) Export(w io.Writer, appVersion, airport string) error {
	e.mu.Lock()
	snapshots := e.controller.ActiveBuffer().Snapshots()
	e.mu.Unlock()
	return Export(w, snapshots, appVersion, airport)
}

// ExportFile writes the active buffer to disk (".gz" supported).
func (e *Engine) ExportFile(path, appVersion, airport string) error {
	e.mu.Lock()
	snapshots := e.controller.ActiveBuffer().Snapshots()
	e.mu.Unlock()
	return ExportFile(path, snapshots, appVersion, airport)
}

// Resolve produces the interpolation frame for the current mode and
// position. Called once per render frame.
func (e *Engine) Resolve() Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.controller.Mode() == ModeLive {
		return e.resolver.ResolveLive(e.fuser)
	}
	return e.resolver.ResolveScrubbing(e.controller.ActiveBuffer(), e.controller.Pos(), e.controller.Mode())
}

// SetSpatialFilter restricts resolved frames to a radius around a reference
// position; radiusNM <= 0 disables distance filtering.
func (e *Engine) SetSpatialFilter(reference coordinates.Geographic, radiusNM float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolver.SetSpatialFilter(reference, radiusNM)
}

// SelectExclusiveFeed switches the live source between the merged poll+push
// view and the exclusive feed.
func (e *Engine) SelectExclusiveFeed(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fuser.SelectExclusive(on)
}

// SetHistoryWindow resizes the live recording ring; shrinking truncates the
// oldest snapshots immediately.
func (e *Engine) SetHistoryWindow(minutes int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorded.SetCapacity(CapacityFor(minutes, e.samplingInterval))
}

// RecordedSnapshots returns a copy of the live buffer, oldest first. Used
// by the autosave loop.
func (e *Engine) RecordedSnapshots() []telemetry.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recorded.Snapshots()
}

// RestoreRecording replaces the live buffer contents, e.g. from an
// autosave. Capacity is preserved; excess snapshots are truncated oldest
// first.
func (e *Engine) RestoreRecording(snapshots []telemetry.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	capacity := e.recorded.Cap()
	if len(snapshots) > capacity {
		snapshots = snapshots[len(snapshots)-capacity:]
	}
	e.recorded.Replace(snapshots)
	e.recorded.SetCapacity(capacity)
}

// Status is a read-only view of the engine for UIs and the control API.
type Status struct {
	Mode             string  `json:"mode"`
	IsPlaying        bool    `json:"isPlaying"`
	Speed            float64 `json:"speed"`
	Index            int     `json:"index"`
	Progress         float64 `json:"progress"`
	BufferLen        int     `json:"bufferLen"`
	BufferCap        int     `json:"bufferCap"`
	TotalSeconds     float64 `json:"totalSeconds"`
	CurrentSeconds   float64 `json:"currentSeconds"`
	Recording        bool    `json:"recording"`
	ExclusiveFeed    bool    `json:"exclusiveFeed"`
	ImportedSnapshot int     `json:"importedSnapshots"`
}

// Status reports the current engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos := e.controller.Pos()
	active := e.controller.ActiveBuffer()
	return Status{
		Mode:             e.controller.Mode().String(),
		IsPlaying:        e.controller.IsPlaying(),
		Speed:            e.controller.Speed(),
		Index:            pos.Index,
		Progress:         pos.Progress,
		BufferLen:        active.Len(),
		BufferCap:        active.Cap(),
		TotalSeconds:     e.controller.TotalDuration().Seconds(),
		CurrentSeconds:   e.controller.CurrentTime().Seconds(),
		Recording:        e.recorder.Enabled(),
		ExclusiveFeed:    e.fuser.ExclusiveSelected(),
		ImportedSnapshot: e.imported.Len(),
	}
}

// TotalDuration returns the scrubbable span of the active buffer.
func (e *Engine) TotalDuration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controller.TotalDuration()
}

// CurrentTime returns the playback offset into the active buffer.
func (e *Engine) CurrentTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controller.CurrentTime()
}

// Close stops the clock loop. The engine must not be used afterwards.
func (e *Engine) Close() {
	e.clock.Stop()
}
