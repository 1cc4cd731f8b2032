package replay

import (
	"fmt"
	"testing"
	"time"

	"github.com/unklstewy/globe-replay/pkg/telemetry"
)

// snap builds a test snapshot whose capture time encodes its sequence
// number, so ordering checks can read it back.
func snap(seq int) telemetry.Snapshot {
	base := time.UnixMilli(1700000000000).UTC()
	return telemetry.Snapshot{
		CapturedAt: base.Add(time.Duration(seq) * 15 * time.Second),
		SourceTime: base.Add(time.Duration(seq) * 15 * time.Second),
		Entities: []telemetry.EntityStateRecord{
			{ID: fmt.Sprintf("AC%d", seq), Latitude: float64(seq)},
		},
		FeedInterval: 15 * time.Second,
	}
}

func seqOf(s telemetry.Snapshot) int {
	base := time.UnixMilli(1700000000000).UTC()
	return int(s.CapturedAt.Sub(base) / (15 * time.Second))
}

// TestBufferRingBound tests that for any number of appends the buffer holds
// the most recent min(N, C) captures in capture order.
func TestBufferRingBound(t *testing.T) {
	const capacity = 5
	buf := NewBuffer(capacity)

	for n := 1; n <= 12; n++ {
		buf.Append(snap(n))

		wantLen := n
		if wantLen > capacity {
			wantLen = capacity
		}
		if buf.Len() != wantLen {
			t.Fatalf("After %d appends: expected length %d, got %d", n, wantLen, buf.Len())
		}

		// Contents must be the most recent wantLen captures, oldest first.
		for i := 0; i < buf.Len(); i++ {
			want := n - wantLen + 1 + i
			if got := seqOf(buf.At(i)); got != want {
				t.Fatalf("After %d appends: expected seq %d at index %d, got %d", n, want, i, got)
			}
		}
	}
}

// TestBufferSetCapacity tests shrink truncation and growth.
func TestBufferSetCapacity(t *testing.T) {
	buf := NewBuffer(10)
	for i := 1; i <= 8; i++ {
		buf.Append(snap(i))
	}

	t.Run("Shrink truncates oldest immediately", func(t *testing.T) {
		buf.SetCapacity(3)
		if buf.Len() != 3 || buf.Cap() != 3 {
			t.Fatalf("Expected len=3 cap=3, got len=%d cap=%d", buf.Len(), buf.Cap())
		}
		for i, want := range []int{6, 7, 8} {
			if got := seqOf(buf.At(i)); got != want {
				t.Errorf("Expected seq %d at index %d, got %d", want, i, got)
			}
		}
	})

	t.Run("Grow preserves contents", func(t *testing.T) {
		buf.SetCapacity(6)
		if buf.Len() != 3 || buf.Cap() != 6 {
			t.Fatalf("Expected len=3 cap=6, got len=%d cap=%d", buf.Len(), buf.Cap())
		}
		if seqOf(buf.At(0)) != 6 {
			t.Errorf("Expected oldest seq 6, got %d", seqOf(buf.At(0)))
		}
	})
}

// TestBufferClearAndReplace tests wholesale operations.
func TestBufferClearAndReplace(t *testing.T) {
	buf := NewBuffer(4)
	buf.Append(snap(1))
	buf.Append(snap(2))

	buf.Clear()
	if buf.Len() != 0 {
		t.Errorf("Expected empty after clear, got %d", buf.Len())
	}

	buf.Replace([]telemetry.Snapshot{snap(5), snap(6), snap(7)})
	if buf.Len() != 3 {
		t.Fatalf("Expected 3 after replace, got %d", buf.Len())
	}
	if seqOf(buf.At(0)) != 5 || seqOf(buf.At(2)) != 7 {
		t.Error("Replace did not preserve order")
	}
}

// TestCapacityFor tests the history window to ring size computation.
func TestCapacityFor(t *testing.T) {
	cases := []struct {
		minutes  int
		interval time.Duration
		want     int
	}{
		{30, 15 * time.Second, 120},
		{1, 15 * time.Second, 4},
		{1, 7 * time.Second, 9}, // 60s / 7s = 8.57, rounds up
		{0, 15 * time.Second, 1},
	}
	for _, c := range cases {
		if got := CapacityFor(c.minutes, c.interval); got != c.want {
			t.Errorf("CapacityFor(%d, %v): expected %d, got %d", c.minutes, c.interval, c.want, got)
		}
	}
}

// TestRecorder tests recording gating and snapshot construction.
func TestRecorder(t *testing.T) {
	buf := NewBuffer(10)
	rec := NewRecorder(buf)
	fixed := time.UnixMilli(1700000000000).UTC()
	rec.now = func() time.Time { return fixed }

	states := telemetry.StateMap{"AAL1": {ID: "AAL1"}}
	source := fixed.Add(-2 * time.Second)

	rec.Record(states, source, 15*time.Second)
	if buf.Len() != 1 {
		t.Fatalf("Expected 1 snapshot, got %d", buf.Len())
	}
	got := buf.At(0)
	if !got.CapturedAt.Equal(fixed) {
		t.Errorf("Expected capturedAt %v, got %v", fixed, got.CapturedAt)
	}
	if !got.SourceTime.Equal(source) {
		t.Errorf("Expected sourceTime %v, got %v", source, got.SourceTime)
	}
	if len(got.Entities) != 1 || got.Entities[0].ID != "AAL1" {
		t.Errorf("Unexpected entities: %+v", got.Entities)
	}

	t.Run("Disabled recording is a no-op", func(t *testing.T) {
		rec.SetEnabled(false)
		rec.Record(states, source, 15*time.Second)
		if buf.Len() != 1 {
			t.Errorf("Expected recording disabled to be a no-op, got %d snapshots", buf.Len())
		}
	})
}
