package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/unklstewy/globe-replay/pkg/telemetry"
)

// FormatVersion is the replay file format version this engine reads and
// writes. Files carrying any other version are rejected at import.
const FormatVersion = 1

var (
	// ErrUnsupportedVersion is returned when a replay file's version does
	// not match FormatVersion.
	ErrUnsupportedVersion = errors.New("unsupported replay file version")

	// ErrEmptyReplay is returned when a replay file contains no snapshots.
	ErrEmptyReplay = errors.New("replay file contains no snapshots")
)

// ReplayFile is the on-disk exchange format: a JSON document carrying the
// exported snapshot sequence plus enough metadata to reject incompatible
// files.
type ReplayFile struct {
	// Version must equal FormatVersion
	Version int `json:"version"`

	// ExportDate is when the file was written (ISO-8601)
	ExportDate time.Time `json:"exportDate"`

	// AppVersion is the writing application's version, informational only
	AppVersion string `json:"appVersion"`

	// Airport optionally tags the vantage point the recording was made from
	Airport string `json:"airport,omitempty"`

	// Snapshots is the recorded sequence, oldest first
	Snapshots []ReplaySnapshot `json:"snapshots"`
}

// ReplaySnapshot is one serialized snapshot. Times are Unix milliseconds.
type ReplaySnapshot struct {
	// Timestamp is the local capture time
	Timestamp int64 `json:"timestamp"`

	// VatsimTimestamp is the origin network feed's own clock
	VatsimTimestamp int64 `json:"vatsimTimestamp"`

	// AircraftStates holds the entity records
	AircraftStates []telemetry.EntityStateRecord `json:"aircraftStates"`

	// LastUpdateInterval is the feed interval preceding this snapshot, ms
	LastUpdateInterval int64 `json:"lastUpdateInterval"`
}

// Export writes the snapshot sequence to w as a replay document.
func Export(w io.Writer, snapshots []telemetry.Snapshot, appVersion, airport string) error {
	doc := ReplayFile{
		Version:    FormatVersion,
		ExportDate: time.Now().UTC(),
		AppVersion: appVersion,
		Airport:    airport,
		Snapshots:  make([]ReplaySnapshot, len(snapshots)),
	}
	for i, snap := range snapshots {
		doc.Snapshots[i] = ReplaySnapshot{
			Timestamp:          snap.CapturedAt.UnixMilli(),
			VatsimTimestamp:    snap.SourceTime.UnixMilli(),
			AircraftStates:     snap.Entities,
			LastUpdateInterval: snap.FeedInterval.Milliseconds(),
		}
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to write replay: %w", err)
	}
	return nil
}

// Import reads and validates a replay document, returning the snapshot
// sequence. On any failure nothing is returned, so the caller's current
// state stays untouched.
func Import(r io.Reader) ([]telemetry.Snapshot, error) {
	var doc ReplayFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("not a valid replay file: %w", err)
	}
	if doc.Version != FormatVersion {
		return nil, fmt.Errorf("%w: file is version %d, engine supports %d",
			ErrUnsupportedVersion, doc.Version, FormatVersion)
	}
	if len(doc.Snapshots) == 0 {
		return nil, ErrEmptyReplay
	}
	// Structural shape check on the first element: a capture time and an
	// actual array of records must both be present.
	first := doc.Snapshots[0]
	if first.Timestamp == 0 {
		return nil, errors.New("replay file snapshot is missing a timestamp")
	}
	if first.AircraftStates == nil {
		return nil, errors.New("replay file snapshot is missing aircraft states")
	}

	snapshots := make([]telemetry.Snapshot, len(doc.Snapshots))
	for i, rs := range doc.Snapshots {
		snapshots[i] = telemetry.Snapshot{
			CapturedAt:   time.UnixMilli(rs.Timestamp).UTC(),
			SourceTime:   time.UnixMilli(rs.VatsimTimestamp).UTC(),
			Entities:     rs.AircraftStates,
			FeedInterval: time.Duration(rs.LastUpdateInterval) * time.Millisecond,
		}
	}
	return snapshots, nil
}

// ExportFile writes a replay to path. A ".gz" suffix gets transparent gzip
// compression.
func ExportFile(path string, snapshots []telemetry.Snapshot, appVersion, airport string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create replay file: %w", err)
	}
	defer f.Close()

	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(f)
		if err := Export(gz, snapshots, appVersion, airport); err != nil {
			gz.Close()
			return err
		}
		// Close flushes the compressed trailer; a failure here means a
		// truncated archive, not a usable one.
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to finish compressed replay: %w", err)
		}
		return nil
	}
	return Export(f, snapshots, appVersion, airport)
}

// ImportFile reads a replay from path, decompressing ".gz" files.
func ImportFile(path string) ([]telemetry.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open compressed replay: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return Import(r)
}
