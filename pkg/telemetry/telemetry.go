// Package telemetry defines the aircraft state model shared by every feed
// producer, the snapshot recorder, and the interpolation consumer.
package telemetry

import (
	"sort"
	"time"

	"github.com/unklstewy/globe-replay/pkg/coordinates"
)

// EntityState represents one aircraft's state at an instant.
// All position data is in WGS84 coordinate system.
type EntityState struct {
	// ID is the stable identity of the aircraft (callsign or hex address).
	// Unique within any single state map.
	ID string

	// Position is the geographic location (latitude/longitude in decimal
	// degrees, altitude in feet MSL)
	Position coordinates.Geographic

	// GroundSpeed in knots
	GroundSpeed float64

	// Heading in degrees (0-359)
	// 0 = North, 90 = East, 180 = South, 270 = West
	Heading float64

	// GroundTrack in degrees, if the feed reports it separately from heading
	GroundTrack *float64

	// OnGround indicates the aircraft is on the surface, if reported
	OnGround *bool

	// VerticalRate in feet per minute (positive = climbing), if reported
	VerticalRate *float64

	// TypeCode is the ICAO aircraft type designator (e.g., "B738")
	TypeCode string

	// Origin is the departure airport ICAO code, if known
	Origin string

	// Destination is the arrival airport ICAO code, if known
	Destination string

	// Timestamp is the instant this state is valid for. This is not
	// necessarily capture time: for fused live data the "current" record
	// carries a timestamp slightly in the future so it can serve as an
	// interpolation target.
	Timestamp time.Time
}

// StateMap maps aircraft ID to its state at one instant.
//
// Producers publish StateMaps by atomic replacement and never mutate a map
// after publishing it, so readers may hold one across frames without copying.
type StateMap = map[string]EntityState

// EntityStateRecord is the compact serializable mirror of EntityState used
// in snapshots and replay files. Optional extended fields are nullable so
// files written by older or newer versions remain readable.
type EntityStateRecord struct {
	ID           string   `json:"id" msgpack:"id"`
	Latitude     float64  `json:"latitude" msgpack:"lat"`
	Longitude    float64  `json:"longitude" msgpack:"lon"`
	Altitude     float64  `json:"altitude" msgpack:"alt"`
	GroundSpeed  float64  `json:"groundSpeed" msgpack:"gs"`
	Heading      float64  `json:"heading" msgpack:"hdg"`
	GroundTrack  *float64 `json:"groundTrack,omitempty" msgpack:"trk,omitempty"`
	OnGround     *bool    `json:"onGround,omitempty" msgpack:"gnd,omitempty"`
	VerticalRate *float64 `json:"verticalRate,omitempty" msgpack:"vr,omitempty"`
	TypeCode     *string  `json:"typeCode,omitempty" msgpack:"typ,omitempty"`
	Origin       *string  `json:"origin,omitempty" msgpack:"org,omitempty"`
	Destination  *string  `json:"destination,omitempty" msgpack:"dst,omitempty"`

	// Timestamp in Unix milliseconds
	Timestamp int64 `json:"timestamp" msgpack:"ts"`
}

// RecordFromState converts an EntityState to its serializable record form.
// Empty optional identity strings become null rather than "".
func RecordFromState(s EntityState) EntityStateRecord {
	r := EntityStateRecord{
		ID:           s.ID,
		Latitude:     s.Position.Latitude,
		Longitude:    s.Position.Longitude,
		Altitude:     s.Position.Altitude,
		GroundSpeed:  s.GroundSpeed,
		Heading:      s.Heading,
		GroundTrack:  s.GroundTrack,
		OnGround:     s.OnGround,
		VerticalRate: s.VerticalRate,
		Timestamp:    s.Timestamp.UnixMilli(),
	}
	if s.TypeCode != "" {
		r.TypeCode = &s.TypeCode
	}
	if s.Origin != "" {
		r.Origin = &s.Origin
	}
	if s.Destination != "" {
		r.Destination = &s.Destination
	}
	return r
}

// State converts a record back to an EntityState. Null optional fields
// normalize to their zero values.
func (r EntityStateRecord) State() EntityState {
	s := EntityState{
		ID: r.ID,
		Position: coordinates.Geographic{
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Altitude:  r.Altitude,
		},
		GroundSpeed:  r.GroundSpeed,
		Heading:      r.Heading,
		GroundTrack:  r.GroundTrack,
		OnGround:     r.OnGround,
		VerticalRate: r.VerticalRate,
		Timestamp:    time.UnixMilli(r.Timestamp).UTC(),
	}
	if r.TypeCode != nil {
		s.TypeCode = *r.TypeCode
	}
	if r.Origin != nil {
		s.Origin = *r.Origin
	}
	if r.Destination != nil {
		s.Destination = *r.Destination
	}
	return s
}

// RecordsFromStates flattens a state map into records ordered by ID, so a
// snapshot's serialized form is deterministic regardless of map iteration.
func RecordsFromStates(states StateMap) []EntityStateRecord {
	records := make([]EntityStateRecord, 0, len(states))
	for _, s := range states {
		records = append(records, RecordFromState(s))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})
	return records
}

// StatesFromRecords rebuilds a state map from serialized records.
func StatesFromRecords(records []EntityStateRecord) StateMap {
	states := make(StateMap, len(records))
	for _, r := range records {
		states[r.ID] = r.State()
	}
	return states
}

// Snapshot is an immutable capture of all tracked aircraft at one moment.
// Created by the recorder on each feed tick and never modified afterwards;
// snapshots leave the buffer only through ring overflow or an explicit clear.
type Snapshot struct {
	// CapturedAt is the local clock time the snapshot was recorded
	CapturedAt time.Time `msgpack:"captured_at"`

	// SourceTime is the origin feed's own clock, kept for diagnostics
	SourceTime time.Time `msgpack:"source_time"`

	// Entities holds the serialized aircraft states, ordered by ID
	Entities []EntityStateRecord `msgpack:"entities"`

	// FeedInterval is the time since the previous capture from the same feed
	FeedInterval time.Duration `msgpack:"feed_interval"`
}

// States deserializes the snapshot's entities into a state map.
// Callers on the per-frame path should cache the result keyed by CapturedAt
// rather than calling this every frame.
func (s Snapshot) States() StateMap {
	return StatesFromRecords(s.Entities)
}
