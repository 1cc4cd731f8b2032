package feeds

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/unklstewy/globe-replay/pkg/coordinates"
	"github.com/unklstewy/globe-replay/pkg/telemetry"
)

// SBSFeed is the exclusive third data source: a raw BaseStation (SBS-1)
// TCP stream as produced by dump1090 on port 30003. Messages arrive per
// aircraft and per field, so the feed accumulates partial states and
// publishes a coherent map once per second.
//
// When selected in configuration this feed fully replaces the poll and push
// feeds; the fusion layer never merges it with the others.
type SBSFeed struct {
	*publisher

	// addr is the host:port of the BaseStation stream
	addr string

	// dialTimeout bounds connection establishment
	dialTimeout time.Duration

	// staleAfter drops aircraft not heard from for this long
	staleAfter time.Duration

	mu      sync.Mutex
	pending map[string]telemetry.EntityState
	heard   map[string]time.Time
}

// NewSBSFeed creates a BaseStation producer for the given address.
func NewSBSFeed(addr string) *SBSFeed {
	return &SBSFeed{
		publisher:   newPublisher(DefaultPushInterval),
		addr:        addr,
		dialTimeout: 10 * time.Second,
		staleAfter:  60 * time.Second,
		pending:     make(map[string]telemetry.EntityState),
		heard:       make(map[string]time.Time),
	}
}

// Run maintains the TCP connection until ctx is cancelled, publishing the
// accumulated aircraft map once per second while connected.
func (f *SBSFeed) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lines := make(chan string, 256)
	go f.readLoop(ctx, lines)

	for {
		select {
		case <-ctx.Done():
			f.connected.Store(false)
			return
		case line := <-lines:
			f.ingest(line, time.Now())
		case now := <-ticker.C:
			if f.Connected() {
				f.publish(f.collect(now), now)
			}
		}
	}
}

// readLoop dials and reads CSV lines, reconnecting with backoff.
func (f *SBSFeed) readLoop(ctx context.Context, lines chan<- string) {
	delay := time.Second
	for ctx.Err() == nil {
		dialer := net.Dialer{Timeout: f.dialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", f.addr)
		if err != nil {
			f.connected.Store(false)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if delay *= 2; delay > 30*time.Second {
				delay = 30 * time.Second
			}
			continue
		}

		f.connected.Store(true)
		delay = time.Second

		go func() {
			<-ctx.Done()
			conn.Close()
		}()

		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
		conn.Close()
		f.connected.Store(false)
	}
}

// ingest merges one BaseStation CSV line into the pending aircraft state.
//
// Format: MSG,<type>,<session>,<aircraft>,<hex>,<flight>,... with position
// in fields 14/15, altitude in 11, speed/track in 12/13, vertical rate in
// 16, and the on-ground flag in field 21.
func (f *SBSFeed) ingest(line string, now time.Time) {
	fields := strings.Split(line, ",")
	if len(fields) < 11 || fields[0] != "MSG" {
		return
	}
	hex := strings.TrimSpace(fields[4])
	if hex == "" {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.pending[hex]
	if !ok {
		s = telemetry.EntityState{ID: hex}
	}

	if alt, ok := parseField(fields, 11); ok {
		s.Position.Altitude = alt
	}
	if gs, ok := parseField(fields, 12); ok {
		s.GroundSpeed = gs
	}
	if trk, ok := parseField(fields, 13); ok {
		t := coordinates.NormalizeTrack(trk)
		s.Heading = t
		s.GroundTrack = &t
	}
	if lat, ok := parseField(fields, 14); ok {
		s.Position.Latitude = lat
	}
	if lon, ok := parseField(fields, 15); ok {
		s.Position.Longitude = lon
	}
	if vr, ok := parseField(fields, 16); ok {
		s.VerticalRate = &vr
	}
	if g := strings.TrimSpace(field(fields, 21)); g != "" {
		onGround := g == "-1" || g == "1"
		s.OnGround = &onGround
	}

	f.pending[hex] = s
	f.heard[hex] = now
}

// collect builds the publishable map: aircraft with a known position that
// have been heard recently.
func (f *SBSFeed) collect(now time.Time) telemetry.StateMap {
	f.mu.Lock()
	defer f.mu.Unlock()

	states := make(telemetry.StateMap, len(f.pending))
	for hex, s := range f.pending {
		if now.Sub(f.heard[hex]) > f.staleAfter {
			delete(f.pending, hex)
			delete(f.heard, hex)
			continue
		}
		if s.Position.Latitude == 0 && s.Position.Longitude == 0 {
			continue
		}
		states[hex] = s
	}
	return states
}

func field(fields []string, i int) string {
	if i >= len(fields) {
		return ""
	}
	return fields[i]
}

func parseField(fields []string, i int) (float64, bool) {
	v := strings.TrimSpace(field(fields, i))
	if v == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}
