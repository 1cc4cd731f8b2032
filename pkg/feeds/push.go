package feeds

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/unklstewy/globe-replay/pkg/coordinates"
	"github.com/unklstewy/globe-replay/pkg/telemetry"
)

// DefaultPushInterval is the nominal cadence of the streaming feed (~1 Hz).
const DefaultPushInterval = time.Second

// PushFeed is the high-frequency producer: a WebSocket client that receives
// position frames roughly once per second. Its entries take priority over
// the polling feed during fusion.
type PushFeed struct {
	*publisher

	// url is the WebSocket endpoint (ws:// or wss://)
	url string

	// dialer is the WebSocket dialer, swappable for tests
	dialer *websocket.Dialer

	// reconnectDelay is the initial delay before reconnecting; doubles per
	// failure up to maxReconnectDelay
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
}

// NewPushFeed creates a streaming producer for the given WebSocket URL.
func NewPushFeed(url string) *PushFeed {
	return &PushFeed{
		publisher: newPublisher(DefaultPushInterval),
		url:       url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		reconnectDelay:    time.Second,
		maxReconnectDelay: 30 * time.Second,
	}
}

// Run maintains the WebSocket connection until ctx is cancelled,
// reconnecting with exponential backoff after failures.
func (f *PushFeed) Run(ctx context.Context) {
	delay := f.reconnectDelay
	for {
		if err := f.stream(ctx); err == nil || ctx.Err() != nil {
			f.connected.Store(false)
			return
		}
		f.connected.Store(false)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > f.maxReconnectDelay {
			delay = f.maxReconnectDelay
		}
	}
}

// stream runs one connection lifetime: dial, read frames, publish.
// Returns nil only on context cancellation.
func (f *PushFeed) stream(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.connected.Store(true)

	// Close the socket when ctx ends so the blocked ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(3 * DefaultPushInterval))
	})

	for {
		if err := conn.SetReadDeadline(time.Now().Add(3 * DefaultPushInterval)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var frame pushFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// Skip malformed frames rather than dropping the connection
			continue
		}
		if frame.Type != "positions" {
			continue
		}
		f.publish(convertPushFrame(frame), time.Now())
	}
}

// pushFrame is one message on the streaming feed.
type pushFrame struct {
	// Type discriminates message kinds; only "positions" carries states
	Type string `json:"type"`

	// Now is the server's clock in Unix milliseconds
	Now int64 `json:"now"`

	// Aircraft is the full set of fast-updating aircraft
	Aircraft []pushAircraft `json:"aircraft"`
}

// pushAircraft is a single aircraft in a streaming frame. The push feed
// carries richer kinematics than the bulk feed.
type pushAircraft struct {
	Callsign     string   `json:"callsign"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	Altitude     float64  `json:"altitude"`
	Groundspeed  float64  `json:"groundspeed"`
	Heading      float64  `json:"heading"`
	GroundTrack  *float64 `json:"groundTrack"`
	OnGround     *bool    `json:"onGround"`
	VerticalRate *float64 `json:"verticalRate"`
}

func convertPushFrame(frame pushFrame) telemetry.StateMap {
	states := make(telemetry.StateMap, len(frame.Aircraft))
	for _, a := range frame.Aircraft {
		if a.Callsign == "" {
			continue
		}
		states[a.Callsign] = telemetry.EntityState{
			ID: a.Callsign,
			Position: coordinates.Geographic{
				Latitude:  a.Latitude,
				Longitude: a.Longitude,
				Altitude:  a.Altitude,
			},
			GroundSpeed:  a.Groundspeed,
			Heading:      coordinates.NormalizeTrack(a.Heading),
			GroundTrack:  a.GroundTrack,
			OnGround:     a.OnGround,
			VerticalRate: a.VerticalRate,
		}
	}
	return states
}
