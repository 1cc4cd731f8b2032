package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/unklstewy/globe-replay/pkg/coordinates"
	"github.com/unklstewy/globe-replay/pkg/telemetry"
)

// DefaultPollInterval is the nominal update cadence of the bulk data feed.
// The upstream network state file refreshes every 15 seconds.
const DefaultPollInterval = 15 * time.Second

// PollFeed is the low-frequency producer: it polls a bulk JSON endpoint on a
// fixed interval and publishes the full set of aircraft each cycle.
type PollFeed struct {
	*publisher

	// baseURL is the feed endpoint returning the full network state
	baseURL string

	// httpClient is the HTTP client used for requests
	httpClient *http.Client

	// limiter prevents hammering the upstream when intervals are shortened
	limiter *rate.Limiter

	// interval is the polling cadence
	interval time.Duration

	// retry configures backoff for transient fetch failures
	retry RetryConfig
}

// NewPollFeed creates a polling producer for the given endpoint.
// interval <= 0 falls back to DefaultPollInterval.
func NewPollFeed(baseURL string, interval time.Duration) *PollFeed {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollFeed{
		publisher: newPublisher(interval),
		baseURL:   baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		interval: interval,
		retry:    DefaultRetryConfig(),
	}
}

// Run polls the endpoint until ctx is cancelled. The first fetch happens
// immediately so consumers do not wait a full interval for data.
func (f *PollFeed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			f.connected.Store(false)
			return
		case <-ticker.C:
			f.poll(ctx)
		}
	}
}

func (f *PollFeed) poll(ctx context.Context) {
	states, err := RetryWithBackoff(ctx, f.retry, func() (telemetry.StateMap, error) {
		return f.fetch(ctx)
	})
	if err != nil {
		f.connected.Store(false)
		return
	}
	f.connected.Store(true)
	f.publish(states, time.Now())
}

// fetch performs one request against the bulk endpoint.
func (f *PollFeed) fetch(ctx context.Context) (telemetry.StateMap, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed data: %w", err)
	}
	defer resp.Body.Close()

	// Check for rate limit (HTTP 429)
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header),
			Message:    "rate limit exceeded",
		}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("feed returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse feed response: %w", err)
	}

	states := make(telemetry.StateMap, len(payload.Pilots))
	for _, p := range payload.Pilots {
		// Skip aircraft with no usable position
		if p.Callsign == "" || p.Latitude == nil || p.Longitude == nil {
			continue
		}
		states[p.Callsign] = convertPollAircraft(p)
	}
	return states, nil
}

// pollResponse represents the JSON body of the bulk data feed.
type pollResponse struct {
	// Pilots is the array of connected aircraft
	Pilots []pollAircraft `json:"pilots"`

	// UpdatedAt is the feed's own generation timestamp (Unix milliseconds)
	UpdatedAt int64 `json:"updatedAt"`
}

// pollAircraft is a single aircraft in the bulk feed. Position and velocity
// fields are pointers because the upstream omits them for prefile entries.
type pollAircraft struct {
	// Callsign is the connection callsign (e.g., "AAL1")
	Callsign string `json:"callsign"`

	// Lat/Lon in decimal degrees
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	// Altitude in feet MSL
	Altitude *float64 `json:"altitude"`

	// Groundspeed in knots
	Groundspeed *float64 `json:"groundspeed"`

	// Heading in degrees
	Heading *float64 `json:"heading"`

	// Flight plan fields, present only when a plan is filed
	AircraftType *string `json:"aircraftType"`
	Departure    *string `json:"departure"`
	Arrival      *string `json:"arrival"`
}

// convertPollAircraft converts a bulk feed entry to an EntityState.
func convertPollAircraft(p pollAircraft) telemetry.EntityState {
	s := telemetry.EntityState{
		ID: p.Callsign,
		Position: coordinates.Geographic{
			Latitude:  *p.Latitude,
			Longitude: *p.Longitude,
		},
	}
	if p.Altitude != nil {
		s.Position.Altitude = *p.Altitude
	}
	if p.Groundspeed != nil {
		s.GroundSpeed = *p.Groundspeed
	}
	if p.Heading != nil {
		s.Heading = coordinates.NormalizeTrack(*p.Heading)
	}
	if p.AircraftType != nil {
		s.TypeCode = *p.AircraftType
	}
	if p.Departure != nil {
		s.Origin = *p.Departure
	}
	if p.Arrival != nil {
		s.Destination = *p.Arrival
	}
	return s
}

// RateLimitError represents an HTTP 429 rate limit error with retry information.
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError checks if an error is a rate limit error.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	if rle, ok := err.(*RateLimitError); ok {
		return rle, true
	}
	return nil, false
}

// parseRetryAfter extracts the Retry-After header value.
// Returns the duration to wait, or 0 if the header is not present.
// Supports both delay-seconds (integer) and HTTP-date formats.
func parseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if retryTime, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(retryTime); d > 0 {
			return d
		}
	}

	return 0
}
