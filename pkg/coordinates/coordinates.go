package coordinates

import "math"

// Constants for coordinate calculations
const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// EarthRadiusKm is the Earth's radius in kilometers (WGS84 mean radius)
	EarthRadiusKm = 6371.0

	// KmPerNauticalMile converts nautical miles to kilometers
	KmPerNauticalMile = 1.852

	// FeetToMeters converts feet to meters
	FeetToMeters = 0.3048
)

// Geographic represents a position on Earth's surface.
// Uses the WGS84 coordinate system (same as GPS).
type Geographic struct {
	// Latitude in decimal degrees (-90 to +90)
	// Positive = North, Negative = South
	Latitude float64

	// Longitude in decimal degrees (-180 to +180)
	// Positive = East, Negative = West
	Longitude float64

	// Altitude in feet above mean sea level (MSL)
	Altitude float64
}

// NormalizeTrack ensures a ground track is in the range [0, 360).
func NormalizeTrack(track float64) float64 {
	t := math.Mod(track, 360.0)
	if t < 0 {
		t += 360.0
	}
	return t
}

// Bearing calculates the initial bearing (forward azimuth) from one point to another.
// Uses spherical trigonometry to calculate the bearing along a great circle.
// Returns bearing in degrees (0-360), where 0/360 = North, 90 = East, 180 = South, 270 = West.
func Bearing(from, to Geographic) float64 {
	lat1 := from.Latitude * DegreesToRadians
	lon1 := from.Longitude * DegreesToRadians
	lat2 := to.Latitude * DegreesToRadians
	lon2 := to.Longitude * DegreesToRadians

	dLon := lon2 - lon1
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	bearing := math.Atan2(y, x) * RadiansToDegrees

	// Normalize to 0-360
	if bearing < 0 {
		bearing += 360
	}

	return bearing
}

// DistanceNauticalMiles calculates the great-circle distance between two points.
// Uses the Haversine formula for accuracy over short and long distances.
// Returns distance in nautical miles.
func DistanceNauticalMiles(from, to Geographic) float64 {
	lat1Rad := from.Latitude * DegreesToRadians
	lon1Rad := from.Longitude * DegreesToRadians
	lat2Rad := to.Latitude * DegreesToRadians
	lon2Rad := to.Longitude * DegreesToRadians

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	// Haversine formula
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	distanceKm := EarthRadiusKm * c
	return distanceKm / KmPerNauticalMile
}

// WithinRadius reports whether point lies within radiusNM nautical miles
// of center. Altitude is ignored; the check is purely horizontal.
func WithinRadius(center, point Geographic, radiusNM float64) bool {
	return DistanceNauticalMiles(center, point) <= radiusNM
}

// ProjectPosition advances a position along a constant ground track for the
// given duration, using a flat-Earth approximation adequate for the short
// horizons involved in dead-reckoning display trails.
//
// groundSpeedKnots is horizontal speed; trackDegrees is the direction of
// travel; seconds is the projection horizon.
func ProjectPosition(from Geographic, groundSpeedKnots, trackDegrees, seconds float64) Geographic {
	distanceNM := groundSpeedKnots * seconds / 3600.0
	distanceKm := distanceNM * KmPerNauticalMile

	trackRad := trackDegrees * DegreesToRadians
	dNorthKm := distanceKm * math.Cos(trackRad)
	dEastKm := distanceKm * math.Sin(trackRad)

	// Degrees of latitude per km is effectively constant; longitude shrinks
	// with cos(latitude).
	latKmPerDegree := 2 * math.Pi * EarthRadiusKm / 360.0
	lonKmPerDegree := latKmPerDegree * math.Cos(from.Latitude*DegreesToRadians)
	if lonKmPerDegree < 1e-6 {
		lonKmPerDegree = 1e-6
	}

	return Geographic{
		Latitude:  from.Latitude + dNorthKm/latKmPerDegree,
		Longitude: from.Longitude + dEastKm/lonKmPerDegree,
		Altitude:  from.Altitude,
	}
}
