// math/latlong.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	"fmt"
	gomath "math"
)

const (
	// EarthRadiusMeters is the mean radius used for great circle math.
	EarthRadiusMeters = 6371000

	// LatDegreeMeters is the length of one degree of latitude.
	LatDegreeMeters = 111132.95

	FeetToMeters = 0.3048
	MetersToFeet = 1 / FeetToMeters

	// KnotsToMetersPerSecond converts knots to m/s.
	KnotsToMetersPerSecond = 0.514444
	// FeetPerMinuteToMetersPerSecond converts ft/min to m/s.
	FeetPerMinuteToMetersPerSecond = 0.00508
)

///////////////////////////////////////////////////////////////////////////
// Point2LL

// Point2LL represents a 2D point on the Earth in latitude-longitude.
// Important: 0 (x) is longitude, 1 (y) is latitude
type Point2LL [2]float64

func (p Point2LL) Longitude() float64 {
	return p[0]
}

func (p Point2LL) Latitude() float64 {
	return p[1]
}

// DDString returns the position in decimal degrees, e.g.:
// (39.860901, -75.274864)
func (p Point2LL) DDString() string {
	return fmt.Sprintf("(%f, %f)", p[1], p[0]) // latitude, longitude
}

// IsValid reports whether the point is a usable lat-long: latitude in
// [-90,90] and longitude in [-180,180).
func (p Point2LL) IsValid() bool {
	return ValidLatLong(p[1], p[0])
}

func ValidLatLong(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon < 180
}

// LonDegreeMeters returns the length of one degree of longitude at the
// given latitude.
func LonDegreeMeters(lat float64) float64 {
	return LatDegreeMeters * gomath.Cos(Radians(lat))
}

// NormalizeLongitude reduces lon to [-180,180).
func NormalizeLongitude(lon float64) float64 {
	lon = gomath.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

// Bearing returns the initial great circle bearing from a to b in
// degrees, in [0,360).
func Bearing(a, b Point2LL) float64 {
	// https://www.movable-type.co.uk/scripts/latlong.html
	lat1, lat2 := Radians(a[1]), Radians(b[1])
	dlon := Radians(b[0] - a[0])

	y := gomath.Sin(dlon) * gomath.Cos(lat2)
	x := gomath.Cos(lat1)*gomath.Sin(lat2) - gomath.Sin(lat1)*gomath.Cos(lat2)*gomath.Cos(dlon)
	return NormalizeHeading(Degrees(gomath.Atan2(y, x)))
}

// Distance returns the great circle distance between a and b in meters.
func Distance(a, b Point2LL) float64 {
	lat1, lon1 := Radians(a[1]), Radians(a[0])
	lat2, lon2 := Radians(b[1]), Radians(b[0])
	dlat, dlon := lat2-lat1, lon2-lon1

	x := Sqr(gomath.Sin(dlat/2)) + gomath.Cos(lat1)*gomath.Cos(lat2)*Sqr(gomath.Sin(dlon/2))
	c := 2 * gomath.Atan2(gomath.Sqrt(x), gomath.Sqrt(1-x))
	return EarthRadiusMeters * c
}

// Destination returns the point reached by travelling dist meters from p
// along the great circle with initial bearing hdg.
func Destination(p Point2LL, hdg float64, dist float64) Point2LL {
	lat1, lon1 := Radians(p[1]), Radians(p[0])
	theta := Radians(hdg)
	delta := dist / EarthRadiusMeters

	lat2 := gomath.Asin(gomath.Sin(lat1)*gomath.Cos(delta) +
		gomath.Cos(lat1)*gomath.Sin(delta)*gomath.Cos(theta))
	lon2 := lon1 + gomath.Atan2(gomath.Sin(theta)*gomath.Sin(delta)*gomath.Cos(lat1),
		gomath.Cos(delta)-gomath.Sin(lat1)*gomath.Sin(lat2))

	return Point2LL{NormalizeLongitude(Degrees(lon2)), Degrees(lat2)}
}

// EstimatedDistanceSquared returns a flat-earth approximation of the
// squared distance in meters between a and b. Below 10m it differs from
// Distance by millimeters; use it for comparisons and thresholds, not for
// reporting distances.
func EstimatedDistanceSquared(a, b Point2LL) float64 {
	dlat := (b[1] - a[1]) * LatDegreeMeters
	dlon := (b[0] - a[0]) * LonDegreeMeters((a[1]+b[1])/2)
	return Sqr(dlat) + Sqr(dlon)
}
