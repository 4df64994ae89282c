// aviation/position.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package aviation

import (
	"fmt"
	gomath "math"
	"time"

	"github.com/mmp/aptnav/math"
)

// SimilarTimeInterval is the tolerance within which two positions are
// considered to have been taken at the same time.
const SimilarTimeInterval = 3 * time.Second

type GroundState int

const (
	GroundUnknown GroundState = iota
	GroundOff
	GroundOn
)

func (g GroundState) String() string {
	switch g {
	case GroundOff:
		return "airborne"
	case GroundOn:
		return "on ground"
	default:
		return "unknown"
	}
}

// CoordUnits records whether a Position holds lat-long-altitude or local
// x/y/z coordinates.
type CoordUnits int

const (
	UnitsWorld CoordUnits = iota
	UnitsLocal
)

type FlightPhase int

const (
	PhaseUnknown FlightPhase = iota
	PhaseTaxi
	PhaseTakeoff
	PhaseClimb
	PhaseCruise
	PhaseApproach
	PhaseFinal
	PhaseTouchDown
	PhaseRollOut
)

func (p FlightPhase) String() string {
	switch p {
	case PhaseTaxi:
		return "taxi"
	case PhaseTakeoff:
		return "takeoff"
	case PhaseClimb:
		return "climb"
	case PhaseCruise:
		return "cruise"
	case PhaseApproach:
		return "approach"
	case PhaseFinal:
		return "final"
	case PhaseTouchDown:
		return "touchdown"
	case PhaseRollOut:
		return "rollout"
	default:
		return "unknown"
	}
}

// Position is a time-stamped aircraft (or camera) position. Altitude is
// in meters; unknown altitude and attitude angles are NaN.
type Position struct {
	Lat, Lon float64
	Alt      float64
	Time     time.Time

	Heading, Pitch, Roll float64

	Ground GroundState
	Units  CoordUnits
	Phase  FlightPhase
}

// NewPosition returns a world-coordinate Position with unknown attitude.
func NewPosition(lat, lon, alt float64, t time.Time) Position {
	return Position{
		Lat:     lat,
		Lon:     lon,
		Alt:     alt,
		Time:    t,
		Heading: gomath.NaN(),
		Pitch:   gomath.NaN(),
		Roll:    gomath.NaN(),
	}
}

func (p Position) LatLong() math.Point2LL {
	return math.Point2LL{p.Lon, p.Lat}
}

// IsValid reports whether p is a usable world position: latitude and
// longitude in range and, unless allowUnknownAlt is set or the position
// is on the ground, a known altitude.
func (p Position) IsValid(allowUnknownAlt bool) bool {
	if p.Units != UnitsWorld || !math.ValidLatLong(p.Lat, p.Lon) {
		return false
	}
	if gomath.IsNaN(p.Alt) && !allowUnknownAlt && p.Ground != GroundOn {
		return false
	}
	return true
}

// SimilarTime reports whether p and o were taken within
// SimilarTimeInterval of each other.
func (p Position) SimilarTime(o Position) bool {
	d := p.Time.Sub(o.Time)
	return d > -SimilarTimeInterval && d < SimilarTimeInterval
}

// Compare orders positions by time: it returns -1 if p is clearly before
// o, 1 if it is clearly after, and 0 if the two are similarly timed.
func (p Position) Compare(o Position) int {
	switch {
	case p.SimilarTime(o):
		return 0
	case p.Time.Before(o.Time):
		return -1
	default:
		return 1
	}
}

func (p Position) Distance(o Position) float64 {
	return math.Distance(p.LatLong(), o.LatLong())
}

func (p Position) Bearing(o Position) float64 {
	return math.Bearing(p.LatLong(), o.LatLong())
}

// Destination returns p moved along v. If v carries vertical and ground
// speed, the altitude changes accordingly over the time taken to travel
// v's distance, and the timestamp advances by that time.
func (p Position) Destination(v Vector) Position {
	ll := math.Destination(p.LatLong(), v.Bearing, v.Dist)
	p.Lat, p.Lon = ll[1], ll[0]

	if !gomath.IsNaN(v.VSI) && !gomath.IsNaN(v.Speed) && v.Speed > 0 {
		dt := v.Dist / v.Speed
		p.Alt += v.VSI * dt
		if !p.Time.IsZero() {
			p.Time = p.Time.Add(time.Duration(dt * float64(time.Second)))
		}
	}
	return p
}

func (p Position) String() string {
	return fmt.Sprintf("%s alt %.0fm hdg %.0f %s %s", p.LatLong().DDString(), p.Alt, p.Heading,
		p.Ground, p.Phase)
}

// Vector is the displacement between two positions: bearing in degrees,
// distance in meters, and vertical and ground speed in m/s (NaN when the
// positions' times are unknown or equal).
type Vector struct {
	Bearing float64
	Dist    float64
	VSI     float64
	Speed   float64
}

func VectorBetween(from, to Position) Vector {
	v := Vector{
		Bearing: from.Bearing(to),
		Dist:    from.Distance(to),
		VSI:     gomath.NaN(),
		Speed:   gomath.NaN(),
	}
	if !from.Time.IsZero() && !to.Time.IsZero() {
		if dt := to.Time.Sub(from.Time).Seconds(); dt != 0 {
			v.VSI = (to.Alt - from.Alt) / dt
			v.Speed = v.Dist / dt
		}
	}
	return v
}
