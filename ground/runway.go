// ground/runway.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ground

import (
	gomath "math"
	"time"

	av "github.com/mmp/aptnav/aviation"
	"github.com/mmp/aptnav/math"
	"github.com/mmp/aptnav/util"
)

const (
	// RunwayHeadingTolerance is the largest difference in degrees between
	// an aircraft's heading and both the runway's heading and the bearing
	// to its touchdown point.
	RunwayHeadingTolerance = 15

	// The aircraft's final approach vertical speed may be off by this
	// factor either way.
	vsiToleranceFactor = 1.5

	// Approach speed as a multiple of the flaps-down speed.
	approachSpeedFactor = 1.2
)

// AircraftModel holds the performance figures of an aircraft type that
// runway selection needs.
type AircraftModel struct {
	// VSIFinal is the typical vertical speed on final in feet per minute;
	// negative when descending.
	VSIFinal float64
	// FlapsDownSpeed is in knots.
	FlapsDownSpeed float64
	// PitchFlare is the pitch at touchdown in degrees.
	PitchFlare float64
}

// AircraftState describes an aircraft looking for a runway: where it's
// headed, how fast it's going (meters per second), and its type.
type AircraftState struct {
	Position av.Position
	Speed    float64
	Model    AircraftModel
}

// Touchdown is the result of a runway search.
type Touchdown struct {
	Airport string
	// Runway is the identifier of the runway end landed on.
	Runway   string
	Position av.Position
	// HeadingDiff is the turn in degrees needed to fly to the touchdown
	// point.
	HeadingDiff float64
}

// FindRunway returns the touchdown point of the runway that the aircraft
// is best lined up with: the runway end whose bearing requires the least
// turn, among those aligned with its heading that can be reached with a
// vertical speed within the model's final approach range. Airports are
// considered in identifier order and a later runway must be strictly
// better to be chosen.
func (r *Repository) FindRunway(ac AircraftState) (Touchdown, bool) {
	from := ac.Position
	if gomath.IsNaN(from.Heading) || gomath.IsNaN(from.Alt) {
		r.metrics.runwaySelected(false)
		return Touchdown{}, false
	}

	vsiMin := ac.Model.VSIFinal * vsiToleranceFactor * math.FeetPerMinuteToMetersPerSecond
	vsiMax := ac.Model.VSIFinal / vsiToleranceFactor * math.FeetPerMinuteToMetersPerSecond
	if vsiMin > vsiMax {
		// climbing "final" from a misconfigured model
		vsiMin, vsiMax = vsiMax, vsiMin
	}
	speed := min(ac.Speed, ac.Model.FlapsDownSpeed*approachSpeedFactor*math.KnotsToMetersPerSecond)
	if !(speed > 0) {
		r.metrics.runwaySelected(false)
		return Touchdown{}, false
	}
	_, inverted := math.LineHeading(from.Heading)

	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	var best Touchdown
	var bestEdge *av.Edge
	var bestEnd *av.RunwayEndpoint
	var bestDt float64
	bestDiff := float64(RunwayHeadingTolerance)

	for _, id := range util.SortedMapKeys(r.airports) {
		ap := r.airports[id]
		for _, e := range ap.EdgesForHeading(from.Heading, RunwayHeadingTolerance, av.EdgeRunway) {
			re := util.Select(inverted, ap.RunwayEndB(e), ap.RunwayEndA(e))
			if gomath.IsNaN(re.Elevation) {
				continue
			}

			diff := math.Abs(math.HeadingDifference(from.Heading, math.Bearing(from.LatLong(), re.LatLong())))
			if diff >= bestDiff {
				continue
			}

			// Already at the touchdown point: there's no descent left to
			// check, so it can't be the next one.
			dt := math.Distance(from.LatLong(), re.LatLong()) / speed
			if !(dt > 0) {
				continue
			}
			if vsi := (re.Elevation - from.Alt) / dt; vsi < vsiMin || vsi > vsiMax {
				continue
			}

			best = Touchdown{Airport: ap.Id, Runway: re.Id, HeadingDiff: diff}
			bestEdge, bestEnd, bestDt = e, re, dt
			bestDiff = diff
		}
	}

	if bestEnd == nil {
		r.metrics.runwaySelected(false)
		r.lg.Debugf("no runway found for heading %.0f at %s", from.Heading, from.LatLong().DDString())
		return Touchdown{}, false
	}

	pos := av.NewPosition(bestEnd.Lat, bestEnd.Lon, bestEnd.Elevation, time.Time{})
	if !from.Time.IsZero() {
		pos.Time = from.Time.Add(time.Duration(bestDt * float64(time.Second)))
	}
	pos.Heading = util.Select(inverted, bestEdge.Heading+180, bestEdge.Heading)
	pos.Pitch = ac.Model.PitchFlare
	pos.Roll = 0
	pos.Ground = av.GroundOn
	pos.Phase = av.PhaseTouchDown
	best.Position = pos

	r.metrics.runwaySelected(true)
	r.lg.Debugf("found runway %s/%s at %s", best.Airport, best.Runway, pos.LatLong().DDString())
	return best, true
}
