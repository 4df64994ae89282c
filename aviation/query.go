// aviation/query.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package aviation

import (
	gomath "math"
	"sort"

	"github.com/mmp/aptnav/math"
)

// EdgesForHeading returns the edges of type typ (or of any type, for
// EdgeAny) whose line heading is within tolerance degrees of heading's.
// Since edges are undirected, heading and its reciprocal match the same
// edges. The edges are returned in heading order within each part of the
// search window; the airport's edges must be sorted.
func (ap *Airport) EdgesForHeading(heading, tolerance float64, typ EdgeType) []*Edge {
	if gomath.IsNaN(heading) || gomath.IsNaN(tolerance) {
		return nil
	}

	h, _ := math.LineHeading(heading)
	tolerance = math.Abs(tolerance)

	// Inclusive heading ranges to search; a window that wraps past 0 or
	// 180 becomes two ranges.
	var ranges [][2]float64
	begin, end := h-tolerance, h+tolerance
	switch {
	case tolerance >= 90:
		ranges = [][2]float64{{0, 180}}
	case begin >= 0 && end < 180:
		ranges = [][2]float64{{begin, end}}
	case begin < 0:
		ranges = [][2]float64{{0, end}, {begin + 180, 180}}
	default:
		ranges = [][2]float64{{0, end - 180}, {begin, 180}}
	}

	var edges []*Edge
	for _, r := range ranges {
		i := sort.Search(len(ap.Edges), func(i int) bool { return ap.Edges[i].Heading >= r[0] })
		for ; i < len(ap.Edges) && ap.Edges[i].Heading <= r[1]; i++ {
			if typ == EdgeAny || ap.Edges[i].Type == typ {
				edges = append(edges, &ap.Edges[i])
			}
		}
	}
	return edges
}

// EdgeMatch describes the result of a closest-edge search: the edge and
// the foot of the perpendicular from the search position to it.
type EdgeMatch struct {
	Edge     *Edge
	Lat, Lon float64
	// Dist2 is the squared distance in meters from the search position
	// to the edge's line.
	Dist2 float64
}

// ClosestEdge finds the edge closest to pos among those aligned with its
// heading to within tolerance degrees. The edge must be within maxDist
// meters and the foot of the perpendicular may lie at most maxDist
// (squared) past its ends. Nodes without local coordinates are ignored.
func (ap *Airport) ClosestEdge(pos Position, maxDist, tolerance float64, xf CoordinateTransform) (EdgeMatch, bool) {
	best2 := math.Sqr(maxDist)
	maxBeyond2 := math.Sqr(maxDist)

	px, py, pz := xf.WorldToLocal(pos.Lat, pos.Lon, pos.Alt)
	p := [2]float64{px, pz}
	_, inverted := math.LineHeading(pos.Heading)

	var match EdgeMatch
	var bestDist math.SegmentDistance
	var bestFrom, bestTo [2]float64
	for _, e := range ap.EdgesForHeading(pos.Heading, tolerance, EdgeAny) {
		from, to := ap.EdgeA(e), ap.EdgeB(e)
		if inverted {
			from, to = to, from
		}
		if !from.HasLocal() || !to.HasLocal() {
			continue
		}

		d := math.PointSegmentDistanceSquared(p, from.Local(), to.Local())
		if d.Dist2 >= best2 || d.BaseBeyondSegmentSquared() > maxBeyond2 {
			continue
		}

		best2 = d.Dist2
		match.Edge = e
		bestDist, bestFrom, bestTo = d, from.Local(), to.Local()
	}

	if match.Edge == nil {
		return match, false
	}

	base := bestDist.Base(bestFrom, bestTo)
	match.Lat, match.Lon, _ = xf.LocalToWorld(base[0], py, base[1])
	match.Dist2 = bestDist.Dist2
	return match, true
}

// Snap moves pos onto the closest edge, as found by ClosestEdge, and
// returns the match. Positions snapped to taxiways are put in the taxi
// phase; runway matches leave the phase alone so that takeoff and rollout
// aren't disturbed. A non-positive maxDist disables snapping.
func (ap *Airport) Snap(pos *Position, maxDist, tolerance float64, xf CoordinateTransform) (EdgeMatch, bool) {
	if maxDist <= 0 {
		return EdgeMatch{}, false
	}

	m, ok := ap.ClosestEdge(*pos, maxDist, tolerance, xf)
	if !ok {
		return m, false
	}

	pos.Lat, pos.Lon = m.Lat, m.Lon
	if m.Edge.Type != EdgeRunway {
		pos.Phase = PhaseTaxi
	}
	return m, true
}
