// aviation/airport.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package aviation

import (
	"cmp"
	"fmt"
	gomath "math"
	"slices"
	"strings"

	"github.com/mmp/aptnav/math"
)

const (
	// MinTaxiSegmentLength is the shortest taxiway segment, in meters,
	// that is kept when taxi lines are simplified.
	MinTaxiSegmentLength = 10

	// TouchdownFraction is the fraction of a runway's usable length,
	// measured from each threshold, before the assumed touchdown point.
	TouchdownFraction = 0.1
)

///////////////////////////////////////////////////////////////////////////
// TaxiNode

// TaxiNode is a point of the taxi network. X and Z are local coordinates
// in meters; they're NaN until UpdateLocalCoords has been called.
type TaxiNode struct {
	Lat, Lon float64
	X, Z     float64
}

func NewTaxiNode(p math.Point2LL) TaxiNode {
	return TaxiNode{Lat: p[1], Lon: p[0], X: gomath.NaN(), Z: gomath.NaN()}
}

func (n TaxiNode) LatLong() math.Point2LL {
	return math.Point2LL{n.Lon, n.Lat}
}

func (n TaxiNode) HasLatLong() bool {
	return !gomath.IsNaN(n.Lat) && !gomath.IsNaN(n.Lon)
}

func (n TaxiNode) HasLocal() bool {
	return !gomath.IsNaN(n.X) && !gomath.IsNaN(n.Z)
}

// Local returns the node's (x,z) local coordinates.
func (n TaxiNode) Local() [2]float64 {
	return [2]float64{n.X, n.Z}
}

func (n *TaxiNode) UpdateLocalCoords(force bool, alt float64, xf CoordinateTransform) {
	if force || !n.HasLocal() {
		n.X, _, n.Z = xf.WorldToLocal(n.Lat, n.Lon, alt)
	}
}

///////////////////////////////////////////////////////////////////////////
// RunwayEndpoint

// RunwayEndpoint is the touchdown point at one end of a runway. Its
// Elevation (meters) is NaN until it has been probed, and Y is NaN
// whenever Elevation is.
type RunwayEndpoint struct {
	TaxiNode
	Id        string
	Elevation float64
	Y         float64
}

func NewRunwayEndpoint(id string, p math.Point2LL) RunwayEndpoint {
	return RunwayEndpoint{
		TaxiNode:  NewTaxiNode(p),
		Id:        id,
		Elevation: gomath.NaN(),
		Y:         gomath.NaN(),
	}
}

// UpdateLocalCoords computes the local coordinates using the endpoint's
// own elevation when known and alt otherwise.
func (re *RunwayEndpoint) UpdateLocalCoords(force bool, alt float64, xf CoordinateTransform) {
	known := !gomath.IsNaN(re.Elevation)
	if force || !re.HasLocal() || (known && gomath.IsNaN(re.Y)) {
		if known {
			alt = re.Elevation
		}
		re.X, re.Y, re.Z = xf.WorldToLocal(re.Lat, re.Lon, alt)
	}
	if !known {
		re.Y = gomath.NaN()
	}
}

///////////////////////////////////////////////////////////////////////////
// Edge

type EdgeType int

const (
	// EdgeAny matches edges of either type in queries.
	EdgeAny EdgeType = iota
	EdgeRunway
	EdgeTaxiway
)

func (t EdgeType) String() string {
	switch t {
	case EdgeRunway:
		return "runway"
	case EdgeTaxiway:
		return "taxiway"
	default:
		return "any"
	}
}

// Edge connects two nodes of an Airport. A and B index RunwayEnds for
// runway edges and TaxiNodes for taxiway edges. Heading is in [0,180);
// travelling from B to A is Heading+180.
type Edge struct {
	Type    EdgeType
	A, B    int
	Heading float64
	Length  float64
}

// NewEdge returns an edge from a to b with the given bearing, swapping
// its ends if needed to bring the heading into [0,180).
func NewEdge(typ EdgeType, a, b int, bearing, length float64) Edge {
	h, inverted := math.LineHeading(bearing)
	if inverted {
		a, b = b, a
	}
	return Edge{Type: typ, A: a, B: b, Heading: h, Length: length}
}

///////////////////////////////////////////////////////////////////////////
// Airport

// Airport holds the ground network of one airport. Nodes are only ever
// appended and Edges refer to them by index; once the airport has been
// published, Edges are sorted by Heading and must stay that way.
type Airport struct {
	Id     string
	Bounds math.BoundingBox

	// Elevation is the probed terrain elevation at the center of Bounds;
	// FieldElevation is from the apt.dat header. Both are in meters and
	// NaN when unknown.
	Elevation      float64
	FieldElevation float64

	TaxiNodes  []TaxiNode
	RunwayEnds []RunwayEndpoint
	Edges      []Edge
}

func NewAirport(id string) *Airport {
	return &Airport{
		Id:             id,
		Bounds:         math.EmptyBoundingBox(),
		Elevation:      gomath.NaN(),
		FieldElevation: gomath.NaN(),
	}
}

// IsValid reports whether the airport has an identifier, runway
// endpoints, and edges.
func (ap *Airport) IsValid() bool {
	return ap.Id != "" && ap.HasRunwayEnds() && ap.HasEdges()
}

func (ap *Airport) HasEdges() bool {
	return len(ap.Edges) > 0
}

func (ap *Airport) HasRunwayEnds() bool {
	return len(ap.RunwayEnds) > 0
}

// AddTaxiNode appends a node and returns its index.
func (ap *Airport) AddTaxiNode(p math.Point2LL) int {
	ap.Bounds.Enlarge(p)
	ap.TaxiNodes = append(ap.TaxiNodes, NewTaxiNode(p))
	return len(ap.TaxiNodes) - 1
}

// AddTaxiEdge adds a taxiway edge between the taxi nodes a and b. A NaN
// length is computed from the nodes' positions. It returns false, adding
// nothing, if either index is invalid or either node has no position.
func (ap *Airport) AddTaxiEdge(a, b int, length float64) bool {
	if a < 0 || a >= len(ap.TaxiNodes) || b < 0 || b >= len(ap.TaxiNodes) {
		return false
	}
	na, nb := ap.TaxiNodes[a], ap.TaxiNodes[b]
	if !na.HasLatLong() || !nb.HasLatLong() {
		return false
	}

	if gomath.IsNaN(length) {
		length = gomath.Sqrt(math.EstimatedDistanceSquared(na.LatLong(), nb.LatLong()))
	}
	ap.Edges = append(ap.Edges, NewEdge(EdgeTaxiway, a, b, math.Bearing(na.LatLong(), nb.LatLong()), length))
	return true
}

// AddTaxiLine adds a run of connected taxi nodes, dropping nodes that are
// closer than MinTaxiSegmentLength to the previously kept one. The first
// and last nodes are always kept. It returns the number of edges added.
func (ap *Airport) AddTaxiLine(nodes []math.Point2LL) int {
	if len(nodes) < 2 {
		return 0
	}
	nodes = slices.Clone(nodes)
	minLen2 := float64(math.Sqr(MinTaxiSegmentLength))

	n := 0
	addEdge := func(length float64) {
		last := len(ap.TaxiNodes) - 1
		if ap.AddTaxiEdge(last-1, last, length) {
			n++
		}
	}

	ap.AddTaxiNode(nodes[0])

	// nodes[i] is always the last node added; stop with three left.
	for i := 0; i+3 < len(nodes); {
		d2 := math.EstimatedDistanceSquared(nodes[i], nodes[i+1])
		if d2 < minLen2 {
			nodes = slices.Delete(nodes, i+1, i+2)
			continue
		}
		ap.AddTaxiNode(nodes[i+1])
		addEdge(gomath.Sqrt(d2))
		i++
	}

	// Of the last three, the middle one goes if it's too close to either
	// neighbor, since the final node must be kept.
	lastLength := gomath.NaN()
	if k := len(nodes); k >= 3 {
		ab2 := math.EstimatedDistanceSquared(nodes[k-3], nodes[k-2])
		bc2 := math.EstimatedDistanceSquared(nodes[k-2], nodes[k-1])
		if ab2 < minLen2 || bc2 < minLen2 {
			nodes = slices.Delete(nodes, k-2, k-1)
			lastLength = gomath.Sqrt(ab2) + gomath.Sqrt(bc2)
		} else {
			ap.AddTaxiNode(nodes[k-2])
			addEdge(gomath.Sqrt(ab2))
			lastLength = gomath.Sqrt(bc2)
		}
	}

	ap.AddTaxiNode(nodes[len(nodes)-1])
	addEdge(lastLength)

	return n
}

// AddRunwayEnds adds a runway given its physical thresholds and their
// displaced threshold distances in meters. Each endpoint is moved past
// its displaced threshold and then a further TouchdownFraction of the
// remaining length, so the runway edge spans the touchdown zone; the
// edge's length is what remains in between. It returns false, adding
// nothing, if the displaced thresholds leave no usable runway.
func (ap *Airport) AddRunwayEnds(re1, re2 RunwayEndpoint, displaced1, displaced2 float64) bool {
	p1, p2 := re1.LatLong(), re2.LatLong()
	bearing := math.Bearing(p1, p2)
	dist := math.Distance(p1, p2) - displaced1 - displaced2
	if !(dist > 0) {
		return false
	}

	p1 = math.Destination(p1, bearing, displaced1+dist*TouchdownFraction)
	p2 = math.Destination(p2, bearing, -(displaced2 + dist*TouchdownFraction))
	re1.Lat, re1.Lon = p1[1], p1[0]
	re2.Lat, re2.Lon = p2[1], p2[0]
	dist *= 1 - 2*TouchdownFraction

	ap.Bounds.EnlargeAll(p1, p2)
	ap.RunwayEnds = append(ap.RunwayEnds, re1, re2)
	n := len(ap.RunwayEnds)
	ap.Edges = append(ap.Edges, NewEdge(EdgeRunway, n-2, n-1, bearing, dist))
	return true
}

// EdgeA returns the node at e's A end, looked up in the collection e's
// type selects.
func (ap *Airport) EdgeA(e *Edge) *TaxiNode {
	return ap.edgeNode(e, e.A)
}

func (ap *Airport) EdgeB(e *Edge) *TaxiNode {
	return ap.edgeNode(e, e.B)
}

func (ap *Airport) edgeNode(e *Edge, idx int) *TaxiNode {
	switch e.Type {
	case EdgeRunway:
		return &ap.RunwayEnds[idx].TaxiNode
	case EdgeTaxiway:
		return &ap.TaxiNodes[idx]
	default:
		panic(fmt.Sprintf("%s: edge has no node collection for type %s", ap.Id, e.Type))
	}
}

// RunwayEndA returns the runway endpoint at e's A end; e must be a runway
// edge.
func (ap *Airport) RunwayEndA(e *Edge) *RunwayEndpoint {
	return ap.runwayEnd(e, e.A)
}

func (ap *Airport) RunwayEndB(e *Edge) *RunwayEndpoint {
	return ap.runwayEnd(e, e.B)
}

func (ap *Airport) runwayEnd(e *Edge, idx int) *RunwayEndpoint {
	if e.Type != EdgeRunway {
		panic(fmt.Sprintf("%s: runway endpoint requested for %s edge", ap.Id, e.Type))
	}
	return &ap.RunwayEnds[idx]
}

// SortEdges sorts the edges by heading, which is the order that
// EdgesForHeading relies on.
func (ap *Airport) SortEdges() {
	slices.SortStableFunc(ap.Edges, compareEdgeHeadings)
}

func (ap *Airport) EdgesSorted() bool {
	return slices.IsSortedFunc(ap.Edges, compareEdgeHeadings)
}

func compareEdgeHeadings(a, b Edge) int {
	return cmp.Compare(a.Heading, b.Heading)
}

// Finalize prepares the airport for publication: edges are sorted and the
// bounds padded by margin meters.
func (ap *Airport) Finalize(margin float64) {
	ap.SortEdges()
	ap.Bounds.EnlargeMeters(margin, margin)
}

// Contains reports whether p is within the airport's bounds.
func (ap *Airport) Contains(p math.Point2LL) bool {
	return ap.Bounds.Contains(p)
}

// UpdateLocalCoords computes local coordinates for all nodes; unless
// force is set, only nodes that don't have them yet are updated.
func (ap *Airport) UpdateLocalCoords(force bool, xf CoordinateTransform) {
	for i := range ap.TaxiNodes {
		ap.TaxiNodes[i].UpdateLocalCoords(force, ap.Elevation, xf)
	}
	for i := range ap.RunwayEnds {
		ap.RunwayEnds[i].UpdateLocalCoords(force, ap.Elevation, xf)
	}
}

// UpdateElevations probes the terrain at the center of the airport and
// at each runway endpoint whose elevation isn't known yet. With
// fieldFallback, failed probes fall back to the published field
// elevation. A nil probe is treated as one that always fails.
func (ap *Airport) UpdateElevations(probe ElevationProbe, fieldFallback bool) {
	elevation := func(p math.Point2LL) (float64, bool) {
		if probe != nil {
			if e, ok := probe.Elevation(p[1], p[0]); ok {
				return e, true
			}
		}
		if fieldFallback && !gomath.IsNaN(ap.FieldElevation) {
			return ap.FieldElevation, true
		}
		return gomath.NaN(), false
	}

	if e, ok := elevation(ap.Bounds.Center()); ok {
		ap.Elevation = e
	}
	for i := range ap.RunwayEnds {
		re := &ap.RunwayEnds[i]
		if gomath.IsNaN(re.Elevation) {
			re.Elevation, _ = elevation(re.LatLong())
		}
	}
}

// RunwaysString returns the airport's id followed by its runways, e.g.
// "LSZH 10/28 14/32 16/34".
func (ap *Airport) RunwaysString() string {
	var sb strings.Builder
	sb.WriteString(ap.Id)
	for i := 0; i+1 < len(ap.RunwayEnds); i += 2 {
		sb.WriteString(" " + ap.RunwayEnds[i].Id + "/" + ap.RunwayEnds[i+1].Id)
	}
	return sb.String()
}
