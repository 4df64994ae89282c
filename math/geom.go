// math/geom.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import gomath "math"

///////////////////////////////////////////////////////////////////////////
// BoundingBox

// BoundingBox is a lat-long box given by its northwest and southeast
// corners. The zero value is not empty; use EmptyBoundingBox.
type BoundingBox struct {
	NW, SE Point2LL
}

// EmptyBoundingBox returns a box that contains nothing and takes on the
// extent of the first point it is enlarged by.
func EmptyBoundingBox() BoundingBox {
	nan := gomath.NaN()
	return BoundingBox{NW: Point2LL{nan, nan}, SE: Point2LL{nan, nan}}
}

// BoundingBoxAround returns the box of the given width and height (in
// meters) centered at c.
func BoundingBoxAround(c Point2LL, width, height float64) BoundingBox {
	dlat := height / 2 / LatDegreeMeters
	dlon := width / 2 / LonDegreeMeters(c[1])
	return BoundingBox{
		NW: Point2LL{c[0] - dlon, min(c[1]+dlat, 90)},
		SE: Point2LL{c[0] + dlon, max(c[1]-dlat, -90)},
	}
}

func (b BoundingBox) IsEmpty() bool {
	return gomath.IsNaN(b.NW[0]) || gomath.IsNaN(b.SE[0])
}

func (b BoundingBox) Center() Point2LL {
	return Point2LL{(b.NW[0] + b.SE[0]) / 2, (b.NW[1] + b.SE[1]) / 2}
}

// Enlarge grows the box so that it includes p.
func (b *BoundingBox) Enlarge(p Point2LL) {
	if b.IsEmpty() {
		b.NW, b.SE = p, p
		return
	}
	b.NW[0] = min(b.NW[0], p[0])
	b.NW[1] = max(b.NW[1], p[1])
	b.SE[0] = max(b.SE[0], p[0])
	b.SE[1] = min(b.SE[1], p[1])
}

func (b *BoundingBox) EnlargeAll(pts ...Point2LL) {
	for _, p := range pts {
		b.Enlarge(p)
	}
}

// EnlargeMeters pads the box by dx meters to the west and east and dy
// meters to the north and south.
func (b *BoundingBox) EnlargeMeters(dx, dy float64) {
	if b.IsEmpty() {
		return
	}
	dlat := dy / LatDegreeMeters
	// Use the latitude closest to a pole so the padding is never short.
	dlon := dx / LonDegreeMeters(max(Abs(b.NW[1]), Abs(b.SE[1])))
	b.NW[0] -= dlon
	b.NW[1] = min(b.NW[1]+dlat, 90)
	b.SE[0] += dlon
	b.SE[1] = max(b.SE[1]-dlat, -90)
}

func (b BoundingBox) Contains(p Point2LL) bool {
	return !b.IsEmpty() && p[0] >= b.NW[0] && p[0] <= b.SE[0] && p[1] <= b.NW[1] && p[1] >= b.SE[1]
}

// Overlaps returns true if the two boxes share any area, including a
// common edge.
func (b BoundingBox) Overlaps(o BoundingBox) bool {
	if b.IsEmpty() || o.IsEmpty() {
		return false
	}
	x := b.SE[0] >= o.NW[0] && b.NW[0] <= o.SE[0]
	y := b.NW[1] >= o.SE[1] && b.SE[1] <= o.NW[1]
	return x && y
}

///////////////////////////////////////////////////////////////////////////
// SegmentDistance

// SegmentDistance holds the squared quantities that relate a point to a
// segment (a,b): Dist2 is the squared distance to the supporting line,
// Len2 the squared segment length, and Leg1Len2 and Leg2Len2 the squared
// distances from a and b respectively to the perpendicular foot.
type SegmentDistance struct {
	Dist2    float64
	Len2     float64
	Leg1Len2 float64
	Leg2Len2 float64
}

// PointSegmentDistanceSquared computes the SegmentDistance for p and the
// segment (a,b) without taking any square roots.
func PointSegmentDistanceSquared(p, a, b [2]float64) SegmentDistance {
	var d SegmentDistance
	d.Len2 = DistanceSquared2(a, b)
	pa2, pb2 := DistanceSquared2(p, a), DistanceSquared2(p, b)

	if d.Len2 < 1e-6 {
		d.Dist2 = pa2
		return d
	}

	ab, ap := Sub2(b, a), Sub2(p, a)
	cross := ab[0]*ap[1] - ab[1]*ap[0]
	d.Dist2 = Sqr(cross) / d.Len2
	d.Leg1Len2 = max(0, pa2-d.Dist2)
	d.Leg2Len2 = max(0, pb2-d.Dist2)
	return d
}

// BaseOutsideSegment reports whether the perpendicular foot lies beyond
// either end of the segment.
func (d SegmentDistance) BaseOutsideSegment() bool {
	return d.Leg1Len2 > d.Len2 || d.Leg2Len2 > d.Len2
}

// BaseBeyondSegmentSquared returns how far, in squared terms, the foot
// lies past the far end of the segment; it is not positive when the foot
// is on the segment.
func (d SegmentDistance) BaseBeyondSegmentSquared() float64 {
	return max(d.Leg1Len2, d.Leg2Len2) - d.Len2
}

// Base returns the perpendicular foot on the line through a and b; a and
// b must be the points d was computed for.
func (d SegmentDistance) Base(a, b [2]float64) [2]float64 {
	if d.Len2 < 1e-6 {
		return a
	}
	t := gomath.Sqrt(d.Leg1Len2 / d.Len2)
	if d.Leg2Len2 > d.Len2 && d.Leg2Len2 > d.Leg1Len2 {
		// before a
		t = -t
	}
	return Lerp2(t, a, b)
}
