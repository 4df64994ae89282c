// math/frame.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

// LocalFrame is a flat local coordinate system in meters around a
// reference point: +x is east, +y is up and +z is south. It is accurate
// to well under a meter over the extent of an airport.
type LocalFrame struct {
	Ref    Point2LL
	RefAlt float64

	lonMeters float64
}

func NewLocalFrame(ref Point2LL, refAlt float64) LocalFrame {
	return LocalFrame{Ref: ref, RefAlt: refAlt, lonMeters: LonDegreeMeters(ref[1])}
}

// WorldToLocal converts a lat-long-altitude position; an unknown altitude
// gives an unknown y but x and z are always computed.
func (f LocalFrame) WorldToLocal(lat, lon, alt float64) (x, y, z float64) {
	x = NormalizeLongitude(lon-f.Ref[0]) * f.lonMeters
	y = alt - f.RefAlt
	z = -(lat - f.Ref[1]) * LatDegreeMeters
	return
}

func (f LocalFrame) LocalToWorld(x, y, z float64) (lat, lon, alt float64) {
	lat = f.Ref[1] - z/LatDegreeMeters
	lon = NormalizeLongitude(f.Ref[0] + x/f.lonMeters)
	alt = y + f.RefAlt
	return
}
