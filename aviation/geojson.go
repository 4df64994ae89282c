// aviation/geojson.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package aviation

import (
	gomath "math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeoJSON returns the airport's ground network as a feature collection:
// a LineString for each edge and a Point for each runway endpoint.
func (ap *Airport) GeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for i := range ap.Edges {
		e := &ap.Edges[i]
		a, b := ap.EdgeA(e), ap.EdgeB(e)

		f := geojson.NewFeature(orb.LineString{{a.Lon, a.Lat}, {b.Lon, b.Lat}})
		f.Properties["airport"] = ap.Id
		f.Properties["type"] = e.Type.String()
		f.Properties["heading"] = e.Heading
		f.Properties["length"] = e.Length
		fc.Append(f)
	}

	for _, re := range ap.RunwayEnds {
		f := geojson.NewFeature(orb.Point{re.Lon, re.Lat})
		f.Properties["airport"] = ap.Id
		f.Properties["runway"] = re.Id
		if !gomath.IsNaN(re.Elevation) {
			f.Properties["elevation"] = re.Elevation
		}
		fc.Append(f)
	}

	return fc
}
