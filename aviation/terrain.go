// aviation/terrain.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package aviation

import (
	gomath "math"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ElevationProbe provides terrain elevation in meters at a lat-long. The
// second return value is false if the terrain could not be probed.
type ElevationProbe interface {
	Elevation(lat, lon float64) (float64, bool)
	Close() error
}

// CoordinateTransform converts between world coordinates and a flat local
// system in meters with +y up; math.LocalFrame is one implementation.
type CoordinateTransform interface {
	WorldToLocal(lat, lon, alt float64) (x, y, z float64)
	LocalToWorld(x, y, z float64) (lat, lon, alt float64)
}

// FixedElevation is an ElevationProbe that reports the same elevation
// everywhere; NaN reports failure everywhere.
type FixedElevation float64

func (f FixedElevation) Elevation(lat, lon float64) (float64, bool) {
	return float64(f), !gomath.IsNaN(float64(f))
}

func (FixedElevation) Close() error { return nil }

// CachedProbe remembers successful elevation lookups from another probe.
// Terrain queries are often expensive and airports are probed repeatedly
// as the observer moves around.
type CachedProbe struct {
	probe ElevationProbe
	cache *lru.Cache[[2]int64, float64]
}

func NewCachedProbe(probe ElevationProbe, size int) (*CachedProbe, error) {
	c, err := lru.New[[2]int64, float64](size)
	if err != nil {
		return nil, err
	}
	return &CachedProbe{probe: probe, cache: c}, nil
}

func (c *CachedProbe) Elevation(lat, lon float64) (float64, bool) {
	// ~1m resolution
	key := [2]int64{int64(gomath.Round(lat * 1e5)), int64(gomath.Round(lon * 1e5))}
	if e, ok := c.cache.Get(key); ok {
		return e, true
	}

	e, ok := c.probe.Elevation(lat, lon)
	if ok {
		c.cache.Add(key, e)
	}
	return e, ok
}

func (c *CachedProbe) Close() error {
	c.cache.Purge()
	return c.probe.Close()
}
