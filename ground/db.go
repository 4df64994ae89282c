// ground/db.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ground

import (
	"errors"
	"log/slog"

	av "github.com/mmp/aptnav/aviation"
	"github.com/mmp/aptnav/log"
	"github.com/mmp/aptnav/math"
	"github.com/mmp/aptnav/util"

	"github.com/brunoga/deep"
)

var ErrMissingAirport = errors.New("airport not loaded")

// Repository holds the airports that have been read so far, keyed by
// identifier. All access goes through a single mutex; airports are
// finalized (edges sorted, bounds padded) before they are added so that
// readers never see a partially built airport.
type Repository struct {
	mu       util.LoggingMutex
	airports map[string]*av.Airport
	lg       *log.Logger
	metrics  *Metrics
}

func NewRepository(lg *log.Logger, metrics *Metrics) *Repository {
	return &Repository{
		airports: make(map[string]*av.Airport),
		lg:       lg,
		metrics:  metrics,
	}
}

// Add inserts a finalized airport. An airport that is already present is
// kept and false is returned.
func (r *Repository) Add(ap *av.Airport) bool {
	if !ap.EdgesSorted() {
		panic(ap.Id + ": airport added with unsorted edges")
	}

	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	if _, ok := r.airports[ap.Id]; ok {
		return false
	}
	r.airports[ap.Id] = ap
	r.metrics.setAirports(len(r.airports))
	r.lg.Debug("added airport", slog.String("airport", ap.RunwaysString()),
		slog.Int("edges", len(ap.Edges)))
	return true
}

// Contains reports whether an airport with the given identifier is loaded.
func (r *Repository) Contains(id string) bool {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	_, ok := r.airports[id]
	return ok
}

func (r *Repository) Len() int {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	return len(r.airports)
}

// IDs returns the identifiers of the loaded airports, sorted.
func (r *Repository) IDs() []string {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	return util.SortedMapKeys(r.airports)
}

// Purge removes airports whose bounds don't overlap box and returns how
// many were removed.
func (r *Repository) Purge(box math.BoundingBox) int {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	n := 0
	for id, ap := range r.airports {
		if !ap.Bounds.Overlaps(box) {
			r.lg.Debug("removed airport", slog.String("airport", id))
			delete(r.airports, id)
			n++
		}
	}
	r.metrics.setAirports(len(r.airports))
	r.lg.Debugf("purged %d airports, %d left", n, len(r.airports))
	return n
}

// Airport returns a copy of the airport with the given identifier that
// the caller may use without holding the repository's lock.
func (r *Repository) Airport(id string) (*av.Airport, error) {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	ap, ok := r.airports[id]
	if !ok {
		return nil, ErrMissingAirport
	}
	return deep.MustCopy(ap), nil
}

// FindAirport returns the identifier of the first airport, in identifier
// order, whose bounds contain p.
func (r *Repository) FindAirport(p math.Point2LL) (string, bool) {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	if ap := r.findAirport(p); ap != nil {
		return ap.Id, true
	}
	return "", false
}

func (r *Repository) findAirport(p math.Point2LL) *av.Airport {
	for _, id := range util.SortedMapKeys(r.airports) {
		if ap := r.airports[id]; ap.Contains(p) {
			return ap
		}
	}
	return nil
}

// SnapResult describes where a position was snapped to.
type SnapResult struct {
	Airport string
	Edge    av.Edge
	// Dist is the distance in meters the position was moved.
	Dist float64
}

// Snap moves pos onto the closest aligned edge of the airport containing
// it; see aviation.Airport.Snap.
func (r *Repository) Snap(pos *av.Position, maxDist, tolerance float64, xf av.CoordinateTransform) (SnapResult, bool) {
	if maxDist <= 0 || xf == nil {
		return SnapResult{}, false
	}

	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	ap := r.findAirport(pos.LatLong())
	if ap == nil {
		r.metrics.snapped("miss")
		return SnapResult{}, false
	}

	from := pos.LatLong()
	m, ok := ap.Snap(pos, maxDist, tolerance, xf)
	if !ok {
		r.metrics.snapped("miss")
		return SnapResult{}, false
	}

	r.metrics.snapped(m.Edge.Type.String())
	r.lg.Debugf("%s: snapped from %s to %s", ap.Id, from.DDString(), pos.LatLong().DDString())
	return SnapResult{Airport: ap.Id, Edge: *m.Edge, Dist: math.Distance(from, pos.LatLong())}, true
}

// UpdateLocalCoords recomputes local coordinates of all loaded airports;
// unless force is set only missing ones are computed.
func (r *Repository) UpdateLocalCoords(force bool, xf av.CoordinateTransform) {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	for _, ap := range r.airports {
		ap.UpdateLocalCoords(force, xf)
	}
	r.lg.Debug("finished updating local coordinates", slog.Bool("force", force))
}

// UpdateElevations probes airport and runway endpoint elevations that
// aren't known yet.
func (r *Repository) UpdateElevations(probe av.ElevationProbe, fieldFallback bool) {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	for _, ap := range r.airports {
		ap.UpdateElevations(probe, fieldFallback)
	}
	r.lg.Debug("finished updating runway elevations")
}

// RunwaysString returns a line per loaded airport listing its runways.
func (r *Repository) RunwaysString() []string {
	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	s := make([]string, 0, len(r.airports))
	for _, id := range util.SortedMapKeys(r.airports) {
		s = append(s, r.airports[id].RunwaysString())
	}
	return s
}
