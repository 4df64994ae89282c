// ground/service.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ground

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"runtime"
	"sync"
	"time"

	av "github.com/mmp/aptnav/aviation"
	"github.com/mmp/aptnav/log"
	"github.com/mmp/aptnav/math"
	"github.com/mmp/aptnav/util"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSnapDistance         = 15 // meters
	DefaultSnapHeadingTolerance = 30 // degrees
	DefaultElevationCacheSize   = 4096

	// NoAptDatWarning is shown to the user when a refresh finds no apt.dat
	// file at all.
	NoAptDatWarning = "Could not open ANY apt.dat file. No runway/taxiway info available to guide ground traffic."
)

var (
	ErrNoAptDat       = errors.New("no apt.dat file could be opened")
	ErrNotStarted     = errors.New("ground service not started")
	ErrAlreadyStarted = errors.New("ground service already started")
)

const tracerName = "github.com/mmp/aptnav/ground"

// Observer provides the position around which airports are loaded, e.g.
// the simulator's camera, and the distance it must move before airports
// are read again.
type Observer interface {
	Position() av.Position
	SearchRadius() float64
}

// ProbeFactory creates the elevation probe; it is called when the first
// elevations are needed.
type ProbeFactory func() (av.ElevationProbe, error)

type Options struct {
	Scenery  av.SceneryLocator
	Observer Observer
	// Probe may be nil, in which case elevations are only known through
	// FieldElevationFallback.
	Probe ProbeFactory
	// Transform converts to the local coordinates used for snapping. If
	// nil, a local frame centered where airports were last loaded is
	// used.
	Transform av.CoordinateTransform

	// SnapDistance is in meters: zero selects DefaultSnapDistance and
	// negative values disable snapping.
	SnapDistance float64
	// SnapHeadingTolerance is in degrees; zero selects the default.
	SnapHeadingTolerance float64
	// FieldElevationFallback uses an airport's published elevation when
	// the terrain can't be probed.
	FieldElevationFallback bool
	// ElevationCacheSize is the number of cached probe results; zero
	// selects the default and negative values disable the cache.
	ElevationCacheSize int

	// Warn, if non-nil, is called with messages the user should see.
	Warn func(string)

	Registerer prometheus.Registerer
	Logger     *log.Logger
}

// Status summarizes the service's state.
type Status struct {
	Airports   int
	Refreshing bool
	Center     math.Point2LL
	// Radius is twice the search radius: the width and height of the
	// area airports were last read from.
	Radius     float64
	FilesRead  int
	Stats      av.ParseStats
	LastUpdate time.Time
	// Err is the error from the last completed refresh, if any.
	Err error
}

// Service keeps the repository filled with the airports around a moving
// observer and answers ground queries against it. At most one refresh
// runs in the background at a time.
type Service struct {
	opts    Options
	repo    *Repository
	metrics *Metrics
	lg      *log.Logger
	tracer  trace.Tracer

	// mu protects the fields below; the repository has its own lock and
	// mu is always acquired first when both are held.
	mu            sync.Mutex
	started       bool
	stopped       bool
	cancel        context.CancelFunc // of the running refresh
	done          chan struct{}      // non-nil while a refresh may be running
	xf            av.CoordinateTransform
	ownFrame      bool
	probe         av.ElevationProbe
	center        av.Position
	haveCenter    bool
	airportsAdded bool
	status        Status
}

func NewService(opts Options) (*Service, error) {
	if opts.Scenery == nil || opts.Observer == nil {
		return nil, errors.New("ground: Scenery and Observer must be provided")
	}
	if opts.SnapDistance == 0 {
		opts.SnapDistance = DefaultSnapDistance
	}
	if opts.SnapHeadingTolerance == 0 {
		opts.SnapHeadingTolerance = DefaultSnapHeadingTolerance
	}
	if opts.ElevationCacheSize == 0 {
		opts.ElevationCacheSize = DefaultElevationCacheSize
	}

	metrics, err := NewMetrics(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("ground metrics: %w", err)
	}

	return &Service{
		opts:     opts,
		repo:     NewRepository(opts.Logger, metrics),
		metrics:  metrics,
		lg:       opts.Logger,
		tracer:   otel.Tracer(tracerName),
		xf:       opts.Transform,
		ownFrame: opts.Transform == nil,
	}, nil
}

// Start enables the service and starts the first refresh.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	s.Refresh(context.Background())
	return nil
}

// Stop cancels a running refresh, waits for it to finish, and closes the
// elevation probe. The loaded airports remain available for queries.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.done, s.cancel = nil, nil
	if s.probe != nil {
		err := s.probe.Close()
		s.probe = nil
		return err
	}
	return nil
}

// Wait blocks until the refresh in flight, if any, has finished.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh should be called regularly. If the observer has moved at least
// its search radius since airports were last read, it starts reading, in
// the background, the airports in a box centered on the observer whose
// sides are twice the search radius, and returns true.
// Otherwise, once airports have been added, their elevations and local
// coordinates are filled in. Canceling ctx cancels the background read.
func (s *Service) Refresh(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return false
	}
	if s.done != nil {
		select {
		case <-s.done:
			s.done = nil
		default:
			return false
		}
	}

	pos := s.opts.Observer.Position()
	if !pos.IsValid(true) {
		return false
	}

	radius := s.opts.Observer.SearchRadius()
	if s.haveCenter && pos.Distance(s.center) < radius {
		if s.airportsAdded {
			s.repo.UpdateElevations(s.elevationProbe(), s.opts.FieldElevationFallback)
			if s.xf != nil {
				s.repo.UpdateLocalCoords(false, s.xf)
			}
		}
		s.airportsAdded = false
		return false
	}

	s.center, s.haveCenter = pos, true
	if s.ownFrame {
		s.xf = math.NewLocalFrame(pos.LatLong(), 0)
		s.repo.UpdateLocalCoords(true, s.xf)
	}

	radius *= 2
	s.lg.Debugf("reading apt.dat for airports in a %.1fkm box around %s", radius/1000, pos.LatLong().DDString())

	rctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.done, s.cancel = done, cancel
	s.airportsAdded = true
	s.status.Refreshing = true
	s.status.Center, s.status.Radius = pos.LatLong(), radius

	go func() {
		defer close(done)
		defer cancel()
		defer s.lg.CatchAndReportCrash()

		s.ingest(rctx, pos.LatLong(), radius)
	}()
	return true
}

// fileResult holds what was read from one apt.dat file.
type fileResult struct {
	path     string
	opened   bool
	stats    av.ParseStats
	airports []*av.Airport
}

// ingest replaces the repository's airports with those in the box of
// width and height size meters centered at center: airports outside are
// purged, then the apt.dat files are parsed concurrently and the results
// published in precedence order.
func (s *Service) ingest(ctx context.Context, center math.Point2LL, size float64) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "ground.refresh", trace.WithAttributes(
		attribute.String("center", center.DDString()),
		attribute.Float64("size_m", size)))
	defer span.End()

	box := math.BoundingBoxAround(center, size, size)
	s.repo.Purge(box)

	files, err := s.opts.Scenery.AptDatFiles()
	if err != nil {
		s.lg.Warnf("%v", err)
	}

	known := make(map[string]bool)
	for _, id := range s.repo.IDs() {
		known[id] = true
	}
	popts := av.ParseOptions{
		Bounds: box,
		Known:  func(id string) bool { return known[id] },
	}

	results := make([]fileResult, len(files))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())
	for i, path := range files {
		eg.Go(func() error {
			var err error
			results[i], err = s.parseFile(gctx, path, popts)
			return err
		})
	}
	err = eg.Wait()

	var stats av.ParseStats
	var opened, added int
	if err == nil {
		for _, res := range results {
			if !res.opened {
				continue
			}
			opened++
			stats.Add(res.stats)
			for _, ap := range res.airports {
				ap.Finalize(max(s.opts.SnapDistance, 0))
				if s.repo.Add(ap) {
					added++
				}
			}
		}
		if opened == 0 {
			err = ErrNoAptDat
		}
	}

	result := "ok"
	switch {
	case errors.Is(err, ErrNoAptDat):
		result = "no_input"
		s.lg.Warn(NoAptDatWarning, slog.Int("candidates", len(files)))
		if s.opts.Warn != nil {
			s.opts.Warn(NoAptDatWarning)
		}
	case err != nil:
		result = "canceled"
		s.lg.Info("apt.dat reading canceled", slog.Any("error", err))
	default:
		s.lg.Info("done reading apt.dat files", slog.Int("files", opened),
			slog.Int("added", added), slog.Int("airports", s.repo.Len()),
			slog.Duration("elapsed", time.Since(start)))
	}
	if err != nil {
		span.RecordError(err)
	}
	span.SetAttributes(attribute.Int("files", opened), attribute.Int("airports_added", added))
	s.metrics.refreshed(result, time.Since(start))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && !errors.Is(err, ErrNoAptDat) {
		// Read again on the next refresh.
		s.haveCenter = false
	}
	s.status.Refreshing = false
	s.status.FilesRead = opened
	s.status.Stats = stats
	s.status.LastUpdate = time.Now()
	s.status.Err = err
}

// parseFile reads the airports within opts.Bounds from one apt.dat file.
// A file that can't be opened or read is logged and yields no airports;
// only cancellation is returned as an error.
func (s *Service) parseFile(ctx context.Context, path string, opts av.ParseOptions) (fileResult, error) {
	ctx, span := s.tracer.Start(ctx, "ground.parse", trace.WithAttributes(attribute.String("file", path)))
	defer span.End()

	r, name, err := util.OpenFileOrCompressed(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.lg.Errorf("%s: %v", name, err)
			span.RecordError(err)
		}
		return fileResult{path: name}, nil
	}
	defer r.Close()
	s.metrics.fileRead()

	res := fileResult{path: name, opened: true}
	opts.Logger = s.lg.With(slog.String("file", name))
	res.stats, err = av.ParseAptDat(ctx, r, opts, func(ap *av.Airport) {
		res.airports = append(res.airports, ap)
	})
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		// Keep what was read before the error.
		s.lg.Errorf("%s: %v", name, err)
		span.RecordError(err)
	}

	span.SetAttributes(attribute.Int("airports", len(res.airports)))
	s.lg.Debug("read apt.dat", slog.String("file", name), slog.Int("lines", res.stats.Lines),
		slog.Int("airports", res.stats.Airports), slog.Int("runways", res.stats.Runways),
		slog.Int("taxi_segments", res.stats.TaxiSegments), slog.Int("skipped", res.stats.Skipped))
	return res, nil
}

// elevationProbe returns the probe, creating it if needed; s.mu must be
// held.
func (s *Service) elevationProbe() av.ElevationProbe {
	if s.probe == nil && s.opts.Probe != nil && !s.stopped {
		p, err := s.opts.Probe()
		if err != nil {
			s.lg.Errorf("unable to create elevation probe: %v", err)
			return nil
		}
		if s.opts.ElevationCacheSize > 0 {
			if cp, err := av.NewCachedProbe(p, s.opts.ElevationCacheSize); err == nil {
				p = cp
			} else {
				s.lg.Warnf("elevation cache: %v", err)
			}
		}
		s.probe = p
	}
	return s.probe
}

// UpdateRunwayElevations probes the elevations that aren't known yet.
func (s *Service) UpdateRunwayElevations() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.repo.UpdateElevations(s.elevationProbe(), s.opts.FieldElevationFallback)
}

// UpdateLocalCoords computes local coordinates of all airports' nodes;
// force recomputes those that are already known, as is needed after the
// local coordinate system has moved.
func (s *Service) UpdateLocalCoords(force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.xf != nil {
		s.repo.UpdateLocalCoords(force, s.xf)
	}
}

// SetTransform installs a new local coordinate system and recomputes all
// local coordinates with it.
func (s *Service) SetTransform(xf av.CoordinateTransform) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.xf, s.ownFrame = xf, xf == nil
	if xf != nil {
		s.repo.UpdateLocalCoords(true, xf)
	}
}

func (s *Service) transform() av.CoordinateTransform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.xf
}

// FindAirport returns the identifier of the airport whose bounds contain
// p.
func (s *Service) FindAirport(p math.Point2LL) (string, bool) {
	return s.repo.FindAirport(p)
}

// Snap moves pos onto the closest taxiway or runway aligned with its
// heading, if one is within the snap distance.
func (s *Service) Snap(pos *av.Position) (SnapResult, bool) {
	return s.repo.Snap(pos, s.opts.SnapDistance, s.opts.SnapHeadingTolerance, s.transform())
}

// FindRunway returns the best touchdown point for a landing aircraft; see
// Repository.FindRunway.
func (s *Service) FindRunway(ac AircraftState) (Touchdown, bool) {
	return s.repo.FindRunway(ac)
}

// Airport returns a copy of a loaded airport.
func (s *Service) Airport(id string) (*av.Airport, error) {
	return s.repo.Airport(id)
}

// Airports returns the identifiers of the loaded airports.
func (s *Service) Airports() []string {
	return s.repo.IDs()
}

func (s *Service) RunwaysString() []string {
	return s.repo.RunwaysString()
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status
	st.Airports = s.repo.Len()
	return st
}
