// ground/service_test.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ground

import (
	"context"
	"errors"
	"fmt"
	gomath "math"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	av "github.com/mmp/aptnav/aviation"
	"github.com/mmp/aptnav/math"

	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type testObserver struct {
	mu     sync.Mutex
	pos    av.Position
	radius float64
}

func newTestObserver(p math.Point2LL, radius float64) *testObserver {
	return &testObserver{pos: av.NewPosition(p[1], p[0], 1000, time.Now()), radius: radius}
}

func (o *testObserver) Position() av.Position {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pos
}

func (o *testObserver) SearchRadius() float64 { return o.radius }

func (o *testObserver) moveTo(p math.Point2LL) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pos.Lat, o.pos.Lon = p[1], p[0]
}

type staticScenery []string

func (s staticScenery) AptDatFiles() ([]string, error) {
	return slices.Clone(s), nil
}

// blockingScenery doesn't return its files until release is closed.
type blockingScenery struct {
	files   []string
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingScenery) AptDatFiles() ([]string, error) {
	b.calls.Add(1)
	<-b.release
	return b.files, nil
}

type testProbe struct {
	elevation float64
	closed    atomic.Bool
}

func (p *testProbe) Elevation(lat, lon float64) (float64, bool) { return p.elevation, true }

func (p *testProbe) Close() error {
	p.closed.Store(true)
	return nil
}

// aptDatAirport returns apt.dat records for an airport with one runway
// from p1 to p2 and a taxiway 100m east of it.
func aptDatAirport(id, rwy1, rwy2 string, p1, p2 math.Point2LL) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "1 1300 0 0 %s Test airport %s\n", id, id)
	fmt.Fprintf(&sb, "100 45.00 1 0 0.25 1 3 0 %s %.8f %.8f 0 0 3 0 0 1 %s %.8f %.8f 0 0 3 0 0 1\n",
		rwy1, p1[1], p1[0], rwy2, p2[1], p2[0])
	t1, t2 := math.Destination(p1, 90, 100), math.Destination(p2, 90, 100)
	fmt.Fprintf(&sb, "120 Taxiway A\n111 %.8f %.8f 1\n115 %.8f %.8f\n", t1[1], t1[0], t2[1], t2[0])
	return sb.String()
}

func writeAptDat(t *testing.T, dir, name string, airports ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := "I\n1200 Version\n\n" + strings.Join(airports, "") + "99\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// compressZstd replaces the file at path with path.zst.
func compressZstd(t *testing.T, path string) {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	if err := os.WriteFile(path+".zst", enc.EncodeAll(b, nil), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
}

func waitForRefresh(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("refresh didn't finish: %v", err)
	}
}

func TestServiceEndToEnd(t *testing.T) {
	dir := t.TempDir()
	north := math.Destination(testOrigin, 0, 2000)
	east := math.Destination(testOrigin, 90, 5000)
	southEast := math.Destination(east, 160, 2500)
	far := math.Destination(testOrigin, 0, 60000)

	f1 := writeAptDat(t, dir, "first.dat",
		aptDatAirport("LSAA", "36", "18", testOrigin, north),
		aptDatAirport("LSBB", "16", "34", east, southEast))
	f2 := writeAptDat(t, dir, "second.dat",
		aptDatAirport("LSBB", "09", "27", east, math.Destination(east, 90, 2000)),
		aptDatAirport("LSCC", "36", "18", far, math.Destination(far, 0, 2000)))

	probe := &testProbe{elevation: 400}
	var warnings []string
	reg := prometheus.NewRegistry()
	s, err := NewService(Options{
		Scenery:    staticScenery{filepath.Join(dir, "missing.dat"), f1, f2},
		Observer:   newTestObserver(testOrigin, 10000),
		Probe:      func() (av.ElevationProbe, error) { return probe, nil },
		Warn:       func(w string) { warnings = append(warnings, w) },
		Registerer: reg,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	waitForRefresh(t, s)

	st := s.Status()
	if st.Err != nil || st.FilesRead != 2 || st.Airports != 2 {
		t.Errorf("status %+v", st)
	}
	if st.Stats.Airports != 3 || st.Stats.Runways != 3 {
		t.Errorf("parse stats %+v", st.Stats)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings %v", warnings)
	}
	want := []string{"LSAA 36/18", "LSBB 16/34"}
	if got := s.RunwaysString(); !slices.Equal(got, want) {
		t.Errorf("RunwaysString() = %v, want %v", got, want)
	}

	// Not having moved, the next refresh fills in elevations and local
	// coordinates.
	if s.Refresh(context.Background()) {
		t.Errorf("refresh started without the observer moving")
	}
	ap, err := s.Airport("LSAA")
	if err != nil {
		t.Fatal(err)
	}
	if re := ap.RunwayEnds[0]; re.Elevation != 400 || !re.HasLocal() || !ap.TaxiNodes[0].HasLocal() {
		t.Errorf("runway end not updated: %+v", re)
	}

	if id, ok := s.FindAirport(math.Destination(testOrigin, 0, 1000)); !ok || id != "LSAA" {
		t.Errorf("FindAirport: %q, %v", id, ok)
	}

	p := math.Destination(math.Destination(testOrigin, 0, 1000), 90, 4)
	pos := av.NewPosition(p[1], p[0], 400, time.Now())
	pos.Heading = 3
	if res, ok := s.Snap(&pos); !ok || res.Airport != "LSAA" || res.Edge.Type != av.EdgeRunway {
		t.Errorf("Snap: %+v, %v", res, ok)
	}

	p = math.Destination(ap.RunwayEnds[0].LatLong(), 180, 5000)
	pos = av.NewPosition(p[1], p[0], 700, time.Now())
	pos.Heading = 0
	if td, ok := s.FindRunway(AircraftState{Position: pos, Speed: 70, Model: testModel}); !ok || td.Airport != "LSAA" || td.Runway != "36" {
		t.Errorf("FindRunway: %+v, %v", td, ok)
	}

	if got := testutil.ToFloat64(s.metrics.FilesRead); got != 2 {
		t.Errorf("aptnav_aptdat_files_read_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(s.metrics.Refreshes.WithLabelValues("ok")); got != 1 {
		t.Errorf("aptnav_refresh_total{ok} = %v, want 1", got)
	}

	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if !probe.closed.Load() {
		t.Errorf("probe not closed")
	}
	if s.Refresh(context.Background()) {
		t.Errorf("refresh after stop")
	}
	// Queries still work.
	if _, ok := s.FindAirport(testOrigin); !ok {
		t.Errorf("airports gone after stop")
	}
}

func TestServiceSearchArea(t *testing.T) {
	// With a 10km search radius, airports are read from a 20km box: one
	// 8km north is inside it, those 15km north or east are outside.
	dir := t.TempDir()
	near := math.Destination(testOrigin, 0, 8000)
	north := math.Destination(testOrigin, 0, 15000)
	east := math.Destination(testOrigin, 90, 15000)
	f := writeAptDat(t, dir, "apt.dat",
		aptDatAirport("LSNR", "36", "18", near, math.Destination(near, 0, 2000)),
		aptDatAirport("LSNO", "36", "18", north, math.Destination(north, 0, 2000)),
		aptDatAirport("LSEA", "09", "27", east, math.Destination(east, 90, 2000)))

	obs := newTestObserver(testOrigin, 10000)
	s, err := NewService(Options{Scenery: staticScenery{f}, Observer: obs, Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	waitForRefresh(t, s)

	if ids := s.Airports(); !slices.Equal(ids, []string{"LSNR"}) {
		t.Errorf("loaded %v, expected [LSNR]", ids)
	}

	// Centered 12km north, both northern airports are in the box; the
	// eastern one is still too far away.
	obs.moveTo(math.Destination(testOrigin, 0, 12000))
	if !s.Refresh(context.Background()) {
		t.Fatalf("no refresh after moving")
	}
	waitForRefresh(t, s)
	if ids := s.Airports(); !slices.Equal(ids, []string{"LSNO", "LSNR"}) {
		t.Errorf("loaded %v, expected [LSNO LSNR]", ids)
	}
}

func TestServiceManyFiles(t *testing.T) {
	// More files than are parsed at once: all are read and an airport
	// still comes from the first file that has it.
	dir := t.TempDir()
	n := 2*runtime.NumCPU() + 3
	var files staticScenery
	var want []string
	for i := range n {
		id := fmt.Sprintf("X%03d", i)
		p := math.Destination(testOrigin, 90, 8000*float64(i+1)/float64(n))
		files = append(files, writeAptDat(t, dir, fmt.Sprintf("apt%03d.dat", i),
			aptDatAirport("LSAA", fmt.Sprintf("A%d", i), fmt.Sprintf("B%d", i), testOrigin,
				math.Destination(testOrigin, 0, 2000)),
			aptDatAirport(id, "36", "18", p, math.Destination(p, 0, 2000))))
		want = append(want, id)
	}
	want = append([]string{"LSAA"}, want...)

	s, err := NewService(Options{
		Scenery:    files,
		Observer:   newTestObserver(testOrigin, 10000),
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	waitForRefresh(t, s)

	if st := s.Status(); st.Err != nil || st.FilesRead != n {
		t.Errorf("status %+v", st)
	}
	if ids := s.Airports(); !slices.Equal(ids, want) {
		t.Errorf("loaded %v, expected %v", ids, want)
	}
	ap, err := s.Airport("LSAA")
	if err != nil {
		t.Fatal(err)
	}
	if id := ap.RunwayEnds[0].Id; id != "A0" {
		t.Errorf("LSAA runway %s, expected A0 from the first file", id)
	}
}

func TestServiceMoveAndPurge(t *testing.T) {
	dir := t.TempDir()
	far := math.Destination(testOrigin, 0, 60000)
	f := writeAptDat(t, dir, "apt.dat",
		aptDatAirport("LSAA", "36", "18", testOrigin, math.Destination(testOrigin, 0, 2000)),
		aptDatAirport("LSCC", "36", "18", far, math.Destination(far, 0, 2000)))

	obs := newTestObserver(testOrigin, 10000)
	s, err := NewService(Options{Scenery: staticScenery{f}, Observer: obs, Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	waitForRefresh(t, s)

	if ids := s.Airports(); !slices.Equal(ids, []string{"LSAA"}) {
		t.Errorf("loaded %v, expected [LSAA]", ids)
	}

	// Less than the search radius: nothing happens.
	obs.moveTo(math.Destination(testOrigin, 0, 9000))
	if s.Refresh(context.Background()) {
		t.Errorf("refresh started after moving less than the radius")
	}

	obs.moveTo(far)
	if !s.Refresh(context.Background()) {
		t.Fatalf("no refresh after moving")
	}
	waitForRefresh(t, s)
	if ids := s.Airports(); !slices.Equal(ids, []string{"LSCC"}) {
		t.Errorf("loaded %v, expected [LSCC]", ids)
	}
	if st := s.Status(); gomath.Abs(st.Radius-20000) > 1e-9 || math.Distance(st.Center, far) > 0.01 {
		t.Errorf("status center %s radius %f", st.Center.DDString(), st.Radius)
	}
}

func TestServiceSingleFlight(t *testing.T) {
	dir := t.TempDir()
	f := writeAptDat(t, dir, "apt.dat",
		aptDatAirport("LSAA", "36", "18", testOrigin, math.Destination(testOrigin, 0, 2000)))

	scenery := &blockingScenery{files: []string{f}, release: make(chan struct{})}
	obs := newTestObserver(testOrigin, 10000)
	s, err := NewService(Options{Scenery: scenery, Observer: obs, Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	obs.moveTo(math.Destination(testOrigin, 90, 50000))
	for range 3 {
		if s.Refresh(context.Background()) {
			t.Errorf("second refresh started while the first is running")
		}
	}
	if !s.Status().Refreshing {
		t.Errorf("status doesn't show the refresh")
	}

	close(scenery.release)
	waitForRefresh(t, s)
	if !s.Refresh(context.Background()) {
		t.Errorf("no refresh once the first finished")
	}
	waitForRefresh(t, s)

	if n := scenery.calls.Load(); n != 2 {
		t.Errorf("%d refreshes ran, expected 2", n)
	}
}

func TestServiceCancel(t *testing.T) {
	dir := t.TempDir()
	f := writeAptDat(t, dir, "apt.dat",
		aptDatAirport("LSAA", "36", "18", testOrigin, math.Destination(testOrigin, 0, 2000)))

	scenery := &blockingScenery{files: []string{f}, release: make(chan struct{})}
	// Start with an invalid position so that Start doesn't refresh.
	obs := newTestObserver(math.Point2LL{0, 100}, 10000)
	reg := prometheus.NewRegistry()
	s, err := NewService(Options{Scenery: scenery, Observer: obs, Registerer: reg})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	if scenery.calls.Load() != 0 {
		t.Fatalf("refreshed with an invalid observer position")
	}

	obs.moveTo(testOrigin)
	ctx, cancel := context.WithCancel(context.Background())
	if !s.Refresh(ctx) {
		t.Fatalf("refresh not started")
	}
	cancel()
	close(scenery.release)
	waitForRefresh(t, s)

	st := s.Status()
	if !errors.Is(st.Err, context.Canceled) || st.Airports != 0 {
		t.Errorf("status after cancel %+v", st)
	}
	if got := testutil.ToFloat64(s.metrics.Refreshes.WithLabelValues("canceled")); got != 1 {
		t.Errorf("aptnav_refresh_total{canceled} = %v, want 1", got)
	}

	// A canceled read is retried.
	if !s.Refresh(context.Background()) {
		t.Fatalf("refresh not retried")
	}
	waitForRefresh(t, s)
	if st := s.Status(); st.Err != nil || st.Airports != 1 {
		t.Errorf("status after retry %+v", st)
	}
}

func TestServiceNoAptDat(t *testing.T) {
	dir := t.TempDir()
	var warnings []string
	var mu sync.Mutex
	s, err := NewService(Options{
		Scenery:  staticScenery{filepath.Join(dir, "apt.dat"), filepath.Join(dir, "other", "apt.dat")},
		Observer: newTestObserver(testOrigin, 10000),
		Warn: func(w string) {
			mu.Lock()
			defer mu.Unlock()
			warnings = append(warnings, w)
		},
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	waitForRefresh(t, s)

	if st := s.Status(); !errors.Is(st.Err, ErrNoAptDat) || st.FilesRead != 0 {
		t.Errorf("status %+v", st)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(warnings) != 1 || warnings[0] != NoAptDatWarning {
		t.Errorf("warnings %v", warnings)
	}
	if got := testutil.ToFloat64(s.metrics.Refreshes.WithLabelValues("no_input")); got != 1 {
		t.Errorf("aptnav_refresh_total{no_input} = %v, want 1", got)
	}
}

func TestServiceCompressedAptDat(t *testing.T) {
	dir := t.TempDir()
	path := writeAptDat(t, dir, "apt.dat",
		aptDatAirport("LSAA", "36", "18", testOrigin, math.Destination(testOrigin, 0, 2000)))
	compressZstd(t, path)

	s, err := NewService(Options{
		Scenery:    staticScenery{path},
		Observer:   newTestObserver(testOrigin, 10000),
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	waitForRefresh(t, s)

	if ids := s.Airports(); !slices.Equal(ids, []string{"LSAA"}) {
		t.Errorf("loaded %v from compressed apt.dat", ids)
	}
}

func TestServiceSetTransform(t *testing.T) {
	r := NewRepository(nil, nil)
	s := &Service{repo: r, ownFrame: true}
	r.Add(runwayAirport("LSAA", testOrigin, 400))

	s.SetTransform(math.NewLocalFrame(math.Destination(testOrigin, 90, 1000), 0))
	ap, _ := r.Airport("LSAA")
	if x := ap.RunwayEnds[0].X; gomath.Abs(x+1000) > 1 {
		t.Errorf("x = %f, expected -1000", x)
	}
	if s.ownFrame {
		t.Errorf("service still owns the frame")
	}

	s.SetTransform(math.NewLocalFrame(testOrigin, 0))
	ap, _ = r.Airport("LSAA")
	if x := ap.RunwayEnds[0].X; gomath.Abs(x) > 1 {
		t.Errorf("x = %f, expected 0", x)
	}
}
