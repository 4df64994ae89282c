// cmd/aptquery/main.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// aptquery loads the airports around a position from X-Plane apt.dat
// files and answers ground queries against them: which airport a
// position is at, where a taxiing aircraft snaps to, and which runway an
// approaching aircraft would land on.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	gomath "math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	av "github.com/mmp/aptnav/aviation"
	"github.com/mmp/aptnav/ground"
	"github.com/mmp/aptnav/log"
	"github.com/mmp/aptnav/math"
	"github.com/mmp/aptnav/util"

	"github.com/apenwarr/fixconsole"
	"github.com/goforj/godump"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cpuprofile  = flag.String("cpuprofile", "", "write CPU profile to file")
	memprofile  = flag.String("memprofile", "", "write memory profile to this file")
	configFile  = flag.String("config", "", "JSON configuration file (default: aptquery.json in the user config directory)")
	saveConfig  = flag.Bool("saveconfig", false, "save the effective configuration and exit")
	logLevel    = flag.String("loglevel", "info", "logging level: debug, info, warn, error")
	logDir      = flag.String("logdir", "", "log file directory")
	xplaneRoot  = flag.String("xplane", "", "X-Plane installation directory")
	aptDat      = flag.String("aptdat", "", "comma-separated apt.dat files to read instead of X-Plane's scenery")
	latlong     = flag.String("pos", "", "observer position as \"lat,lon\" in decimal degrees")
	radius      = flag.Float64("radius", 0, "search radius in meters (airports are loaded from a box twice as wide)")
	elevation   = flag.Float64("elevation", gomath.NaN(), "terrain elevation in meters to assume everywhere (default: airport field elevations)")
	listRunways = flag.Bool("runways", false, "list the runways of the loaded airports")
	airport     = flag.String("airport", "", "airport to -dump or export with -geojson")
	dump        = flag.Bool("dump", false, "dump the -airport's ground network")
	geoJSON     = flag.String("geojson", "", "write the -airport's ground network as GeoJSON to this file")
	snap        = flag.String("snap", "", "snap a taxiing aircraft given as \"lat,lon,heading\"")
	land        = flag.String("land", "", "find the runway for an aircraft given as \"lat,lon,alt_ft,heading,speed_kt\"")
	model       = flag.String("model", "", "aircraft type for -land")
	metricsAddr = flag.String("metrics", "", "serve Prometheus metrics at this address after answering queries")
)

// staticObserver is an observer that doesn't move.
type staticObserver struct {
	pos    av.Position
	radius float64
}

func (o staticObserver) Position() av.Position { return o.pos }
func (o staticObserver) SearchRadius() float64 { return o.radius }

// aptDatFiles is a SceneryLocator for an explicit list of files.
type aptDatFiles []string

func (f aptDatFiles) AptDatFiles() ([]string, error) { return f, nil }

func main() {
	flag.Parse()

	if err := fixconsole.FixConsoleIfNeeded(); err != nil {
		fmt.Printf("FixConsole: %v\n", err)
	}

	lg := log.New(*logLevel, *logDir)
	defer lg.CatchAndReportCrash()

	profiler, err := util.CreateProfiler(*cpuprofile, *memprofile)
	if err != nil {
		lg.Errorf("%v", err)
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := profiler.Cleanup(); err != nil {
			lg.Errorf("%v", err)
		}
	}()

	config, err := LoadOrMakeDefaultConfig(*configFile, lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		lg.Errorf("Error loading config: %v", err)
		os.Exit(1)
	}
	applyFlags(config)

	var e util.ErrorLogger
	config.Check(&e)
	if e.HaveErrors() {
		e.LogErrors(lg)
		fmt.Fprintln(os.Stderr, e.String())
		os.Exit(1)
	}

	if *saveConfig {
		if err := config.Save(*configFile, lg); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	pos, err := parseFloats(*latlong, 2)
	if err != nil {
		fmt.Fprintf(os.Stderr, "-pos: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	s, err := newService(config, math.Point2LL{pos[1], pos[0]}, reg, lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if err := load(ctx, s); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer s.Stop()

	if err := runQueries(s, config, lg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if addr := util.Select(*metricsAddr != "", *metricsAddr, config.MetricsAddr); addr != "" {
		serveMetrics(ctx, addr, reg, lg)
	}
}

func applyFlags(config *Config) {
	if *xplaneRoot != "" {
		config.XPlaneRoot = *xplaneRoot
	}
	if *aptDat != "" {
		config.AptDat = strings.Split(*aptDat, ",")
	}
	if *radius > 0 {
		config.SearchRadius = *radius
	}
	if *model != "" {
		config.DefaultModel = *model
	}
}

func newService(config *Config, p math.Point2LL, reg prometheus.Registerer, lg *log.Logger) (*ground.Service, error) {
	var scenery av.SceneryLocator = av.XPlaneScenery{Root: config.XPlaneRoot}
	if len(config.AptDat) > 0 {
		scenery = aptDatFiles(config.AptDat)
	}

	return ground.NewService(ground.Options{
		Scenery: scenery,
		Observer: staticObserver{
			pos:    av.NewPosition(p[1], p[0], gomath.NaN(), time.Now()),
			radius: config.SearchRadius,
		},
		Probe: func() (av.ElevationProbe, error) {
			return av.FixedElevation(*elevation), nil
		},
		SnapDistance:           config.SnapDistance,
		SnapHeadingTolerance:   config.SnapHeadingTolerance,
		FieldElevationFallback: config.FieldElevationFallback,
		ElevationCacheSize:     config.ElevationCacheSize,
		Warn:                   func(w string) { fmt.Fprintln(os.Stderr, w) },
		Registerer:             reg,
		Logger:                 lg,
	})
}

// load reads the airports and then lets the service fill in their
// elevations and local coordinates.
func load(ctx context.Context, s *ground.Service) error {
	if err := s.Start(); err != nil {
		return err
	}
	if err := s.Wait(ctx); err != nil {
		return err
	}
	s.Refresh(ctx)

	st := s.Status()
	if st.Err != nil {
		return st.Err
	}
	fmt.Printf("%d airports from %d apt.dat files in a %.1fkm box around %s\n", st.Airports, st.FilesRead,
		st.Radius/1000, st.Center.DDString())
	return nil
}

func runQueries(s *ground.Service, config *Config, lg *log.Logger) error {
	if *listRunways {
		for _, rwys := range s.RunwaysString() {
			fmt.Println(rwys)
		}
	}

	if *airport != "" {
		ap, err := s.Airport(strings.ToUpper(*airport))
		if err != nil {
			return fmt.Errorf("%s: %w", *airport, err)
		}
		if *dump {
			godump.Dump(ap)
		}
		if *geoJSON != "" {
			if err := writeGeoJSON(*geoJSON, ap); err != nil {
				return err
			}
			lg.Infof("%s: wrote GeoJSON for %s", *geoJSON, ap.Id)
		}
	}

	if *snap != "" {
		v, err := parseFloats(*snap, 3)
		if err != nil {
			return fmt.Errorf("-snap: %w", err)
		}
		pos := av.NewPosition(v[0], v[1], gomath.NaN(), time.Now())
		pos.Heading = v[2]
		pos.Ground = av.GroundOn
		if res, ok := s.Snap(&pos); ok {
			fmt.Printf("snapped to %s %s at %s: moved %.1fm, phase %s\n", res.Airport, res.Edge.Type,
				pos.LatLong().DDString(), res.Dist, pos.Phase)
		} else {
			fmt.Println("no taxiway or runway to snap to")
		}
	}

	if *land != "" {
		v, err := parseFloats(*land, 5)
		if err != nil {
			return fmt.Errorf("-land: %w", err)
		}
		pos := av.NewPosition(v[0], v[1], v[2]*math.FeetToMeters, time.Now())
		pos.Heading = v[3]
		ac := ground.AircraftState{
			Position: pos,
			Speed:    v[4] * math.KnotsToMetersPerSecond,
			Model:    config.Models[config.DefaultModel],
		}
		if td, ok := s.FindRunway(ac); ok {
			fmt.Printf("%s runway %s: touchdown at %s, %.0fft, heading %.0f, in %s (turn %.1f degrees)\n",
				td.Airport, td.Runway, td.Position.LatLong().DDString(), td.Position.Alt*math.MetersToFeet,
				td.Position.Heading, td.Position.Time.Sub(pos.Time).Round(time.Second), td.HeadingDiff)
		} else {
			fmt.Println("no runway found")
		}
	}
	return nil
}

func writeGeoJSON(fn string, ap *av.Airport) error {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(ap.GeoJSON())
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, lg *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	fmt.Printf("serving metrics at http://%s/metrics\n", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Errorf("metrics server: %v", err)
	}
}

// parseFloats parses n comma-separated numbers.
func parseFloats(s string, n int) ([]float64, error) {
	fields := strings.Split(s, ",")
	if len(fields) != n {
		return nil, fmt.Errorf("%q: expected %d comma-separated values", s, n)
	}
	v := make([]float64, n)
	for i, f := range fields {
		var err error
		if v[i], err = util.Atof(f); err != nil {
			return nil, fmt.Errorf("%q: %w", f, err)
		}
	}
	return v, nil
}
