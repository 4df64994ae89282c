// ground/runway_test.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ground

import (
	gomath "math"
	"testing"
	"time"

	av "github.com/mmp/aptnav/aviation"
	"github.com/mmp/aptnav/math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var testModel = AircraftModel{VSIFinal: -800, FlapsDownSpeed: 150, PitchFlare: 6}

func TestFindRunway(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// The aircraft is 5km south of the origin, flying north at 70 m/s;
	// that's 71s to a touchdown point 5km away, so 300m above the runway
	// is a 4.2 m/s descent, within [2.7,6.1].
	acPos := math.Destination(testOrigin, 180, 5000)
	aircraft := func(heading, alt float64) AircraftState {
		pos := av.NewPosition(acPos[1], acPos[0], alt, now)
		pos.Heading = heading
		return AircraftState{Position: pos, Speed: 70, Model: testModel}
	}
	// Touchdown point at the given bearing from the aircraft.
	at := func(bearing float64) math.Point2LL {
		return math.Destination(acPos, bearing, 5000)
	}

	type airport struct {
		id        string
		td        math.Point2LL
		elevation float64
	}
	for _, tc := range []struct {
		name     string
		airports []airport
		ac       AircraftState
		airport  string
		runway   string
		diff     float64
	}{
		{
			name:     "least turn",
			airports: []airport{{"AAAA", at(10), 400}, {"BBBB", at(5), 400}},
			ac:       aircraft(0, 700),
			airport:  "BBBB", runway: "36", diff: 5,
		},
		{
			name:     "least turn other order",
			airports: []airport{{"AAAA", at(5), 400}, {"BBBB", at(10), 400}},
			ac:       aircraft(0, 700),
			airport:  "AAAA", runway: "36", diff: 5,
		},
		{
			name:     "tie keeps first",
			airports: []airport{{"BBBB", at(5), 400}, {"AAAA", at(5), 400}},
			ac:       aircraft(0, 700),
			airport:  "AAAA", runway: "36", diff: 5,
		},
		{
			name:     "turn too large",
			airports: []airport{{"AAAA", at(20), 400}},
			ac:       aircraft(0, 700),
		},
		{
			name:     "runway not aligned",
			airports: []airport{{"AAAA", at(0), 400}},
			ac:       aircraft(30, 700),
		},
		{
			name:     "too steep",
			airports: []airport{{"AAAA", at(0), 400}},
			ac:       aircraft(0, 1000),
		},
		{
			name:     "too shallow",
			airports: []airport{{"AAAA", at(0), 400}},
			ac:       aircraft(0, 500),
		},
		{
			name:     "climbing",
			airports: []airport{{"AAAA", at(0), 400}},
			ac:       aircraft(0, 300),
		},
		{
			name:     "unknown elevation",
			airports: []airport{{"AAAA", at(0), gomath.NaN()}},
			ac:       aircraft(0, 700),
		},
		{
			name:     "steep only for the first",
			airports: []airport{{"AAAA", at(2), 100}, {"BBBB", at(8), 400}},
			ac:       aircraft(0, 700),
			airport:  "BBBB", runway: "36", diff: 8,
		},
		{
			name:     "unknown heading",
			airports: []airport{{"AAAA", at(0), 400}},
			ac:       aircraft(gomath.NaN(), 700),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRepository(nil, nil)
			for _, a := range tc.airports {
				r.Add(runwayAirport(a.id, a.td, a.elevation))
			}

			td, ok := r.FindRunway(tc.ac)
			if tc.airport == "" {
				if ok {
					t.Errorf("unexpectedly found %s/%s", td.Airport, td.Runway)
				}
				return
			}
			if !ok {
				t.Fatalf("no runway found, expected %s/%s", tc.airport, tc.runway)
			}
			if td.Airport != tc.airport || td.Runway != tc.runway {
				t.Errorf("found %s/%s, expected %s/%s", td.Airport, td.Runway, tc.airport, tc.runway)
			}
			if gomath.Abs(td.HeadingDiff-tc.diff) > 0.1 {
				t.Errorf("heading difference %f, expected %f", td.HeadingDiff, tc.diff)
			}
		})
	}
}

func TestFindRunwayAtTouchdownPoint(t *testing.T) {
	r := NewRepository(nil, nil)
	r.Add(runwayAirport("AAAA", testOrigin, 700))
	r.Add(runwayAirport("BBBB", math.Destination(testOrigin, 0, 5000), 400))
	ap, _ := r.Airport("AAAA")
	td := ap.RunwayEnds[0]

	// Sitting on AAAA's touchdown point at its elevation, the next runway
	// ahead is BBBB's.
	pos := av.NewPosition(td.Lat, td.Lon, td.Elevation, time.Time{})
	pos.Heading = 0
	got, ok := r.FindRunway(AircraftState{Position: pos, Speed: 70, Model: testModel})
	if !ok {
		t.Fatalf("no runway found, expected BBBB/36")
	}
	if got.Airport != "BBBB" || got.Runway != "36" {
		t.Errorf("found %s/%s, expected BBBB/36", got.Airport, got.Runway)
	}

	// With nothing else around there's no candidate at all.
	r = NewRepository(nil, nil)
	r.Add(runwayAirport("AAAA", testOrigin, 700))
	if got, ok := r.FindRunway(AircraftState{Position: pos, Speed: 70, Model: testModel}); ok {
		t.Errorf("unexpectedly found %s/%s", got.Airport, got.Runway)
	}
}

func TestFindRunwayTouchdown(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}
	r := NewRepository(nil, metrics)
	r.Add(runwayAirport("LSZH", testOrigin, 400))
	ap, _ := r.Airport("LSZH")
	north := ap.RunwayEnds[1]

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// Landing on 18: 5km north of its touchdown point, flying south.
	p := math.Destination(north.LatLong(), 0, 5000)
	pos := av.NewPosition(p[1], p[0], 700, now)
	pos.Heading = 180
	// Faster than the approach speed; 150kt * 1.2 is 92.6 m/s.
	ac := AircraftState{Position: pos, Speed: 200, Model: testModel}

	td, ok := r.FindRunway(ac)
	if !ok {
		t.Fatalf("no runway found")
	}
	if td.Runway != "18" {
		t.Errorf("landing on %s, expected 18", td.Runway)
	}

	tp := td.Position
	if d := math.Distance(tp.LatLong(), north.LatLong()); d > 0.01 {
		t.Errorf("touchdown %fm from the runway end", d)
	}
	if tp.Alt != 400 || tp.Ground != av.GroundOn || tp.Phase != av.PhaseTouchDown {
		t.Errorf("touchdown alt %f ground %s phase %s", tp.Alt, tp.Ground, tp.Phase)
	}
	if gomath.Abs(tp.Heading-180) > 0.01 || tp.Pitch != testModel.PitchFlare || tp.Roll != 0 {
		t.Errorf("touchdown attitude %f/%f/%f", tp.Heading, tp.Pitch, tp.Roll)
	}
	approach := testModel.FlapsDownSpeed * approachSpeedFactor * math.KnotsToMetersPerSecond
	wantTime := now.Add(time.Duration(5000 / approach * float64(time.Second)))
	if d := tp.Time.Sub(wantTime); d < -100*time.Millisecond || d > 100*time.Millisecond {
		t.Errorf("arrival at %s, expected %s", tp.Time, wantTime)
	}

	ac.Position.Heading = 90
	if _, ok := r.FindRunway(ac); ok {
		t.Errorf("found a runway flying across it")
	}

	if got := testutil.ToFloat64(metrics.RunwaySelection.WithLabelValues("found")); got != 1 {
		t.Errorf("found = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.RunwaySelection.WithLabelValues("none")); got != 1 {
		t.Errorf("none = %v, want 1", got)
	}
}
