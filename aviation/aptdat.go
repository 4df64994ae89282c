// aviation/aptdat.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package aviation

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/mmp/aptnav/log"
	"github.com/mmp/aptnav/math"
	"github.com/mmp/aptnav/util"
)

// Row codes of the X-Plane apt.dat records that are used.
const (
	aptDatAirport      = "1"
	aptDatSeaplaneBase = "16"
	aptDatHeliport     = "17"
	aptDatRunway       = "100"
	aptDatLinearFeat   = "120"

	aptDatRunwayFields = 26
)

// Line types of linear feature nodes that mark taxiway centerlines.
var taxiCenterlineTypes = map[int]bool{1: true, 7: true, 51: true, 57: true}

// ParseOptions control which airports ParseAptDat builds.
type ParseOptions struct {
	// Bounds is the area of interest: an airport is only kept if its
	// first runway starts inside it.
	Bounds math.BoundingBox
	// Known, if non-nil, reports airports that are already loaded; they
	// are skipped.
	Known func(id string) bool
	// Logger receives debug messages about skipped records; it may be
	// nil.
	Logger *log.Logger
}

// ParseStats summarizes what ParseAptDat found in one file.
type ParseStats struct {
	Lines        int
	Airports     int
	Runways      int
	TaxiSegments int
	Skipped      int
}

func (s *ParseStats) Add(o ParseStats) {
	s.Lines += o.Lines
	s.Airports += o.Airports
	s.Runways += o.Runways
	s.TaxiSegments += o.TaxiSegments
	s.Skipped += o.Skipped
}

// lineReader reads lines from an apt.dat file, allowing lines to be
// pushed back so that another part of the parser can handle them.
type lineReader struct {
	br      *bufio.Reader
	pending []string
	err     error
	lines   int
}

// getline returns the next line without its line ending; it returns false
// at the end of the input or on a read error, which is then in lr.err.
func (lr *lineReader) getline() (string, bool) {
	if n := len(lr.pending); n > 0 {
		l := lr.pending[n-1]
		lr.pending = lr.pending[:n-1]
		return l, true
	}
	if lr.err != nil {
		return "", false
	}

	s, err := lr.br.ReadString('\n')
	if err != nil {
		lr.err = err
		if s == "" {
			return "", false
		}
	}
	lr.lines++
	return strings.TrimRight(s, "\r\n"), true
}

func (lr *lineReader) ungetline(line string) {
	lr.pending = append(lr.pending, line)
}

// isRecord reports whether line starts with the given row code followed
// by whitespace (or is just the code).
func isRecord(line, code string) bool {
	rest, ok := strings.CutPrefix(line, code)
	return ok && (rest == "" || rest[0] == ' ' || rest[0] == '\t')
}

func isAirportHeader(line string) bool {
	return isRecord(line, aptDatAirport) || isRecord(line, aptDatSeaplaneBase) ||
		isRecord(line, aptDatHeliport)
}

// ParseAptDat reads X-Plane apt.dat records from r and calls publish for
// each airport that has runways and a taxi network and whose first runway
// is within opts.Bounds. Malformed records are skipped. Parsing stops
// with ctx's error if ctx is canceled; the airport being parsed at that
// point is not published.
func ParseAptDat(ctx context.Context, r io.Reader, opts ParseOptions, publish func(*Airport)) (ParseStats, error) {
	var stats ParseStats
	lr := &lineReader{br: bufio.NewReaderSize(r, 64*1024)}
	lg := opts.Logger

	var ap *Airport
	flush := func() {
		if ap != nil && ap.IsValid() {
			stats.Airports++
			publish(ap)
		}
		ap = nil
	}

	for {
		if err := ctx.Err(); err != nil {
			stats.Lines = lr.lines
			return stats, err
		}

		line, ok := lr.getline()
		if !ok {
			break
		}

		switch {
		case isAirportHeader(line):
			flush()
			ap = newAirportFromHeader(line, opts.Known, &stats)

		case ap != nil && isRecord(line, aptDatRunway):
			switch addRunway(ap, line, opts.Bounds) {
			case runwayAdded:
				stats.Runways++
			case runwayMalformed:
				stats.Skipped++
				lg.Debugf("%s: skipping malformed runway record %q", ap.Id, line)
			case runwayOutOfArea:
				ap = nil
			}

		case ap != nil && ap.HasRunwayEnds() && isRecord(line, aptDatLinearFeat):
			nodes, err := readTaxiLine(ctx, lr, &stats)
			if err != nil {
				stats.Lines = lr.lines
				return stats, err
			}
			stats.TaxiSegments += ap.AddTaxiLine(nodes)
		}
	}

	stats.Lines = lr.lines
	if lr.err != nil && !errors.Is(lr.err, io.EOF) {
		return stats, lr.err
	}
	flush()
	return stats, nil
}

// newAirportFromHeader returns the airport for an airport header record,
// or nil if the record is malformed or the airport is already known.
func newAirportFromHeader(line string, known func(string) bool, stats *ParseStats) *Airport {
	f := strings.Fields(line)
	if len(line) <= 10 || len(f) < 5 {
		stats.Skipped++
		return nil
	}
	id := f[4]
	if known != nil && known(id) {
		return nil
	}

	ap := NewAirport(id)
	if elev, err := util.Atof(f[1]); err == nil {
		ap.FieldElevation = elev * math.FeetToMeters
	}
	return ap
}

type runwayResult int

const (
	runwayAdded runwayResult = iota
	runwayMalformed
	runwayOutOfArea
)

// addRunway handles a land runway record:
//
//	100 width surface shoulder smooth centerline edge signs
//	    id1 lat1 lon1 displaced1 overrun1 markings1 approach1 tdz1 reil1
//	    id2 lat2 lon2 displaced2 overrun2 markings2 approach2 tdz2 reil2
func addRunway(ap *Airport, line string, bounds math.BoundingBox) runwayResult {
	f := strings.Fields(line)
	if len(f) != aptDatRunwayFields {
		return runwayMalformed
	}

	parse := func(idx ...int) ([]float64, bool) {
		v := make([]float64, len(idx))
		for i, j := range idx {
			var err error
			if v[i], err = util.Atof(f[j]); err != nil {
				return nil, false
			}
		}
		return v, true
	}
	v, ok := parse(9, 10, 11, 18, 19, 20)
	if !ok {
		return runwayMalformed
	}
	p1, p2 := math.Point2LL{v[1], v[0]}, math.Point2LL{v[4], v[3]}
	if !p1.IsValid() || !p2.IsValid() {
		return runwayMalformed
	}

	// The first runway decides whether the airport is in the area of
	// interest; later ones are accepted once it has been.
	if !ap.HasEdges() && !bounds.Contains(p1) {
		return runwayOutOfArea
	}

	if !ap.AddRunwayEnds(NewRunwayEndpoint(f[8], p1), NewRunwayEndpoint(f[17], p2), v[2], v[5]) {
		return runwayMalformed
	}
	return runwayAdded
}

// readTaxiLine consumes the nodes of a linear feature that follow its 120
// record as long as they are marked as taxiway centerline. The first line
// that isn't is pushed back for the caller.
func readTaxiLine(ctx context.Context, lr *lineReader, stats *ParseStats) ([]math.Point2LL, error) {
	var nodes []math.Point2LL
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, ok := lr.getline()
		if !ok {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		f := strings.Fields(line)
		if len(f) < 3 {
			lr.ungetline(line)
			break
		}
		code, err := strconv.Atoi(f[0])
		if err != nil || code < 111 || code > 116 {
			lr.ungetline(line)
			break
		}

		// 111 lat lon [type] and 113 (closing) have the line type in
		// field 3; bezier nodes 112 and 114 have two control point
		// coordinates first. 115 and 116 end the line and carry none.
		lineType := 1
		typeField := 0
		switch code {
		case 111, 113:
			typeField = 3
		case 112, 114:
			typeField = 5
		}
		if typeField > 0 && typeField < len(f) {
			if lineType, err = strconv.Atoi(f[typeField]); err != nil {
				lineType = -1
			}
		}
		if !taxiCenterlineTypes[lineType] {
			lr.ungetline(line)
			break
		}

		lat, laterr := util.Atof(f[1])
		lon, lonerr := util.Atof(f[2])
		if laterr != nil || lonerr != nil || !math.ValidLatLong(lat, lon) {
			stats.Skipped++
			continue
		}
		nodes = append(nodes, math.Point2LL{lon, lat})
	}
	return nodes, nil
}
