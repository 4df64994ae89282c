// aviation/scenery.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package aviation

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/iancoleman/orderedmap"
)

// SceneryLocator provides the apt.dat files to load, highest precedence
// first: an airport found in an earlier file hides later definitions of
// it.
type SceneryLocator interface {
	AptDatFiles() ([]string, error)
}

const (
	sceneryPacksIni     = "Custom Scenery/scenery_packs.ini"
	globalAirportsPack  = "Global Scenery/Global Airports"
	globalAirportsToken = "*GLOBAL_AIRPORTS*"
	defaultAptDat       = "Resources/default scenery/default apt dat/Earth nav data/apt.dat"
	packAptDat          = "Earth nav data/apt.dat"
)

// XPlaneScenery locates apt.dat files in an X-Plane installation: those
// of the enabled scenery packs in scenery_packs.ini order, then the
// global airports and the default apt.dat.
type XPlaneScenery struct {
	Root string
}

// AptDatFiles returns candidate apt.dat paths; they may not exist. A
// missing scenery_packs.ini isn't an error. If it can't be read for
// another reason, the default files are still returned along with the
// error.
func (x XPlaneScenery) AptDatFiles() ([]string, error) {
	packs := orderedmap.New()

	var rerr error
	if f, err := os.Open(x.path(sceneryPacksIni)); err == nil {
		rerr = readSceneryPacks(f, packs)
		f.Close()
	} else if !errors.Is(err, fs.ErrNotExist) {
		rerr = err
	}
	if rerr != nil {
		rerr = fmt.Errorf("%s: %w", sceneryPacksIni, rerr)
	}

	var files []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, pack := range packs.Keys() {
		if enabled, _ := packs.Get(pack); enabled.(bool) {
			add(filepath.Join(x.path(pack), filepath.FromSlash(packAptDat)))
		}
	}
	add(filepath.Join(x.path(globalAirportsPack), filepath.FromSlash(packAptDat)))
	add(x.path(defaultAptDat))

	return files, rerr
}

// path resolves a path from scenery_packs.ini or one of the standard
// locations against the X-Plane root.
func (x XPlaneScenery) path(p string) string {
	p = filepath.FromSlash(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(x.Root, p)
}

// readSceneryPacks adds the packs listed in a scenery_packs.ini file to
// packs, in order, with a bool value recording whether each one is
// enabled. A pack that is listed twice keeps its first enabled entry;
// disabled entries only count while there is no enabled one.
func readSceneryPacks(r io.Reader, packs *orderedmap.OrderedMap) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		var pack string
		var enabled bool
		if p, ok := strings.CutPrefix(line, "SCENERY_PACK_DISABLED "); ok {
			pack = p
		} else if p, ok := strings.CutPrefix(line, "SCENERY_PACK "); ok {
			pack, enabled = p, true
		} else {
			continue
		}

		pack = strings.TrimSpace(pack)
		if pack == globalAirportsToken {
			pack = globalAirportsPack
		}
		pack = strings.TrimRight(filepath.ToSlash(pack), "/")
		if pack == "" {
			continue
		}
		if prev, ok := packs.Get(pack); !ok {
			packs.Set(pack, enabled)
		} else if enabled && !prev.(bool) {
			packs.Delete(pack)
			packs.Set(pack, true)
		}
	}
	return sc.Err()
}
