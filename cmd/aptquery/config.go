// cmd/aptquery/config.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mmp/aptnav/ground"
	"github.com/mmp/aptnav/log"
	"github.com/mmp/aptnav/util"
)

// Config holds the settings that are usually the same from one run to
// the next; command-line flags override them.
type Config struct {
	// XPlaneRoot is the X-Plane installation whose scenery is read,
	// unless AptDat lists files explicitly.
	XPlaneRoot string
	AptDat     []string

	// SearchRadius is in meters; airports within twice it are loaded.
	SearchRadius           float64
	SnapDistance           float64
	SnapHeadingTolerance   float64
	FieldElevationFallback bool
	ElevationCacheSize     int

	// Models maps aircraft type designators to their approach
	// performance.
	Models       map[string]ground.AircraftModel
	DefaultModel string

	MetricsAddr string
}

func getDefaultConfig() *Config {
	return &Config{
		SearchRadius:           25 * 1852,
		SnapDistance:           ground.DefaultSnapDistance,
		SnapHeadingTolerance:   ground.DefaultSnapHeadingTolerance,
		FieldElevationFallback: true,
		ElevationCacheSize:     ground.DefaultElevationCacheSize,
		Models: map[string]ground.AircraftModel{
			"A320": {VSIFinal: -750, FlapsDownSpeed: 177, PitchFlare: 5},
			"B738": {VSIFinal: -800, FlapsDownSpeed: 175, PitchFlare: 5.5},
			"C172": {VSIFinal: -500, FlapsDownSpeed: 85, PitchFlare: 8},
		},
		DefaultModel: "A320",
	}
}

func configFilePath(lg *log.Logger) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		lg.Errorf("Unable to find user config dir: %v", err)
		dir = "."
	}
	return filepath.Join(dir, "aptnav", "aptquery.json")
}

// LoadOrMakeDefaultConfig reads the configuration at fn, or at the
// default location if fn is empty. A missing file gives the defaults;
// settings the file doesn't specify keep their default values.
func LoadOrMakeDefaultConfig(fn string, lg *log.Logger) (*Config, error) {
	if fn == "" {
		fn = configFilePath(lg)
	}
	config := getDefaultConfig()

	f, err := os.Open(fn)
	if errors.Is(err, fs.ErrNotExist) {
		lg.Infof("%s: no config file; using defaults", fn)
		return config, nil
	} else if err != nil {
		return config, err
	}
	defer f.Close()

	lg.Infof("Loading config from: %s", fn)
	if err := util.UnmarshalJSON(f, config); err != nil {
		return getDefaultConfig(), err
	}
	return config, nil
}

func (c *Config) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(c)
}

func (c *Config) Save(fn string, lg *log.Logger) error {
	if fn == "" {
		fn = configFilePath(lg)
	}
	if err := os.MkdirAll(filepath.Dir(fn), 0o700); err != nil {
		return err
	}

	lg.Infof("Saving config to: %s", fn)
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer f.Close()

	return c.Encode(f)
}

// Check reports every problem with the configuration to e.
func (c *Config) Check(e *util.ErrorLogger) {
	if c.XPlaneRoot == "" && len(c.AptDat) == 0 {
		e.ErrorString("either \"XPlaneRoot\" or \"AptDat\" must be specified")
	}
	if c.SearchRadius <= 0 {
		e.ErrorString("\"SearchRadius\" must be positive")
	}
	if c.SnapHeadingTolerance < 0 || c.SnapHeadingTolerance > 90 {
		e.ErrorString("\"SnapHeadingTolerance\" %.1f must be between 0 and 90 degrees", c.SnapHeadingTolerance)
	}
	if _, ok := c.Models[c.DefaultModel]; !ok {
		e.ErrorString("\"DefaultModel\" %q isn't in \"Models\"", c.DefaultModel)
	}

	for _, name := range util.SortedMapKeys(c.Models) {
		e.Push("Model " + name)
		m := c.Models[name]
		if m.VSIFinal >= 0 {
			e.ErrorString("\"VSIFinal\" %.0f must be negative", m.VSIFinal)
		}
		if m.FlapsDownSpeed <= 0 {
			e.ErrorString("\"FlapsDownSpeed\" %.0f must be positive", m.FlapsDownSpeed)
		}
		e.Pop()
	}
}
