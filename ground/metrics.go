// ground/metrics.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ground

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the airport repository and
// its queries. A nil *Metrics records nothing.
type Metrics struct {
	AirportsLoaded  prometheus.Gauge
	FilesRead       prometheus.Counter
	Refreshes       *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	Snaps           *prometheus.CounterVec
	RunwaySelection *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg, or with the default
// registry if reg is nil. Collectors that are already registered are
// reused, so several Services may share a registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var m Metrics
	var err error
	if m.AirportsLoaded, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aptnav_airports_loaded",
		Help: "Number of airports currently in the repository.",
	})); err != nil {
		return nil, err
	}
	if m.FilesRead, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aptnav_aptdat_files_read_total",
		Help: "Number of apt.dat files opened and parsed.",
	})); err != nil {
		return nil, err
	}
	if m.Refreshes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aptnav_refresh_total",
		Help: "Background apt.dat ingestions, labeled by outcome.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if m.RefreshDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "aptnav_refresh_duration_seconds",
		Help:    "Duration of background apt.dat ingestions.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
	})); err != nil {
		return nil, err
	}
	if m.Snaps, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aptnav_snap_total",
		Help: "Snap requests, labeled by the kind of edge snapped to or miss.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if m.RunwaySelection, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aptnav_runway_selection_total",
		Help: "Landing runway searches, labeled by whether one was found.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	return &m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			return c, fmt.Errorf("collector %T already registered with an incompatible type", c)
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) setAirports(n int) {
	if m != nil {
		m.AirportsLoaded.Set(float64(n))
	}
}

func (m *Metrics) fileRead() {
	if m != nil {
		m.FilesRead.Inc()
	}
}

func (m *Metrics) refreshed(result string, d time.Duration) {
	if m != nil {
		m.Refreshes.WithLabelValues(result).Inc()
		m.RefreshDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) snapped(result string) {
	if m != nil {
		m.Snaps.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) runwaySelected(found bool) {
	if m != nil {
		if found {
			m.RunwaySelection.WithLabelValues("found").Inc()
		} else {
			m.RunwaySelection.WithLabelValues("none").Inc()
		}
	}
}
