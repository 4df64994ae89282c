// math/heading_test.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	"math"
	"testing"
)

func TestNormalizeHeading(t *testing.T) {
	tests := []struct {
		h, expected float64
	}{
		{0, 0}, {359.5, 359.5}, {360, 0}, {-10, 350}, {725, 5}, {-360, 0}, {-1e-15, 0},
	}
	for _, test := range tests {
		if got := NormalizeHeading(test.h); math.Abs(got-test.expected) > 1e-9 {
			t.Errorf("NormalizeHeading(%f) = %f, expected %f", test.h, got, test.expected)
		}
	}
}

func TestHeadingDifference(t *testing.T) {
	tests := []struct {
		name     string
		h1, h2   float64
		expected float64
	}{
		{"right turn", 10, 30, 20},
		{"left turn", 30, 10, -20},
		{"right across north", 350, 10, 20},
		{"left across north", 10, 350, -20},
		{"reverse", 90, 270, 180},
		{"same", 123, 123, 0},
		{"unnormalized", -90, 450, 180},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := HeadingDifference(test.h1, test.h2)
			if math.Abs(got-test.expected) > 1e-9 {
				t.Errorf("HeadingDifference(%f, %f) = %f, expected %f", test.h1, test.h2, got, test.expected)
			}
			if got < -180 || got > 180 {
				t.Errorf("HeadingDifference(%f, %f) = %f out of range", test.h1, test.h2, got)
			}
		})
	}
}

func TestHeadingAverage(t *testing.T) {
	tests := []struct {
		name     string
		h1, h2   float64
		w1, w2   float64
		expected float64
	}{
		{"simple", 10, 30, 1, 1, 20},
		{"across north", 350, 10, 1, 1, 0},
		{"across north weighted", 350, 20, 2, 1, 0},
		{"unknown first", math.NaN(), 45, 1, 1, 45},
		{"unknown second", 45, math.NaN(), 1, 1, 45},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := HeadingAverage(test.h1, test.h2, test.w1, test.w2)
			if math.Abs(HeadingDifference(got, test.expected)) > 1e-9 {
				t.Errorf("HeadingAverage(%f, %f) = %f, expected %f", test.h1, test.h2, got, test.expected)
			}
		})
	}
}

func TestLineHeading(t *testing.T) {
	for _, h := range []float64{0, 45, 179.9, 180, 270, 359.9, -30} {
		lh, inv := LineHeading(h)
		if lh < 0 || lh >= 180 {
			t.Errorf("LineHeading(%f) = %f out of [0,180)", h, lh)
		}
		if inv != (NormalizeHeading(h) >= 180) {
			t.Errorf("LineHeading(%f) inverted = %v", h, inv)
		}
	}
}
