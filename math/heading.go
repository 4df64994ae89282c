// math/heading.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import gomath "math"

// NormalizeHeading reduces h to [0,360).
func NormalizeHeading(h float64) float64 {
	h = gomath.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 { // -1e-15 + 360 rounds up
		h = 0
	}
	return h
}

func OppositeHeading(h float64) float64 {
	return NormalizeHeading(h + 180)
}

// HeadingDifference returns the number of degrees to turn from h1 to
// reach h2, in [-180,180]; positive values are clockwise turns.
func HeadingDifference(h1, h2 float64) float64 {
	h1, h2 = NormalizeHeading(h1), NormalizeHeading(h2)
	if h1 > h2 {
		if h1-h2 > 180 {
			return 360 - h1 + h2
		}
		return -(h1 - h2)
	}
	if h2-h1 > 180 {
		return -(360 - h2 + h1)
	}
	return h2 - h1
}

// HeadingAverage returns the weighted average of two headings, taking the
// wrap at north into account. An unknown heading yields the other one.
func HeadingAverage(h1, h2, w1, w2 float64) float64 {
	if IsUnknown(h1) {
		return h2
	} else if IsUnknown(h2) {
		return h1
	}

	h1, h2 = NormalizeHeading(h1), NormalizeHeading(h2)
	if h2-h1 > 180 {
		h1 += 360
	} else if h1-h2 > 180 {
		h2 += 360
	}
	return NormalizeHeading((h1*w1 + h2*w2) / (w1 + w2))
}

// LineHeading reduces a heading to [0,180), the heading of the undirected
// line through it. The second return value reports whether 180 degrees
// were subtracted.
func LineHeading(h float64) (float64, bool) {
	h = NormalizeHeading(h)
	if h >= 180 {
		return h - 180, true
	}
	return h, false
}
