package scan

import (
	"math"
)

// Metrics is the flat result map published with every decision. Values
// are rounded to three decimals.
type Metrics map[string]float64

// Set stores v rounded to three decimals. Non-finite values are dropped
// so the map always encodes.
func (m Metrics) Set(key string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	m[key] = round3(v)
}

// SetBool stores 1 for true and 0 for false.
func (m Metrics) SetBool(key string, v bool) {
	if v {
		m[key] = 1
		return
	}
	m[key] = 0
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// PeakDev returns the spread of values in µm, (max-min)*1000. The sign is
// positive when the last extreme to move while scanning left to right was
// the minimum and negative when it was the maximum.
func PeakDev(values ...float64) float64 {
	if len(values) == 0 {
		return 0
	}
	max, min := values[0], values[0]
	positive := true
	for _, v := range values[1:] {
		if v > max {
			positive = false
			max = v
		}
		if v < min {
			positive = true
			min = v
		}
	}
	if positive {
		return (max - min) * 1000
	}
	return -(max - min) * 1000
}

// MapTilt converts a plane tilt (x, y) into stage A/B commands for one of
// the eight mounting relationships. Relationships 0 to 3 drive A from x,
// 4 to 7 drive A from y. Within each group indexes 2 and 3 invert A, and
// odd relationships invert B.
func MapTilt(x, y float64, relationship int) (a, b float64) {
	index := relationship
	a, b = x, y
	if relationship >= 4 {
		a, b = y, x
		index = relationship - 4
	}
	if index > 1 {
		a = -a
	}
	if relationship%2 == 1 {
		b = -b
	}
	return a, b
}
