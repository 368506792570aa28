// Package fov estimates the diagonal field of view from the first chart ring
// and tracks how it changes with Z over a scan.
package fov

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/banshee-data/activealign/internal/chart"
	"github.com/banshee-data/activealign/internal/curvefit"
)

// ErrUnavailable is returned when ring 1 is not fully detected.
var ErrUnavailable = errors.New("fov: ring 1 corners unavailable")

// Optics describes the sensor sampling and lens used to convert pixel
// distances to angles.
type Optics struct {
	PixelPerMMX float64
	PixelPerMMY float64
	EFL         float64 // mm
}

// DFOV returns the diagonal field of view in degrees, averaged over the
// UL-LR and UR-LL diagonals of ring 1.
func DFOV(ring1 map[chart.Quadrant]orb.Point, o Optics) (float64, error) {
	for _, q := range chart.Quadrants {
		if _, ok := ring1[q]; !ok {
			return 0, fmt.Errorf("%w: missing %s", ErrUnavailable, q)
		}
	}
	if o.PixelPerMMX <= 0 || o.PixelPerMMY <= 0 || o.EFL <= 0 {
		return 0, fmt.Errorf("fov: invalid optics %+v", o)
	}
	d1 := o.sensorDistance(ring1[chart.UL], ring1[chart.LR])
	d2 := o.sensorDistance(ring1[chart.UR], ring1[chart.LL])
	return (o.angle(d1) + o.angle(d2)) / 2, nil
}

func (o Optics) sensorDistance(a, b orb.Point) float64 {
	dx := (a.X() - b.X()) / o.PixelPerMMX
	dy := (a.Y() - b.Y()) / o.PixelPerMMY
	return math.Hypot(dx, dy)
}

func (o Optics) angle(d float64) float64 {
	return 2 * math.Atan(d/(2*o.EFL)) * 180 / math.Pi
}

// Tracker accumulates (Z, DFOV) pairs over a scan.
type Tracker struct {
	zs   []float64
	fovs []float64
}

// Add records the field of view measured at z.
func (t *Tracker) Add(z, dfov float64) {
	t.zs = append(t.zs, z)
	t.fovs = append(t.fovs, dfov)
}

// Len returns the number of recorded pairs.
func (t *Tracker) Len() int { return len(t.zs) }

// Fit returns the least-squares FOV-vs-Z slope and intercept.
func (t *Tracker) Fit() (slope, intercept float64, err error) {
	return curvefit.LinearRegression(t.zs, t.fovs)
}

// CheckedOffset converts a post-move DFOV reading into the Z error implied
// by the scan's FOV slope.
func CheckedOffset(dfov, expected, slope float64) (float64, error) {
	if slope == 0 {
		return 0, errors.New("fov: zero slope")
	}
	return -(dfov - expected) / slope, nil
}
