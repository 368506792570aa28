// Package report renders focus curves of finished scans as PNG plots and
// an HTML page, and serves them alongside a small JSON API.
package report

import (
	"sort"
	"strconv"

	"github.com/banshee-data/activealign/internal/scan"
	"github.com/banshee-data/activealign/internal/store"
)

// Curve is the plotting view of one ROI focus curve. Positions and peaks
// are absolute stage coordinates in mm.
type Curve struct {
	Name      string
	ROI       int
	Layer     int
	Positions []float64
	Scores    []float64
	Fitted    []float64
	Peak      float64
	PeakScore float64
	EdgePeaks [4]float64
}

// FromDecision converts the curves of a live decision.
func FromDecision(d *scan.Decision) []Curve {
	out := make([]Curve, 0, len(d.Curves))
	for _, c := range d.Curves {
		out = append(out, Curve{
			Name:      c.Name,
			ROI:       c.ROI,
			Layer:     c.Label.Layer,
			Positions: c.Positions,
			Scores:    c.Scores,
			Fitted:    c.Fitted,
			Peak:      c.Peak,
			PeakScore: c.PeakScore,
			EdgePeaks: c.EdgePeaks,
		})
	}
	return out
}

// FromRecords converts stored curves.
func FromRecords(recs []store.CurveRecord) []Curve {
	out := make([]Curve, 0, len(recs))
	for _, c := range recs {
		out = append(out, Curve{
			Name:      c.Name(),
			ROI:       c.ROI,
			Layer:     c.Layer,
			Positions: c.Positions,
			Scores:    c.Scores,
			Fitted:    c.Fitted,
			Peak:      c.Peak,
			PeakScore: c.PeakScore,
			EdgePeaks: c.EdgePeaks,
		})
	}
	return out
}

// Layers returns the distinct layers holding samples, ascending.
func Layers(curves []Curve) []int {
	seen := map[int]bool{}
	var out []int
	for _, c := range curves {
		if len(c.Positions) > 0 && !seen[c.Layer] {
			seen[c.Layer] = true
			out = append(out, c.Layer)
		}
	}
	sort.Ints(out)
	return out
}

func inLayer(curves []Curve, layer int) []Curve {
	var out []Curve
	for _, c := range curves {
		if c.Layer == layer && len(c.Positions) > 0 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ROI < out[j].ROI })
	return out
}

func centerPeak(curves []Curve) (float64, bool) {
	for _, c := range curves {
		if c.Layer == 0 {
			return c.Peak, true
		}
	}
	return 0, false
}

func layerTitle(layer int) string {
	if layer == 0 {
		return "Center"
	}
	return "Layer " + strconv.Itoa(layer)
}
