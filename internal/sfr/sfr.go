// Package sfr scores edge sharpness in the four windows around a chart
// pattern.
package sfr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/activealign/internal/chart"
)

// ErrROIOutOfBounds is returned when a sampling window leaves the frame.
var ErrROIOutOfBounds = errors.New("sfr: ROI window out of image bounds")

// DefaultWindowSize is the side of each square sampling window in pixels.
const DefaultWindowSize = 32

// EdgeSharpnessFunc scores one edge window at the given spatial frequency.
// Implementations must be safe for concurrent use.
type EdgeSharpnessFunc func(window image.Image, frequency int) float64

// Edges holds the four edge scores of one pattern.
type Edges struct {
	Top    float64
	Right  float64
	Bottom float64
	Left   float64
}

// Values returns the scores in top, right, bottom, left order.
func (e Edges) Values() [4]float64 {
	return [4]float64{e.Top, e.Right, e.Bottom, e.Left}
}

// Weighted combines the scores with a (top, right, bottom, left) tuple.
func (e Edges) Weighted(w [4]float64) float64 {
	v := e.Values()
	return v[0]*w[0] + v[1]*w[1] + v[2]*w[2] + v[3]*w[3]
}

// Mean is the unweighted average of the four scores.
func (e Edges) Mean() float64 {
	return e.Weighted([4]float64{0.25, 0.25, 0.25, 0.25})
}

// Spread is the difference between the largest and smallest score.
func (e Edges) Spread() float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range e.Values() {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return hi - lo
}

// Weights supplies per-layer, per-quadrant edge weights. The station
// config satisfies it.
type Weights interface {
	EdgeWeight(layer int, quadrant string) [4]float64
}

// WeightFor returns the weights for a label, or an even split when w is nil.
func WeightFor(w Weights, l chart.Label) [4]float64 {
	if w == nil {
		return [4]float64{0.25, 0.25, 0.25, 0.25}
	}
	return w.EdgeWeight(l.Layer, l.Quadrant.String())
}

// Sample is one pattern's sharpness at one scan position. Samples are
// immutable once produced.
type Sample struct {
	Position float64
	Edges
	Weighted float64
	Label    chart.Label
	Center   image.Point
	Area     float64
}

// NewSample builds a sample and fills Weighted from w.
func NewSample(position float64, e Edges, l chart.Label, center image.Point, area float64, w Weights) Sample {
	return Sample{
		Position: position,
		Edges:    e,
		Weighted: e.Weighted(WeightFor(w, l)),
		Label:    l,
		Center:   center,
		Area:     area,
	}
}

// Extractor scores the windows above, right of, below and left of a
// pattern.
type Extractor struct {
	score      EdgeSharpnessFunc
	windowSize int
	frequency  int
}

// NewExtractor returns an extractor. A non-positive windowSize selects
// DefaultWindowSize.
func NewExtractor(score EdgeSharpnessFunc, windowSize, frequency int) *Extractor {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Extractor{score: score, windowSize: windowSize, frequency: frequency}
}

// Windows returns the top, right, bottom and left sampling rectangles for
// a pattern. Each is offset from center by half the pattern's side.
func (x *Extractor) Windows(bounds image.Rectangle, center image.Point, area float64) ([4]image.Rectangle, error) {
	off := int(math.Round(math.Sqrt(math.Max(area, 0)) / 2))
	centers := [4]image.Point{
		{center.X, center.Y - off},
		{center.X + off, center.Y},
		{center.X, center.Y + off},
		{center.X - off, center.Y},
	}
	var rects [4]image.Rectangle
	half := x.windowSize / 2
	for i, c := range centers {
		r := image.Rect(c.X-half, c.Y-half, c.X-half+x.windowSize, c.Y-half+x.windowSize)
		if !r.In(bounds) {
			return rects, fmt.Errorf("%w: window %v outside %v", ErrROIOutOfBounds, r, bounds)
		}
		rects[i] = r
	}
	return rects, nil
}

// Extract scores the four windows concurrently and joins them before
// returning.
func (x *Extractor) Extract(ctx context.Context, img image.Image, center image.Point, area float64) (Edges, error) {
	rects, err := x.Windows(img.Bounds(), center, area)
	if err != nil {
		return Edges{}, err
	}

	var scores [4]float64
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range rects {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scores[i] = x.score(crop(img, r), x.frequency)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Edges{}, err
	}
	return Edges{Top: scores[0], Right: scores[1], Bottom: scores[2], Left: scores[3]}, nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// crop returns the part of img inside r, sharing pixels where the image
// type supports it.
func crop(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	return window{Image: img, r: r}
}

type window struct {
	image.Image
	r image.Rectangle
}

func (w window) Bounds() image.Rectangle { return w.r }
