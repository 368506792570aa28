package sfr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/activealign/internal/chart"
)

// boundsScore encodes a window's top-left corner so tests can tell which
// window produced which score.
func boundsScore(window image.Image, _ int) float64 {
	b := window.Bounds()
	return float64(b.Min.X*1000 + b.Min.Y)
}

func TestExtractor_Windows(t *testing.T) {
	x := NewExtractor(boundsScore, 32, 8)
	rects, err := x.Windows(image.Rect(0, 0, 640, 480), image.Pt(320, 240), 400)
	require.NoError(t, err)

	// sqrt(400)/2 = 10 pixel offset, 16 pixel half window.
	assert.Equal(t, image.Rect(304, 214, 336, 246), rects[0])
	assert.Equal(t, image.Rect(314, 224, 346, 256), rects[1])
	assert.Equal(t, image.Rect(304, 234, 336, 266), rects[2])
	assert.Equal(t, image.Rect(294, 224, 326, 256), rects[3])
}

func TestExtractor_Extract(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 640, 480))
	x := NewExtractor(boundsScore, 32, 8)

	e, err := x.Extract(context.Background(), img, image.Pt(320, 240), 400)
	require.NoError(t, err)

	assert.Equal(t, float64(304*1000+214), e.Top)
	assert.Equal(t, float64(314*1000+224), e.Right)
	assert.Equal(t, float64(304*1000+234), e.Bottom)
	assert.Equal(t, float64(294*1000+224), e.Left)
}

func TestExtractor_ScoresAllWindowsConcurrently(t *testing.T) {
	var calls atomic.Int32
	var gotFreq atomic.Int32
	score := func(w image.Image, f int) float64 {
		calls.Add(1)
		gotFreq.Store(int32(f))
		assert.Equal(t, 32, w.Bounds().Dx())
		return 1
	}
	x := NewExtractor(score, 0, 12)
	_, err := x.Extract(context.Background(), image.NewGray(image.Rect(0, 0, 200, 200)), image.Pt(100, 100), 100)
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, int32(12), gotFreq.Load())
}

func TestExtractor_OutOfBounds(t *testing.T) {
	x := NewExtractor(boundsScore, 32, 8)
	img := image.NewGray(image.Rect(0, 0, 640, 480))

	_, err := x.Extract(context.Background(), img, image.Pt(20, 240), 400)
	assert.True(t, errors.Is(err, ErrROIOutOfBounds), "got %v", err)

	_, err = x.Extract(context.Background(), img, image.Pt(320, 470), 400)
	assert.ErrorIs(t, err, ErrROIOutOfBounds)
}

func TestExtractor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	x := NewExtractor(boundsScore, 32, 8)
	_, err := x.Extract(ctx, image.NewGray(image.Rect(0, 0, 640, 480)), image.Pt(320, 240), 400)
	assert.ErrorIs(t, err, context.Canceled)
}

// plain hides SubImage so the fallback crop is exercised.
type plain struct{ image.Image }

func TestCropFallback(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	img.SetGray(5, 5, color.Gray{Y: 200})

	w := crop(plain{img}, image.Rect(4, 4, 8, 8))
	assert.Equal(t, image.Rect(4, 4, 8, 8), w.Bounds())
	r, _, _, _ := w.At(5, 5).RGBA()
	assert.Equal(t, uint32(200*0x101), r)
}

type fixedWeights map[string][4]float64

func (f fixedWeights) EdgeWeight(layer int, quadrant string) [4]float64 {
	if w, ok := f[quadrant]; ok {
		return w
	}
	return [4]float64{0.25, 0.25, 0.25, 0.25}
}

func TestNewSampleWeighted(t *testing.T) {
	e := Edges{Top: 40, Right: 60, Bottom: 80, Left: 20}
	l := chart.Label{Layer: 1, Quadrant: chart.UR}

	s := NewSample(0.02, e, l, image.Pt(1, 2), 100, fixedWeights{"UR": {1, 0, 0, 0}})
	assert.Equal(t, 40.0, s.Weighted)

	s = NewSample(0.02, e, l, image.Pt(1, 2), 100, nil)
	assert.Equal(t, 50.0, s.Weighted)
	assert.Equal(t, 50.0, s.Mean())
	assert.Equal(t, 60.0, s.Spread())
	assert.Equal(t, 60.0, s.Right)
}
