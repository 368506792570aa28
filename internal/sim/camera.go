// Package sim provides stand-in hardware for dev mode: a camera rendering
// a synthetic focus chart whose blur follows the stage, an in-memory
// stage, and a camera replaying recorded frames.
package sim

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"

	"github.com/banshee-data/activealign/internal/stage"
)

// StageReader reports the stage position the rendered chart follows.
type StageReader interface {
	Position(ctx context.Context) (stage.Point3D, error)
}

// TiltReader reports the accumulated stage tilt.
type TiltReader interface {
	TiltAB() (a, b float64)
}

const (
	darkLevel   = 20
	brightLevel = 220
)

// ChartCamera renders a chart of dark squares: one at the image center and
// four per ring on the diagonals. Each square's edges blur as the stage Z
// moves away from that square's focus, which is Focus plus the module
// tilt projected onto the square's position.
type ChartCamera struct {
	Width, Height int
	// Side is the square edge in pixels.
	Side float64
	// Rings are the ring radii as fractions of the half frame.
	Rings []float64
	// Focus is the Z in mm where the center square is sharpest.
	Focus float64
	// TiltX and TiltY are focus slopes in mm of Z per mm of image height.
	TiltX, TiltY float64
	PixelsPerMM  float64
	// BlurGain maps squared defocus (mm²) to edge ramp width in pixels.
	BlurGain float64
	// Magnification scales ring radii per mm of Z from Focus, which gives
	// the field of view a slope over the sweep.
	Magnification float64
	// XCenter is the X position where the center square appears largest.
	XCenter float64

	stage StageReader
	tilt  TiltReader

	mu       sync.Mutex
	captures int
}

// NewChartCamera returns a 640x480 three-ring chart focused at focus.
func NewChartCamera(st StageReader, focus float64) *ChartCamera {
	return &ChartCamera{
		Width:         640,
		Height:        480,
		Side:          40,
		Rings:         []float64{0.3, 0.55, 0.8},
		Focus:         focus,
		PixelsPerMM:   357.14,
		BlurGain:      7600,
		Magnification: 0.5,
		stage:         st,
	}
}

// SetTiltReader makes applied stage tilt cancel module tilt.
func (c *ChartCamera) SetTiltReader(t TiltReader) {
	c.tilt = t
}

// Captures returns how many frames were rendered.
func (c *ChartCamera) Captures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captures
}

type square struct {
	cx, cy, half, ramp float64
}

// Capture renders the chart for the current stage position.
func (c *ChartCamera) Capture(ctx context.Context) (image.Image, error) {
	if c.stage == nil {
		return nil, errors.New("sim: camera has no stage")
	}
	pos, err := c.stage.Position(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.captures++
	c.mu.Unlock()

	var ta, tb float64
	if c.tilt != nil {
		ta, tb = c.tilt.TiltAB()
	}
	tiltX, tiltY := c.TiltX-ta, c.TiltY-tb

	img := image.NewGray(image.Rect(0, 0, c.Width, c.Height))
	for i := range img.Pix {
		img.Pix[i] = brightLevel
	}
	cx, cy := float64(c.Width)/2, float64(c.Height)/2
	scale := 1 + c.Magnification*(pos.Z-c.Focus)

	for _, sq := range c.layout(cx, cy, scale, pos, tiltX, tiltY) {
		c.draw(img, sq)
	}
	return img, nil
}

func (c *ChartCamera) layout(cx, cy, scale float64, pos stage.Point3D, tiltX, tiltY float64) []square {
	ramp := func(x, y float64) float64 {
		dxmm := (x - cx) / c.PixelsPerMM
		dymm := (cy - y) / c.PixelsPerMM
		dz := pos.Z - (c.Focus + tiltX*dxmm + tiltY*dymm)
		return 1 + c.BlurGain*dz*dz
	}

	centerSide := c.Side * math.Max(0.5, 1-5*math.Abs(pos.X-c.XCenter))
	out := []square{{cx: cx, cy: cy, half: centerSide / 2, ramp: ramp(cx, cy)}}
	for _, r := range c.Rings {
		dx := r * scale * cx * 0.9
		dy := r * scale * cy * 0.9
		for _, d := range [4][2]float64{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			x, y := cx+d[0]*dx, cy+d[1]*dy
			out = append(out, square{cx: x, cy: y, half: c.Side / 2, ramp: ramp(x, y)})
		}
	}
	return out
}

// draw darkens pixels by their box distance to the square edge, which sits
// at mid grey.
func (c *ChartCamera) draw(img *image.Gray, sq square) {
	reach := sq.half + sq.ramp/2 + 1
	x0, x1 := int(math.Floor(sq.cx-reach)), int(math.Ceil(sq.cx+reach))
	y0, y1 := int(math.Floor(sq.cy-reach)), int(math.Ceil(sq.cy+reach))
	b := img.Bounds()
	for y := max(y0, b.Min.Y); y < min(y1, b.Max.Y); y++ {
		for x := max(x0, b.Min.X); x < min(x1, b.Max.X); x++ {
			px, py := float64(x)+0.5, float64(y)+0.5
			d := math.Max(math.Abs(px-sq.cx), math.Abs(py-sq.cy)) - sq.half
			t := math.Min(1, math.Max(0, 0.5+d/sq.ramp))
			v := uint8(math.Round(darkLevel + (brightLevel-darkLevel)*t))
			off := img.PixOffset(x, y)
			if v < img.Pix[off] {
				img.Pix[off] = v
			}
		}
	}
}
