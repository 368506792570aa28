package imaging

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(w, h int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

func square(g *image.Gray, cx, cy, half int, v uint8) {
	for y := cy - half; y < cy+half; y++ {
		for x := cx - half; x < cx+half; x++ {
			g.SetGray(x, y, color.Gray{Y: v})
		}
	}
}

func TestIsBlack(t *testing.T) {
	assert.True(t, IsBlack(filled(20, 20, 3), 30))

	g := filled(20, 20, 200)
	square(g, 10, 10, 3, 20)
	assert.False(t, IsBlack(g, 30))

	lo, hi := IntensityRange(g)
	assert.Equal(t, uint8(20), lo)
	assert.Equal(t, uint8(200), hi)

	assert.True(t, IsBlack(image.NewGray(image.Rectangle{}), 30))
}

func TestToGray(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 2, 2))
	rgba.Set(1, 1, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	g := ToGray(rgba)
	assert.Equal(t, uint8(255), g.GrayAt(1, 1).Y)
	assert.Equal(t, uint8(0), g.GrayAt(0, 0).Y)

	same := image.NewGray(image.Rect(0, 0, 1, 1))
	assert.Same(t, same, ToGray(same))
}

func TestBlobDetector(t *testing.T) {
	g := filled(200, 100, 220)
	square(g, 50, 30, 10, 10)   // area 400
	square(g, 150, 30, 10, 10)  // area 400
	square(g, 100, 70, 2, 10)   // area 16, below minArea
	square(g, 100, 30, 10, 150) // above maxIntensity

	pats, err := BlobDetector{}.Detect(g, 100, 50, 1000)
	require.NoError(t, err)
	require.Len(t, pats, 2)

	// Centroid of pixels [40,60) is 49.5, rounded away from zero.
	assert.Equal(t, image.Pt(50, 30), pats[0].Center)
	assert.Equal(t, 400.0, pats[0].Area)
	assert.Equal(t, image.Pt(150, 30), pats[1].Center)
}

func TestBlobDetector_OffsetBounds(t *testing.T) {
	g := filled(60, 60, 220)
	square(g, 30, 30, 5, 0)
	sub := g.SubImage(image.Rect(10, 10, 50, 50))

	pats, err := BlobDetector{}.Detect(sub, 50, 10, 500)
	require.NoError(t, err)
	require.Len(t, pats, 1)
	assert.Equal(t, image.Pt(30, 30), pats[0].Center)
}

// edge returns a 32x32 window with a vertical edge ramping over width px.
func edge(width int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			var v float64
			switch {
			case x < 16:
				v = 20
			case x >= 16+width:
				v = 220
			default:
				v = 20 + 200*float64(x-16+1)/float64(width+1)
			}
			g.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	return g
}

func TestGradientSharpness(t *testing.T) {
	sharp := GradientSharpness(edge(0), 8)
	soft := GradientSharpness(edge(7), 8)
	softer := GradientSharpness(edge(15), 8)

	assert.InDelta(t, 100, sharp, 1e-9)
	assert.Less(t, soft, sharp)
	assert.Less(t, softer, soft)
	assert.Greater(t, softer, 0.0)

	assert.Equal(t, 0.0, GradientSharpness(filled(32, 32, 128), 8))
	assert.Equal(t, 0.0, GradientSharpness(filled(1, 1, 128), 8))
}

func TestDownsample(t *testing.T) {
	g := filled(64, 48, 100)
	out := Downsample(g, 2)
	assert.Equal(t, image.Rect(0, 0, 32, 24), out.Bounds())
	assert.Same(t, g, Downsample(g, 1).(*image.Gray))
}

func TestLoadFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, filled(8, 8, 77)))
	require.NoError(t, f.Close())

	img, err := LoadFrame(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 8), img.Bounds())

	_, err = LoadFrame(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}
