// Package imaging provides the frame primitives the scan needs: grayscale
// conversion, black-frame detection, chart pattern blobs and a gradient
// sharpness estimator.
package imaging

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// ToGray returns img as *image.Gray, converting when needed.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(b)
	draw.Draw(g, b, img, b.Min, draw.Src)
	return g
}

// IntensityRange returns the darkest and brightest pixel values.
func IntensityRange(g *image.Gray) (min, max uint8) {
	min, max = 255, 0
	b := g.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, y):g.PixOffset(b.Max.X, y)]
		for _, v := range row {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}
	return min, max
}

// IsBlack reports whether the frame's intensity spread is below minDiff,
// which happens when the sensor is unpowered or the light source is off.
func IsBlack(img image.Image, minDiff int) bool {
	if img.Bounds().Empty() {
		return true
	}
	lo, hi := IntensityRange(ToGray(img))
	return int(hi)-int(lo) < minDiff
}

// Downsample reduces img by an integer factor with bilinear filtering.
// Factors below 2 return img unchanged.
func Downsample(img image.Image, factor int) image.Image {
	if factor < 2 {
		return img
	}
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx()/factor, b.Dy()/factor))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// LoadFrame decodes a PNG, JPEG, BMP or TIFF frame from disk.
func LoadFrame(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %s: %w", path, err)
	}
	return img, nil
}
