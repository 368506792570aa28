//go:build gocv

package imaging

import (
	"fmt"
	"image"
	"math"
	"sort"

	"gocv.io/x/gocv"
)

// ContourDetector finds chart patterns with OpenCV: an inverse binary
// threshold at maxIntensity followed by external contours. Area is the
// contour polygon area, which runs slightly below the pixel count of
// BlobDetector for the same pattern.
type ContourDetector struct{}

// Detect returns the outer contours whose area lies in [minArea, maxArea],
// centred on their bounding box and ordered top to bottom then left to
// right.
func (ContourDetector) Detect(img image.Image, maxIntensity uint8, minArea, maxArea float64) ([]Pattern, error) {
	src, err := grayMat(img)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(src, &mask, float32(maxIntensity), 255, gocv.ThresholdBinaryInv)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	b := img.Bounds()
	var out []Pattern
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		area := gocv.ContourArea(c)
		if area < minArea || area > maxArea {
			continue
		}
		r := gocv.BoundingRect(c)
		out = append(out, Pattern{
			Center: image.Pt(
				b.Min.X+int(math.Round(float64(r.Min.X)+float64(r.Dx()-1)/2)),
				b.Min.Y+int(math.Round(float64(r.Min.Y)+float64(r.Dy()-1)/2)),
			),
			Area: area,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Center.Y != out[j].Center.Y {
			return out[i].Center.Y < out[j].Center.Y
		}
		return out[i].Center.X < out[j].Center.X
	})
	return out, nil
}

// grayMat copies img into a single-channel 8-bit Mat.
func grayMat(img image.Image) (gocv.Mat, error) {
	g := ToGray(img)
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	buf := make([]byte, w*h)
	for y := 0; y < h; y++ {
		row := g.PixOffset(b.Min.X, b.Min.Y+y)
		copy(buf[y*w:(y+1)*w], g.Pix[row:row+w])
	}
	m, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, buf)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("imaging: frame to mat: %w", err)
	}
	return m, nil
}
