package imaging

import (
	"image"
	"math"
	"sort"
)

// Pattern is one dark chart pattern found in a frame.
type Pattern struct {
	Center image.Point
	Area   float64
}

// BlobDetector finds dark, 4-connected regions whose area lies within a
// window. It is the default pattern detector when no vision library is
// attached.
type BlobDetector struct{}

// Detect returns every blob of pixels at or below maxIntensity whose pixel
// count lies in [minArea, maxArea], ordered top to bottom then left to
// right.
func (BlobDetector) Detect(img image.Image, maxIntensity uint8, minArea, maxArea float64) ([]Pattern, error) {
	g := ToGray(img)
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	visited := make([]bool, w*h)
	var out []Pattern
	var stack []int

	dark := func(x, y int) bool {
		return g.Pix[g.PixOffset(b.Min.X+x, b.Min.Y+y)] <= maxIntensity
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if visited[i] || !dark(x, y) {
				continue
			}
			visited[i] = true
			stack = append(stack[:0], i)
			var n, sx, sy int
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				px, py := p%w, p/w
				n++
				sx += px
				sy += py
				for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					nx, ny := px+d[0], py+d[1]
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					j := ny*w + nx
					if !visited[j] && dark(nx, ny) {
						visited[j] = true
						stack = append(stack, j)
					}
				}
			}
			area := float64(n)
			if area < minArea || area > maxArea {
				continue
			}
			out = append(out, Pattern{
				Center: image.Pt(
					b.Min.X+int(math.Round(float64(sx)/float64(n))),
					b.Min.Y+int(math.Round(float64(sy)/float64(n))),
				),
				Area: area,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Center.Y != out[j].Center.Y {
			return out[i].Center.Y < out[j].Center.Y
		}
		return out[i].Center.X < out[j].Center.X
	})
	return out, nil
}
