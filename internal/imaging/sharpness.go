package imaging

import (
	"image"
)

// minLineContrast skips lines that do not cross an edge.
const minLineContrast = 16

// GradientSharpness scores an edge window on a 0 to 100 scale. For every
// row and column it takes the steepest intensity change over a step of
// window/(2*frequency) pixels relative to the line's contrast, so a step
// edge scores 100 and a blur wider than the step scores proportionally
// less. The better of the horizontal and vertical scores is returned.
func GradientSharpness(window image.Image, frequency int) float64 {
	g := ToGray(window)
	b := g.Bounds()
	if b.Dx() < 2 || b.Dy() < 2 {
		return 0
	}
	size := b.Dx()
	if b.Dy() < size {
		size = b.Dy()
	}
	step := 1
	if frequency > 0 {
		step = size / (2 * frequency)
	}
	if step < 1 {
		step = 1
	}

	at := func(x, y int) int { return int(g.Pix[g.PixOffset(x, y)]) }

	rows := lineScore(b.Dy(), b.Dx(), step, func(line, i int) int { return at(b.Min.X+i, b.Min.Y+line) })
	cols := lineScore(b.Dx(), b.Dy(), step, func(line, i int) int { return at(b.Min.X+line, b.Min.Y+i) })
	if cols > rows {
		return cols
	}
	return rows
}

func lineScore(lines, length, step int, at func(line, i int) int) float64 {
	if step >= length {
		step = length - 1
	}
	total, counted := 0.0, 0
	for l := 0; l < lines; l++ {
		lo, hi := 255, 0
		for i := 0; i < length; i++ {
			v := at(l, i)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		contrast := hi - lo
		if contrast < minLineContrast {
			continue
		}
		best := 0
		for i := 0; i+step < length; i++ {
			d := at(l, i+step) - at(l, i)
			if d < 0 {
				d = -d
			}
			if d > best {
				best = d
			}
		}
		total += float64(best) / float64(contrast)
		counted++
	}
	if counted == 0 {
		return 0
	}
	return 100 * total / float64(counted)
}
