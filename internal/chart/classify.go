// Package chart assigns detected test-chart patterns to concentric rings
// and image quadrants.
package chart

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrClassificationIncomplete is returned when a ring does not hold four
// patterns in distinct quadrants, or the center layer does not hold one.
var ErrClassificationIncomplete = errors.New("chart: classification incomplete")

// DefaultLayerThreshold is the normalised radius gap that separates rings.
const DefaultLayerThreshold = 0.1

// Quadrant locates a pattern relative to the image center. Image y grows
// downwards, so UL has negative dx and dy.
type Quadrant int

const (
	UL Quadrant = iota
	UR
	LR
	LL
	CC
)

// Quadrants lists the corner quadrants in ROI index order.
var Quadrants = [4]Quadrant{UL, UR, LR, LL}

func (q Quadrant) String() string {
	switch q {
	case UL:
		return "UL"
	case UR:
		return "UR"
	case LR:
		return "LR"
	case LL:
		return "LL"
	case CC:
		return "CC"
	}
	return fmt.Sprintf("Quadrant(%d)", int(q))
}

// Label is the chart position of one pattern. Layer 0 is the center.
type Label struct {
	Layer    int
	Quadrant Quadrant
}

func (l Label) String() string {
	if l.Layer == 0 {
		return "CC"
	}
	return fmt.Sprintf("L%d_%s", l.Layer, l.Quadrant)
}

// ROIIndex returns the stable ROI key for a label: 0 for the center and
// 4*(layer-1)+quadrant+1 for ring corners.
func ROIIndex(l Label) int {
	if l.Layer == 0 {
		return 0
	}
	return 4*(l.Layer-1) + int(l.Quadrant) + 1
}

// LabelForROI is the inverse of ROIIndex.
func LabelForROI(roi int) Label {
	if roi <= 0 {
		return Label{Layer: 0, Quadrant: CC}
	}
	return Label{Layer: (roi-1)/4 + 1, Quadrant: Quadrant((roi - 1) % 4)}
}

// IncompleteError names the layers that failed classification.
type IncompleteError struct {
	Layers []int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%v: layers %v", ErrClassificationIncomplete, e.Layers)
}

func (e *IncompleteError) Unwrap() error { return ErrClassificationIncomplete }

// Classification is the labelled chart. Labels is parallel to the input
// centers.
type Classification struct {
	Labels []Label
	// Rings is the number of rings found, excluding the center layer.
	Rings      int
	incomplete map[int]bool
}

// Complete reports whether the given layer passed classification.
func (c *Classification) Complete(layer int) bool {
	return layer >= 0 && layer <= c.Rings && !c.incomplete[layer]
}

// Classify groups pattern centers into layers by normalised distance from
// imageCenter and assigns each a quadrant. When a layer is malformed the
// returned error wraps ErrClassificationIncomplete, and the labels are still
// returned so complete rings remain usable.
func Classify(centers []orb.Point, imageCenter orb.Point, threshold float64) (*Classification, error) {
	if threshold <= 0 {
		threshold = DefaultLayerThreshold
	}
	c := &Classification{Labels: make([]Label, len(centers)), incomplete: map[int]bool{}}
	if len(centers) == 0 {
		c.incomplete[0] = true
		return c, &IncompleteError{Layers: []int{0}}
	}
	if len(centers) == 1 {
		// Normalising a lone radius would push it to 1; a single pattern
		// is the center whatever its offset.
		c.Labels[0] = Label{Layer: 0, Quadrant: CC}
		return c, nil
	}

	radii := make([]float64, len(centers))
	maxR := 0.0
	for i, p := range centers {
		radii[i] = planar.Distance(p, imageCenter)
		if radii[i] > maxR {
			maxR = radii[i]
		}
	}
	if maxR > 0 {
		for i := range radii {
			radii[i] /= maxR
		}
	}

	order := make([]int, len(centers))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return radii[order[a]] < radii[order[b]] })

	layer, prev := 0, -1.0
	members := map[int][]int{}
	for _, i := range order {
		r := radii[i]
		if r >= threshold {
			if layer == 0 || r-prev > threshold {
				layer++
			}
			prev = r
		}
		l := Label{Layer: layer}
		if layer == 0 {
			l.Quadrant = CC
		} else {
			l.Quadrant = quadrantOf(centers[i], imageCenter)
		}
		c.Labels[i] = l
		members[layer] = append(members[layer], i)
	}
	c.Rings = layer

	var bad []int
	if len(members[0]) != 1 {
		bad = append(bad, 0)
	}
	for ring := 1; ring <= c.Rings; ring++ {
		if !validRing(c.Labels, members[ring]) {
			bad = append(bad, ring)
		}
	}
	if len(bad) > 0 {
		for _, l := range bad {
			c.incomplete[l] = true
		}
		return c, &IncompleteError{Layers: bad}
	}
	return c, nil
}

func validRing(labels []Label, idx []int) bool {
	if len(idx) != 4 {
		return false
	}
	var seen [4]bool
	for _, i := range idx {
		q := labels[i].Quadrant
		if seen[q] {
			return false
		}
		seen[q] = true
	}
	return true
}

func quadrantOf(p, center orb.Point) Quadrant {
	dx, dy := p.X()-center.X(), p.Y()-center.Y()
	switch {
	case dx < 0 && dy < 0:
		return UL
	case dx >= 0 && dy < 0:
		return UR
	case dx >= 0:
		return LR
	default:
		return LL
	}
}
