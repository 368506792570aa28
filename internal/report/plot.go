package report

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 5 * vg.Inch
)

// quadrantColors follows ROI order within a ring: UL, UR, LR, LL. The
// center curve uses the first entry.
var quadrantColors = []color.Color{
	color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 255},
	color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 255},
	color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 255},
	color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 255},
}

// LayerPlot builds the focus-curve plot of one layer: raw scores as points,
// the fitted curve as a line and the peak as a dashed vertical marker.
func LayerPlot(curves []Curve, layer int) (*plot.Plot, error) {
	sel := inLayer(curves, layer)
	if len(sel) == 0 {
		return nil, fmt.Errorf("report: no curves in layer %d", layer)
	}

	p := plot.New()
	p.Title.Text = layerTitle(layer) + " focus curves"
	p.X.Label.Text = "Z (mm)"
	p.Y.Label.Text = "Sharpness"
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	top := math.Inf(-1)
	for _, c := range sel {
		for _, v := range c.Scores {
			top = math.Max(top, v)
		}
	}

	for i, c := range sel {
		col := quadrantColors[i%len(quadrantColors)]

		pts := make(plotter.XYs, 0, len(c.Positions))
		for j, z := range c.Positions {
			if j < len(c.Scores) {
				pts = append(pts, plotter.XY{X: z, Y: c.Scores[j]})
			}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("report: %s samples: %w", c.Name, err)
		}
		sc.GlyphStyle.Color = col
		sc.GlyphStyle.Radius = vg.Points(2)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)

		if len(c.Fitted) == len(c.Positions) {
			fit := make(plotter.XYs, len(c.Positions))
			for j, z := range c.Positions {
				fit[j] = plotter.XY{X: z, Y: c.Fitted[j]}
			}
			line, err := plotter.NewLine(fit)
			if err != nil {
				return nil, fmt.Errorf("report: %s fit: %w", c.Name, err)
			}
			line.Color = col
			line.Width = vg.Points(1)
			p.Add(line)
			p.Legend.Add(c.Name, line)
		} else {
			p.Legend.Add(c.Name, sc)
		}

		if !math.IsInf(top, -1) {
			marker, err := plotter.NewLine(plotter.XYs{{X: c.Peak, Y: 0}, {X: c.Peak, Y: top}})
			if err != nil {
				return nil, err
			}
			marker.Color = col
			marker.Width = vg.Points(0.5)
			marker.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
			p.Add(marker)
		}
	}
	return p, nil
}

// WriteLayerPNG renders one layer plot as PNG to w.
func WriteLayerPNG(w io.Writer, curves []Curve, layer int) error {
	p, err := LayerPlot(curves, layer)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return fmt.Errorf("report: render layer %d: %w", layer, err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveLayerPlots writes one PNG per layer into dir and returns the paths.
func SaveLayerPlots(dir, scanID string, curves []Curve) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create %s: %w", dir, err)
	}
	var paths []string
	for _, layer := range Layers(curves) {
		p, err := LayerPlot(curves, layer)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_layer%d.png", scanID, layer))
		if err := p.Save(plotWidth, plotHeight, path); err != nil {
			return paths, fmt.Errorf("report: save %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
