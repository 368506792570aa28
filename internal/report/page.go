package report

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/activealign/internal/store"
)

// AssetsHost serves the echarts javascript. Stations without internet
// access point it at a local mirror.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// RenderPage writes an HTML report of one scan: a focus-curve chart per
// layer and a bar chart of each pattern's peak relative to the center.
func RenderPage(w io.Writer, rec *store.ScanRecord, curves []Curve) error {
	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.SetPageTitle(fmt.Sprintf("Scan %s", rec.ID))

	subtitle := fmt.Sprintf("%s %s: %s (%s)", rec.Mode, rec.State, rec.Reason, rec.StartedAt.Format(time.RFC3339))
	for _, layer := range Layers(curves) {
		page.AddCharts(layerChart(curves, layer, subtitle))
	}
	if bar := peakChart(curves, subtitle); bar != nil {
		page.AddCharts(bar)
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("report: render page: %w", err)
	}
	return nil
}

func layerChart(curves []Curve, layer int, subtitle string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "480px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: layerTitle(layer), Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Z (mm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Sharpness"}),
	)

	samples := charts.NewScatter()
	for _, c := range inLayer(curves, layer) {
		fit := make([]opts.LineData, 0, len(c.Fitted))
		pts := make([]opts.ScatterData, 0, len(c.Scores))
		for i, z := range c.Positions {
			if i < len(c.Fitted) {
				fit = append(fit, opts.LineData{Value: []interface{}{z, c.Fitted[i]}})
			}
			if i < len(c.Scores) {
				pts = append(pts, opts.ScatterData{Value: []interface{}{z, c.Scores[i]}})
			}
		}
		line.AddSeries(c.Name, fit, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
		samples.AddSeries(c.Name+" samples", pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))
	}
	line.Overlap(samples)
	return line
}

func peakChart(curves []Curve, subtitle string) *charts.Bar {
	cc, ok := centerPeak(curves)
	if !ok {
		return nil
	}
	var names []string
	var data []opts.BarData
	for _, layer := range Layers(curves) {
		for _, c := range inLayer(curves, layer) {
			names = append(names, c.Name)
			data = append(data, opts.BarData{Value: (c.Peak - cc) * 1000})
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "360px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Peak offset from center (µm)", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).AddSeries("peak", data,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)
	return bar
}
