package scan

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/banshee-data/activealign/internal/aggregate"
	"github.com/banshee-data/activealign/internal/chart"
	"github.com/banshee-data/activealign/internal/curvefit"
	"github.com/banshee-data/activealign/internal/monitoring"
	"github.com/banshee-data/activealign/internal/plane"
	"github.com/banshee-data/activealign/internal/sfr"
	"github.com/banshee-data/activealign/internal/stage"
)

// boundaryMargin is how close (mm) the sharpest edge peak may sit to the
// last scanned position before the peak is treated as off the end of the
// sweep.
const boundaryMargin = 0.001

var edgeSeries = [4]func(sfr.Sample) float64{
	func(s sfr.Sample) float64 { return s.Top },
	func(s sfr.Sample) float64 { return s.Right },
	func(s sfr.Sample) float64 { return s.Bottom },
	func(s sfr.Sample) float64 { return s.Left },
}

func (r *Runner) fitOptions() []curvefit.Option {
	return []curvefit.Option{curvefit.WithAbnormalityThreshold(r.cfg.GetAbnormalityThreshold())}
}

func relative(abs []float64, start float64) []float64 {
	out := make([]float64, len(abs))
	for i, v := range abs {
		out[i] = v - start
	}
	return out
}

// fitCurves fits the weighted score and the four edge scores of every ROI
// with enough samples. Fits run on positions relative to start and the
// peaks are shifted back to stage coordinates.
func (r *Runner) fitCurves(agg *aggregate.Aggregator, start float64) ([]ROIResult, error) {
	order := r.cfg.GetFitOrder()
	need := curvefit.MinSamples(order)
	scale := float64(r.cfg.GetOversampling())

	var out []ROIResult
	for _, roi := range agg.ROIs() {
		c := agg.Curve(roi)
		label := chart.LabelForROI(roi)
		if c.Len() < need {
			monitoring.Logf("[scan] %s: %d samples, need %d; skipped", label, c.Len(), need)
			continue
		}
		abs := c.Positions()
		rel := relative(abs, start)
		scores := c.Series(func(s sfr.Sample) float64 { return s.Weighted })
		fit, err := curvefit.Fit(rel, scores, order, r.fitOptions()...)
		if err != nil {
			return nil, fmt.Errorf("fit %s: %w", label, err)
		}
		res := ROIResult{
			ROI:       roi,
			Label:     label,
			Name:      label.String(),
			Positions: abs,
			Scores:    scores,
			Fitted:    fit.Fitted,
			Peak:      fit.PeakX + start,
			PeakScore: fit.PeakY,
			Fit:       fit,
		}
		for i, f := range edgeSeries {
			ef, err := curvefit.Fit(rel, c.Series(f), order, r.fitOptions()...)
			if err != nil {
				return nil, fmt.Errorf("fit %s edge %d: %w", label, i, err)
			}
			res.EdgePeaks[i] = ef.PeakX + start
		}
		t, rt, b, l := res.EdgePeaks[0], res.EdgePeaks[1], res.EdgePeaks[2], res.EdgePeaks[3]
		res.CornerDev = math.Abs(PeakDev(b, t, l, rt))

		var cx, cy float64
		for _, s := range c.Samples {
			cx += float64(s.Center.X)
			cy += float64(s.Center.Y)
		}
		n := float64(c.Len())
		res.Center = orb.Point{cx / n * scale, cy / n * scale}
		out = append(out, res)
	}
	return out, nil
}

// evaluate derives layer peaks, tilt and the target Z from the fitted
// curves and fills the metrics. Complete rings are evaluated even when
// another ring is incomplete; the incomplete ring is then reported as a
// fault.
func (r *Runner) evaluate(d *Decision, curves []ROIResult, s *scanState) error {
	m := d.Metrics
	byLabel := make(map[chart.Label]ROIResult, len(curves))
	maxRing := 0
	maxEdge := math.Inf(-1)
	for _, c := range curves {
		byLabel[c.Label] = c
		maxRing = max(maxRing, c.Label.Layer)
		for _, p := range c.EdgePeaks {
			maxEdge = math.Max(maxEdge, p)
		}
		recordFit(m, c)
	}
	if len(curves) > 0 {
		d.MaxEdgePeak = maxEdge
	}
	m.Set("MAX_EDGE_PEAK", d.MaxEdgePeak)

	cc, ok := byLabel[chart.Label{Layer: 0, Quadrant: chart.CC}]
	if !ok {
		return ErrNoCenter
	}
	d.CenterPeak = cc.Peak
	d.Layers = append(d.Layers, LayerResult{Layer: 0, Complete: true, Corners: 1, Peak: cc.Peak})
	m.Set("Z_PEAK_CC_um", cc.Peak*1000)

	var incomplete []int
	peaks := []float64{cc.Peak}
	for ring := 1; ring <= maxRing; ring++ {
		var corners [4]ROIResult
		found := 0
		for i, q := range chart.Quadrants {
			if c, ok := byLabel[chart.Label{Layer: ring, Quadrant: q}]; ok {
				corners[i] = c
				found++
			}
		}
		switch {
		case found == 0:
			continue
		case found < 4:
			incomplete = append(incomplete, ring)
			d.Layers = append(d.Layers, LayerResult{Layer: ring, Corners: found})
			continue
		}
		lr, err := r.evaluateRing(ring, corners)
		if err != nil {
			return err
		}
		d.Layers = append(d.Layers, lr)
		peaks = append(peaks, lr.Peak)

		m.Set(fmt.Sprintf("Z_PEAK_L%d_um", ring), lr.Peak*1000)
		m.Set(fmt.Sprintf("L%d_DEV_um", ring), lr.Dev)
		m.Set(fmt.Sprintf("zPeak_L%d_Diff_um", ring), lr.DiagDiff)
		m.Set(fmt.Sprintf("X_TILT_L%d", ring), lr.TiltX)
		m.Set(fmt.Sprintf("Y_TILT_L%d", ring), lr.TiltY)
		m.Set(fmt.Sprintf("Z_PEAK_DEV_CC_L%d_um", ring), PeakDev(cc.Peak, lr.Peak))
	}

	d.PeakDev = PeakDev(peaks...)
	m.Set("Z_PEAK_DEV_um", d.PeakDev)

	r.selectTilt(d)
	m.Set("X_TILT", d.TiltX)
	m.Set("Y_TILT", d.TiltY)
	m.Set("A_TILT", d.TiltA)
	m.Set("B_TILT", d.TiltB)

	d.TargetZ = r.targetZ(d)
	m.Set("Z_PEAK_um", d.TargetZ*1000)

	s.fovMu.Lock()
	slope, intercept, err := s.fov.Fit()
	s.fovMu.Unlock()
	if err == nil {
		m.Set("FOV_SLOPE", slope)
		m.Set("FOV_INTERCEPT", intercept)
	}

	if len(incomplete) > 0 {
		return fmt.Errorf("%w: layers %v", ErrLayerIncomplete, incomplete)
	}
	return nil
}

func recordFit(m Metrics, c ROIResult) {
	var dev, abn, del string
	if c.Label.Layer == 0 {
		dev, abn, del = "fitCurveErrorDevCC", "detectedAbnormality_CC", "deletedIndex_CC"
		m.Set("CC_Zpeak_Dev", c.CornerDev)
	} else {
		suffix := fmt.Sprintf("L%d_%s", c.Label.Layer, c.Label.Quadrant)
		dev, abn, del = "fitCurveErrorDev_"+suffix, "detectedAbnormality_"+suffix, "deletedIndex_"+suffix
		m.Set(fmt.Sprintf("%s_L%d_Zpeak_Dev", c.Label.Quadrant, c.Label.Layer), c.CornerDev)
	}
	m.Set(dev, c.Fit.ErrorDev)
	m.SetBool(abn, c.Fit.DetectedAbnormality)
	m.Set(del, float64(c.Fit.DeletedIndex))
}

// evaluateRing summarises a ring whose four corners are in UL, UR, LR, LL
// order.
func (r *Runner) evaluateRing(ring int, corners [4]ROIResult) (LayerResult, error) {
	lr := LayerResult{Layer: ring, Complete: true, Corners: 4}
	lo, hi := math.Inf(1), math.Inf(-1)
	pts := make([]plane.Point3D, 0, 4)
	for _, c := range corners {
		lr.Peak += c.Peak / 4
		lo = math.Min(lo, c.Peak)
		hi = math.Max(hi, c.Peak)
		pts = append(pts, plane.Point3D{
			X: c.Center.X() / r.cfg.GetPixelPerMMX(),
			Y: c.Center.Y() / r.cfg.GetPixelPerMMY(),
			Z: c.Peak,
		})
	}
	lr.Dev = (hi - lo) * 1000

	ul, ur, lrr, ll := corners[0].Peak, corners[1].Peak, corners[2].Peak, corners[3].Peak
	lr.DiagDiff = 1000 * math.Abs((ul+lrr)/2-(ll+ur)/2)

	n, err := plane.Fit(pts)
	if err != nil {
		return lr, fmt.Errorf("ring %d plane: %w", ring, err)
	}
	lr.TiltX, lr.TiltY = n.Tilt()
	return lr, nil
}

// selectTilt takes the tilt of the configured ring when it is complete,
// else of the outermost complete ring. The center alone carries no tilt.
func (r *Runner) selectTilt(d *Decision) {
	want := r.cfg.GetTiltLayer()
	var src *LayerResult
	for i := range d.Layers {
		l := &d.Layers[i]
		if l.Layer == 0 || !l.Complete {
			continue
		}
		if l.Layer == want {
			src = l
			break
		}
		if src == nil || l.Layer > src.Layer {
			src = l
		}
	}
	if src == nil {
		return
	}
	d.TiltLayer = src.Layer
	d.TiltX, d.TiltY = src.TiltX, src.TiltY
	d.TiltA, d.TiltB = MapTilt(src.TiltX, src.TiltY, r.cfg.GetTiltRelationship())
}

// targetZ is cc*Zcc + l1*Z1 + l2*Z2 + l3*Z3 with the configured
// coefficients, or the peak of the configured profile ring. A blend that
// weights a missing or incomplete layer falls back to the profile.
func (r *Runner) targetZ(d *Decision) float64 {
	if coeffs, ok := r.cfg.ZPeakCoefficientsEnabled(); ok {
		if z, ok := blendPeaks(d, coeffs); ok {
			return z
		}
		monitoring.Logf("[scan] %s: z-peak blend needs a missing layer, using peak profile", d.ID)
	}
	if p := r.cfg.GetPeakProfile(); p >= 1 && p <= 3 {
		if l, ok := d.Layer(p); ok && l.Complete {
			return l.Peak
		}
	}
	return d.CenterPeak
}

// blendPeaks returns the linear combination of the layer peaks. It fails
// when a layer with a non-zero coefficient has no complete peak.
func blendPeaks(d *Decision, coeffs [4]float64) (float64, bool) {
	var z float64
	for layer, c := range coeffs {
		if c == 0 {
			continue
		}
		l, ok := d.Layer(layer)
		if !ok || !l.Complete {
			return 0, false
		}
		z += c * l.Peak
	}
	return z, true
}

// checkTolerances returns the first window the decision falls outside.
func (r *Runner) checkTolerances(d *Decision, p Plan) *ToleranceViolation {
	if v := checkWindow("PEAK_BOUNDARY_DIST_mm", math.Abs(p.Last()-d.MaxEdgePeak), boundaryMargin, math.Inf(1)); v != nil {
		return v
	}
	lo, hi := r.cfg.GetZPeakDevRange()
	if v := checkWindow("Z_PEAK_DEV_um", d.PeakDev, lo, hi); v != nil {
		return v
	}

	var rings []LayerResult
	for _, l := range d.Layers {
		if l.Layer > 0 && l.Complete {
			rings = append(rings, l)
		}
	}
	for _, l := range rings {
		if lo, hi, ok := r.cfg.CCLnDevRange(l.Layer); ok {
			key := fmt.Sprintf("Z_PEAK_DEV_CC_L%d_um", l.Layer)
			if v := checkWindow(key, d.Metrics[key], lo, hi); v != nil {
				return v
			}
		}
	}
	for _, l := range rings {
		if hi, ok := r.cfg.DiagDiffMaxFor(l.Layer); ok {
			if v := checkWindow(fmt.Sprintf("zPeak_L%d_Diff_um", l.Layer), l.DiagDiff, math.Inf(-1), hi); v != nil {
				return v
			}
		}
	}
	for _, l := range rings {
		if hi, ok := r.cfg.CornerDevMaxFor(l.Layer); ok {
			if v := checkWindow(fmt.Sprintf("L%d_DEV_um", l.Layer), l.Dev, math.Inf(-1), hi); v != nil {
				return v
			}
		}
	}
	return nil
}

// decideXScan fits the normalised center-pattern area against X and moves
// to its peak.
func (r *Runner) decideXScan(ctx context.Context, d *Decision, s *scanState, p Plan) error {
	c := s.agg.Curve(chart.ROIIndex(chart.Label{Layer: 0, Quadrant: chart.CC}))
	if c.Len() == 0 {
		return ErrNoCenter
	}
	areas := c.Series(func(s sfr.Sample) float64 { return s.Area })
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, a := range areas {
		lo = math.Min(lo, a)
		hi = math.Max(hi, a)
	}
	if hi == lo {
		return fmt.Errorf("%w: center area constant over x scan", curvefit.ErrInsufficientData)
	}
	norm := make([]float64, len(areas))
	for i, a := range areas {
		norm[i] = 50 * (a - lo) / (hi - lo)
	}

	abs := c.Positions()
	fit, err := curvefit.Fit(relative(abs, p.Start), norm, 3, r.fitOptions()...)
	if err != nil {
		return fmt.Errorf("fit x scan: %w", err)
	}
	d.XPeak = fit.PeakX + p.Start
	d.Curves = []ROIResult{{
		ROI:       c.ROI,
		Label:     chart.LabelForROI(c.ROI),
		Name:      "CC",
		Positions: abs,
		Scores:    norm,
		Fitted:    fit.Fitted,
		Peak:      d.XPeak,
		PeakScore: fit.PeakY,
		Fit:       fit,
	}}
	d.Metrics.Set("X_PEAK", d.XPeak)
	recordFit(d.Metrics, d.Curves[0])

	r.setState(StateDeciding)
	if !r.cfg.GetMoveToPeak() {
		return nil
	}
	if err := r.hw.Stage.MoveTo(ctx, stage.AxisX, d.XPeak); err != nil {
		return fmt.Errorf("move to x peak %.4f: %w", d.XPeak, err)
	}
	return nil
}
