package scan

import (
	"context"
	"fmt"
	"math"

	"github.com/banshee-data/activealign/internal/config"
	"github.com/banshee-data/activealign/internal/fov"
	"github.com/banshee-data/activealign/internal/monitoring"
	"github.com/banshee-data/activealign/internal/stage"
)

// Plan is the ordered list of stage positions for one scan.
type Plan struct {
	Mode      string
	Axis      stage.Axis
	Positions []float64
	// Start is subtracted from positions before fitting and added back to
	// the fitted peaks.
	Start float64
	// DFOV is the field of view measured before a dfov-mode sweep.
	DFOV float64
}

// Last returns the final commanded position.
func (p Plan) Last() float64 {
	if len(p.Positions) == 0 {
		return p.Start
	}
	return p.Positions[len(p.Positions)-1]
}

// NormalPositions sweeps from start toward stop in floor(|start-stop|/step)
// steps.
func NormalPositions(start, stop, step float64) []float64 {
	if step <= 0 {
		return nil
	}
	count := int(math.Floor(math.Abs(start-stop)/step + 1e-9))
	dir := 1.0
	if stop < start {
		dir = -1
	}
	out := make([]float64, count)
	for i := range out {
		out[i] = start + dir*float64(i)*step
	}
	return out
}

// SeriesPositions returns count positions from target in step increments.
func SeriesPositions(target, step float64, count int) []float64 {
	out := make([]float64, count)
	for i := range out {
		out[i] = target + float64(i)*step
	}
	return out
}

// DFOVTarget estimates the best-focus Z from a DFOV measured at start and
// applies the configured offset.
func DFOVTarget(dfov, estimatedFOV, slope, start, offset float64) float64 {
	return (estimatedFOV-dfov)/slope + start + offset
}

func (r *Runner) plan(ctx context.Context, s *scanState) (Plan, error) {
	cfg := r.cfg
	start, stop, step := cfg.GetStartPos(), cfg.GetStopPos(), cfg.GetStepSize()

	switch mode := cfg.GetScanMode(); mode {
	case config.ModeNormal:
		return Plan{Mode: mode, Axis: stage.AxisZ, Positions: NormalPositions(start, stop, step), Start: start}, nil

	case config.ModeXScan:
		return Plan{Mode: mode, Axis: stage.AxisX, Positions: NormalPositions(start, stop, step), Start: start}, nil

	case config.ModeStationary:
		pos, err := r.hw.Stage.Position(ctx)
		if err != nil {
			return Plan{}, fmt.Errorf("read stage position: %w", err)
		}
		target := pos.Z + cfg.GetOffset()
		return Plan{
			Mode:      mode,
			Axis:      stage.AxisZ,
			Positions: SeriesPositions(target, step, cfg.GetImageCount()),
			Start:     target,
		}, nil

	case config.ModeDFOV:
		if err := r.moveAndSettle(ctx, s, stage.AxisZ, start); err != nil {
			return Plan{}, err
		}
		img, err := r.grab(ctx, s, -1)
		if err != nil {
			return Plan{}, err
		}
		dfov, err := r.measureDFOV(img)
		if err != nil {
			return Plan{}, err
		}
		target := DFOVTarget(dfov, cfg.GetEstimatedAAFOV(), cfg.GetEstimatedFOVSlope(), start, cfg.GetOffset())
		monitoring.Logf("[scan] dfov %.3f deg at %.4f, estimated target %.4f", dfov, start, target)
		if target >= stop {
			return Plan{}, fmt.Errorf("%w: target %.4f >= stop %.4f", ErrTargetOutOfRange, target, stop)
		}
		return Plan{
			Mode:      mode,
			Axis:      stage.AxisZ,
			Positions: SeriesPositions(target, step, cfg.GetImageCount()),
			Start:     start,
			DFOV:      dfov,
		}, nil
	}
	return Plan{}, fmt.Errorf("scan: unsupported mode %q", cfg.GetScanMode())
}

// optics returns the pixel scale of frames after oversampling reduction.
func (r *Runner) optics() fov.Optics {
	f := float64(r.cfg.GetOversampling())
	return fov.Optics{
		PixelPerMMX: r.cfg.GetPixelPerMMX() / f,
		PixelPerMMY: r.cfg.GetPixelPerMMY() / f,
		EFL:         r.cfg.GetEFL(),
	}
}
