// Package scan drives one active-alignment cycle: sweep the lens through
// focus, score every chart pattern at each position, fit the focus curves and
// decide whether the module is in tolerance.
package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/activealign/internal/aggregate"
	"github.com/banshee-data/activealign/internal/chart"
	"github.com/banshee-data/activealign/internal/config"
	"github.com/banshee-data/activealign/internal/curvefit"
	"github.com/banshee-data/activealign/internal/fov"
	"github.com/banshee-data/activealign/internal/imaging"
	"github.com/banshee-data/activealign/internal/monitoring"
	"github.com/banshee-data/activealign/internal/sfr"
	"github.com/banshee-data/activealign/internal/stage"
	"github.com/banshee-data/activealign/internal/timeutil"
)

// ErrBusy is returned when Run is called while a cycle is in progress.
var ErrBusy = errors.New("scan: cycle already running")

// Runner owns the alignment state machine. One Runner drives one station;
// Run must not be called concurrently.
type Runner struct {
	cfg       *config.Config
	hw        Hardware
	clock     timeutil.Clock
	tilt      *TiltAverager
	extractor *sfr.Extractor

	mu    sync.Mutex
	state State
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces the real clock used for settle delays, timeouts and
// timing metrics.
func WithClock(c timeutil.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithTiltAverager records the tilt applied to every accepted unit.
func WithTiltAverager(t *TiltAverager) Option {
	return func(r *Runner) { r.tilt = t }
}

// NewRunner validates the hardware bundle and returns an idle runner.
func NewRunner(cfg *config.Config, hw Hardware, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("scan: config is required")
	}
	if err := hw.validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:   cfg,
		hw:    hw,
		clock: timeutil.RealClock{},
		state: StateIdle,
	}
	for _, o := range opts {
		o(r)
	}
	r.extractor = sfr.NewExtractor(hw.Sharpness, cfg.GetWindowSize(), cfg.GetMTFFrequency())
	return r, nil
}

// State returns the current state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	prev := r.state
	r.state = s
	r.mu.Unlock()
	monitoring.Debugf("[scan] state %s -> %s", prev, s)
}

func (r *Runner) begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle && !r.state.Terminal() {
		return ErrBusy
	}
	r.state = StateScanning
	return nil
}

// scanState is everything one cycle accumulates. Frame tasks capture it
// rather than reaching back into the Runner.
type scanState struct {
	agg *aggregate.Aggregator

	fovMu sync.Mutex
	fov   fov.Tracker

	moveTime time.Duration
	grabTime time.Duration
	waitTime time.Duration
}

func (s *scanState) addFOV(z, dfov float64) {
	s.fovMu.Lock()
	defer s.fovMu.Unlock()
	s.fov.Add(z, dfov)
}

// Run executes one cycle and always returns a decision. The error is nil
// when the unit is accepted, a *ToleranceViolation when it is rejected and
// the fault otherwise.
func (r *Runner) Run(ctx context.Context) (*Decision, error) {
	if err := r.begin(); err != nil {
		return nil, err
	}
	d := &Decision{
		ID:        uuid.NewString(),
		Mode:      r.cfg.GetScanMode(),
		State:     StateScanning,
		Metrics:   Metrics{},
		StartedAt: r.clock.Now(),
	}
	monitoring.Logf("[scan] %s: starting %s scan", d.ID, d.Mode)

	err := r.run(ctx, d)
	d.FinishedAt = r.clock.Now()
	r.finish(ctx, d, err)
	return d, err
}

func (r *Runner) finish(ctx context.Context, d *Decision, err error) {
	var v *ToleranceViolation
	switch {
	case err == nil:
		d.State, d.Passed, d.Reason = StateAccepted, true, "passed"
	case errors.As(err, &v):
		d.State, d.Violation, d.Reason = StateRejected, v, err.Error()
	default:
		d.State, d.Reason = StateFaulted, err.Error()
	}
	r.setState(d.State)
	monitoring.Logf("[scan] %s: %s (%s) in %v", d.ID, d.State, d.Reason, d.FinishedAt.Sub(d.StartedAt))

	if r.hw.Signaler == nil {
		return
	}
	sctx := context.WithoutCancel(ctx)
	var serr error
	if d.Passed {
		serr = r.hw.Signaler.Accept(sctx, d)
	} else {
		serr = r.hw.Signaler.Reject(sctx, d)
	}
	if serr != nil {
		monitoring.Logf("[scan] %s: signal %s failed: %v", d.ID, d.State, serr)
	}
}

func (r *Runner) run(ctx context.Context, d *Decision) error {
	s := &scanState{agg: aggregate.New(r.clock)}
	r.recordSettings(d)

	p, err := r.plan(ctx, s)
	if err != nil {
		return err
	}
	if len(p.Positions) == 0 {
		return fmt.Errorf("%w: no scan positions planned", curvefit.ErrInsufficientData)
	}
	d.Start, d.Positions = p.Start, p.Positions
	if p.DFOV != 0 {
		d.Metrics.Set("DFOV_START", p.DFOV)
	}

	if err := r.collect(ctx, s, p); err != nil {
		return err
	}
	d.Metrics.Set("STEP_MOVE_TIME", float64(s.moveTime.Milliseconds()))
	d.Metrics.Set("GRAB_TIME", float64(s.grabTime.Milliseconds()))
	d.Metrics.Set("SFR_WAIT_TIME", float64(s.waitTime.Milliseconds()))

	r.setState(StateFitting)
	if p.Axis == stage.AxisX {
		return r.decideXScan(ctx, d, s, p)
	}
	curves, err := r.fitCurves(s.agg, p.Start)
	if err != nil {
		return err
	}
	d.Curves = curves
	if err := r.evaluate(d, curves, s); err != nil {
		return err
	}

	r.setState(StateDeciding)
	if r.cfg.GetPositionChecking() {
		if v := r.checkTolerances(d, p); v != nil {
			return v
		}
	}
	return r.applyPeak(ctx, d, s)
}

// collect sweeps the plan and waits for every frame to be processed. On
// any failure outstanding frame tasks are cancelled and joined before
// returning, and their partial samples are discarded with the scan state.
func (r *Runner) collect(ctx context.Context, s *scanState, p Plan) error {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(scanCtx)
	g.SetLimit(r.cfg.GetFrameWorkers())

	err := r.sweep(gctx, s, p, g)
	if err == nil {
		r.setState(StateAggregating)
		t0 := r.clock.Now()
		err = s.agg.Wait(gctx, len(p.Positions), r.cfg.GetAggregationTimeout())
		s.waitTime = r.clock.Since(t0)
	}
	if err != nil {
		cancel()
	}
	_ = g.Wait()

	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if werr := s.agg.Err(); werr != nil {
		return werr
	}
	return err
}

func (r *Runner) sweep(ctx context.Context, s *scanState, p Plan, g *errgroup.Group) error {
	for i, pos := range p.Positions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.moveAndSettle(ctx, s, p.Axis, pos); err != nil {
			return err
		}
		feedback, err := r.hw.Stage.Position(ctx)
		if err != nil {
			return fmt.Errorf("read stage position: %w", err)
		}
		img, err := r.grab(ctx, s, i)
		if err != nil {
			return err
		}
		z := axisValue(feedback, p.Axis)
		frame := i
		g.Go(func() error {
			err := r.processFrame(ctx, s, frame, z, img)
			if err != nil && ctx.Err() == nil {
				s.agg.Fail(err)
				return err
			}
			return nil
		})
	}
	return nil
}

func axisValue(p stage.Point3D, axis stage.Axis) float64 {
	switch axis {
	case stage.AxisX:
		return p.X
	case stage.AxisY:
		return p.Y
	}
	return p.Z
}

func (r *Runner) moveAndSettle(ctx context.Context, s *scanState, axis stage.Axis, pos float64) error {
	t0 := r.clock.Now()
	if err := r.hw.Stage.MoveTo(ctx, axis, pos); err != nil {
		return fmt.Errorf("move %s to %.4f: %w", axis, pos, err)
	}
	r.clock.Sleep(r.cfg.GetSettleDelay())
	s.moveTime += r.clock.Since(t0)
	return nil
}

// grab captures one frame, reduces it by the oversampling factor and
// rejects frames without contrast. frame is -1 for captures outside the
// sweep.
func (r *Runner) grab(ctx context.Context, s *scanState, frame int) (image.Image, error) {
	t0 := r.clock.Now()
	img, err := r.hw.Camera.Capture(ctx)
	s.grabTime += r.clock.Since(t0)
	if err != nil {
		return nil, fmt.Errorf("%w: frame %d: %w", ErrFrameCaptureFailure, frame, err)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: frame %d: empty image", ErrFrameCaptureFailure, frame)
	}
	img = imaging.Downsample(img, r.cfg.GetOversampling())
	if imaging.IsBlack(img, r.cfg.GetMinIntensityDiff()) {
		return nil, fmt.Errorf("%w: frame %d", ErrBlackScreenDetected, frame)
	}
	return img, nil
}

// detect finds and labels the chart patterns of one frame. A malformed
// layer is tolerated; its labels are returned and the caller decides.
func (r *Runner) detect(img image.Image) ([]imaging.Pattern, *chart.Classification, error) {
	patterns, err := r.hw.Detector.Detect(img, r.cfg.GetMaxIntensity(), r.cfg.GetMinArea(), r.cfg.GetMaxArea())
	if err != nil {
		return nil, nil, fmt.Errorf("detect patterns: %w", err)
	}
	centers := make([]orb.Point, len(patterns))
	for i, p := range patterns {
		centers[i] = orb.Point{float64(p.Center.X), float64(p.Center.Y)}
	}
	b := img.Bounds()
	mid := orb.Point{float64(b.Min.X+b.Max.X) / 2, float64(b.Min.Y+b.Max.Y) / 2}
	cls, err := chart.Classify(centers, mid, r.cfg.GetLayerThreshold())
	if err != nil && !errors.Is(err, chart.ErrClassificationIncomplete) {
		return nil, nil, err
	}
	if err != nil {
		monitoring.Debugf("[scan] %v", err)
	}
	return patterns, cls, nil
}

func (r *Runner) processFrame(ctx context.Context, s *scanState, frame int, z float64, img image.Image) error {
	patterns, cls, err := r.detect(img)
	if err != nil {
		return fmt.Errorf("frame %d: %w", frame, err)
	}

	seen := make(map[chart.Label]int, len(patterns))
	for _, l := range cls.Labels {
		seen[l]++
	}
	ring1 := map[chart.Quadrant]orb.Point{}
	for i, p := range patterns {
		l := cls.Labels[i]
		if seen[l] > 1 || l.Layer > r.cfg.GetExpectedRings() {
			continue
		}
		edges, err := r.extractor.Extract(ctx, img, p.Center, p.Area)
		if err != nil {
			return fmt.Errorf("frame %d %s: %w", frame, l, err)
		}
		sample := sfr.NewSample(z, edges, l, p.Center, p.Area, r.cfg)
		if err := s.agg.Add(frame, chart.ROIIndex(l), sample); err != nil {
			return err
		}
		if l.Layer == 1 {
			ring1[l.Quadrant] = orb.Point{float64(p.Center.X), float64(p.Center.Y)}
		}
	}
	if cls.Complete(1) {
		if dfov, err := fov.DFOV(ring1, r.optics()); err == nil {
			s.addFOV(z, dfov)
		}
	}
	s.agg.CompleteFrame(frame)
	monitoring.Debugf("[scan] frame %d at %.4f: %d patterns", frame, z, len(patterns))
	return nil
}

func (r *Runner) measureDFOV(img image.Image) (float64, error) {
	patterns, cls, err := r.detect(img)
	if err != nil {
		return 0, err
	}
	ring1 := map[chart.Quadrant]orb.Point{}
	if cls.Complete(1) {
		for i, p := range patterns {
			if l := cls.Labels[i]; l.Layer == 1 {
				ring1[l.Quadrant] = orb.Point{float64(p.Center.X), float64(p.Center.Y)}
			}
		}
	}
	return fov.DFOV(ring1, r.optics())
}

// applyPeak moves to the chosen focus, applies the tilt correction and
// re-measures the field of view there.
func (r *Runner) applyPeak(ctx context.Context, d *Decision, s *scanState) error {
	if !r.cfg.GetMoveToPeak() {
		return nil
	}
	if err := r.hw.Stage.MoveTo(ctx, stage.AxisZ, d.TargetZ); err != nil {
		return fmt.Errorf("move to peak %.4f: %w", d.TargetZ, err)
	}
	if r.cfg.GetEnableTilt() {
		if err := r.hw.Stage.Tilt(ctx, d.TiltA, d.TiltB); err != nil {
			return fmt.Errorf("apply tilt: %w", err)
		}
		if r.tilt != nil {
			r.tilt.Add(d.TiltA, d.TiltB)
		}
	}
	r.clock.Sleep(r.cfg.GetSettleDelay())
	r.checkFOV(ctx, d, s)
	return nil
}

// checkFOV reports how far the measured field of view at the target sits
// from the scan's FOV-vs-Z line. Failures only affect the metric.
func (r *Runner) checkFOV(ctx context.Context, d *Decision, s *scanState) {
	s.fovMu.Lock()
	slope, intercept, err := s.fov.Fit()
	s.fovMu.Unlock()
	if err != nil {
		monitoring.Debugf("[scan] %s: no fov line: %v", d.ID, err)
		return
	}
	img, err := r.grab(ctx, s, -1)
	if err != nil {
		monitoring.Logf("[scan] %s: fov check capture failed: %v", d.ID, err)
		return
	}
	dfov, err := r.measureDFOV(img)
	if err != nil {
		monitoring.Logf("[scan] %s: fov check failed: %v", d.ID, err)
		return
	}
	off, err := fov.CheckedOffset(dfov, slope*d.TargetZ+intercept, slope)
	if err != nil {
		return
	}
	d.Metrics.Set("Z_PEAK_Checked", off*1000)
}

// modeCodes is the numeric MODE metric.
var modeCodes = map[string]float64{
	config.ModeNormal:     0,
	config.ModeDFOV:       1,
	config.ModeStationary: 2,
	config.ModeXScan:      3,
}

func (r *Runner) recordSettings(d *Decision) {
	m := d.Metrics
	m.Set("MODE", modeCodes[r.cfg.GetScanMode()])
	m.Set("START_POS", r.cfg.GetStartPos())
	m.Set("STOP_POS", r.cfg.GetStopPos())
	m.Set("STEP_SIZE", r.cfg.GetStepSize())
	m.Set("IMAGE_COUNT", float64(r.cfg.GetImageCount()))
}
