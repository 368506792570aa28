// Package mtf runs the single-frame sharpness gate: one capture, every
// chart pattern scored, each edge and corner average checked against its
// window.
package mtf

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/paulmach/orb"

	"github.com/banshee-data/activealign/internal/chart"
	"github.com/banshee-data/activealign/internal/config"
	"github.com/banshee-data/activealign/internal/imaging"
	"github.com/banshee-data/activealign/internal/monitoring"
	"github.com/banshee-data/activealign/internal/sfr"
)

var (
	// ErrNoPatterns is returned when the frame holds no chart pattern.
	ErrNoPatterns = errors.New("mtf: no patterns detected")
	// ErrBlackScreen is returned for a frame without usable contrast.
	ErrBlackScreen = errors.New("mtf: black screen detected")
)

// Camera grabs the frame to check.
type Camera interface {
	Capture(ctx context.Context) (image.Image, error)
}

// PatternDetector finds chart patterns in a frame.
type PatternDetector interface {
	Detect(img image.Image, maxIntensity uint8, minArea, maxArea float64) ([]imaging.Pattern, error)
}

var edgeNames = [4]string{"T", "R", "B", "L"}

// Result is the outcome of one gate check. Scores holds the edges of every
// labelled pattern by label name.
type Result struct {
	Passed  bool
	Reason  string
	Scores  map[string]sfr.Edges
	Metrics map[string]float64
}

// Gate checks one frame against the configured sharpness windows.
type Gate struct {
	cfg       *config.Config
	camera    Camera
	detector  PatternDetector
	extractor *sfr.Extractor
}

// NewGate returns a gate scoring windows with score.
func NewGate(cfg *config.Config, camera Camera, detector PatternDetector, score sfr.EdgeSharpnessFunc) *Gate {
	return &Gate{
		cfg:       cfg,
		camera:    camera,
		detector:  detector,
		extractor: sfr.NewExtractor(score, cfg.GetWindowSize(), cfg.GetMTFFrequency()),
	}
}

// Check grabs one frame and scores it. Out-of-window scores fail the
// result; capture and detection problems are returned as errors.
func (g *Gate) Check(ctx context.Context) (*Result, error) {
	img, err := g.camera.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("mtf: capture: %w", err)
	}
	img = imaging.Downsample(img, g.cfg.GetOversampling())
	if imaging.IsBlack(img, g.cfg.GetMinIntensityDiff()) {
		return nil, ErrBlackScreen
	}

	patterns, err := g.detector.Detect(img, g.cfg.GetMaxIntensity(), g.cfg.GetMinArea(), g.cfg.GetMaxArea())
	if err != nil {
		return nil, fmt.Errorf("mtf: detect: %w", err)
	}
	if len(patterns) == 0 {
		return nil, ErrNoPatterns
	}
	centers := make([]orb.Point, len(patterns))
	for i, p := range patterns {
		centers[i] = orb.Point{float64(p.Center.X), float64(p.Center.Y)}
	}
	b := img.Bounds()
	cls, err := chart.Classify(centers, orb.Point{float64(b.Min.X+b.Max.X) / 2, float64(b.Min.Y+b.Max.Y) / 2}, g.cfg.GetLayerThreshold())
	if err != nil {
		return nil, fmt.Errorf("mtf: %w", err)
	}

	res := &Result{Scores: map[string]sfr.Edges{}, Metrics: map[string]float64{}}
	for i, p := range patterns {
		e, err := g.extractor.Extract(ctx, img, p.Center, p.Area)
		if err != nil {
			return nil, fmt.Errorf("mtf: %s: %w", cls.Labels[i], err)
		}
		res.Scores[cls.Labels[i].String()] = e
	}

	res.Reason = g.evaluate(res, cls.Rings)
	res.Passed = res.Reason == ""
	if res.Passed {
		res.Reason = "passed"
	}
	monitoring.Logf("[mtf] %d patterns, %d rings: %s", len(patterns), cls.Rings, res.Reason)
	return res, nil
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

// evaluate fills the metrics and returns the first failure, or "".
func (g *Gate) evaluate(res *Result, rings int) string {
	var fail string
	check := func(key string, v, lo, hi float64) {
		res.Metrics[key] = round3(v)
		if fail == "" && (v < lo || v > hi) {
			fail = fmt.Sprintf("%s %.3f outside [%.3f, %.3f]", key, v, lo, hi)
		}
	}

	cc := res.Scores["CC"]
	lo, hi := g.cfg.GetMTFCCRange()
	for i, v := range cc.Values() {
		check("CC_"+edgeNames[i]+"_SFR", v, lo, hi)
	}
	lo, hi = g.cfg.GetMTFCCAvgRange()
	check("CC_SFR", cc.Weighted(g.cfg.EdgeWeight(0, "CC")), lo, hi)

	for ring := 1; ring <= rings; ring++ {
		elo, ehi := g.cfg.MTFLnRange(ring)
		alo, ahi := g.cfg.MTFLnAvgRange(ring)
		for _, q := range chart.Quadrants {
			l := chart.Label{Layer: ring, Quadrant: q}
			e := res.Scores[l.String()]
			for i, v := range e.Values() {
				check(fmt.Sprintf("%s_%s_SFR", l, edgeNames[i]), v, elo, ehi)
			}
			check(l.String()+"_SFR", e.Weighted(sfr.WeightFor(g.cfg, l)), alo, ahi)
		}
	}

	if rings > 0 {
		tol := g.cfg.GetSFRDevTol()
		for _, q := range chart.Quadrants {
			l := chart.Label{Layer: rings, Quadrant: q}
			check(q.String()+"_SFR_DEV", res.Scores[l.String()].Spread(), math.Inf(-1), tol)
		}
	}
	return fail
}
