package sim

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/activealign/internal/config"
	"github.com/banshee-data/activealign/internal/imaging"
	"github.com/banshee-data/activealign/internal/scan"
	"github.com/banshee-data/activealign/internal/sfr"
	"github.com/banshee-data/activealign/internal/stage"
	"github.com/banshee-data/activealign/internal/timeutil"
)

func ptr[T any](v T) *T { return &v }

type fixedStage struct{ pos stage.Point3D }

func (f *fixedStage) Position(context.Context) (stage.Point3D, error) { return f.pos, nil }

func centerScore(t *testing.T, img image.Image) float64 {
	t.Helper()
	patterns, err := imaging.BlobDetector{}.Detect(img, 100, 100, 20000)
	require.NoError(t, err)
	var cc imaging.Pattern
	for _, p := range patterns {
		if abs(p.Center.X-320) <= 1 && abs(p.Center.Y-240) <= 1 {
			cc = p
		}
	}
	require.NotZero(t, cc.Area, "center pattern not found")
	e, err := sfr.NewExtractor(imaging.GradientSharpness, 32, 8).Extract(context.Background(), img, cc.Center, cc.Area)
	require.NoError(t, err)
	return e.Mean()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestChartCamera_RendersAllPatterns(t *testing.T) {
	st := &fixedStage{pos: stage.Point3D{Z: 0.05}}
	cam := NewChartCamera(st, 0.05)

	img, err := cam.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 640, 480), img.Bounds())
	assert.False(t, imaging.IsBlack(img, 30))

	patterns, err := imaging.BlobDetector{}.Detect(img, 100, 100, 20000)
	require.NoError(t, err)
	assert.Len(t, patterns, 13)
	assert.Equal(t, 1, cam.Captures())
}

func TestChartCamera_BlurFollowsStage(t *testing.T) {
	st := &fixedStage{pos: stage.Point3D{Z: 0.05}}
	cam := NewChartCamera(st, 0.05)

	focused, err := cam.Capture(context.Background())
	require.NoError(t, err)
	st.pos.Z = 0.09
	blurred, err := cam.Capture(context.Background())
	require.NoError(t, err)

	sharp, soft := centerScore(t, focused), centerScore(t, blurred)
	assert.InDelta(t, 100, sharp, 1)
	assert.Less(t, soft, sharp/2)
}

type tiltStub struct{ a, b float64 }

func (s tiltStub) TiltAB() (float64, float64) { return s.a, s.b }

func TestChartCamera_AppliedTiltCancelsModuleTilt(t *testing.T) {
	st := &fixedStage{pos: stage.Point3D{Z: 0.05}}
	cam := NewChartCamera(st, 0.05)
	cam.TiltX = 0.2

	tilted, err := cam.Capture(context.Background())
	require.NoError(t, err)
	cam.SetTiltReader(tiltStub{a: 0.2})
	level, err := cam.Capture(context.Background())
	require.NoError(t, err)

	// The upper edge of the upper-right ring-3 corner, at ring radius 0.8 of
	// the half frame scaled by 0.9 and half a pattern side above its center:
	// about (320+230.4, 240-172.8-20).
	at := image.Pt(550, 48)
	diff := func(img image.Image) int {
		g := imaging.ToGray(img)
		return int(g.GrayAt(at.X, at.Y+3).Y) - int(g.GrayAt(at.X, at.Y-3).Y)
	}
	assert.Greater(t, abs(diff(level)), abs(diff(tilted)))
}

func TestChartCamera_RequiresStage(t *testing.T) {
	_, err := NewChartCamera(nil, 0).Capture(context.Background())
	assert.Error(t, err)
}

func TestStage_MovesAndReports(t *testing.T) {
	st := NewStage(stage.Point3D{})
	defer st.Close()
	ctx := context.Background()

	require.NoError(t, st.MoveTo(ctx, stage.AxisZ, 0.042))
	require.NoError(t, st.Tilt(ctx, 0.1, -0.2))

	pos, err := st.Position(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.042, pos.Z, 1e-9)
	a, b := st.TiltAB()
	assert.InDelta(t, 0.1, a, 1e-12)
	assert.InDelta(t, -0.2, b, 1e-12)
}

func writeFrame(t *testing.T, path string, v uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestReplay(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, filepath.Join(dir, "frame_002.png"), 2)
	writeFrame(t, filepath.Join(dir, "frame_001.png"), 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	r, err := NewReplay(dir, false)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	ctx := context.Background()
	for _, want := range []uint8{1, 2} {
		img, err := r.Capture(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, imaging.ToGray(img).Pix[0])
	}
	_, err = r.Capture(ctx)
	assert.ErrorIs(t, err, ErrReplayExhausted)

	looped, err := NewReplay(dir, true)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := looped.Capture(ctx)
		require.NoError(t, err)
	}

	_, err = NewReplay(t.TempDir(), false)
	assert.Error(t, err)
}

// A full cycle on simulated hardware: the fitted peak lands near the
// chart focus and every ring is complete.
func TestDevRig_ScanFindsFocus(t *testing.T) {
	const focus = 0.05
	st := NewStage(stage.Point3D{})
	defer st.Close()
	cam := NewChartCamera(st, focus)
	cam.SetTiltReader(st)

	cfg := config.EmptyConfig()
	cfg.ScanMode = ptr(config.ModeNormal)
	cfg.StartPos = ptr(0.0)
	cfg.StopPos = ptr(0.1)
	cfg.StepSizeUM = ptr(5.0)
	cfg.PositionChecking = ptr(false)

	runner, err := scan.NewRunner(cfg, scan.Hardware{
		Camera:    cam,
		Stage:     st,
		Detector:  imaging.BlobDetector{},
		Sharpness: imaging.GradientSharpness,
	}, scan.WithClock(timeutil.NewMockClock(timeutil.RealClock{}.Now())))
	require.NoError(t, err)

	d, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scan.StateAccepted, d.State)
	assert.InDelta(t, focus, d.CenterPeak, 0.01)
	assert.InDelta(t, focus, d.TargetZ, 0.01)
	for ring := 1; ring <= 3; ring++ {
		l, ok := d.Layer(ring)
		require.True(t, ok, "layer %d", ring)
		assert.True(t, l.Complete, "layer %d", ring)
	}
	assert.InDelta(t, d.TargetZ, st.Emulator.Position().Z, 1e-4)
}
