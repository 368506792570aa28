package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyConfig()

	assert.Equal(t, ModeNormal, cfg.GetScanMode())
	assert.InDelta(t, 0.01, cfg.GetStepSize(), 1e-12)
	assert.Equal(t, 10, cfg.GetImageCount())
	assert.Equal(t, 50*time.Millisecond, cfg.GetSettleDelay())
	assert.Equal(t, 10*time.Second, cfg.GetAggregationTimeout())
	assert.Equal(t, 3, cfg.GetFitOrder())
	assert.Equal(t, -4.0, cfg.GetAbnormalityThreshold())
	assert.Equal(t, 0.1, cfg.GetLayerThreshold())
	assert.Equal(t, 32, cfg.GetWindowSize())
	assert.True(t, cfg.GetPositionChecking())
	assert.True(t, cfg.GetMoveToPeak())
	assert.False(t, cfg.GetEnableTilt())
	assert.Equal(t, 100.0, cfg.GetSFRDevTol())

	min, max := cfg.GetZPeakDevRange()
	assert.Equal(t, -30.0, min)
	assert.Equal(t, 30.0, max)

	_, _, ok := cfg.CCLnDevRange(1)
	assert.False(t, ok, "no per-ring window configured")

	_, enabled := cfg.ZPeakCoefficientsEnabled()
	assert.False(t, enabled)
}

func TestLoadConfigJSON(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "station.json")
	data := `{
  "scan_mode": "dfov",
  "step_size_um": 5,
  "settle_delay": "120ms",
  "cc_ln_dev_min": [-10, -12],
  "cc_ln_dev_max": [10, 12],
  "edge_weights": {"L2_UR": [0.1, 0.2, 0.3, 0.4]}
}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ModeDFOV, cfg.GetScanMode())
	assert.InDelta(t, 0.005, cfg.GetStepSize(), 1e-12)
	assert.Equal(t, 120*time.Millisecond, cfg.GetSettleDelay())

	min, max, ok := cfg.CCLnDevRange(2)
	require.True(t, ok)
	assert.Equal(t, -12.0, min)
	assert.Equal(t, 12.0, max)
	_, _, ok = cfg.CCLnDevRange(3)
	assert.False(t, ok)

	assert.Equal(t, [4]float64{0.1, 0.2, 0.3, 0.4}, cfg.EdgeWeight(2, "UR"))
	assert.Equal(t, [4]float64{0.25, 0.25, 0.25, 0.25}, cfg.EdgeWeight(1, "UR"))
}

func TestLoadConfigYAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "station.yaml")
	data := `scan_mode: stationary
offset_um: 15
image_count: 6
tilt_relationship: 5
zpeak_coefficient_enabled: true
zpeak_coefficients: [0.5, 0.5, 0, 0]
edge_weights:
  UL: [0.4, 0.1, 0.4, 0.1]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ModeStationary, cfg.GetScanMode())
	assert.InDelta(t, 0.015, cfg.GetOffset(), 1e-12)
	assert.Equal(t, 6, cfg.GetImageCount())
	assert.Equal(t, 5, cfg.GetTiltRelationship())

	coeffs, enabled := cfg.ZPeakCoefficientsEnabled()
	assert.True(t, enabled)
	assert.Equal(t, [4]float64{0.5, 0.5, 0, 0}, coeffs)

	// Quadrant-only keys apply to every ring.
	assert.Equal(t, [4]float64{0.4, 0.1, 0.4, 0.1}, cfg.EdgeWeight(3, "UL"))
}

func TestLoadConfigRejects(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		file string
		body string
	}{
		{"bad extension", "cfg.toml", "scan_mode = 'normal'"},
		{"bad mode", "mode.json", `{"scan_mode": "spiral"}`},
		{"zero step", "step.json", `{"step_size_um": 0}`},
		{"bad duration", "dur.json", `{"settle_delay": "soon"}`},
		{"short weights", "w.json", `{"edge_weights": {"CC": [1, 2]}}`},
		{"tilt relationship", "tilt.yaml", "tilt_relationship: 9\n"},
		{"layer threshold", "lt.json", `{"layer_threshold": 1.5}`},
		{"area order", "area.json", `{"min_area": 500, "max_area": 100}`},
		{"malformed json", "bad.json", `{"scan_mode": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigRejectsLargeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "large.json")
	require.NoError(t, os.WriteFile(path, make([]byte, 2*1024*1024), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestGetDurationsFallBack(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
		want time.Duration
	}{
		{"explicit", &Config{SettleDelay: ptrString("1s")}, time.Second},
		{"nil pointer returns default", &Config{}, 50 * time.Millisecond},
		{"empty string returns default", &Config{SettleDelay: ptrString("")}, 50 * time.Millisecond},
		{"invalid duration returns default", &Config{SettleDelay: ptrString("later")}, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetSettleDelay(); got != tt.want {
				t.Errorf("GetSettleDelay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestZPeakCoefficientsRequirePositiveSum(t *testing.T) {
	cfg := &Config{
		ZPeakCoefficientEnabled: ptrBool(true),
		ZPeakCoefficients:       []float64{0, 0, 0, 0},
	}
	_, enabled := cfg.ZPeakCoefficientsEnabled()
	assert.False(t, enabled)
}

func TestMTFRanges(t *testing.T) {
	cfg := &Config{
		MTFCCMin:    ptrFloat64(30),
		MTFLnMin:    []float64{25, 20},
		MTFLnAvgMax: []float64{90},
	}
	min, max := cfg.GetMTFCCRange()
	assert.Equal(t, 30.0, min)
	assert.Equal(t, 100.0, max)

	min, _ = cfg.MTFLnRange(2)
	assert.Equal(t, 20.0, min)
	min, _ = cfg.MTFLnRange(3)
	assert.Equal(t, 0.0, min)

	_, max = cfg.MTFLnAvgRange(1)
	assert.Equal(t, 90.0, max)
	assert.Equal(t, 8, (&Config{MTFFrequency: ptrInt(8)}).GetMTFFrequency())
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	assert.Equal(t, ModeNormal, cfg.GetScanMode())
	assert.Equal(t, 3, cfg.GetExpectedRings())
	diag, ok := cfg.DiagDiffMaxFor(3)
	require.True(t, ok)
	assert.Equal(t, 25.0, diag)
	assert.Equal(t, "aa-01", cfg.GetStationID())
}
