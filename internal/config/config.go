package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical station defaults file.
const DefaultConfigPath = "config/aa.defaults.json"

// Scan modes.
const (
	ModeNormal     = "normal"
	ModeDFOV       = "dfov"
	ModeStationary = "stationary"
	ModeXScan      = "xscan"
)

// Config is the root configuration of one active-alignment station. Every
// scalar is a pointer so partial JSON or YAML files leave unset fields to the
// Get* defaults. Per-ring slices are indexed from ring 1 (index 0 is L1).
type Config struct {
	// Scan plan
	ScanMode           *string  `json:"scan_mode,omitempty" yaml:"scan_mode,omitempty"`
	StartPos           *float64 `json:"start_pos,omitempty" yaml:"start_pos,omitempty"` // mm
	StopPos            *float64 `json:"stop_pos,omitempty" yaml:"stop_pos,omitempty"`   // mm
	StepSizeUM         *float64 `json:"step_size_um,omitempty" yaml:"step_size_um,omitempty"`
	ImageCount         *int     `json:"image_count,omitempty" yaml:"image_count,omitempty"`
	OffsetUM           *float64 `json:"offset_um,omitempty" yaml:"offset_um,omitempty"`
	SettleDelay        *string  `json:"settle_delay,omitempty" yaml:"settle_delay,omitempty"` // duration string like "50ms"
	AggregationTimeout *string  `json:"aggregation_timeout,omitempty" yaml:"aggregation_timeout,omitempty"`
	Oversampling       *int     `json:"oversampling,omitempty" yaml:"oversampling,omitempty"`
	MTFFrequency       *int     `json:"mtf_frequency,omitempty" yaml:"mtf_frequency,omitempty"`
	FrameWorkers       *int     `json:"frame_workers,omitempty" yaml:"frame_workers,omitempty"`
	EnableTilt         *bool    `json:"enable_tilt,omitempty" yaml:"enable_tilt,omitempty"`
	PositionChecking   *bool    `json:"position_checking,omitempty" yaml:"position_checking,omitempty"`
	MoveToPeak         *bool    `json:"move_to_peak,omitempty" yaml:"move_to_peak,omitempty"`

	// Curve fitting
	FitOrder             *int     `json:"fit_order,omitempty" yaml:"fit_order,omitempty"`
	AbnormalityThreshold *float64 `json:"abnormality_threshold,omitempty" yaml:"abnormality_threshold,omitempty"`

	// Chart detection
	LayerThreshold   *float64 `json:"layer_threshold,omitempty" yaml:"layer_threshold,omitempty"`
	ExpectedRings    *int     `json:"expected_rings,omitempty" yaml:"expected_rings,omitempty"`
	MaxIntensity     *int     `json:"max_intensity,omitempty" yaml:"max_intensity,omitempty"`
	MinArea          *float64 `json:"min_area,omitempty" yaml:"min_area,omitempty"`
	MaxArea          *float64 `json:"max_area,omitempty" yaml:"max_area,omitempty"`
	WindowSize       *int     `json:"window_size,omitempty" yaml:"window_size,omitempty"`
	MinIntensityDiff *int     `json:"min_intensity_diff,omitempty" yaml:"min_intensity_diff,omitempty"`

	// Optics
	PixelPerMMX       *float64 `json:"pixel_per_mm_x,omitempty" yaml:"pixel_per_mm_x,omitempty"`
	PixelPerMMY       *float64 `json:"pixel_per_mm_y,omitempty" yaml:"pixel_per_mm_y,omitempty"`
	EFLMM             *float64 `json:"efl_mm,omitempty" yaml:"efl_mm,omitempty"`
	EstimatedAAFOV    *float64 `json:"estimated_aa_fov,omitempty" yaml:"estimated_aa_fov,omitempty"`
	EstimatedFOVSlope *float64 `json:"estimated_fov_slope,omitempty" yaml:"estimated_fov_slope,omitempty"`

	// EdgeWeights maps "CC", "UL" or "L1_UL" style keys to a
	// (top, right, bottom, left) weight tuple.
	EdgeWeights map[string][]float64 `json:"edge_weights,omitempty" yaml:"edge_weights,omitempty"`

	// Decision
	PeakProfile             *int      `json:"peak_profile,omitempty" yaml:"peak_profile,omitempty"`
	ZPeakCoefficientEnabled *bool     `json:"zpeak_coefficient_enabled,omitempty" yaml:"zpeak_coefficient_enabled,omitempty"`
	ZPeakCoefficients       []float64 `json:"zpeak_coefficients,omitempty" yaml:"zpeak_coefficients,omitempty"` // cc, l1, l2, l3
	TiltLayer               *int      `json:"tilt_layer,omitempty" yaml:"tilt_layer,omitempty"`                 // 0 selects the outermost complete ring
	TiltRelationship        *int      `json:"tilt_relationship,omitempty" yaml:"tilt_relationship,omitempty"`
	DynamicTiltWindow       *int      `json:"dynamic_tilt_window,omitempty" yaml:"dynamic_tilt_window,omitempty"`

	// Tolerances, all in µm
	ZPeakDevMin  *float64  `json:"zpeak_dev_min,omitempty" yaml:"zpeak_dev_min,omitempty"`
	ZPeakDevMax  *float64  `json:"zpeak_dev_max,omitempty" yaml:"zpeak_dev_max,omitempty"`
	CCLnDevMin   []float64 `json:"cc_ln_dev_min,omitempty" yaml:"cc_ln_dev_min,omitempty"`
	CCLnDevMax   []float64 `json:"cc_ln_dev_max,omitempty" yaml:"cc_ln_dev_max,omitempty"`
	DiagDiffMax  []float64 `json:"diag_diff_max,omitempty" yaml:"diag_diff_max,omitempty"`
	CornerDevMax []float64 `json:"corner_dev_max,omitempty" yaml:"corner_dev_max,omitempty"`

	// Single-frame MTF gate
	MTFCCMin    *float64  `json:"mtf_cc_min,omitempty" yaml:"mtf_cc_min,omitempty"`
	MTFCCMax    *float64  `json:"mtf_cc_max,omitempty" yaml:"mtf_cc_max,omitempty"`
	MTFCCAvgMin *float64  `json:"mtf_cc_avg_min,omitempty" yaml:"mtf_cc_avg_min,omitempty"`
	MTFCCAvgMax *float64  `json:"mtf_cc_avg_max,omitempty" yaml:"mtf_cc_avg_max,omitempty"`
	MTFLnMin    []float64 `json:"mtf_ln_min,omitempty" yaml:"mtf_ln_min,omitempty"`
	MTFLnMax    []float64 `json:"mtf_ln_max,omitempty" yaml:"mtf_ln_max,omitempty"`
	MTFLnAvgMin []float64 `json:"mtf_ln_avg_min,omitempty" yaml:"mtf_ln_avg_min,omitempty"`
	MTFLnAvgMax []float64 `json:"mtf_ln_avg_max,omitempty" yaml:"mtf_ln_avg_max,omitempty"`
	SFRDevTol   *float64  `json:"sfr_dev_tol,omitempty" yaml:"sfr_dev_tol,omitempty"`

	// Stage serial port
	StagePort     *string `json:"stage_port,omitempty" yaml:"stage_port,omitempty"`
	StageBaudRate *int    `json:"stage_baud_rate,omitempty" yaml:"stage_baud_rate,omitempty"`
	StageDataBits *int    `json:"stage_data_bits,omitempty" yaml:"stage_data_bits,omitempty"`
	StageStopBits *int    `json:"stage_stop_bits,omitempty" yaml:"stage_stop_bits,omitempty"`
	StageParity   *string `json:"stage_parity,omitempty" yaml:"stage_parity,omitempty"`

	// Telemetry
	MQTTTopicPrefix *string `json:"mqtt_topic_prefix,omitempty" yaml:"mqtt_topic_prefix,omitempty"`
	StationID       *string `json:"station_id,omitempty" yaml:"station_id,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns a Config with all fields unset.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig loads a Config from a .json, .yaml or .yml file no larger
// than 1MB. Fields omitted from the file fall back to their Get* defaults.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or one of its parents. Panics if the file cannot be loaded, intended for
// test setup.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.ScanMode != nil {
		switch *c.ScanMode {
		case ModeNormal, ModeDFOV, ModeStationary, ModeXScan:
		default:
			return fmt.Errorf("scan_mode must be one of normal, dfov, stationary, xscan, got %q", *c.ScanMode)
		}
	}
	if c.StepSizeUM != nil && *c.StepSizeUM <= 0 {
		return fmt.Errorf("step_size_um must be positive, got %f", *c.StepSizeUM)
	}
	if c.ImageCount != nil && *c.ImageCount < 1 {
		return fmt.Errorf("image_count must be at least 1, got %d", *c.ImageCount)
	}
	for name, v := range map[string]*string{
		"settle_delay":        c.SettleDelay,
		"aggregation_timeout": c.AggregationTimeout,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}
	if c.Oversampling != nil && *c.Oversampling < 1 {
		return fmt.Errorf("oversampling must be at least 1, got %d", *c.Oversampling)
	}
	if c.FrameWorkers != nil && *c.FrameWorkers < 1 {
		return fmt.Errorf("frame_workers must be at least 1, got %d", *c.FrameWorkers)
	}
	if c.FitOrder != nil && (*c.FitOrder < 1 || *c.FitOrder > 10) {
		return fmt.Errorf("fit_order must be between 1 and 10, got %d", *c.FitOrder)
	}
	if c.LayerThreshold != nil && (*c.LayerThreshold <= 0 || *c.LayerThreshold >= 1) {
		return fmt.Errorf("layer_threshold must be between 0 and 1, got %f", *c.LayerThreshold)
	}
	if c.ExpectedRings != nil && *c.ExpectedRings < 1 {
		return fmt.Errorf("expected_rings must be at least 1, got %d", *c.ExpectedRings)
	}
	if c.MaxIntensity != nil && (*c.MaxIntensity < 0 || *c.MaxIntensity > 255) {
		return fmt.Errorf("max_intensity must be between 0 and 255, got %d", *c.MaxIntensity)
	}
	if c.WindowSize != nil && *c.WindowSize < 4 {
		return fmt.Errorf("window_size must be at least 4, got %d", *c.WindowSize)
	}
	if c.GetMinArea() > c.GetMaxArea() {
		return fmt.Errorf("min_area %f exceeds max_area %f", c.GetMinArea(), c.GetMaxArea())
	}
	if c.EFLMM != nil && *c.EFLMM <= 0 {
		return fmt.Errorf("efl_mm must be positive, got %f", *c.EFLMM)
	}
	if c.EstimatedFOVSlope != nil && *c.EstimatedFOVSlope == 0 {
		return fmt.Errorf("estimated_fov_slope must be non-zero")
	}
	for key, w := range c.EdgeWeights {
		if len(w) != 4 {
			return fmt.Errorf("edge_weights[%s] must have 4 values, got %d", key, len(w))
		}
	}
	if c.PeakProfile != nil && (*c.PeakProfile < 0 || *c.PeakProfile > 3) {
		return fmt.Errorf("peak_profile must be between 0 and 3, got %d", *c.PeakProfile)
	}
	if c.ZPeakCoefficients != nil && len(c.ZPeakCoefficients) != 4 {
		return fmt.Errorf("zpeak_coefficients must have 4 values, got %d", len(c.ZPeakCoefficients))
	}
	if c.TiltRelationship != nil && (*c.TiltRelationship < 0 || *c.TiltRelationship > 7) {
		return fmt.Errorf("tilt_relationship must be between 0 and 7, got %d", *c.TiltRelationship)
	}
	if c.TiltLayer != nil && *c.TiltLayer < 0 {
		return fmt.Errorf("tilt_layer must be non-negative, got %d", *c.TiltLayer)
	}
	if c.DynamicTiltWindow != nil && *c.DynamicTiltWindow < 0 {
		return fmt.Errorf("dynamic_tilt_window must be non-negative, got %d", *c.DynamicTiltWindow)
	}
	if min, max := c.GetZPeakDevRange(); min > max {
		return fmt.Errorf("zpeak_dev_min %f exceeds zpeak_dev_max %f", min, max)
	}
	return nil
}

func parseDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// ringValue returns the per-ring entry for ring n (1-based).
func ringValue(values []float64, ring int) (float64, bool) {
	if ring < 1 || ring > len(values) {
		return 0, false
	}
	return values[ring-1], true
}

// GetScanMode returns the scan mode or "normal".
func (c *Config) GetScanMode() string {
	if c.ScanMode == nil || *c.ScanMode == "" {
		return ModeNormal
	}
	return *c.ScanMode
}

// GetStartPos returns the scan start position in mm.
func (c *Config) GetStartPos() float64 {
	if c.StartPos == nil {
		return 0
	}
	return *c.StartPos
}

// GetStopPos returns the scan stop position in mm.
func (c *Config) GetStopPos() float64 {
	if c.StopPos == nil {
		return 0.1
	}
	return *c.StopPos
}

// GetStepSize returns the scan step in mm.
func (c *Config) GetStepSize() float64 {
	if c.StepSizeUM == nil {
		return 0.01
	}
	return *c.StepSizeUM / 1000
}

func (c *Config) GetImageCount() int {
	if c.ImageCount == nil {
		return 10
	}
	return *c.ImageCount
}

// GetOffset returns the dfov/stationary offset in mm.
func (c *Config) GetOffset() float64 {
	if c.OffsetUM == nil {
		return 0
	}
	return *c.OffsetUM / 1000
}

func (c *Config) GetSettleDelay() time.Duration {
	return parseDuration(c.SettleDelay, 50*time.Millisecond)
}

func (c *Config) GetAggregationTimeout() time.Duration {
	return parseDuration(c.AggregationTimeout, 10*time.Second)
}

func (c *Config) GetOversampling() int {
	if c.Oversampling == nil {
		return 1
	}
	return *c.Oversampling
}

func (c *Config) GetMTFFrequency() int {
	if c.MTFFrequency == nil {
		return 8
	}
	return *c.MTFFrequency
}

func (c *Config) GetFrameWorkers() int {
	if c.FrameWorkers == nil {
		return 4
	}
	return *c.FrameWorkers
}

func (c *Config) GetEnableTilt() bool {
	if c.EnableTilt == nil {
		return false
	}
	return *c.EnableTilt
}

func (c *Config) GetPositionChecking() bool {
	if c.PositionChecking == nil {
		return true
	}
	return *c.PositionChecking
}

func (c *Config) GetMoveToPeak() bool {
	if c.MoveToPeak == nil {
		return true
	}
	return *c.MoveToPeak
}

func (c *Config) GetFitOrder() int {
	if c.FitOrder == nil {
		return 3
	}
	return *c.FitOrder
}

func (c *Config) GetAbnormalityThreshold() float64 {
	if c.AbnormalityThreshold == nil {
		return -4
	}
	return *c.AbnormalityThreshold
}

func (c *Config) GetLayerThreshold() float64 {
	if c.LayerThreshold == nil {
		return 0.1
	}
	return *c.LayerThreshold
}

func (c *Config) GetExpectedRings() int {
	if c.ExpectedRings == nil {
		return 3
	}
	return *c.ExpectedRings
}

// GetMaxIntensity is the darkest-pixel cutoff for pattern blobs.
func (c *Config) GetMaxIntensity() uint8 {
	if c.MaxIntensity == nil {
		return 100
	}
	return uint8(*c.MaxIntensity)
}

func (c *Config) GetMinArea() float64 {
	if c.MinArea == nil {
		return 100
	}
	return *c.MinArea
}

func (c *Config) GetMaxArea() float64 {
	if c.MaxArea == nil {
		return 20000
	}
	return *c.MaxArea
}

func (c *Config) GetWindowSize() int {
	if c.WindowSize == nil {
		return 32
	}
	return *c.WindowSize
}

// GetMinIntensityDiff is the minimum max-min spread of a frame before it is
// treated as a black screen.
func (c *Config) GetMinIntensityDiff() int {
	if c.MinIntensityDiff == nil {
		return 30
	}
	return *c.MinIntensityDiff
}

func (c *Config) GetPixelPerMMX() float64 {
	if c.PixelPerMMX == nil {
		return 357.14
	}
	return *c.PixelPerMMX
}

func (c *Config) GetPixelPerMMY() float64 {
	if c.PixelPerMMY == nil {
		return 357.14
	}
	return *c.PixelPerMMY
}

func (c *Config) GetEFL() float64 {
	if c.EFLMM == nil {
		return 4.0
	}
	return *c.EFLMM
}

func (c *Config) GetEstimatedAAFOV() float64 {
	if c.EstimatedAAFOV == nil {
		return 60
	}
	return *c.EstimatedAAFOV
}

func (c *Config) GetEstimatedFOVSlope() float64 {
	if c.EstimatedFOVSlope == nil {
		return -10
	}
	return *c.EstimatedFOVSlope
}

// EdgeWeight returns the (top, right, bottom, left) weights for a pattern.
// Lookup order is "L{layer}_{quadrant}", then "{quadrant}", then an even
// 0.25 split. The center pattern uses quadrant "CC" and layer 0.
func (c *Config) EdgeWeight(layer int, quadrant string) [4]float64 {
	keys := []string{quadrant}
	if layer > 0 {
		keys = []string{fmt.Sprintf("L%d_%s", layer, quadrant), quadrant}
	}
	for _, k := range keys {
		if w, ok := c.EdgeWeights[k]; ok && len(w) == 4 {
			return [4]float64{w[0], w[1], w[2], w[3]}
		}
	}
	return [4]float64{0.25, 0.25, 0.25, 0.25}
}

func (c *Config) GetPeakProfile() int {
	if c.PeakProfile == nil {
		return 0
	}
	return *c.PeakProfile
}

// ZPeakCoefficientsEnabled returns the (cc, l1, l2, l3) weights used to blend
// layer peaks into the target Z, and whether blending applies.
func (c *Config) ZPeakCoefficientsEnabled() ([4]float64, bool) {
	var out [4]float64
	if c.ZPeakCoefficientEnabled == nil || !*c.ZPeakCoefficientEnabled || len(c.ZPeakCoefficients) != 4 {
		return out, false
	}
	sum := 0.0
	for i, v := range c.ZPeakCoefficients {
		out[i] = v
		sum += v
	}
	return out, sum > 0
}

func (c *Config) GetTiltLayer() int {
	if c.TiltLayer == nil {
		return 0
	}
	return *c.TiltLayer
}

func (c *Config) GetTiltRelationship() int {
	if c.TiltRelationship == nil {
		return 0
	}
	return *c.TiltRelationship
}

func (c *Config) GetDynamicTiltWindow() int {
	if c.DynamicTiltWindow == nil {
		return 0
	}
	return *c.DynamicTiltWindow
}

// GetZPeakDevRange returns the allowed overall peak deviation window in µm.
func (c *Config) GetZPeakDevRange() (min, max float64) {
	min, max = -30, 30
	if c.ZPeakDevMin != nil {
		min = *c.ZPeakDevMin
	}
	if c.ZPeakDevMax != nil {
		max = *c.ZPeakDevMax
	}
	return min, max
}

// CCLnDevRange returns the center-to-ring deviation window for ring n.
// ok is false when the ring has no configured window.
func (c *Config) CCLnDevRange(ring int) (min, max float64, ok bool) {
	min, okMin := ringValue(c.CCLnDevMin, ring)
	max, okMax := ringValue(c.CCLnDevMax, ring)
	return min, max, okMin && okMax
}

func (c *Config) DiagDiffMaxFor(ring int) (float64, bool) {
	return ringValue(c.DiagDiffMax, ring)
}

func (c *Config) CornerDevMaxFor(ring int) (float64, bool) {
	return ringValue(c.CornerDevMax, ring)
}

// GetMTFCCRange returns the window every center edge score must fall in.
func (c *Config) GetMTFCCRange() (min, max float64) {
	min, max = 0, 100
	if c.MTFCCMin != nil {
		min = *c.MTFCCMin
	}
	if c.MTFCCMax != nil {
		max = *c.MTFCCMax
	}
	return min, max
}

func (c *Config) GetMTFCCAvgRange() (min, max float64) {
	min, max = 0, 100
	if c.MTFCCAvgMin != nil {
		min = *c.MTFCCAvgMin
	}
	if c.MTFCCAvgMax != nil {
		max = *c.MTFCCAvgMax
	}
	return min, max
}

// MTFLnRange returns the per-edge window for ring n, defaulting to [0, 100].
func (c *Config) MTFLnRange(ring int) (min, max float64) {
	min, max = 0, 100
	if v, ok := ringValue(c.MTFLnMin, ring); ok {
		min = v
	}
	if v, ok := ringValue(c.MTFLnMax, ring); ok {
		max = v
	}
	return min, max
}

func (c *Config) MTFLnAvgRange(ring int) (min, max float64) {
	min, max = 0, 100
	if v, ok := ringValue(c.MTFLnAvgMin, ring); ok {
		min = v
	}
	if v, ok := ringValue(c.MTFLnAvgMax, ring); ok {
		max = v
	}
	return min, max
}

func (c *Config) GetSFRDevTol() float64 {
	if c.SFRDevTol == nil {
		return 100
	}
	return *c.SFRDevTol
}

func (c *Config) GetStagePort() string {
	if c.StagePort == nil {
		return "/dev/ttyUSB0"
	}
	return *c.StagePort
}

func (c *Config) GetStageBaudRate() int {
	if c.StageBaudRate == nil {
		return 115200
	}
	return *c.StageBaudRate
}

func (c *Config) GetStageDataBits() int {
	if c.StageDataBits == nil {
		return 8
	}
	return *c.StageDataBits
}

func (c *Config) GetStageStopBits() int {
	if c.StageStopBits == nil {
		return 1
	}
	return *c.StageStopBits
}

func (c *Config) GetStageParity() string {
	if c.StageParity == nil {
		return "N"
	}
	return *c.StageParity
}

func (c *Config) GetMQTTTopicPrefix() string {
	if c.MQTTTopicPrefix == nil || *c.MQTTTopicPrefix == "" {
		return "activealign"
	}
	return *c.MQTTTopicPrefix
}

func (c *Config) GetStationID() string {
	if c.StationID == nil || *c.StationID == "" {
		return "aa-01"
	}
	return *c.StationID
}
