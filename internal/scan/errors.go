package scan

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrFrameCaptureFailure is returned when the camera fails to deliver a frame.
	ErrFrameCaptureFailure = errors.New("scan: frame capture failure")
	// ErrBlackScreenDetected aborts a scan on a frame with no usable contrast.
	ErrBlackScreenDetected = errors.New("scan: black screen detected")
	// ErrLayerIncomplete is returned when a ring has between one and three
	// fitted corners.
	ErrLayerIncomplete = errors.New("scan: layer incomplete")
	// ErrTargetOutOfRange is returned when the dfov estimate lands past the
	// stop position.
	ErrTargetOutOfRange = errors.New("scan: target out of range")
	// ErrNoCenter is returned when the center pattern never produced a
	// usable curve.
	ErrNoCenter = errors.New("scan: center pattern missing")
)

// ToleranceViolation describes the first decision metric that fell
// outside its window. It rejects the unit rather than faulting the scan.
type ToleranceViolation struct {
	Metric string
	Value  float64
	Min    float64
	Max    float64
}

func (v *ToleranceViolation) Error() string {
	switch {
	case math.IsInf(v.Min, -1):
		return fmt.Sprintf("%s %.3f exceeds max %.3f", v.Metric, v.Value, v.Max)
	case math.IsInf(v.Max, 1):
		return fmt.Sprintf("%s %.3f below min %.3f", v.Metric, v.Value, v.Min)
	}
	return fmt.Sprintf("%s %.3f outside [%.3f, %.3f]", v.Metric, v.Value, v.Min, v.Max)
}

// MarshalJSON omits the open side of one-sided limits.
func (v *ToleranceViolation) MarshalJSON() ([]byte, error) {
	out := struct {
		Metric string   `json:"metric"`
		Value  float64  `json:"value"`
		Min    *float64 `json:"min,omitempty"`
		Max    *float64 `json:"max,omitempty"`
	}{Metric: v.Metric, Value: v.Value}
	if !math.IsInf(v.Min, 0) {
		out.Min = &v.Min
	}
	if !math.IsInf(v.Max, 0) {
		out.Max = &v.Max
	}
	return json.Marshal(out)
}

func checkWindow(metric string, value, min, max float64) *ToleranceViolation {
	if value < min || value > max {
		return &ToleranceViolation{Metric: metric, Value: value, Min: min, Max: max}
	}
	return nil
}
