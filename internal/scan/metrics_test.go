package scan

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeakDev(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single", []float64{0.02}, 0},
		{"rising", []float64{0.01, 0.02}, -10},
		{"falling", []float64{0.02, 0.01}, 10},
		{"max last to move", []float64{0.02, 0.01, 0.03}, -20},
		{"min last to move", []float64{0.02, 0.03, 0.01}, 20},
		{"equal", []float64{0.02, 0.02, 0.02}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, PeakDev(tc.values...), 1e-9)
		})
	}
}

func TestMapTilt(t *testing.T) {
	tests := []struct {
		rel  int
		a, b float64
	}{
		{0, 1, 2},
		{1, 1, -2},
		{2, -1, 2},
		{3, -1, -2},
		{4, 2, 1},
		{5, 2, -1},
		{6, -2, 1},
		{7, -2, -1},
	}
	for _, tc := range tests {
		a, b := MapTilt(1, 2, tc.rel)
		assert.Equal(t, tc.a, a, "relationship %d a", tc.rel)
		assert.Equal(t, tc.b, b, "relationship %d b", tc.rel)
	}
}

func TestMetricsRounding(t *testing.T) {
	m := Metrics{}
	m.Set("Z_PEAK_um", 20.12345)
	m.Set("neg", -0.0006)
	m.SetBool("detectedAbnormality_CC", true)
	m.SetBool("detectedAbnormality_L1_UL", false)

	assert.Equal(t, 20.123, m["Z_PEAK_um"])
	assert.Equal(t, -0.001, m["neg"])
	assert.Equal(t, 1.0, m["detectedAbnormality_CC"])
	assert.Equal(t, 0.0, m["detectedAbnormality_L1_UL"])
}

func TestToleranceViolation_Error(t *testing.T) {
	v := &ToleranceViolation{Metric: "L1_DEV_um", Value: 5, Min: math.Inf(-1), Max: 1}
	assert.Equal(t, "L1_DEV_um 5.000 exceeds max 1.000", v.Error())

	v = &ToleranceViolation{Metric: "PEAK_BOUNDARY_DIST_mm", Value: 0, Min: 0.001, Max: math.Inf(1)}
	assert.Equal(t, "PEAK_BOUNDARY_DIST_mm 0.000 below min 0.001", v.Error())

	v = checkWindow("Z_PEAK_DEV_um", 40, -30, 30)
	if assert.NotNil(t, v) {
		assert.Equal(t, "Z_PEAK_DEV_um 40.000 outside [-30.000, 30.000]", v.Error())
	}
	assert.Nil(t, checkWindow("Z_PEAK_DEV_um", 30, -30, 30))
}

func TestToleranceViolation_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(&ToleranceViolation{Metric: "L1_DEV_um", Value: 5, Min: math.Inf(-1), Max: 1})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"metric":"L1_DEV_um","value":5,"max":1}`, string(b))

	m := Metrics{}
	m.Set("bad", math.NaN())
	m.Set("inf", math.Inf(1))
	assert.Empty(t, m)
}

func TestTiltAverager(t *testing.T) {
	avg := NewTiltAverager(2)
	_, _, n := avg.Average()
	assert.Equal(t, 0, n)

	avg.Add(1, 10)
	avg.Add(3, 30)
	avg.Add(5, 50)
	a, b, n := avg.Average()
	assert.Equal(t, 2, n)
	assert.Equal(t, 4.0, a)
	assert.Equal(t, 40.0, b)

	avg.Reset()
	_, _, n = avg.Average()
	assert.Equal(t, 0, n)

	off := NewTiltAverager(0)
	off.Add(1, 1)
	_, _, n = off.Average()
	assert.Equal(t, 0, n)
}

func TestNormalPositions(t *testing.T) {
	got := NormalPositions(0, 0.05, 0.01)
	if assert.Len(t, got, 5) {
		assert.InDelta(t, 0.04, got[4], 1e-12)
	}

	down := NormalPositions(0.1, 0.06, 0.01)
	if assert.Len(t, down, 4) {
		assert.InDelta(t, 0.07, down[3], 1e-12)
	}

	assert.Empty(t, NormalPositions(0, 0.05, 0))
	assert.Len(t, NormalPositions(0, 0.1, 0.01), 10)
}

func TestDFOVTarget(t *testing.T) {
	// 2 degrees short of the expected FOV on a -10 deg/mm slope is 0.2 mm.
	assert.InDelta(t, 0.25, DFOVTarget(62, 60, -10, 0, 0.05), 1e-12)
}
