package scan

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/banshee-data/activealign/internal/chart"
	"github.com/banshee-data/activealign/internal/curvefit"
)

// State is a step of the alignment state machine.
type State string

const (
	StateIdle        State = "idle"
	StateScanning    State = "scanning"
	StateAggregating State = "aggregating"
	StateFitting     State = "fitting"
	StateDeciding    State = "deciding"
	StateAccepted    State = "accepted"
	StateRejected    State = "rejected"
	StateFaulted     State = "faulted"
)

// Terminal reports whether the state ends a cycle.
func (s State) Terminal() bool {
	return s == StateAccepted || s == StateRejected || s == StateFaulted
}

// ROIResult is the fitted focus curve of one chart pattern. Positions and
// peaks are absolute stage coordinates.
type ROIResult struct {
	ROI       int         `json:"roi"`
	Label     chart.Label `json:"-"`
	Name      string      `json:"name"`
	Positions []float64   `json:"positions"`
	Scores    []float64   `json:"scores"`
	Fitted    []float64   `json:"fitted"`
	Peak      float64     `json:"peak"`
	PeakScore float64     `json:"peak_score"`
	// EdgePeaks is in top, right, bottom, left order.
	EdgePeaks [4]float64 `json:"edge_peaks"`
	CornerDev float64    `json:"corner_dev_um"`
	// Center is the mean pattern position in full-resolution pixels.
	Center orb.Point        `json:"center"`
	Fit    *curvefit.Result `json:"-"`
}

// LayerResult summarises one chart ring. Layer 0 is the center pattern.
type LayerResult struct {
	Layer    int     `json:"layer"`
	Complete bool    `json:"complete"`
	Corners  int     `json:"corners"`
	Peak     float64 `json:"peak"`
	Dev      float64 `json:"dev_um"`
	DiagDiff float64 `json:"diag_diff_um"`
	TiltX    float64 `json:"tilt_x"`
	TiltY    float64 `json:"tilt_y"`
}

// Decision is the outcome of one alignment cycle. It is produced for every
// terminal state, including faults, and always carries a reason.
type Decision struct {
	ID        string              `json:"id"`
	Mode      string              `json:"mode"`
	State     State               `json:"state"`
	Passed    bool                `json:"passed"`
	Reason    string              `json:"reason"`
	Violation *ToleranceViolation `json:"violation,omitempty"`

	Start     float64   `json:"start"`
	Positions []float64 `json:"positions"`

	CenterPeak  float64       `json:"center_peak"`
	Layers      []LayerResult `json:"layers,omitempty"`
	TiltLayer   int           `json:"tilt_layer"`
	TiltX       float64       `json:"tilt_x"`
	TiltY       float64       `json:"tilt_y"`
	TiltA       float64       `json:"tilt_a"`
	TiltB       float64       `json:"tilt_b"`
	TargetZ     float64       `json:"target_z"`
	PeakDev     float64       `json:"peak_dev_um"`
	MaxEdgePeak float64       `json:"max_edge_peak"`
	XPeak       float64       `json:"x_peak,omitempty"`

	Curves  []ROIResult `json:"curves,omitempty"`
	Metrics Metrics     `json:"metrics"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Layer returns the result for one layer.
func (d *Decision) Layer(n int) (LayerResult, bool) {
	for _, l := range d.Layers {
		if l.Layer == n {
			return l, true
		}
	}
	return LayerResult{}, false
}

// Curve returns the fitted curve for one label.
func (d *Decision) Curve(l chart.Label) (ROIResult, bool) {
	roi := chart.ROIIndex(l)
	for _, c := range d.Curves {
		if c.ROI == roi {
			return c, true
		}
	}
	return ROIResult{}, false
}
