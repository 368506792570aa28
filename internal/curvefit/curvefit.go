// Package curvefit fits focus curves: least-squares polynomials with a
// single outlier-rejection pass and a dense peak search.
package curvefit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/activealign/internal/monitoring"
)

var (
	// ErrInsufficientData is returned when there are too few samples for
	// the requested order or the input slices differ in length.
	ErrInsufficientData = errors.New("curvefit: insufficient data")
	// ErrSingularFit is returned when the normal matrix cannot be inverted.
	ErrSingularFit = errors.New("curvefit: singular normal matrix")
)

// DefaultAbnormalityThreshold flags a sample whose residual
// (predicted - actual) falls below it.
const DefaultAbnormalityThreshold = -4.0

// peakIntervals is the number of equal steps the peak search divides the
// fitted position range into. Both endpoints are evaluated.
const peakIntervals = 300

// Result is the outcome of one polynomial fit.
type Result struct {
	// Coefficients are in ascending power order: c0 + c1*x + c2*x^2 ...
	Coefficients []float64
	PeakX        float64
	PeakY        float64
	ErrorAvg     float64
	ErrorDev     float64

	DetectedAbnormality bool
	// DeletedIndex is the input index removed by the outlier pass, or -1.
	DeletedIndex int
	// Fitted holds the final polynomial evaluated at every input position.
	Fitted []float64
}

type options struct {
	threshold     float64
	removeOutlier bool
}

// Option configures Fit.
type Option func(*options)

// WithAbnormalityThreshold overrides DefaultAbnormalityThreshold.
func WithAbnormalityThreshold(t float64) Option {
	return func(o *options) { o.threshold = t }
}

// WithoutOutlierRemoval disables the rejection pass.
func WithoutOutlierRemoval() Option {
	return func(o *options) { o.removeOutlier = false }
}

// MinSamples is the smallest curve length a scan accepts for a fit of the
// given order.
func MinSamples(order int) int {
	if order+1 > 4 {
		return order + 1
	}
	return 4
}

// Fit fits a polynomial of the given order to (positions, scores).
//
// After the first solve, the first sample whose residual is below the
// abnormality threshold is dropped and the fit repeated. This happens at
// most once, and only when enough samples remain for the order.
func Fit(positions, scores []float64, order int, opts ...Option) (*Result, error) {
	o := options{threshold: DefaultAbnormalityThreshold, removeOutlier: true}
	for _, opt := range opts {
		opt(&o)
	}

	n := len(positions)
	if order < 1 || n != len(scores) || n < order+1 {
		return nil, fmt.Errorf("%w: %d positions, %d scores, order %d", ErrInsufficientData, n, len(scores), order)
	}

	xs := append([]float64(nil), positions...)
	ys := append([]float64(nil), scores...)
	res := &Result{DeletedIndex: -1}

	var coeffs []float64
	for pass := 0; pass < 2; pass++ {
		var err error
		coeffs, err = solve(xs, ys, order)
		if err != nil {
			return nil, err
		}
		if pass > 0 || !o.removeOutlier || len(xs) <= order+1 {
			break
		}
		idx := firstAbnormal(coeffs, xs, ys, o.threshold)
		if idx < 0 {
			break
		}
		monitoring.Debugf("[curvefit] dropping sample %d at x=%.4f (residual %.3f)", idx, xs[idx], Eval(coeffs, xs[idx])-ys[idx])
		res.DetectedAbnormality = true
		res.DeletedIndex = idx
		xs = append(xs[:idx], xs[idx+1:]...)
		ys = append(ys[:idx], ys[idx+1:]...)
	}

	res.Coefficients = coeffs
	res.ErrorAvg, res.ErrorDev = residualStats(coeffs, xs, ys)
	res.PeakX, res.PeakY = peak(coeffs, xs)

	res.Fitted = make([]float64, n)
	for i, x := range positions {
		res.Fitted[i] = Eval(coeffs, x)
	}
	return res, nil
}

// Eval evaluates the polynomial with ascending coefficients at x.
func Eval(coeffs []float64, x float64) float64 {
	y := 0.0
	for i := len(coeffs) - 1; i >= 0; i-- {
		y = y*x + coeffs[i]
	}
	return y
}

// LinearRegression returns the least-squares slope and intercept of y on x.
func LinearRegression(x, y []float64) (slope, intercept float64, err error) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, 0, fmt.Errorf("%w: regression needs two or more paired samples", ErrInsufficientData)
	}
	if stat.Variance(x, nil) == 0 {
		return 0, 0, fmt.Errorf("%w: regression x values are constant", ErrSingularFit)
	}
	intercept, slope = stat.LinearRegression(x, y, nil, false)
	return slope, intercept, nil
}

// solve computes (XᵀX)⁻¹Xᵀy for the Vandermonde design matrix X.
func solve(xs, ys []float64, order int) ([]float64, error) {
	n, m := len(xs), order+1
	X := mat.NewDense(n, m, nil)
	for i, x := range xs {
		p := 1.0
		for j := 0; j < m; j++ {
			X.Set(i, j, p)
			p *= x
		}
	}
	y := mat.NewVecDense(n, ys)

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		// A finite condition number means the inverse is imprecise, not
		// absent.
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, fmt.Errorf("%w: %v", ErrSingularFit, err)
		}
		monitoring.Debugf("[curvefit] ill-conditioned normal matrix: %v", err)
	}

	var xty mat.VecDense
	xty.MulVec(X.T(), y)
	var beta mat.VecDense
	beta.MulVec(&inv, &xty)

	coeffs := make([]float64, m)
	for j := range coeffs {
		coeffs[j] = beta.AtVec(j)
	}
	for _, c := range coeffs {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, ErrSingularFit
		}
	}
	return coeffs, nil
}

func firstAbnormal(coeffs, xs, ys []float64, threshold float64) int {
	for i := range xs {
		if Eval(coeffs, xs[i])-ys[i] < threshold {
			return i
		}
	}
	return -1
}

func residualStats(coeffs, xs, ys []float64) (avg, dev float64) {
	residuals := make([]float64, len(xs))
	for i := range xs {
		residuals[i] = Eval(coeffs, xs[i]) - ys[i]
		avg += residuals[i]
	}
	avg /= float64(len(xs))
	for _, r := range residuals {
		dev += (r - avg) * (r - avg)
	}
	return avg, dev
}

func peak(coeffs, xs []float64) (float64, float64) {
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	bestX, bestY := lo, Eval(coeffs, lo)
	for i := 1; i <= peakIntervals; i++ {
		// The last grid point is hi exactly; accumulated rounding must not
		// step past the sampled span.
		x := hi
		if i < peakIntervals {
			x = min(lo+(hi-lo)*float64(i)/peakIntervals, hi)
		}
		if y := Eval(coeffs, x); y > bestY {
			bestX, bestY = x, y
		}
	}
	return bestX, bestY
}
