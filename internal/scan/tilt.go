package scan

import "sync"

// TiltAverager keeps a running mean of the A/B tilt applied to the last N
// accepted units so the next unit can be pre-tilted. A window of zero
// disables it.
type TiltAverager struct {
	mu     sync.Mutex
	window int
	a, b   []float64
}

// NewTiltAverager returns an averager over the given window.
func NewTiltAverager(window int) *TiltAverager {
	return &TiltAverager{window: window}
}

// Add records one applied tilt.
func (t *TiltAverager) Add(a, b float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.window <= 0 {
		return
	}
	t.a = append(t.a, a)
	t.b = append(t.b, b)
	if len(t.a) > t.window {
		t.a = t.a[len(t.a)-t.window:]
		t.b = t.b[len(t.b)-t.window:]
	}
}

// Average returns the mean tilt and the number of units it covers.
func (t *TiltAverager) Average() (a, b float64, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n = len(t.a)
	if n == 0 {
		return 0, 0, 0
	}
	for i := range t.a {
		a += t.a[i]
		b += t.b[i]
	}
	return a / float64(n), b / float64(n), n
}

// Reset forgets every recorded tilt.
func (t *TiltAverager) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.a, t.b = nil, nil
}
