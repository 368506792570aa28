// Package aggregate collects per-ROI sharpness samples across the frames of
// one scan.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/activealign/internal/sfr"
	"github.com/banshee-data/activealign/internal/timeutil"
)

var (
	// ErrAggregationTimeout is returned by Wait when frames are still
	// outstanding at the deadline.
	ErrAggregationTimeout = errors.New("aggregate: timed out waiting for frames")
	// ErrDuplicateSample is returned when a (roi, frame) key is added twice.
	ErrDuplicateSample = errors.New("aggregate: duplicate sample")
)

type key struct {
	roi   int
	frame int
}

// Curve is the samples of one ROI ordered by frame index.
type Curve struct {
	ROI     int
	Frames  []int
	Samples []sfr.Sample
}

// Len returns the number of samples.
func (c Curve) Len() int { return len(c.Samples) }

// Positions returns the stage position of every sample.
func (c Curve) Positions() []float64 {
	out := make([]float64, len(c.Samples))
	for i, s := range c.Samples {
		out[i] = s.Position
	}
	return out
}

// Series extracts one score per sample.
func (c Curve) Series(f func(sfr.Sample) float64) []float64 {
	out := make([]float64, len(c.Samples))
	for i, s := range c.Samples {
		out[i] = f(s)
	}
	return out
}

// Aggregator is safe for concurrent use by frame workers. A new Aggregator
// is created for every scan.
type Aggregator struct {
	clock timeutil.Clock

	mu        sync.Mutex
	samples   map[key]sfr.Sample
	completed map[int]bool
	err       error
	changed   chan struct{}
}

// New returns an empty aggregator. A nil clock selects the real clock.
func New(clock timeutil.Clock) *Aggregator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Aggregator{
		clock:     clock,
		samples:   make(map[key]sfr.Sample),
		completed: make(map[int]bool),
		changed:   make(chan struct{}),
	}
}

// Add records the sample of one ROI in one frame.
func (a *Aggregator) Add(frame, roi int, s sfr.Sample) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := key{roi: roi, frame: frame}
	if _, ok := a.samples[k]; ok {
		return fmt.Errorf("%w: roi %d frame %d", ErrDuplicateSample, roi, frame)
	}
	a.samples[k] = s
	return nil
}

// CompleteFrame marks a frame as fully processed, whether or not every ROI
// produced a sample.
func (a *Aggregator) CompleteFrame(frame int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.completed[frame] {
		return
	}
	a.completed[frame] = true
	a.notifyLocked()
}

// Fail records a worker failure. Only the first failure is kept.
func (a *Aggregator) Fail(err error) {
	if err == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err == nil {
		a.err = err
		a.notifyLocked()
	}
}

// Err returns the recorded failure, if any.
func (a *Aggregator) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *Aggregator) notifyLocked() {
	close(a.changed)
	a.changed = make(chan struct{})
}

// IsComplete reports whether at least n frames have completed.
func (a *Aggregator) IsComplete(n int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.completed) >= n
}

// Completed returns the number of completed frames.
func (a *Aggregator) Completed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.completed)
}

// Wait blocks until n frames have completed, a worker fails, ctx is done,
// or timeout elapses on the aggregator's clock.
func (a *Aggregator) Wait(ctx context.Context, n int, timeout time.Duration) error {
	timer := a.clock.NewTimer(timeout)
	defer timer.Stop()
	for {
		a.mu.Lock()
		done, err, changed := len(a.completed) >= n, a.err, a.changed
		a.mu.Unlock()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C():
			return fmt.Errorf("%w: %d of %d frames after %v", ErrAggregationTimeout, a.Completed(), n, timeout)
		}
	}
}

// ROIs returns every ROI that has at least one sample, ascending.
func (a *Aggregator) ROIs() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	seen := map[int]bool{}
	var out []int
	for k := range a.samples {
		if !seen[k.roi] {
			seen[k.roi] = true
			out = append(out, k.roi)
		}
	}
	sort.Ints(out)
	return out
}

// Curve returns the samples of one ROI ordered by frame.
func (a *Aggregator) Curve(roi int) Curve {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := Curve{ROI: roi}
	for k := range a.samples {
		if k.roi == roi {
			c.Frames = append(c.Frames, k.frame)
		}
	}
	sort.Ints(c.Frames)
	c.Samples = make([]sfr.Sample, len(c.Frames))
	for i, f := range c.Frames {
		c.Samples[i] = a.samples[key{roi: roi, frame: f}]
	}
	return c
}
