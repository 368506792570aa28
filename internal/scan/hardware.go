package scan

import (
	"context"
	"errors"
	"image"

	"github.com/banshee-data/activealign/internal/imaging"
	"github.com/banshee-data/activealign/internal/sfr"
	"github.com/banshee-data/activealign/internal/stage"
)

// Camera grabs one frame from the module under alignment.
type Camera interface {
	Capture(ctx context.Context) (image.Image, error)
}

// Stage moves the module and reports encoder feedback.
type Stage interface {
	Position(ctx context.Context) (stage.Point3D, error)
	MoveTo(ctx context.Context, axis stage.Axis, pos float64) error
	Tilt(ctx context.Context, a, b float64) error
}

// PatternDetector finds chart patterns in a frame.
type PatternDetector interface {
	Detect(img image.Image, maxIntensity uint8, minArea, maxArea float64) ([]imaging.Pattern, error)
}

// Signaler receives the final verdict of a cycle.
type Signaler interface {
	Accept(ctx context.Context, d *Decision) error
	Reject(ctx context.Context, d *Decision) error
}

// Hardware bundles the collaborators a Runner drives. Signaler is optional.
type Hardware struct {
	Camera    Camera
	Stage     Stage
	Detector  PatternDetector
	Sharpness sfr.EdgeSharpnessFunc
	Signaler  Signaler
}

func (h Hardware) validate() error {
	switch {
	case h.Camera == nil:
		return errors.New("scan: camera is required")
	case h.Stage == nil:
		return errors.New("scan: stage is required")
	case h.Detector == nil:
		return errors.New("scan: pattern detector is required")
	case h.Sharpness == nil:
		return errors.New("scan: sharpness function is required")
	}
	return nil
}
