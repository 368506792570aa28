//go:build !gocv

package main

import (
	"github.com/banshee-data/activealign/internal/imaging"
	"github.com/banshee-data/activealign/internal/scan"
)

// patternDetector falls back to the pure-Go detector when built without
// OpenCV.
func patternDetector() scan.PatternDetector { return imaging.BlobDetector{} }
