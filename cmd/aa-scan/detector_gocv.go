//go:build gocv

package main

import (
	"github.com/banshee-data/activealign/internal/imaging"
	"github.com/banshee-data/activealign/internal/scan"
)

// patternDetector finds patterns in station frames with OpenCV contours.
func patternDetector() scan.PatternDetector { return imaging.ContourDetector{} }
