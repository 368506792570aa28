//go:build gocv

package imaging

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContourDetector_MatchesBlobDetector(t *testing.T) {
	g := filled(200, 100, 220)
	square(g, 50, 30, 10, 10)
	square(g, 150, 30, 10, 10)
	square(g, 100, 70, 2, 10)
	square(g, 100, 30, 10, 150)

	blobs, err := BlobDetector{}.Detect(g, 100, 50, 1000)
	require.NoError(t, err)
	contours, err := ContourDetector{}.Detect(g, 100, 50, 1000)
	require.NoError(t, err)

	require.Len(t, contours, len(blobs))
	for i := range blobs {
		assert.Equal(t, blobs[i].Center, contours[i].Center)
		// Polygon through the boundary pixel centres: 19x19 for a 20px square.
		assert.InDelta(t, 361.0, contours[i].Area, 1)
	}
}

func TestContourDetector_OffsetBounds(t *testing.T) {
	g := filled(60, 60, 220)
	square(g, 30, 30, 5, 0)
	sub := g.SubImage(image.Rect(10, 10, 50, 50))

	pats, err := ContourDetector{}.Detect(sub, 50, 10, 500)
	require.NoError(t, err)
	require.Len(t, pats, 1)
	assert.Equal(t, image.Pt(30, 30), pats[0].Center)
}
