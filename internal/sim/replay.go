package sim

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/banshee-data/activealign/internal/imaging"
)

// ErrReplayExhausted is returned once every recorded frame was served.
var ErrReplayExhausted = errors.New("sim: replay exhausted")

var frameExts = []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff"}

// Replay serves recorded frames from a directory in name order. A sweep
// recorded one frame per position replays against the same scan settings.
type Replay struct {
	mu    sync.Mutex
	paths []string
	next  int
	loop  bool
}

// NewReplay lists the frames in dir. With loop set, the sequence restarts
// after the last frame.
func NewReplay(dir string, loop bool) (*Replay, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("sim: read replay dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(frameExts, strings.ToLower(filepath.Ext(e.Name()))) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("sim: no frames in %s", dir)
	}
	slices.Sort(paths)
	return &Replay{paths: paths, loop: loop}, nil
}

// Len returns the number of recorded frames.
func (r *Replay) Len() int { return len(r.paths) }

// Capture decodes the next frame.
func (r *Replay) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.next >= len(r.paths) {
		if !r.loop {
			r.mu.Unlock()
			return nil, ErrReplayExhausted
		}
		r.next = 0
	}
	path := r.paths[r.next]
	r.next++
	r.mu.Unlock()
	return imaging.LoadFrame(path)
}
