package sim

import (
	"time"

	"github.com/banshee-data/activealign/internal/stage"
)

// Stage is a stage.Controller talking to an in-memory emulator.
type Stage struct {
	*stage.Controller
	Emulator *stage.Emulator
}

// NewStage returns a dev stage parked at start.
func NewStage(start stage.Point3D) *Stage {
	emu := stage.NewEmulator(start)
	ctrl := stage.NewController(emu)
	ctrl.SetReplyTimeout(time.Second)
	return &Stage{Controller: ctrl, Emulator: emu}
}

// TiltAB returns the tilt applied so far.
func (s *Stage) TiltAB() (a, b float64) {
	return s.Emulator.TiltAB()
}
