package stage

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Emulator is an in-memory motion controller speaking the stage protocol.
// It backs dev mode and tests.
type Emulator struct {
	mu       sync.Mutex
	pos      Point3D
	tiltA    float64
	tiltB    float64
	commands []string
	failOn   map[string]string
	silent   bool
	pending  bytes.Buffer

	// FeedbackOffset is added to every POS? reply to model encoder error.
	FeedbackOffset Point3D

	r *io.PipeReader
	w *io.PipeWriter
}

// NewEmulator returns an emulator parked at start.
func NewEmulator(start Point3D) *Emulator {
	r, w := io.Pipe()
	return &Emulator{pos: start, failOn: map[string]string{}, r: r, w: w}
}

// FailCommand makes every command starting with prefix answer "ERR msg".
func (e *Emulator) FailCommand(prefix, msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failOn[prefix] = msg
}

// SetSilent stops the emulator from replying.
func (e *Emulator) SetSilent(silent bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.silent = silent
}

// Commands returns every command line received.
func (e *Emulator) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.commands...)
}

// Position returns the commanded position.
func (e *Emulator) Position() Point3D {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos
}

// TiltAB returns the accumulated tilt.
func (e *Emulator) TiltAB() (a, b float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tiltA, e.tiltB
}

func (e *Emulator) Read(p []byte) (int, error) { return e.r.Read(p) }

func (e *Emulator) Write(p []byte) (int, error) {
	e.mu.Lock()
	e.pending.Write(p)
	var replies []string
	for {
		line, err := e.pending.ReadString('\n')
		if err != nil {
			// keep the partial line for the next write
			e.pending.Reset()
			e.pending.WriteString(line)
			break
		}
		if reply := e.handleLocked(strings.TrimSpace(line)); reply != "" {
			replies = append(replies, reply)
		}
	}
	e.mu.Unlock()

	for _, reply := range replies {
		if _, err := e.w.Write([]byte(reply + "\n")); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Close ends the reply stream.
func (e *Emulator) Close() error {
	e.w.Close()
	return e.r.Close()
}

func (e *Emulator) handleLocked(cmd string) string {
	if cmd == "" {
		return ""
	}
	e.commands = append(e.commands, cmd)
	if e.silent {
		return ""
	}
	for prefix, msg := range e.failOn {
		if strings.HasPrefix(cmd, prefix) {
			return "ERR " + msg
		}
	}

	fields := strings.Fields(cmd)
	switch {
	case fields[0] == "POS?" && len(fields) == 1:
		return fmt.Sprintf("POS %.5f %.5f %.5f",
			e.pos.X+e.FeedbackOffset.X, e.pos.Y+e.FeedbackOffset.Y, e.pos.Z+e.FeedbackOffset.Z)

	case fields[0] == "MOVE" && len(fields) == 3:
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return "ERR bad position"
		}
		switch Axis(fields[1]) {
		case AxisX:
			e.pos.X = v
		case AxisY:
			e.pos.Y = v
		case AxisZ:
			e.pos.Z = v
		default:
			return "ERR unknown axis " + fields[1]
		}
		return "OK"

	case fields[0] == "TILT" && len(fields) == 3:
		a, errA := strconv.ParseFloat(fields[1], 64)
		b, errB := strconv.ParseFloat(fields[2], 64)
		if errA != nil || errB != nil {
			return "ERR bad tilt"
		}
		e.tiltA += a
		e.tiltB += b
		return "OK"
	}
	return "ERR unknown command"
}
