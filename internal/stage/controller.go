// Package stage drives the motorised alignment stage over a line-oriented
// serial protocol:
//
//	MOVE <axis> <pos>  -> OK
//	POS?               -> POS <x> <y> <z>
//	TILT <a> <b>       -> OK
//
// Any command may instead be answered with "ERR <message>".
package stage

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/activealign/internal/monitoring"
)

var (
	// ErrWriteFailed is returned on a short write to the port.
	ErrWriteFailed = errors.New("stage: failed to write command")
	// ErrUnexpectedReply is returned when a reply does not parse.
	ErrUnexpectedReply = errors.New("stage: unexpected reply")
	// ErrReplyTimeout is returned when the controller stays silent.
	ErrReplyTimeout = errors.New("stage: reply timeout")
	// ErrClosed is returned after the port has been closed.
	ErrClosed = errors.New("stage: port closed")
)

// DefaultReplyTimeout bounds how long a command waits for its reply.
const DefaultReplyTimeout = 5 * time.Second

// Axis names a linear stage axis.
type Axis string

const (
	AxisX Axis = "X"
	AxisY Axis = "Y"
	AxisZ Axis = "Z"
)

// Point3D is a stage position in mm.
type Point3D struct {
	X, Y, Z float64
}

// CommandError is an ERR reply from the controller.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("stage: %q rejected: %s", e.Command, e.Message)
}

// Controller issues one command at a time and matches it with the next
// reply line.
type Controller struct {
	port         Port
	replyTimeout time.Duration

	commandMu sync.Mutex
	lines     chan string
	readErr   chan error
	done      chan struct{}
	closeOnce sync.Once
}

// NewController starts reading reply lines from port.
func NewController(port Port) *Controller {
	c := &Controller{
		port:         port,
		replyTimeout: DefaultReplyTimeout,
		lines:        make(chan string, 8),
		readErr:      make(chan error, 1),
		done:         make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// SetReplyTimeout overrides DefaultReplyTimeout.
func (c *Controller) SetReplyTimeout(d time.Duration) {
	c.commandMu.Lock()
	defer c.commandMu.Unlock()
	c.replyTimeout = d
}

func (c *Controller) readLoop() {
	scan := bufio.NewScanner(c.port)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		select {
		case c.lines <- line:
		case <-c.done:
			return
		}
	}
	err := scan.Err()
	if err == nil {
		err = io.EOF
	}
	select {
	case c.readErr <- err:
	case <-c.done:
	}
}

// Command sends one raw command and returns its reply line.
func (c *Controller) Command(ctx context.Context, command string) (string, error) {
	c.commandMu.Lock()
	defer c.commandMu.Unlock()

	select {
	case <-c.done:
		return "", ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// Drop replies that arrived after an earlier command timed out.
	for drained := false; !drained; {
		select {
		case <-c.lines:
		default:
			drained = true
		}
	}

	line := command
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	n, err := c.port.Write([]byte(line))
	if err != nil {
		return "", fmt.Errorf("stage: write %q: %w", command, err)
	}
	if n != len(line) {
		return "", ErrWriteFailed
	}

	timer := time.NewTimer(c.replyTimeout)
	defer timer.Stop()
	select {
	case reply := <-c.lines:
		if msg, ok := strings.CutPrefix(reply, "ERR"); ok {
			return "", &CommandError{Command: command, Message: strings.TrimSpace(msg)}
		}
		return reply, nil
	case err := <-c.readErr:
		return "", fmt.Errorf("stage: reading reply to %q: %w", command, err)
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", fmt.Errorf("%w: %q", ErrReplyTimeout, command)
	case <-c.done:
		return "", ErrClosed
	}
}

func (c *Controller) expectOK(ctx context.Context, command string) error {
	reply, err := c.Command(ctx, command)
	if err != nil {
		return err
	}
	if reply != "OK" {
		return fmt.Errorf("%w: %q to %q", ErrUnexpectedReply, reply, command)
	}
	return nil
}

// MoveTo moves one axis to an absolute position in mm.
func (c *Controller) MoveTo(ctx context.Context, axis Axis, pos float64) error {
	monitoring.Debugf("[stage] move %s to %.4f", axis, pos)
	return c.expectOK(ctx, fmt.Sprintf("MOVE %s %.5f", axis, pos))
}

// Tilt applies an A/B tilt correction.
func (c *Controller) Tilt(ctx context.Context, a, b float64) error {
	monitoring.Logf("[stage] tilt a=%.5f b=%.5f", a, b)
	return c.expectOK(ctx, fmt.Sprintf("TILT %.6f %.6f", a, b))
}

// Position reads the encoder feedback position.
func (c *Controller) Position(ctx context.Context) (Point3D, error) {
	reply, err := c.Command(ctx, "POS?")
	if err != nil {
		return Point3D{}, err
	}
	return ParsePosition(reply)
}

// ParsePosition parses a "POS x y z" reply.
func ParsePosition(reply string) (Point3D, error) {
	fields := strings.Fields(reply)
	if len(fields) != 4 || fields[0] != "POS" {
		return Point3D{}, fmt.Errorf("%w: %q", ErrUnexpectedReply, reply)
	}
	var v [3]float64
	for i := range v {
		f, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return Point3D{}, fmt.Errorf("%w: %q: %v", ErrUnexpectedReply, reply, err)
		}
		v[i] = f
	}
	return Point3D{X: v[0], Y: v[1], Z: v[2]}, nil
}

// Close stops the reader and closes the port.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.port.Close()
	})
	return err
}

// AttachAdminRoutes exposes a raw command endpoint on the debug mux.
func (c *Controller) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleSilentFunc("stage-command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		reply, err := c.Command(r.Context(), command)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		var buf bytes.Buffer
		buf.WriteString(reply)
		buf.WriteByte('\n')
		w.Header().Set("Content-Type", "text/plain")
		w.Write(buf.Bytes())
	})
}
