package stage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmulated(t *testing.T) (*Controller, *Emulator) {
	t.Helper()
	emu := NewEmulator(Point3D{})
	c := NewController(emu)
	t.Cleanup(func() { c.Close() })
	return c, emu
}

func TestController_MoveAndPosition(t *testing.T) {
	c, emu := newEmulated(t)
	ctx := context.Background()

	require.NoError(t, c.MoveTo(ctx, AxisZ, 0.025))
	require.NoError(t, c.MoveTo(ctx, AxisX, -1.5))

	pos, err := c.Position(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.025, pos.Z, 1e-9)
	assert.InDelta(t, -1.5, pos.X, 1e-9)

	assert.Equal(t, []string{"MOVE Z 0.02500", "MOVE X -1.50000", "POS?"}, emu.Commands())
	assert.InDelta(t, 0.025, emu.Position().Z, 1e-9)
}

func TestController_FeedbackOffset(t *testing.T) {
	c, emu := newEmulated(t)
	emu.FeedbackOffset = Point3D{Z: 0.0005}

	require.NoError(t, c.MoveTo(context.Background(), AxisZ, 0.01))
	pos, err := c.Position(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.0105, pos.Z, 1e-9)
}

func TestController_Tilt(t *testing.T) {
	c, emu := newEmulated(t)
	require.NoError(t, c.Tilt(context.Background(), 0.01, -0.02))
	require.NoError(t, c.Tilt(context.Background(), 0.01, 0))
	a, b := emu.TiltAB()
	assert.InDelta(t, 0.02, a, 1e-9)
	assert.InDelta(t, -0.02, b, 1e-9)
}

func TestController_CommandError(t *testing.T) {
	c, emu := newEmulated(t)
	emu.FailCommand("MOVE", "limit switch")

	err := c.MoveTo(context.Background(), AxisZ, 9)
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr), "got %v", err)
	assert.Equal(t, "limit switch", cmdErr.Message)

	_, err = c.Command(context.Background(), "HOME")
	assert.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "unknown command", cmdErr.Message)
}

func TestController_ReplyTimeout(t *testing.T) {
	c, emu := newEmulated(t)
	emu.SetSilent(true)
	c.SetReplyTimeout(20 * time.Millisecond)

	_, err := c.Position(context.Background())
	assert.ErrorIs(t, err, ErrReplyTimeout)
}

func TestController_ContextCancelled(t *testing.T) {
	c, _ := newEmulated(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.MoveTo(ctx, AxisZ, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestController_Closed(t *testing.T) {
	c, _ := newEmulated(t)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, err := c.Position(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

// replayPort answers each write with the next canned reply and reports
// EOF once they run out.
type replayPort struct {
	r        *io.PipeReader
	w        *io.PipeWriter
	replies  []string
	writeErr error
}

func newReplayPort(replies ...string) *replayPort {
	r, w := io.Pipe()
	return &replayPort{r: r, w: w, replies: replies}
}

func (p *replayPort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *replayPort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	if len(p.replies) == 0 {
		p.w.Close()
		return len(b), nil
	}
	reply := p.replies[0]
	p.replies = p.replies[1:]
	if _, err := p.w.Write([]byte(reply + "\n")); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (p *replayPort) Close() error {
	p.w.Close()
	return p.r.Close()
}

func TestController_UnexpectedReplies(t *testing.T) {
	c := NewController(newReplayPort("BUSY", "POS 1 2"))
	defer c.Close()

	err := c.MoveTo(context.Background(), AxisZ, 0)
	assert.ErrorIs(t, err, ErrUnexpectedReply)

	_, err = c.Position(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedReply)

	// Reader is exhausted.
	_, err = c.Position(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestController_WriteError(t *testing.T) {
	boom := errors.New("unplugged")
	port := newReplayPort()
	port.writeErr = boom
	c := NewController(port)
	defer c.Close()
	_, err := c.Command(context.Background(), "POS?")
	assert.ErrorIs(t, err, boom)
}

func TestParsePosition(t *testing.T) {
	p, err := ParsePosition("POS 0.1 -0.2 0.00300")
	require.NoError(t, err)
	assert.Equal(t, Point3D{X: 0.1, Y: -0.2, Z: 0.003}, p)

	for _, bad := range []string{"", "OK", "POS a b c", "POS 1 2 3 4"} {
		_, err := ParsePosition(bad)
		assert.ErrorIs(t, err, ErrUnexpectedReply, bad)
	}
}

func TestController_AdminRoute(t *testing.T) {
	c, _ := newEmulated(t)
	mux := http.NewServeMux()
	c.AttachAdminRoutes(mux)

	form := url.Values{"command": {"POS?"}}
	req := httptest.NewRequest(http.MethodPost, "/debug/stage-command", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Body.String(), "POS "))

	req = httptest.NewRequest(http.MethodGet, "/debug/stage-command", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
