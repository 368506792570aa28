package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	before := time.Now()
	now := c.Now()
	if now.Before(before) {
		t.Errorf("Now() = %v, should not be before %v", now, before)
	}
	if c.Since(before) < 0 {
		t.Error("Since() returned a negative duration")
	}

	timer := c.NewTimer(time.Millisecond)
	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Fatal("real timer did not fire")
	}
	if timer.Stop() {
		t.Error("Stop() on a fired timer should return false")
	}
}

func TestMockClock_SleepAdvances(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	c.Sleep(50 * time.Millisecond)
	c.Sleep(20 * time.Millisecond)

	if got := c.Since(start); got != 70*time.Millisecond {
		t.Errorf("Since(start) = %v, want 70ms", got)
	}
	sleeps := c.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 50*time.Millisecond || sleeps[1] != 20*time.Millisecond {
		t.Errorf("Sleeps() = %v", sleeps)
	}
}

func TestMockClock_TimerFiresOnAdvance(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	timer := c.NewTimer(time.Second)

	if c.PendingTimers() != 1 {
		t.Fatalf("PendingTimers() = %d, want 1", c.PendingTimers())
	}

	c.Advance(500 * time.Millisecond)
	select {
	case <-timer.C():
		t.Fatal("timer fired early")
	default:
	}

	c.Advance(500 * time.Millisecond)
	select {
	case fired := <-timer.C():
		if !fired.Equal(time.Unix(1, 0)) {
			t.Errorf("fired at %v", fired)
		}
	default:
		t.Fatal("timer did not fire at deadline")
	}
	if c.PendingTimers() != 0 {
		t.Errorf("PendingTimers() = %d after firing", c.PendingTimers())
	}
}

func TestMockClock_StopAndReset(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	timer := c.NewTimer(time.Second)

	if !timer.Stop() {
		t.Error("Stop() on active timer should return true")
	}
	c.Advance(2 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}

	if timer.Reset(time.Second) {
		t.Error("Reset() on stopped timer should return false")
	}
	c.Advance(time.Second)
	select {
	case <-timer.C():
	default:
		t.Fatal("reset timer did not fire")
	}
}

func TestMockClock_After(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	ch := c.After(10 * time.Millisecond)
	c.Advance(10 * time.Millisecond)
	select {
	case <-ch:
	default:
		t.Fatal("After channel did not fire")
	}
}
