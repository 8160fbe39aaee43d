package main

import (
	"testing"
	"time"
)

var clockBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newPlayingClock(positionMS int64) PlayClock {
	c := PlayClock{}
	c = c.Start(clockBase)
	c.Playing = true
	c.PositionMS = positionMS
	c.DurationMS = 240000
	return c
}

// TestPlayClock_TickAdvances tests that position advances by elapsed wall time
// while running and playing
func TestPlayClock_TickAdvances(t *testing.T) {
	c := newPlayingClock(10000)

	c = c.Tick(clockBase.Add(100 * time.Millisecond))
	if c.PositionMS != 10100 {
		t.Errorf("expected position=10100, got %d", c.PositionMS)
	}

	c = c.Tick(clockBase.Add(250 * time.Millisecond))
	if c.PositionMS != 10250 {
		t.Errorf("expected position=10250, got %d", c.PositionMS)
	}
}

// TestPlayClock_TickPausedDoesNotAdvance tests that a non-playing clock holds
// its position
func TestPlayClock_TickPausedDoesNotAdvance(t *testing.T) {
	c := newPlayingClock(10000)
	c.Playing = false

	c = c.Tick(clockBase.Add(500 * time.Millisecond))
	if c.PositionMS != 10000 {
		t.Errorf("expected position unchanged at 10000, got %d", c.PositionMS)
	}
}

// TestPlayClock_TickSuspended tests that suspension freezes extrapolation and
// that elapsed suspended time is not integrated on resume
func TestPlayClock_TickSuspended(t *testing.T) {
	c := newPlayingClock(10000)
	c = c.SuspendTicks()

	c = c.Tick(clockBase.Add(5 * time.Second))
	if c.PositionMS != 10000 {
		t.Errorf("expected frozen position 10000, got %d", c.PositionMS)
	}

	c = c.ResumeTicks(clockBase.Add(5 * time.Second))
	if !c.ForceResync {
		t.Error("expected ForceResync after resume")
	}

	// The 5 suspended seconds must not leak into the next tick.
	c = c.Tick(clockBase.Add(5*time.Second + 100*time.Millisecond))
	if c.PositionMS != 10100 {
		t.Errorf("expected position=10100 after resume tick, got %d", c.PositionMS)
	}
}

// TestPlayClock_DriftWithinToleranceIgnored tests that small server/local
// disagreement does not snap
func TestPlayClock_DriftWithinToleranceIgnored(t *testing.T) {
	cfg := DefaultClockConfig()
	c := newPlayingClock(10000)

	c = c.ObserveServer(10800, 240000, true, false, clockBase.Add(time.Second), cfg)
	if c.PositionMS != 10000 {
		t.Errorf("expected position held at 10000 for 800ms drift, got %d", c.PositionMS)
	}
}

// TestPlayClock_DriftBeyondToleranceSnaps tests that large disagreement snaps
// to the server value
func TestPlayClock_DriftBeyondToleranceSnaps(t *testing.T) {
	cfg := DefaultClockConfig()
	c := newPlayingClock(10000)

	c = c.ObserveServer(21500, 240000, true, false, clockBase.Add(time.Second), cfg)
	if c.PositionMS != 21500 {
		t.Errorf("expected snap to 21500, got %d", c.PositionMS)
	}
}

// TestPlayClock_SpuriousZeroRejected tests that a bare zero mid-track is not a
// legitimate rewind
func TestPlayClock_SpuriousZeroRejected(t *testing.T) {
	cfg := DefaultClockConfig()
	c := newPlayingClock(60000)

	c = c.ObserveServer(0, 240000, true, false, clockBase.Add(time.Second), cfg)
	if c.PositionMS != 60000 {
		t.Errorf("expected spurious zero rejected, position held at 60000, got %d", c.PositionMS)
	}
}

// TestPlayClock_ZeroWithTrackChangeAccepted tests that a track-change marker
// legitimizes position zero
func TestPlayClock_ZeroWithTrackChangeAccepted(t *testing.T) {
	cfg := DefaultClockConfig()
	c := newPlayingClock(60000)

	c = c.ObserveServer(0, 180000, true, true, clockBase.Add(time.Second), cfg)
	if c.PositionMS != 0 {
		t.Errorf("expected snap to 0 on track change, got %d", c.PositionMS)
	}
	if c.DurationMS != 180000 {
		t.Errorf("expected duration updated to 180000, got %d", c.DurationMS)
	}
}

// TestPlayClock_SeekGraceRejectsStaleEcho tests that a server echo inside the
// grace window cannot overwrite a just-issued local seek
func TestPlayClock_SeekGraceRejectsStaleEcho(t *testing.T) {
	cfg := DefaultClockConfig()
	c := newPlayingClock(10000)

	c = c.Seek(90000, clockBase, cfg)
	if c.PositionMS != 90000 {
		t.Fatalf("expected seek to 90000, got %d", c.PositionMS)
	}

	// Stale echo 100ms later, still inside the 200ms grace window.
	c = c.ObserveServer(10000, 240000, true, false, clockBase.Add(100*time.Millisecond), cfg)
	if c.PositionMS != 90000 {
		t.Errorf("expected stale echo rejected, got %d", c.PositionMS)
	}

	// After the window, server disagreement snaps again.
	c = c.ObserveServer(10000, 240000, true, false, clockBase.Add(400*time.Millisecond), cfg)
	if c.PositionMS != 10000 {
		t.Errorf("expected snap after grace window, got %d", c.PositionMS)
	}
}

// TestPlayClock_ForceResyncSnapsUnconditionally tests the resume/reconnect path
func TestPlayClock_ForceResyncSnapsUnconditionally(t *testing.T) {
	cfg := DefaultClockConfig()
	c := newPlayingClock(10000)
	c.ForceResync = true

	c = c.ObserveServer(10300, 240000, true, false, clockBase.Add(time.Second), cfg)
	if c.PositionMS != 10300 {
		t.Errorf("expected forced snap to 10300, got %d", c.PositionMS)
	}
	if c.ForceResync {
		t.Error("expected ForceResync cleared after snap")
	}
}

// TestPlayClock_NonPlayingObservationIsAuthoritative tests that paused
// positions always overwrite
func TestPlayClock_NonPlayingObservationIsAuthoritative(t *testing.T) {
	cfg := DefaultClockConfig()
	c := newPlayingClock(10000)

	c = c.ObserveServer(10400, 240000, false, false, clockBase.Add(time.Second), cfg)
	if c.PositionMS != 10400 {
		t.Errorf("expected paused position 10400 applied, got %d", c.PositionMS)
	}
	if c.Playing {
		t.Error("expected Playing=false")
	}
}

// TestPlayClock_ClampToDuration tests that extrapolation never exceeds duration
func TestPlayClock_ClampToDuration(t *testing.T) {
	c := newPlayingClock(239900)

	c = c.Tick(clockBase.Add(time.Second))
	if c.PositionMS != 240000 {
		t.Errorf("expected clamp at duration 240000, got %d", c.PositionMS)
	}
}

// TestPlayClock_Progress tests the progress projection
func TestPlayClock_Progress(t *testing.T) {
	c := PlayClock{PositionMS: 60000, DurationMS: 240000}
	if got := c.Progress(); got != 0.25 {
		t.Errorf("expected progress 0.25, got %f", got)
	}

	c.DurationMS = 0
	if got := c.Progress(); got != 0 {
		t.Errorf("expected progress 0 for unknown duration, got %f", got)
	}
}
