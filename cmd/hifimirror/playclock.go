package main

import "time"

// ============================================================================
// Playback clock
// ============================================================================
// The backend only pushes position on metadata heartbeats and seeks; between
// those the clock extrapolates from wall time so the UI sees a continuously
// advancing position. Server pushes correct the extrapolation, but only when
// they disagree by more than a tolerance; otherwise normal timer jitter would
// make the position visibly jump on every heartbeat.
//
// The clock is a value stepped by the reducer on Tick events. Methods take an
// explicit now and return the next clock; no timers live inside it, so logical
// teardown cannot leave anything firing.
// ============================================================================

// ClockConfig contains the tunable clock parameters.
type ClockConfig struct {
	// DriftTolerance is the maximum local/server disagreement absorbed without
	// snapping.
	DriftTolerance time.Duration

	// SeekGrace suppresses drift snapping for this long after a local seek so an
	// in-flight stale server echo cannot overwrite the just-issued position.
	SeekGrace time.Duration

	// SpuriousResetFloor: a server position of exactly 0 while the local clock is
	// past this and playing is rejected as a spurious reset unless the push
	// carries a track-change marker.
	SpuriousResetFloor time.Duration
}

// DefaultClockConfig returns the representative tuning from constants.go.
func DefaultClockConfig() ClockConfig {
	return ClockConfig{
		DriftTolerance:     defaultDriftToleranceMS * time.Millisecond,
		SeekGrace:          defaultSeekGraceMS * time.Millisecond,
		SpuriousResetFloor: spuriousResetFloorMS * time.Millisecond,
	}
}

// PlayClock extrapolates playback position between server updates.
type PlayClock struct {
	PositionMS int64
	DurationMS int64

	Playing bool

	// Running is true while the tick reference is armed; position only advances
	// when both Running and Playing.
	Running bool

	// Suspended pauses extrapolation without tearing the clock down (consumer
	// surface hidden; wall-clock elapsed time is unreliable).
	Suspended bool

	// ForceResync makes the next server update snap unconditionally (set on
	// resume and on disconnect/reconnect).
	ForceResync bool

	LastTickAt     time.Time
	SeekGraceUntil time.Time
}

// Start arms the tick reference. Extrapolation begins on the next Tick while
// Playing.
func (c PlayClock) Start(now time.Time) PlayClock {
	c.Running = true
	c.LastTickAt = now
	return c
}

// Stop disarms the clock and drops the tick reference.
func (c PlayClock) Stop() PlayClock {
	c.Running = false
	c.LastTickAt = time.Time{}
	return c
}

// SuspendTicks pauses extrapolation in place.
func (c PlayClock) SuspendTicks() PlayClock {
	c.Suspended = true
	return c
}

// ResumeTicks resumes extrapolation and forces the next server update to snap,
// since elapsed wall time while suspended tells us nothing about playback.
func (c PlayClock) ResumeTicks(now time.Time) PlayClock {
	c.Suspended = false
	c.ForceResync = true
	c.LastTickAt = now
	return c
}

// Tick advances the position by elapsed wall time, clamped to [0, duration].
func (c PlayClock) Tick(now time.Time) PlayClock {
	if !c.Running || c.Suspended || !c.Playing {
		c.LastTickAt = now
		return c
	}
	if c.LastTickAt.IsZero() {
		c.LastTickAt = now
		return c
	}

	elapsed := now.Sub(c.LastTickAt)
	if elapsed > 0 {
		c.PositionMS += elapsed.Milliseconds()
	}
	c.LastTickAt = now
	return c.clamp()
}

// Seek snaps to a locally-issued position, resets the tick reference, and opens
// the grace window against stale server echoes.
func (c PlayClock) Seek(positionMS int64, now time.Time, cfg ClockConfig) PlayClock {
	c.PositionMS = positionMS
	c.LastTickAt = now
	c.SeekGraceUntil = now.Add(cfg.SeekGrace)
	c.ForceResync = false
	return c.clamp()
}

// ObserveServer reconciles a server-pushed position against the local estimate.
func (c PlayClock) ObserveServer(positionMS int64, durationMS int64, playing bool, trackChanged bool, now time.Time, cfg ClockConfig) PlayClock {
	if durationMS > 0 {
		c.DurationMS = durationMS
	}
	c.Playing = playing
	if !playing {
		// Paused/stopped positions are authoritative; nothing is extrapolating
		// against them.
		c.PositionMS = positionMS
		c.LastTickAt = now
		c.ForceResync = false
		return c.clamp()
	}

	if c.ForceResync || trackChanged {
		c.PositionMS = positionMS
		c.LastTickAt = now
		c.ForceResync = false
		return c.clamp()
	}

	// Reject a bare zero while the local clock is well into the track: backends
	// emit these on internal restarts and they are not legitimate rewinds.
	if positionMS == 0 && c.PositionMS > cfg.SpuriousResetFloor.Milliseconds() {
		return c
	}

	// A just-issued local seek wins over in-flight stale echoes.
	if now.Before(c.SeekGraceUntil) {
		return c
	}

	diff := positionMS - c.PositionMS
	if diff < 0 {
		diff = -diff
	}
	if diff > cfg.DriftTolerance.Milliseconds() {
		c.PositionMS = positionMS
		c.LastTickAt = now
	}
	return c.clamp()
}

// Progress returns position/duration in [0,1], 0 when duration is unknown.
func (c PlayClock) Progress() float64 {
	if c.DurationMS <= 0 {
		return 0
	}
	p := float64(c.PositionMS) / float64(c.DurationMS)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func (c PlayClock) clamp() PlayClock {
	if c.PositionMS < 0 {
		c.PositionMS = 0
	}
	if c.DurationMS > 0 && c.PositionMS > c.DurationMS {
		c.PositionMS = c.DurationMS
	}
	return c
}
