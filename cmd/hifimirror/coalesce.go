package main

import (
	"strings"
	"time"
)

// ============================================================================
// Write coalescing
// ============================================================================
// Continuously-adjustable controls (volume slider, equalizer bands) emit an
// AdjustControl on every drag tick. Sending each one would flood the backend;
// debouncing alone can starve the final value when rapid events keep resetting
// the timer. Two deadlines per key solve both:
//
//   - a throttle spacing: a submit goes out immediately iff the key is quiescent
//     or the previous send is at least one throttle window old; everything in
//     between is merged latest-wins,
//   - a settle deadline anchored to the LAST submit: when it elapses the latest
//     value is always sent, so the true final value reaches the backend even if
//     the user stops interacting mid-window.
//
// The settle flush runs off the daemon Tick, same as every other time-based
// behavior; destroying the entry on settle leaves no orphaned timers.
// ============================================================================

// WriteConfig contains the coalescer tuning.
type WriteConfig struct {
	Throttle time.Duration // minimum spacing between sends per key
	Settle   time.Duration // quiescence delay before the final send
}

// DefaultWriteConfig returns the representative tuning from constants.go.
func DefaultWriteConfig() WriteConfig {
	return WriteConfig{
		Throttle: defaultThrottleMS * time.Millisecond,
		Settle:   defaultSettleMS * time.Millisecond,
	}
}

// submitWrite records one control interaction and returns the send command to
// execute now, if the throttle spacing allows one.
func submitWrite(s *ClientState, key string, value float64, now time.Time, cfg WriteConfig) []Command {
	w, ok := s.Writes[key]
	if !ok {
		s.Writes[key] = &PendingWrite{
			Key:           key,
			LatestValue:   value,
			LastSentAt:    now,
			LastSentValue: value,
			SettleAt:      now.Add(cfg.Settle),
		}
		return []Command{controlCommand(key, value)}
	}

	w.LatestValue = value
	w.SettleAt = now.Add(cfg.Settle)

	if now.Sub(w.LastSentAt) >= cfg.Throttle {
		w.LastSentAt = now
		w.LastSentValue = value
		return []Command{controlCommand(key, value)}
	}
	return nil
}

// flushWrites emits the settle sends for every key whose quiescence deadline
// has passed and destroys those entries.
func flushWrites(s *ClientState, now time.Time) []Command {
	var cmds []Command
	for key, w := range s.Writes {
		if now.Before(w.SettleAt) {
			continue
		}
		// Settle always fires the last known value, even if a throttled send
		// already carried it; the backend is idempotent per command.
		cmds = append(cmds, controlCommand(key, w.LatestValue))
		delete(s.Writes, key)
	}
	return cmds
}

// hasPendingWrite reports whether a coalesced write is in flight for key.
// While one is, remote echoes for the same control are ignored so the local
// drag and the echo don't fight visually.
func hasPendingWrite(s *ClientState, key string) bool {
	_, ok := s.Writes[key]
	return ok
}

// controlCommand maps a coalescer key onto the outbound command for it.
func controlCommand(key string, value float64) Command {
	if band, ok := strings.CutPrefix(key, eqKeyPrefix); ok {
		return CmdSetBand{Band: band, Value: value}
	}
	return CmdSetVolume{Percent: value}
}
