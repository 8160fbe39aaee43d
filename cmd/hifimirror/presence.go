package main

import "time"

// ============================================================================
// Presence tracking
// ============================================================================
// Whether a device is attached to a source's plugin arrives as three kinds of
// signal, in priority order:
//
//   1. the diagnostic manual override, which always wins while set,
//   2. explicit disconnects (a literal "disconnected" status, monitor-lost,
//      server-disappeared, failed status polls), which force connected=false,
//   3. heuristic "looks connected" evidence (status aliases, connected flags,
//      is_playing), which only ever raises the state.
//
// Only an actual change of the effective value emits a notification; repeated
// identical signals are absorbed. A failed poll is an implicit disconnect, not
// "unknown": a visibly-disconnected UI beats a stale "connected" the user
// cannot trust.
// ============================================================================

// Reason codes carried on connection-changed notifications.
const (
	reasonStatusConnected    = "status_connected"
	reasonStatusDisconnected = "status_disconnected"
	reasonMonitorConnected   = "monitor_connected"
	reasonMonitorLost        = "monitor_lost"
	reasonServerDisappeared  = "server_disappeared"
	reasonServerDiscovered   = "server_discovered"
	reasonPollFailed         = "poll_failed"
	reasonOverrideSet        = "override_set"
	reasonOverrideCleared    = "override_cleared"
)

// connectedStatusAliases is the closed set of status strings that imply an
// attached device. "paused" belongs here: a paused device is still attached.
var connectedStatusAliases = map[string]bool{
	"connected": true,
	"playing":   true,
	"paused":    true,
	"active":    true,
}

// deriveStatusSignal interprets a StatusUpdated event's heterogeneous fields.
// explicit disconnection takes priority over any simultaneous heuristic
// connect evidence. ok is false when the event carries no presence signal at
// all (pure metadata-ish status traffic).
func deriveStatusSignal(ev StatusUpdated) (connected bool, ok bool) {
	// Explicit disconnects first.
	if ev.Status == "disconnected" {
		return false, true
	}
	if ev.Connected != nil && !*ev.Connected {
		return false, true
	}

	// Heuristic connect evidence.
	if connectedStatusAliases[ev.Status] {
		return true, true
	}
	if ev.Connected != nil && *ev.Connected {
		return true, true
	}
	if ev.DeviceConnected != nil && *ev.DeviceConnected {
		return true, true
	}
	if ev.IsPlaying != nil && *ev.IsPlaying {
		return true, true
	}

	return false, false
}

// applyConnectionSignal folds one derived connect/disconnect signal into a
// record. The returned broadcasts are empty for no-op transitions.
func applyConnectionSignal(rec ConnectionRecord, connected bool, reason string, deviceName, host string, now time.Time) (ConnectionRecord, []Broadcast) {
	rec.Derived = connected
	if deviceName != "" {
		rec.DeviceName = deviceName
	}
	if host != "" {
		rec.Host = host
	}
	if !connected {
		rec.DeviceName = ""
	}

	effective := rec.Derived
	if rec.ManualOverride != nil {
		effective = *rec.ManualOverride
	}
	return settleEffective(rec, effective, reason, now)
}

// applyOverride sets or clears the manual override. Clearing falls back to the
// last derived state rather than freezing the overridden value.
func applyOverride(rec ConnectionRecord, override *bool, now time.Time) (ConnectionRecord, []Broadcast) {
	rec.ManualOverride = override

	effective := rec.Derived
	reason := reasonOverrideCleared
	if override != nil {
		effective = *override
		reason = reasonOverrideSet
	}
	return settleEffective(rec, effective, reason, now)
}

func settleEffective(rec ConnectionRecord, effective bool, reason string, now time.Time) (ConnectionRecord, []Broadcast) {
	if rec.Connected == effective {
		return rec, nil
	}
	rec.Connected = effective
	rec.LastChangedAt = now
	return rec, []Broadcast{BroadcastConnectionChanged{
		Source:    rec.Source,
		Connected: effective,
		Reason:    reason,
		At:        now,
	}}
}
