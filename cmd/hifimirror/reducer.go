package main

import "time"

// This file implements the reducer-style core:
//
//   - Events: inputs (backend push events, local actions, ticks, observations)
//   - Commands: side effects requested by the reducer (REST calls, cache writes)
//   - Broadcasts: local notifications for in-process subscribers
//   - Reduce(): computes next state + commands + broadcasts, without I/O
//
// The reducer must be pure: no network, no timers, no mutation outside the
// returned state. The daemon loop executes Commands and feeds observations
// back as Events.
//
// Failure semantics: malformed or missing sub-fields degrade to per-field
// no-ops. Nothing here may panic on payload shape; the worst allowed outcome
// is a momentarily stale display that the next event corrects.

// TimedEvent wraps an Event with its arrival time so the reducer never reads
// the wall clock itself.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// MirrorConfig bundles the tunables the reducer needs.
type MirrorConfig struct {
	Clock        ClockConfig
	Writes       WriteConfig
	PollInterval time.Duration
}

// DefaultMirrorConfig returns the representative tuning from constants.go.
func DefaultMirrorConfig() MirrorConfig {
	return MirrorConfig{
		Clock:        DefaultClockConfig(),
		Writes:       DefaultWriteConfig(),
		PollInterval: defaultPollIntervalMS * time.Millisecond,
	}
}

// ReduceResult is the output of Reduce(): next state plus the side effects and
// notifications it requests.
type ReduceResult struct {
	State      *ClientState
	Commands   []Command
	Broadcasts []Broadcast
}

// Reduce is the pure reducer.
func Reduce(s *ClientState, e Event, cfg MirrorConfig) ReduceResult {
	if s == nil {
		s = NewClientState(nil)
	}

	now := time.Now()
	if te, ok := e.(TimedEvent); ok {
		now = te.At
		e = te.Event
	}

	var cmds []Command
	var bcasts []Broadcast

	switch ev := e.(type) {
	case Tick:
		now = ev.Now
		s.Clock = s.Clock.Tick(now)
		cmds = append(cmds, flushWrites(s, now)...)
		cmds = append(cmds, duePolls(s, now, cfg.PollInterval)...)

	// ---- backend push events -------------------------------------------

	case StateChanged:
		bcasts = append(bcasts, applyStateChanged(s, ev, now, cfg)...)

	case TransitionStarted:
		s.System.Transitioning = true
		s.System.TargetSource = ev.Target

	case TransitionCompleted:
		prev := s.System.ActiveSource
		s.System.ActiveSource = ev.Source
		s.System.Transitioning = false
		s.System.TargetSource = ""
		if ev.Source == sourceNone {
			s.System.Metadata = map[string]any{}
			s.System.PluginState = pluginInactive
			s.Clock = s.Clock.Stop()
			s.Clock.Playing = false
		} else if ev.Source != prev {
			// New source: the old position means nothing, snap on the next
			// heartbeat instead of drift-guarding against it.
			s.Clock.ForceResync = true
		}

	case MetadataUpdated:
		if ev.Source != s.System.ActiveSource {
			break // stale or cross-source traffic, expected and dropped
		}
		trackChanged := trackChangeMarker(s, ev.Fields)
		mergeMetadata(s, ev.Fields)
		syncClockFromMetadata(s, ev.Fields, trackChanged, now, cfg)

	case StatusUpdated:
		c, b := applyStatusUpdated(s, ev, now)
		cmds = append(cmds, c...)
		bcasts = append(bcasts, b...)

	case SeekPerformed:
		if ev.Source != s.System.ActiveSource {
			break
		}
		s.System.Metadata["positionMs"] = ev.PositionMS
		// Seeking implies active playback.
		s.System.Metadata["isPlaying"] = true
		dur := s.Clock.DurationMS
		if ev.DurationMS != nil {
			dur = *ev.DurationMS
			s.System.Metadata["durationMs"] = dur
		}
		// Position override: snap unconditionally so the clock doesn't fight
		// the authoritative value on the next tick.
		s.Clock = s.Clock.ObserveServer(ev.PositionMS, dur, true, true, now, cfg.Clock)
		if !s.Clock.Running {
			s.Clock = s.Clock.Start(now)
		}
		bcasts = append(bcasts, BroadcastPositionSeek{Source: ev.Source, PositionMS: ev.PositionMS, At: now})

	case VolumeChanged:
		// While a local volume drag is coalescing, remote echoes for the same
		// control would fight it visually; drop them until the write settles.
		if hasPendingWrite(s, controlKeyVolume) {
			break
		}
		if !s.System.VolumeKnown || s.System.VolumePercent != ev.Percent {
			bcasts = append(bcasts, BroadcastVolumeChanged{Percent: ev.Percent, At: now})
		}
		s.System.VolumePercent = ev.Percent
		s.System.VolumeKnown = true

	case ErrorReported:
		s.System.Err = ev.Message

	case MonitorConnected:
		if rec, ok := s.Presence[ev.Source]; ok {
			next, b := applyConnectionSignal(rec, true, reasonMonitorConnected, ev.DeviceName, ev.Host, now)
			s.Presence[ev.Source] = next
			bcasts = append(bcasts, b...)
			if ev.DeviceName != "" {
				cmds = append(cmds, CmdCacheDevice{Source: ev.Source, DeviceName: ev.DeviceName, Host: ev.Host})
			}
		}

	case MonitorDisconnected:
		reason := ev.Reason
		if reason == "" {
			reason = reasonMonitorLost
		}
		cmds, bcasts = disconnectSource(s, ev.Source, reason, now, cmds, bcasts)

	case ServerDisappeared:
		cmds, bcasts = disconnectSource(s, ev.Source, reasonServerDisappeared, now, cmds, bcasts)

	case ServerDiscovered:
		// A discovered server means the plugin can reach its backend again, not
		// that a device is attached; record the host, leave presence derived.
		if rec, ok := s.Presence[ev.Source]; ok {
			rec.Host = ev.Host
			s.Presence[ev.Source] = rec
		}

	// ---- local actions --------------------------------------------------

	case AdjustControl:
		cmds = append(cmds, submitWrite(s, ev.Key, ev.Value, now, cfg.Writes)...)
		if ev.Key == controlKeyVolume {
			// Optimistic: the slider reflects the drag immediately; a later
			// correction, if any, arrives via the event stream.
			s.System.VolumePercent = ev.Value
			s.System.VolumeKnown = true
			bcasts = append(bcasts, BroadcastVolumeChanged{Percent: ev.Value, At: now})
		}

	case ChangeSourceRequested:
		cmds = append(cmds, CmdChangeSource{Source: ev.Source})

	case SendCommandRequested:
		src := ev.Source
		if src == "" {
			src = s.System.ActiveSource
		}
		cmds = append(cmds, CmdSendCommand{Source: src, Name: ev.Command, Data: ev.Data})

	case SeekRequested:
		s.Clock = s.Clock.Seek(ev.PositionMS, now, cfg.Clock)
		s.System.Metadata["positionMs"] = ev.PositionMS
		cmds = append(cmds, CmdSendCommand{
			Source: s.System.ActiveSource,
			Name:   "seek",
			Data:   map[string]any{"positionMs": ev.PositionMS},
		})
		bcasts = append(bcasts, BroadcastPositionSeek{Source: s.System.ActiveSource, PositionMS: ev.PositionMS, At: now})

	case SetFeatureRequested:
		switch ev.Flag {
		case "multiroom":
			s.System.MultiroomEnabled = ev.Enabled
		case "equalizer":
			s.System.EqualizerEnabled = ev.Enabled
		}
		cmds = append(cmds, CmdSetFeature{Flag: ev.Flag, Enabled: ev.Enabled})

	case SetConnectionOverride:
		if rec, ok := s.Presence[ev.Source]; ok {
			next, b := applyOverride(rec, ev.Override, now)
			s.Presence[ev.Source] = next
			bcasts = append(bcasts, b...)
		}

	case Suspend:
		s.Clock = s.Clock.SuspendTicks()

	case Resume:
		s.Clock = s.Clock.ResumeTicks(now)
		// Refresh-all sweep: poll every monitored source now.
		for src := range s.Presence {
			s.LastPollAt[src] = now
			cmds = append(cmds, CmdPollStatus{Source: src})
		}

	case RequestSnapshot:
		cmds = append(cmds, CmdPublishSnapshot{Snapshot: s.Snapshot(now), Reply: ev.Reply})

	// ---- effects-layer observations ------------------------------------

	case PollFailed:
		cmds, bcasts = disconnectSource(s, ev.Source, reasonPollFailed, now, cmds, bcasts)

	case CommandFailed:
		if ev.Err != nil {
			s.System.Err = ev.Err.Error()
		}

	default:
		// Unknown event type: no-op.
	}

	return ReduceResult{State: s, Commands: cmds, Broadcasts: bcasts}
}

// applyStateChanged merges a (possibly partial) snapshot. Present fields
// replace wholesale; absent fields must not erase previously known state.
func applyStateChanged(s *ClientState, ev StateChanged, now time.Time, cfg MirrorConfig) []Broadcast {
	var bcasts []Broadcast

	if ev.ActiveSource != nil {
		if *ev.ActiveSource != s.System.ActiveSource {
			s.Clock.ForceResync = true
		}
		s.System.ActiveSource = *ev.ActiveSource
	}
	if ev.PluginState != nil {
		s.System.PluginState = *ev.PluginState
	}
	if ev.Transitioning != nil {
		s.System.Transitioning = *ev.Transitioning
		if !*ev.Transitioning {
			s.System.TargetSource = ""
		}
	}
	if ev.TargetSource != nil {
		s.System.TargetSource = *ev.TargetSource
	}
	if ev.VolumePercent != nil && !hasPendingWrite(s, controlKeyVolume) {
		if !s.System.VolumeKnown || s.System.VolumePercent != *ev.VolumePercent {
			bcasts = append(bcasts, BroadcastVolumeChanged{Percent: *ev.VolumePercent, At: now})
		}
		s.System.VolumePercent = *ev.VolumePercent
		s.System.VolumeKnown = true
	}
	if ev.MultiroomEnabled != nil {
		s.System.MultiroomEnabled = *ev.MultiroomEnabled
	}
	if ev.EqualizerEnabled != nil {
		s.System.EqualizerEnabled = *ev.EqualizerEnabled
	}
	if ev.Metadata != nil {
		trackChanged := trackChangeMarker(s, ev.Metadata)
		s.System.Metadata = map[string]any{}
		mergeMetadata(s, ev.Metadata)
		syncClockFromMetadata(s, ev.Metadata, trackChanged, now, cfg)
	}

	return bcasts
}

// applyStatusUpdated folds a status event into presence (for the event's own
// source) and into the mirror (for the active source only).
func applyStatusUpdated(s *ClientState, ev StatusUpdated, now time.Time) ([]Command, []Broadcast) {
	var cmds []Command
	var bcasts []Broadcast

	connected, ok := deriveStatusSignal(ev)
	if !ok {
		return nil, nil
	}

	if rec, present := s.Presence[ev.Source]; present {
		reason := reasonStatusConnected
		if !connected {
			reason = reasonStatusDisconnected
		}
		next, b := applyConnectionSignal(rec, connected, reason, ev.DeviceName, ev.Host, now)
		s.Presence[ev.Source] = next
		bcasts = append(bcasts, b...)

		if connected && ev.DeviceName != "" {
			cmds = append(cmds, CmdCacheDevice{Source: ev.Source, DeviceName: ev.DeviceName, Host: ev.Host})
		}
	}

	if ev.Source != s.System.ActiveSource {
		return cmds, bcasts
	}

	if !connected {
		// Explicit disconnection clears what we knew about the detached device
		// and stops position extrapolation.
		s.System.Metadata = map[string]any{}
		s.Clock = s.Clock.Stop()
		s.Clock.Playing = false
		return cmds, bcasts
	}

	if ev.IsPlaying != nil {
		s.System.Metadata["isPlaying"] = *ev.IsPlaying
		s.Clock.Playing = *ev.IsPlaying
		if *ev.IsPlaying && !s.Clock.Running {
			s.Clock = s.Clock.Start(now)
		}
		if !*ev.IsPlaying {
			s.Clock = s.Clock.Stop()
		}
	}
	if ev.DeviceName != "" {
		s.System.Metadata["deviceName"] = ev.DeviceName
	}

	return cmds, bcasts
}

// disconnectSource applies an explicit-disconnect signal for source and, when
// it is the active source, stops the clock and clears its metadata.
func disconnectSource(s *ClientState, source, reason string, now time.Time, cmds []Command, bcasts []Broadcast) ([]Command, []Broadcast) {
	if rec, ok := s.Presence[source]; ok {
		next, b := applyConnectionSignal(rec, false, reason, "", "", now)
		s.Presence[source] = next
		bcasts = append(bcasts, b...)
	}
	if source == s.System.ActiveSource {
		s.System.Metadata = map[string]any{}
		s.Clock = s.Clock.Stop()
		s.Clock.Playing = false
	}
	return cmds, bcasts
}

// mergeMetadata shallow-merges fields: present keys overwrite, absent keys are
// preserved. Consumers treat absence as "unknown", never as false/zero.
func mergeMetadata(s *ClientState, fields map[string]any) {
	if s.System.Metadata == nil {
		s.System.Metadata = map[string]any{}
	}
	for k, v := range fields {
		s.System.Metadata[k] = v
	}
}

// syncClockFromMetadata feeds position/duration/isPlaying fields, when present,
// into the playback clock.
func syncClockFromMetadata(s *ClientState, fields map[string]any, trackChanged bool, now time.Time, cfg MirrorConfig) {
	pos, hasPos := int64Field(fields, "positionMs")
	dur, hasDur := int64Field(fields, "durationMs")
	playing, hasPlaying := boolField(fields, "isPlaying")

	if !hasPlaying {
		playing = s.Clock.Playing
	}
	if !hasDur {
		dur = s.Clock.DurationMS
	}

	if hasPos {
		s.Clock = s.Clock.ObserveServer(pos, dur, playing, trackChanged, now, cfg.Clock)
	} else {
		if hasDur {
			s.Clock.DurationMS = dur
		}
		if hasPlaying {
			s.Clock.Playing = playing
		}
	}

	if playing && !s.Clock.Running {
		s.Clock = s.Clock.Start(now)
	}
	if hasPlaying && !playing {
		s.Clock = s.Clock.Stop()
	}
}

// trackChangeMarker reports whether a metadata payload marks a track change,
// which legitimizes a position of 0. Must run before the payload is merged so
// the trackId comparison sees the previous value.
func trackChangeMarker(s *ClientState, fields map[string]any) bool {
	if changed, ok := boolField(fields, "trackChanged"); ok && changed {
		return true
	}
	if id, ok := fields["trackId"].(string); ok {
		prev, had := s.System.Metadata["trackId"].(string)
		if !had || prev != id {
			return true
		}
	}
	return false
}

// duePolls emits a status poll for every monitored source whose poll interval
// has elapsed.
func duePolls(s *ClientState, now time.Time, interval time.Duration) []Command {
	if interval <= 0 {
		return nil
	}
	var cmds []Command
	for src := range s.Presence {
		last, ok := s.LastPollAt[src]
		if ok && now.Sub(last) < interval {
			continue
		}
		s.LastPollAt[src] = now
		cmds = append(cmds, CmdPollStatus{Source: src})
	}
	return cmds
}

// int64Field reads a numeric field from decoded JSON, which arrives as float64.
func int64Field(m map[string]any, key string) (int64, bool) {
	switch v := m[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

func boolField(m map[string]any, key string) (bool, bool) {
	v, ok := m[key].(bool)
	return v, ok
}
