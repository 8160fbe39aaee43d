package main

import "time"

// ClientState is the top-level, daemon-owned state container.
//
// Goals:
//   - Keep all reducer-owned state in one place (pure reducer, no external
//     mutation).
//   - One canonical mirror of remote system state; everything outside the
//     daemon goroutine sees copies via Snapshot().
//
// Constructed once at startup and passed by reference to the daemon loop;
// nothing else holds a reference.
type ClientState struct {
	// System is the canonical mirror of backend system state.
	System SystemState

	// Presence holds one ConnectionRecord per monitored source.
	Presence map[string]ConnectionRecord

	// Clock is the playback position extrapolator for the active source.
	Clock PlayClock

	// Writes holds the in-flight coalesced control writes, keyed by control key.
	Writes map[string]*PendingWrite

	// LastPollAt tracks when each monitored source was last status-polled.
	LastPollAt map[string]time.Time
}

// NewClientState returns a state container with presence records for the given
// monitored sources.
func NewClientState(sources []string) *ClientState {
	s := &ClientState{
		System: SystemState{
			ActiveSource: sourceNone,
			PluginState:  pluginInactive,
			Metadata:     map[string]any{},
		},
		Presence:   make(map[string]ConnectionRecord, len(sources)),
		Writes:     map[string]*PendingWrite{},
		LastPollAt: make(map[string]time.Time, len(sources)),
	}
	for _, src := range sources {
		s.Presence[src] = ConnectionRecord{Source: src}
	}
	return s
}

// SystemState mirrors the backend's view of the audio system.
//
// Metadata is free-form and source-specific; fields come and go per source and
// absence always means "unknown", never false/zero.
type SystemState struct {
	ActiveSource  string
	PluginState   string
	Transitioning bool
	// TargetSource is meaningful only while Transitioning.
	TargetSource string

	Metadata map[string]any

	VolumePercent float64
	VolumeKnown   bool

	Err string

	MultiroomEnabled bool
	EqualizerEnabled bool
}

// ConnectionRecord tracks presence for one monitored source.
type ConnectionRecord struct {
	Source string

	// Connected is the effective state: the manual override when set,
	// otherwise the last derived state.
	Connected bool

	// Derived is what the signal machinery last concluded, kept so clearing the
	// override falls back to reality instead of a stale effective value.
	Derived bool

	DeviceName    string
	Host          string
	LastChangedAt time.Time

	// ManualOverride is the diagnostic escape hatch; non-nil wins over Derived.
	ManualOverride *bool
}

// PendingWrite is the coalescer bookkeeping for one control key.
//
// Lifecycle: created on the first interaction with a quiescent key (which sends
// immediately), updated latest-wins by further interactions, destroyed once the
// settle deadline passes and the final value went out.
type PendingWrite struct {
	Key         string
	LatestValue float64

	LastSentAt    time.Time
	LastSentValue float64

	// SettleAt is re-anchored to quiescence on every submit; when it elapses the
	// final value is always sent, even if a throttled send already carried it.
	SettleAt time.Time
}

// ConnectionSnapshot is the read-only projection of a ConnectionRecord.
type ConnectionSnapshot struct {
	Connected     bool      `json:"connected"`
	DeviceName    string    `json:"deviceName,omitempty"`
	Host          string    `json:"host,omitempty"`
	LastChangedAt time.Time `json:"lastChangedAt"`
	Overridden    bool      `json:"overridden"`
}

// Snapshot is a point-in-time copy of mirrored state handed to consumers.
// It shares no mutable structure with ClientState.
type Snapshot struct {
	ActiveSource  string `json:"activeSource"`
	PluginState   string `json:"pluginState"`
	Transitioning bool   `json:"transitioning"`
	TargetSource  string `json:"targetSource,omitempty"`

	Metadata map[string]any `json:"metadata"`

	VolumePercent float64 `json:"volume"`
	VolumeKnown   bool    `json:"volumeKnown"`

	PositionMS int64   `json:"positionMs"`
	DurationMS int64   `json:"durationMs"`
	Playing    bool    `json:"playing"`
	Progress   float64 `json:"progress"`

	Err string `json:"error,omitempty"`

	MultiroomEnabled bool `json:"multiroomEnabled"`
	EqualizerEnabled bool `json:"equalizerEnabled"`

	Connections map[string]ConnectionSnapshot `json:"connections"`

	At time.Time `json:"at"`
}

// Snapshot produces a consumer-safe copy of the current state.
func (s *ClientState) Snapshot(now time.Time) Snapshot {
	meta := make(map[string]any, len(s.System.Metadata))
	for k, v := range s.System.Metadata {
		meta[k] = v
	}

	conns := make(map[string]ConnectionSnapshot, len(s.Presence))
	for src, rec := range s.Presence {
		conns[src] = ConnectionSnapshot{
			Connected:     rec.Connected,
			DeviceName:    rec.DeviceName,
			Host:          rec.Host,
			LastChangedAt: rec.LastChangedAt,
			Overridden:    rec.ManualOverride != nil,
		}
	}

	return Snapshot{
		ActiveSource:     s.System.ActiveSource,
		PluginState:      s.System.PluginState,
		Transitioning:    s.System.Transitioning,
		TargetSource:     s.System.TargetSource,
		Metadata:         meta,
		VolumePercent:    s.System.VolumePercent,
		VolumeKnown:      s.System.VolumeKnown,
		PositionMS:       s.Clock.PositionMS,
		DurationMS:       s.Clock.DurationMS,
		Playing:          s.Clock.Playing,
		Progress:         s.Clock.Progress(),
		Err:              s.System.Err,
		MultiroomEnabled: s.System.MultiroomEnabled,
		EqualizerEnabled: s.System.EqualizerEnabled,
		Connections:      conns,
		At:               now,
	}
}
