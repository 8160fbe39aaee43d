package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// Events - inputs to the reducer
// ============================================================================
// Three families share the Event marker:
//   - Backend push events, decoded once from {topic, type, data} envelopes at
//     the transport boundary so the reducer works against typed shapes.
//   - Local actions (slider moves, source changes, suspend/resume) from UI
//     consumers.
//   - Observations fed back by the effects layer (poll results, command
//     failures) and the Tick that drives time-based behavior.
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// Tick is emitted by the daemon loop at a fixed cadence.
type Tick struct {
	Now time.Time
}

func (Tick) eventMarker() {}

// ==============================
// Backend push events
// ==============================

// StateChanged is a (possibly partial) snapshot of backend system state.
// Nil pointers mean "field absent from the payload"; absent fields must leave
// previously known state untouched.
type StateChanged struct {
	ActiveSource     *string
	PluginState      *string
	Transitioning    *bool
	TargetSource     *string
	VolumePercent    *float64
	Metadata         map[string]any
	MultiroomEnabled *bool
	EqualizerEnabled *bool
}

func (StateChanged) eventMarker() {}

// TransitionStarted signals the backend began switching to another source.
type TransitionStarted struct {
	Target string
}

func (TransitionStarted) eventMarker() {}

// TransitionCompleted signals the backend finished a source switch.
type TransitionCompleted struct {
	Source string
}

func (TransitionCompleted) eventMarker() {}

// MetadataUpdated carries source-scoped now-playing fields. Fields is a shallow
// merge payload: present keys overwrite, absent keys are preserved.
type MetadataUpdated struct {
	Source string
	Fields map[string]any
}

func (MetadataUpdated) eventMarker() {}

// StatusUpdated carries source-scoped status with heterogeneous connect signals.
// The reducer interprets the alias set; this type only preserves what was sent.
type StatusUpdated struct {
	Source          string
	Status          string
	Connected       *bool
	DeviceConnected *bool
	IsPlaying       *bool
	DeviceName      string
	Host            string
}

func (StatusUpdated) eventMarker() {}

// SeekPerformed reports an authoritative position override (seek done on the
// backend or by another client).
type SeekPerformed struct {
	Source       string
	PositionMS   int64
	DurationMS   *int64
	TrackChanged bool
}

func (SeekPerformed) eventMarker() {}

// VolumeChanged reports the backend master volume.
type VolumeChanged struct {
	Percent float64
}

func (VolumeChanged) eventMarker() {}

// ErrorReported surfaces a backend-pushed error message.
type ErrorReported struct {
	Source  string
	Message string
}

func (ErrorReported) eventMarker() {}

// MonitorConnected / MonitorDisconnected / ServerDisappeared / ServerDiscovered
// are per-source presence events ("snapclient_monitor_connected" etc).

type MonitorConnected struct {
	Source     string
	DeviceName string
	Host       string
}

func (MonitorConnected) eventMarker() {}

type MonitorDisconnected struct {
	Source string
	Reason string
}

func (MonitorDisconnected) eventMarker() {}

type ServerDisappeared struct {
	Source string
}

func (ServerDisappeared) eventMarker() {}

type ServerDiscovered struct {
	Source string
	Host   string
}

func (ServerDiscovered) eventMarker() {}

// ==============================
// Local actions
// ==============================

// AdjustControl is one intermediate interaction with a continuously-adjustable
// control (slider drag tick). Key is a coalescer key: "volume" or "eq:<band>".
type AdjustControl struct {
	Key   string
	Value float64
}

func (AdjustControl) eventMarker() {}

// ChangeSourceRequested asks the backend to switch the active source.
type ChangeSourceRequested struct {
	Source string
}

func (ChangeSourceRequested) eventMarker() {}

// SendCommandRequested forwards a transport-style command (play/pause/next/...)
// to the active source's plugin.
type SendCommandRequested struct {
	Source  string
	Command string
	Data    map[string]any
}

func (SendCommandRequested) eventMarker() {}

// SeekRequested is a locally-initiated seek.
type SeekRequested struct {
	PositionMS int64
}

func (SeekRequested) eventMarker() {}

// SetFeatureRequested toggles a backend feature flag (multiroom, equalizer).
type SetFeatureRequested struct {
	Flag    string
	Enabled bool
}

func (SetFeatureRequested) eventMarker() {}

// SetConnectionOverride sets or clears the diagnostic manual override for a
// source's connection state. Nil clears the override.
type SetConnectionOverride struct {
	Source   string
	Override *bool
}

func (SetConnectionOverride) eventMarker() {}

// Suspend indicates the consumer surface went invisible; clock extrapolation is
// unreliable while suspended and is paused rather than torn down.
type Suspend struct{}

func (Suspend) eventMarker() {}

// Resume triggers a refresh-all sweep and a forced clock resync.
type Resume struct{}

func (Resume) eventMarker() {}

// RequestSnapshot asks the daemon loop for a point-in-time copy of mirrored
// state. The reply is delivered by the effects layer, never by the reducer.
type RequestSnapshot struct {
	Reply chan Snapshot
}

func (RequestSnapshot) eventMarker() {}

// ==============================
// Effects-layer observations
// ==============================

// CommandFailed is emitted when executing a Command against the backend fails.
type CommandFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (CommandFailed) eventMarker() {}

// PollFailed is emitted when a status poll fails (5xx, timeout, transport
// error). Treated as an implicit disconnect, not as "unknown".
type PollFailed struct {
	Source string
	Err    error
	At     time.Time
}

func (PollFailed) eventMarker() {}

// ============================================================================
// Envelope decoding
// ============================================================================

// Envelope is the wire shape delivered by the push transport.
type Envelope struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// statePayload mirrors the state_changed wire shape with optional fields.
type statePayload struct {
	ActiveSource     *string        `json:"activeSource,omitempty"`
	PluginState      *string        `json:"pluginState,omitempty"`
	Transitioning    *bool          `json:"transitioning,omitempty"`
	TargetSource     *string        `json:"targetSource,omitempty"`
	Volume           *float64       `json:"volume,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	MultiroomEnabled *bool          `json:"multiroomEnabled,omitempty"`
	EqualizerEnabled *bool          `json:"equalizerEnabled,omitempty"`
}

type transitionPayload struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type statusPayload struct {
	Source          string `json:"source"`
	Status          string `json:"status"`
	Connected       *bool  `json:"connected,omitempty"`
	DeviceConnected *bool  `json:"deviceConnected,omitempty"`
	IsPlaying       *bool  `json:"is_playing,omitempty"`
	DeviceName      string `json:"deviceName,omitempty"`
	Host            string `json:"host,omitempty"`
}

type seekPayload struct {
	Source       string `json:"source"`
	PositionMS   int64  `json:"positionMs"`
	DurationMS   *int64 `json:"durationMs,omitempty"`
	TrackChanged bool   `json:"trackChanged,omitempty"`
}

type volumePayload struct {
	Volume float64 `json:"volume"`
}

type errorPayload struct {
	Source  string `json:"source,omitempty"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type presencePayload struct {
	Source     string `json:"source,omitempty"`
	DeviceName string `json:"deviceName,omitempty"`
	Host       string `json:"host,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// errUnknownEventType marks envelope types the mirror does not consume.
// The router drops these silently; they are expected traffic, not errors.
type errUnknownEventType struct {
	kind string
}

func (e errUnknownEventType) Error() string { return "unknown event type: " + e.kind }

// DecodeEvent turns one transport envelope into a typed Event.
//
// Decoding is deliberately tolerant: missing fields become zero values / nil
// pointers and the reducer treats them as no-ops per field. Only envelopes whose
// data is not valid JSON at all are rejected.
func DecodeEvent(env Envelope) (Event, error) {
	kind := canonicalEventType(env.Type)

	switch kind {
	case "state_changed":
		var p statePayload
		if err := unmarshalData(env.Data, &p); err != nil {
			return nil, err
		}
		return StateChanged{
			ActiveSource:     p.ActiveSource,
			PluginState:      p.PluginState,
			Transitioning:    p.Transitioning,
			TargetSource:     p.TargetSource,
			VolumePercent:    p.Volume,
			Metadata:         p.Metadata,
			MultiroomEnabled: p.MultiroomEnabled,
			EqualizerEnabled: p.EqualizerEnabled,
		}, nil

	case "transition_started":
		var p transitionPayload
		if err := unmarshalData(env.Data, &p); err != nil {
			return nil, err
		}
		return TransitionStarted{Target: p.Target}, nil

	case "transition_completed":
		var p transitionPayload
		if err := unmarshalData(env.Data, &p); err != nil {
			return nil, err
		}
		return TransitionCompleted{Source: p.Source}, nil

	case "metadata_updated":
		var fields map[string]any
		if err := unmarshalData(env.Data, &fields); err != nil {
			return nil, err
		}
		source, _ := fields["source"].(string)
		delete(fields, "source")
		return MetadataUpdated{Source: source, Fields: fields}, nil

	case "status_updated":
		var p statusPayload
		if err := unmarshalData(env.Data, &p); err != nil {
			return nil, err
		}
		return StatusUpdated{
			Source:          p.Source,
			Status:          p.Status,
			Connected:       p.Connected,
			DeviceConnected: p.DeviceConnected,
			IsPlaying:       p.IsPlaying,
			DeviceName:      p.DeviceName,
			Host:            p.Host,
		}, nil

	case "seek":
		var p seekPayload
		if err := unmarshalData(env.Data, &p); err != nil {
			return nil, err
		}
		return SeekPerformed{
			Source:       p.Source,
			PositionMS:   p.PositionMS,
			DurationMS:   p.DurationMS,
			TrackChanged: p.TrackChanged,
		}, nil

	case "volume_changed":
		var p volumePayload
		if err := unmarshalData(env.Data, &p); err != nil {
			return nil, err
		}
		return VolumeChanged{Percent: p.Volume}, nil

	case "error":
		var p errorPayload
		if err := unmarshalData(env.Data, &p); err != nil {
			return nil, err
		}
		msg := p.Message
		if msg == "" {
			msg = p.Error
		}
		return ErrorReported{Source: p.Source, Message: msg}, nil
	}

	// Presence events carry the source as a type prefix:
	// "<source>_monitor_connected", "<source>_server_disappeared", ...
	if source, suffix, ok := splitPresenceType(env.Type); ok {
		var p presencePayload
		if err := unmarshalData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.Source != "" {
			source = p.Source
		}
		switch suffix {
		case "monitor_connected":
			return MonitorConnected{Source: source, DeviceName: p.DeviceName, Host: p.Host}, nil
		case "monitor_disconnected":
			return MonitorDisconnected{Source: source, Reason: p.Reason}, nil
		case "server_disappeared":
			return ServerDisappeared{Source: source}, nil
		case "server_discovered":
			return ServerDiscovered{Source: source, Host: p.Host}, nil
		}
	}

	return nil, errUnknownEventType{kind: env.Type}
}

// canonicalEventType collapses the wire aliases onto one vocabulary.
func canonicalEventType(t string) string {
	switch t {
	case "audio_metadata_updated":
		return "metadata_updated"
	case "audio_status_updated":
		return "status_updated"
	case "audio_seek":
		return "seek"
	}
	return t
}

// splitPresenceType extracts ("snapclient", "monitor_connected", true) from
// "snapclient_monitor_connected".
func splitPresenceType(t string) (source, suffix string, ok bool) {
	for _, s := range []string{"monitor_connected", "monitor_disconnected", "server_disappeared", "server_discovered"} {
		if strings.HasSuffix(t, "_"+s) {
			return strings.TrimSuffix(t, "_"+s), s, true
		}
	}
	return "", "", false
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal event data: %w", err)
	}
	return nil
}
