package main

import (
	"fmt"
	"time"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect requested by the reducer and
// executed by the daemon loop. Commands are fire-and-forget from the mirror's
// perspective: the authoritative state update always arrives later via the
// event stream, never from the command response.
type Command interface {
	commandMarker()
	String() string
}

// CmdChangeSource asks the backend to switch the active source.
type CmdChangeSource struct {
	Source string
}

func (CmdChangeSource) commandMarker() {}
func (c CmdChangeSource) String() string {
	return fmt.Sprintf("CmdChangeSource(source=%s)", c.Source)
}

// CmdSendCommand forwards a plugin command (play, pause, next, ...).
type CmdSendCommand struct {
	Source string
	Name   string
	Data   map[string]any
}

func (CmdSendCommand) commandMarker() {}
func (c CmdSendCommand) String() string {
	return fmt.Sprintf("CmdSendCommand(source=%s, name=%s)", c.Source, c.Name)
}

// CmdSetVolume sets the backend master volume.
type CmdSetVolume struct {
	Percent float64
}

func (CmdSetVolume) commandMarker() {}
func (c CmdSetVolume) String() string {
	return fmt.Sprintf("CmdSetVolume(percent=%.1f)", c.Percent)
}

// CmdSetBand sets one equalizer band.
type CmdSetBand struct {
	Band  string
	Value float64
}

func (CmdSetBand) commandMarker() {}
func (c CmdSetBand) String() string {
	return fmt.Sprintf("CmdSetBand(band=%s, value=%.1f)", c.Band, c.Value)
}

// CmdSetFeature toggles a backend feature flag.
type CmdSetFeature struct {
	Flag    string
	Enabled bool
}

func (CmdSetFeature) commandMarker() {}
func (c CmdSetFeature) String() string {
	return fmt.Sprintf("CmdSetFeature(flag=%s, enabled=%v)", c.Flag, c.Enabled)
}

// CmdPollStatus requests a status poll for one monitored source.
type CmdPollStatus struct {
	Source string
}

func (CmdPollStatus) commandMarker() {}
func (c CmdPollStatus) String() string {
	return fmt.Sprintf("CmdPollStatus(source=%s)", c.Source)
}

// CmdCacheDevice upserts a paired device into the local device cache.
type CmdCacheDevice struct {
	Source     string
	DeviceName string
	Host       string
}

func (CmdCacheDevice) commandMarker() {}
func (c CmdCacheDevice) String() string {
	return fmt.Sprintf("CmdCacheDevice(source=%s, device=%s)", c.Source, c.DeviceName)
}

// CmdPublishSnapshot delivers a reducer-produced snapshot to a requester.
// The channel send lives in the effects layer to keep the reducer pure.
type CmdPublishSnapshot struct {
	Snapshot Snapshot
	Reply    chan Snapshot
}

func (CmdPublishSnapshot) commandMarker() {}
func (CmdPublishSnapshot) String() string { return "CmdPublishSnapshot()" }

// ==============================
// Broadcasts (local notifications)
// ==============================

// Broadcast is a reducer-emitted local notification, fanned out to in-process
// subscribers (screens, scripts) by the notifier hub.
type Broadcast interface {
	broadcastMarker()
}

// BroadcastConnectionChanged is emitted on every actual presence transition.
type BroadcastConnectionChanged struct {
	Source    string    `json:"source"`
	Connected bool      `json:"connected"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"timestamp"`
}

func (BroadcastConnectionChanged) broadcastMarker() {}

// BroadcastPositionSeek is emitted on authoritative position overrides so
// consumers (and the clock) don't fight the new value on the next tick.
type BroadcastPositionSeek struct {
	Source     string    `json:"source"`
	PositionMS int64     `json:"position"`
	At         time.Time `json:"timestamp"`
}

func (BroadcastPositionSeek) broadcastMarker() {}

// BroadcastVolumeChanged is emitted when the mirrored master volume changes.
type BroadcastVolumeChanged struct {
	Percent float64   `json:"volume"`
	At      time.Time `json:"timestamp"`
}

func (BroadcastVolumeChanged) broadcastMarker() {}
