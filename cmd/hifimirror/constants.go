package main

// Mirror loop configuration
const (
	defaultTickMS         = 100  // Core tick cadence (ms); drives clock extrapolation and write flushing
	defaultPollIntervalMS = 5000 // Per-source status poll interval (ms)
	defaultReadTimeoutMS  = 5000 // Timeout for backend REST responses (ms)

	// Playback clock tuning
	//
	// Drift below the tolerance is normal timer jitter and is NOT corrected, so the
	// displayed position doesn't jump on every heartbeat. Larger divergence snaps.
	defaultDriftToleranceMS = 1000
	defaultSeekGraceMS      = 200 // Window after a local seek during which stale server echoes are ignored

	// A server position of exactly 0 while the local clock is past this floor and
	// playback is active is treated as a spurious reset, not a rewind-to-start.
	spuriousResetFloorMS = 5000

	// Write coalescing
	defaultThrottleMS = 100 // Minimum spacing between sends for one control key
	defaultSettleMS   = 300 // Quiescence delay before the final value is always sent
)

// Source id the backend reports when nothing owns playback.
const sourceNone = "none"

// Plugin lifecycle states as reported by the backend.
const (
	pluginInactive  = "inactive"
	pluginReady     = "ready"
	pluginConnected = "connected"
	pluginError     = "error"
)

// Coalescer key for the master volume control. Equalizer bands use "eq:<band-id>".
const controlKeyVolume = "volume"

const eqKeyPrefix = "eq:"
