package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the hifimirror daemon.
//
// The config file is the primary configuration surface; flags exist for small
// overrides and for environments where a file is awkward. Defaults and
// validation live here so the rest of the code can assume a well-formed config.
type Config struct {
	// Backend server connection
	Server ServerConfig `yaml:"server"`

	// Mirror / reducer tuning
	Mirror MirrorFileConfig `yaml:"mirror"`

	// Sources to monitor for presence
	Sources []string `yaml:"sources"`

	// Local notifier endpoint
	Notify NotifyConfig `yaml:"notify"`

	// Paired device cache
	Cache CacheConfig `yaml:"cache"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	BaseURL   string `yaml:"base_url"`
	EventsURL string `yaml:"events_url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// MirrorFileConfig is the user-facing mirror tuning as represented in YAML.
// It maps 1:1 to MirrorConfig but uses YAML-friendly millisecond integers.
type MirrorFileConfig struct {
	TickMS           int `yaml:"tick_ms"`
	PollIntervalMS   int `yaml:"poll_interval_ms"`
	DriftToleranceMS int `yaml:"drift_tolerance_ms"`
	SeekGraceMS      int `yaml:"seek_grace_ms"`
	ThrottleMS       int `yaml:"throttle_ms"`
	SettleMS         int `yaml:"settle_ms"`
}

type NotifyConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

type CacheConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go defaults and current CLI defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			BaseURL:   "http://127.0.0.1:8080",
			EventsURL: "ws://127.0.0.1:8080/api/events",
			TimeoutMS: defaultReadTimeoutMS,
		},
		Mirror: MirrorFileConfig{
			TickMS:           defaultTickMS,
			PollIntervalMS:   defaultPollIntervalMS,
			DriftToleranceMS: defaultDriftToleranceMS,
			SeekGraceMS:      defaultSeekGraceMS,
			ThrottleMS:       defaultThrottleMS,
			SettleMS:         defaultSettleMS,
		},
		Sources: []string{"bluetooth", "airplay", "spotify", "snapclient"},
		Notify: NotifyConfig{
			Addr: "127.0.0.1:3002",
			Path: "/ws/state",
		},
		Cache: CacheConfig{
			Path:    "~/.local/state/hifimirror/devices.db",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies flag values on top of a loaded config. Flags pass
// pointers; a nil pointer means "not set, don't touch".
type FlagOverrides struct {
	ServerBaseURL   *string
	ServerEventsURL *string
	ServerTimeoutMS *int

	TickMS         *int
	PollIntervalMS *int

	NotifyAddr *string

	CachePath    *string
	CacheEnabled *bool

	LogLevel *string
}

// Apply merges the overrides into cfg. Non-nil values are applied even when
// they are zero values.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.ServerBaseURL != nil {
		cfg.Server.BaseURL = *o.ServerBaseURL
	}
	if o.ServerEventsURL != nil {
		cfg.Server.EventsURL = *o.ServerEventsURL
	}
	if o.ServerTimeoutMS != nil {
		cfg.Server.TimeoutMS = *o.ServerTimeoutMS
	}
	if o.TickMS != nil {
		cfg.Mirror.TickMS = *o.TickMS
	}
	if o.PollIntervalMS != nil {
		cfg.Mirror.PollIntervalMS = *o.PollIntervalMS
	}
	if o.NotifyAddr != nil {
		cfg.Notify.Addr = *o.NotifyAddr
	}
	if o.CachePath != nil {
		cfg.Cache.Path = *o.CachePath
	}
	if o.CacheEnabled != nil {
		cfg.Cache.Enabled = *o.CacheEnabled
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return errors.New("server.base_url must not be empty")
	}
	if c.Server.EventsURL == "" {
		return errors.New("server.events_url must not be empty")
	}
	if c.Server.TimeoutMS <= 0 {
		return errors.New("server.timeout_ms must be > 0")
	}

	if c.Mirror.TickMS <= 0 {
		return errors.New("mirror.tick_ms must be > 0")
	}
	if c.Mirror.PollIntervalMS <= 0 {
		return errors.New("mirror.poll_interval_ms must be > 0")
	}
	if c.Mirror.DriftToleranceMS < 0 {
		return errors.New("mirror.drift_tolerance_ms must be >= 0")
	}
	if c.Mirror.SeekGraceMS < 0 {
		return errors.New("mirror.seek_grace_ms must be >= 0")
	}
	if c.Mirror.ThrottleMS <= 0 {
		return errors.New("mirror.throttle_ms must be > 0")
	}
	if c.Mirror.SettleMS < c.Mirror.ThrottleMS {
		return errors.New("mirror.settle_ms must be >= mirror.throttle_ms")
	}

	if len(c.Sources) == 0 {
		return errors.New("sources must not be empty")
	}
	for i, src := range c.Sources {
		if src == "" {
			return fmt.Errorf("sources[%d] is empty", i)
		}
	}

	if c.Notify.Addr == "" {
		return errors.New("notify.addr must not be empty")
	}
	if c.Notify.Path == "" {
		return errors.New("notify.path must not be empty")
	}

	if c.Cache.Enabled && c.Cache.Path == "" {
		return errors.New("cache.enabled is true but cache.path is empty")
	}

	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ToMirrorConfig converts file config into the internal reducer config.
func (c *Config) ToMirrorConfig() MirrorConfig {
	return MirrorConfig{
		Clock: ClockConfig{
			DriftTolerance:     time.Duration(c.Mirror.DriftToleranceMS) * time.Millisecond,
			SeekGrace:          time.Duration(c.Mirror.SeekGraceMS) * time.Millisecond,
			SpuriousResetFloor: spuriousResetFloorMS * time.Millisecond,
		},
		Writes: WriteConfig{
			Throttle: time.Duration(c.Mirror.ThrottleMS) * time.Millisecond,
			Settle:   time.Duration(c.Mirror.SettleMS) * time.Millisecond,
		},
		PollInterval: time.Duration(c.Mirror.PollIntervalMS) * time.Millisecond,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
