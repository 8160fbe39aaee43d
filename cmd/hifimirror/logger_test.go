package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// TestParseLogLevel tests the level string mapping, including the "warning"
// alias and case folding
func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"error", slog.LevelError},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"info", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
	}
	for _, tc := range cases {
		got, err := parseLogLevel(tc.in)
		if err != nil {
			t.Errorf("parseLogLevel(%q) returned error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if _, err := parseLogLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

// TestSetupLogger_LevelFiltering tests that records below the configured level
// are suppressed
func TestSetupLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, slog.LevelWarn)

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("expected info record suppressed at warn level")
	}
	if !strings.Contains(out, "visible") {
		t.Error("expected warn record emitted")
	}
}
