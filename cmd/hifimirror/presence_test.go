package main

import (
	"testing"
	"time"
)

var presenceBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func boolPtr(b bool) *bool { return &b }

// TestDeriveStatusSignal_Aliases tests the heuristic connect alias set
func TestDeriveStatusSignal_Aliases(t *testing.T) {
	for _, status := range []string{"connected", "playing", "paused", "active"} {
		connected, ok := deriveStatusSignal(StatusUpdated{Status: status})
		if !ok || !connected {
			t.Errorf("expected status %q to imply connected", status)
		}
	}

	connected, ok := deriveStatusSignal(StatusUpdated{Status: "disconnected"})
	if !ok || connected {
		t.Error("expected status disconnected to imply disconnected")
	}

	// Unrelated status traffic carries no presence signal.
	if _, ok := deriveStatusSignal(StatusUpdated{Status: "buffering"}); ok {
		t.Error("expected no signal from unrecognized status")
	}
}

// TestDeriveStatusSignal_ExplicitDisconnectWins tests that an explicit
// disconnect beats simultaneous heuristic connect evidence
func TestDeriveStatusSignal_ExplicitDisconnectWins(t *testing.T) {
	connected, ok := deriveStatusSignal(StatusUpdated{
		Status:    "disconnected",
		IsPlaying: boolPtr(true),
	})
	if !ok || connected {
		t.Error("expected explicit disconnect to win over is_playing=true")
	}

	connected, ok = deriveStatusSignal(StatusUpdated{
		Status:          "playing",
		Connected:       boolPtr(false),
		DeviceConnected: boolPtr(true),
	})
	if !ok || connected {
		t.Error("expected connected=false to win over playing status")
	}
}

// TestDeriveStatusSignal_FlagEvidence tests the boolean connect flags
func TestDeriveStatusSignal_FlagEvidence(t *testing.T) {
	if c, ok := deriveStatusSignal(StatusUpdated{Connected: boolPtr(true)}); !ok || !c {
		t.Error("expected connected=true to imply connected")
	}
	if c, ok := deriveStatusSignal(StatusUpdated{DeviceConnected: boolPtr(true)}); !ok || !c {
		t.Error("expected deviceConnected=true to imply connected")
	}
	if c, ok := deriveStatusSignal(StatusUpdated{IsPlaying: boolPtr(true)}); !ok || !c {
		t.Error("expected is_playing=true to imply connected")
	}
}

// TestApplyConnectionSignal_ChangeOnlyNotification tests that repeated
// identical signals do not re-notify
func TestApplyConnectionSignal_ChangeOnlyNotification(t *testing.T) {
	rec := ConnectionRecord{Source: "bluetooth"}

	rec, bcasts := applyConnectionSignal(rec, true, reasonStatusConnected, "Pixel 8", "", presenceBase)
	if len(bcasts) != 1 {
		t.Fatalf("expected 1 broadcast on first connect, got %d", len(bcasts))
	}
	bc := bcasts[0].(BroadcastConnectionChanged)
	if !bc.Connected || bc.Source != "bluetooth" || bc.Reason != reasonStatusConnected {
		t.Errorf("unexpected broadcast %+v", bc)
	}
	if rec.DeviceName != "Pixel 8" {
		t.Errorf("expected device name recorded, got %q", rec.DeviceName)
	}

	// Same signal again: absorbed.
	rec, bcasts = applyConnectionSignal(rec, true, reasonStatusConnected, "Pixel 8", "", presenceBase.Add(time.Second))
	if len(bcasts) != 0 {
		t.Fatalf("expected repeated signal absorbed, got %d broadcasts", len(bcasts))
	}

	// Disconnect: notified, device name cleared.
	rec, bcasts = applyConnectionSignal(rec, false, reasonMonitorLost, "", "", presenceBase.Add(2*time.Second))
	if len(bcasts) != 1 {
		t.Fatalf("expected 1 broadcast on disconnect, got %d", len(bcasts))
	}
	if rec.DeviceName != "" {
		t.Errorf("expected device name cleared on disconnect, got %q", rec.DeviceName)
	}
}

// TestApplyOverride_Precedence tests that the manual override masks derived
// signals and that clearing falls back to reality
func TestApplyOverride_Precedence(t *testing.T) {
	rec := ConnectionRecord{Source: "airplay"}

	// Force connected while actually disconnected.
	rec, bcasts := applyOverride(rec, boolPtr(true), presenceBase)
	if len(bcasts) != 1 || !rec.Connected {
		t.Fatal("expected override to force connected")
	}

	// Derived disconnect while overridden: no effective change, no broadcast,
	// but the derived value is tracked.
	rec, bcasts = applyConnectionSignal(rec, false, reasonPollFailed, "", "", presenceBase.Add(time.Second))
	if len(bcasts) != 0 {
		t.Fatalf("expected override to mask derived disconnect, got %d broadcasts", len(bcasts))
	}
	if !rec.Connected || rec.Derived {
		t.Errorf("expected effective=true derived=false, got %+v", rec)
	}

	// Clearing the override falls back to the derived state.
	rec, bcasts = applyOverride(rec, nil, presenceBase.Add(2*time.Second))
	if len(bcasts) != 1 {
		t.Fatalf("expected broadcast when clearing override changes effective state, got %d", len(bcasts))
	}
	if rec.Connected {
		t.Error("expected fallback to derived disconnected state")
	}
	if bcasts[0].(BroadcastConnectionChanged).Reason != reasonOverrideCleared {
		t.Errorf("unexpected reason %q", bcasts[0].(BroadcastConnectionChanged).Reason)
	}
}

// TestApplyOverride_ClearWithoutChange tests that clearing an override that
// matches reality stays silent
func TestApplyOverride_ClearWithoutChange(t *testing.T) {
	rec := ConnectionRecord{Source: "spotify"}
	rec, _ = applyConnectionSignal(rec, true, reasonStatusConnected, "", "", presenceBase)
	rec, _ = applyOverride(rec, boolPtr(true), presenceBase.Add(time.Second))

	rec, bcasts := applyOverride(rec, nil, presenceBase.Add(2*time.Second))
	if len(bcasts) != 0 {
		t.Fatalf("expected silent clear, got %d broadcasts", len(bcasts))
	}
	if !rec.Connected {
		t.Error("expected still connected after clear")
	}
}
