package main

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

// mockBackend is a test double for the backend API
type mockBackend struct {
	changeSourceCalls []string
	setVolumeCalls    []float64
	pollCalls         []string

	pollStatus StatusUpdated
	failWith   error
}

func (m *mockBackend) ChangeSource(ctx context.Context, source string) error {
	m.changeSourceCalls = append(m.changeSourceCalls, source)
	return m.failWith
}

func (m *mockBackend) SendCommand(ctx context.Context, source, name string, data map[string]any) error {
	return m.failWith
}

func (m *mockBackend) SetVolume(ctx context.Context, percent float64) error {
	m.setVolumeCalls = append(m.setVolumeCalls, percent)
	return m.failWith
}

func (m *mockBackend) SetBand(ctx context.Context, band string, value float64) error {
	return m.failWith
}

func (m *mockBackend) SetFeature(ctx context.Context, flag string, enabled bool) error {
	return m.failWith
}

func (m *mockBackend) PollStatus(ctx context.Context, source string) (StatusUpdated, error) {
	m.pollCalls = append(m.pollCalls, source)
	if m.failWith != nil {
		return StatusUpdated{}, m.failWith
	}
	return m.pollStatus, nil
}

func collectEvents() (func(Event), *[]Event) {
	var events []Event
	return func(ev Event) { events = append(events, ev) }, &events
}

// TestRunEffect_SuccessEmitsNoObservation tests that successful writes stay
// silent; the authoritative update arrives via the event stream instead
func TestRunEffect_SuccessEmitsNoObservation(t *testing.T) {
	backend := &mockBackend{}
	onEvent, events := collectEvents()

	runEffect(context.Background(), backend, nil, CmdSetVolume{Percent: 55}, slog.Default(), onEvent)

	if len(*events) != 0 {
		t.Fatalf("expected no observations on success, got %d", len(*events))
	}
	if len(backend.setVolumeCalls) != 1 || backend.setVolumeCalls[0] != 55 {
		t.Errorf("expected one SetVolume(55) call, got %v", backend.setVolumeCalls)
	}
}

// TestRunEffect_FailureEmitsCommandFailed tests the failure observation path
func TestRunEffect_FailureEmitsCommandFailed(t *testing.T) {
	backend := &mockBackend{failWith: errors.New("HTTP 502")}
	onEvent, events := collectEvents()

	runEffect(context.Background(), backend, nil, CmdChangeSource{Source: "airplay"}, slog.Default(), onEvent)

	if len(*events) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(*events))
	}
	cf, ok := (*events)[0].(CommandFailed)
	if !ok {
		t.Fatalf("expected CommandFailed, got %T", (*events)[0])
	}
	if cf.Err == nil || cf.Err.Error() != "HTTP 502" {
		t.Errorf("unexpected error %v", cf.Err)
	}
}

// TestRunEffect_PollOutcomes tests that polls observe either the status event
// or a PollFailed
func TestRunEffect_PollOutcomes(t *testing.T) {
	backend := &mockBackend{pollStatus: StatusUpdated{Source: "bluetooth", Status: "playing"}}
	onEvent, events := collectEvents()

	runEffect(context.Background(), backend, nil, CmdPollStatus{Source: "bluetooth"}, slog.Default(), onEvent)
	if len(*events) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(*events))
	}
	if st, ok := (*events)[0].(StatusUpdated); !ok || st.Status != "playing" {
		t.Errorf("expected poll result observed, got %v", (*events)[0])
	}

	failing := &mockBackend{failWith: errors.New("timeout")}
	onEvent, events = collectEvents()
	runEffect(context.Background(), failing, nil, CmdPollStatus{Source: "spotify"}, slog.Default(), onEvent)
	if len(*events) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(*events))
	}
	if pf, ok := (*events)[0].(PollFailed); !ok || pf.Source != "spotify" {
		t.Errorf("expected PollFailed for spotify, got %v", (*events)[0])
	}
}

// TestRunEffect_NoBackend tests the guard when no client is configured
func TestRunEffect_NoBackend(t *testing.T) {
	onEvent, events := collectEvents()

	runEffect(context.Background(), nil, nil, CmdSetVolume{Percent: 10}, slog.Default(), onEvent)

	if len(*events) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(*events))
	}
	if _, ok := (*events)[0].(CommandFailed); !ok {
		t.Errorf("expected CommandFailed, got %T", (*events)[0])
	}
}

// TestRunEffect_PublishSnapshotNonBlocking tests that snapshot delivery never
// blocks the effects path
func TestRunEffect_PublishSnapshotNonBlocking(t *testing.T) {
	snap := Snapshot{ActiveSource: "bluetooth"}
	reply := make(chan Snapshot, 1)
	onEvent, _ := collectEvents()

	runEffect(context.Background(), &mockBackend{}, nil, CmdPublishSnapshot{Snapshot: snap, Reply: reply}, slog.Default(), onEvent)

	select {
	case got := <-reply:
		if got.ActiveSource != "bluetooth" {
			t.Errorf("unexpected snapshot %+v", got)
		}
	default:
		t.Fatal("expected snapshot delivered")
	}

	// Full channel: dropped, not deadlocked.
	full := make(chan Snapshot)
	runEffect(context.Background(), &mockBackend{}, nil, CmdPublishSnapshot{Snapshot: snap, Reply: full}, slog.Default(), onEvent)
}
