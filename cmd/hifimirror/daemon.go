package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Central daemon loop
// ============================================================================
//
// Design rules enforced here:
//   - The reducer performs no I/O and computes: next state + commands + broadcasts.
//   - The daemon loop is the only place that executes side effects.
//   - Effect outcomes are turned into Events and fed back into the reducer.
//   - Explicit event and command queues; no nested/re-entrant execution.
//
// Single-owner rule: the ClientState passed in is owned by this goroutine for
// the daemon's lifetime. Everything else sees copies (Snapshot) or broadcasts.
// ============================================================================

// runDaemon is the main loop:
//   - Receives Events from the transport, local actions, and effect observations
//   - Emits Tick events on a fixed cadence
//   - Reduces events into (state, commands, broadcasts)
//   - Executes commands and feeds observations back into the reducer
//   - Forwards broadcasts to the notifier
//
// Exits when ctx is cancelled or the events channel is closed.
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	backend BackendAPI,
	cache *DeviceCache,
	cfg MirrorConfig,
	state *ClientState,
	tickInterval time.Duration,
	broadcasts chan<- Broadcast,
	logger *slog.Logger,
) {
	if state == nil {
		logger.Error("daemon state is nil")
		return
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var eventQueue []Event
	var cmdQueue []Command

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}
	enqueueCommands := func(cmds []Command) {
		if len(cmds) == 0 {
			return
		}
		cmdQueue = append(cmdQueue, cmds...)
	}
	forwardBroadcasts := func(bcasts []Broadcast) {
		if broadcasts == nil {
			return
		}
		for _, b := range bcasts {
			select {
			case broadcasts <- b:
			default:
				// The notifier already drops on its own full queues; a stuck
				// notifier must not stall the daemon.
				logger.Warn("broadcast channel full, dropping")
			}
		}
	}

	// Reduce all queued events, enqueuing any resulting commands.
	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(state, ev, cfg)
			if rr.State != nil {
				state = rr.State
			}
			enqueueCommands(rr.Commands)
			forwardBroadcasts(rr.Broadcasts)
		}
	}

	// Execute all queued commands, reducing observations promptly so state
	// stays coherent and follow-up commands run in order.
	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			runEffect(ctx, backend, cache, cmd, logger, func(obs Event) {
				enqueueEvent(TimedEvent{Event: obs, At: time.Now()})
			})
			flushEvents()
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			enqueueEvent(TimedEvent{Event: ev, At: time.Now()})
			flushEvents()
			flushCommands()

		case now := <-ticker.C:
			enqueueEvent(Tick{Now: now})
			flushEvents()
			flushCommands()
		}
	}
}
