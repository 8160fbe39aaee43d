package main

import (
	"context"
	"log/slog"
	"time"
)

// runEffect executes a single reducer-emitted Command against the backend API
// and the device cache, and emits observation Events via onEvent.
//
// Design rules:
// - This function is allowed to perform I/O.
// - It must never call Reduce() directly; it only emits Events to be reduced by
//   the daemon loop.
// - The daemon loop is responsible for sequencing: Reduce -> Commands ->
//   runEffect -> Events -> Reduce.
func runEffect(
	ctx context.Context,
	backend BackendAPI,
	cache *DeviceCache,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		// No place to report observations/errors; nothing sensible to do.
		return
	}

	now := time.Now()

	if backend == nil {
		onEvent(CommandFailed{Command: cmd, Err: errNoBackend{}, At: now})
		return
	}

	switch c := cmd.(type) {
	case CmdChangeSource:
		if err := backend.ChangeSource(ctx, c.Source); err != nil {
			logger.Error("change source failed", "source", c.Source, "error", err)
			onEvent(CommandFailed{Command: cmd, Err: err, At: now})
		}

	case CmdSendCommand:
		if err := backend.SendCommand(ctx, c.Source, c.Name, c.Data); err != nil {
			logger.Error("send command failed", "source", c.Source, "command", c.Name, "error", err)
			onEvent(CommandFailed{Command: cmd, Err: err, At: now})
		}

	case CmdSetVolume:
		if err := backend.SetVolume(ctx, c.Percent); err != nil {
			logger.Error("set volume failed", "percent", c.Percent, "error", err)
			onEvent(CommandFailed{Command: cmd, Err: err, At: now})
		}

	case CmdSetBand:
		if err := backend.SetBand(ctx, c.Band, c.Value); err != nil {
			logger.Error("set band failed", "band", c.Band, "error", err)
			onEvent(CommandFailed{Command: cmd, Err: err, At: now})
		}

	case CmdSetFeature:
		if err := backend.SetFeature(ctx, c.Flag, c.Enabled); err != nil {
			logger.Error("set feature failed", "flag", c.Flag, "error", err)
			onEvent(CommandFailed{Command: cmd, Err: err, At: now})
		}

	case CmdPollStatus:
		status, err := backend.PollStatus(ctx, c.Source)
		if err != nil {
			logger.Warn("status poll failed", "source", c.Source, "error", err)
			onEvent(PollFailed{Source: c.Source, Err: err, At: now})
			return
		}
		onEvent(status)

	case CmdCacheDevice:
		if cache == nil {
			return
		}
		if err := cache.Upsert(ctx, c.Source, c.DeviceName, c.Host, now); err != nil {
			// Cache misses are cosmetic; log and move on.
			logger.Warn("device cache upsert failed", "source", c.Source, "error", err)
		}

	case CmdPublishSnapshot:
		// Deliver reducer-produced snapshot to the requester. This keeps the
		// reducer pure by moving the channel send into the effects layer.
		if c.Reply == nil {
			logger.Warn("snapshot requested with nil reply channel")
			return
		}
		// Never block the effects worker indefinitely.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("snapshot reply channel not ready; dropping snapshot")
		}

	default:
		logger.Warn("unknown command type", "command", cmd.String())
		onEvent(CommandFailed{Command: cmd, Err: errUnknownCommand{cmd: cmd}, At: now})
	}
}

// errNoBackend indicates the daemon was asked to execute a command without a
// backend client.
type errNoBackend struct{}

func (errNoBackend) Error() string { return "no backend client" }

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
