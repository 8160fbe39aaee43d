package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Event stream transport
// ============================================================================
// The audio server pushes {topic, type, data} envelopes over a websocket. This
// consumer owns the connection lifecycle: dial with backoff, keepalive pings,
// reconnect on read failure. Decoded events go to the daemon; envelope types
// the mirror does not consume are dropped at this boundary so the reducer only
// ever sees its closed event vocabulary.
// ============================================================================

const (
	streamHandshakeTimeout = 5 * time.Second
	streamPongTimeout      = 60 * time.Second
	streamPingInterval     = 30 * time.Second
	streamBackoffInitial   = 500 * time.Millisecond
	streamBackoffMax       = 10 * time.Second
)

// EventStream consumes the server's websocket event feed.
type EventStream struct {
	url    string
	logger *slog.Logger
}

// NewEventStream validates the URL and returns a consumer. The connection is
// established by Run.
func NewEventStream(wsURL string, logger *slog.Logger) (*EventStream, error) {
	if _, err := url.Parse(wsURL); err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	return &EventStream{url: wsURL, logger: logger}, nil
}

// Run connects and reads until ctx is cancelled, reconnecting with backoff on
// any failure. Every decoded event is handed to onEvent.
func (s *EventStream) Run(ctx context.Context, onEvent func(Event)) error {
	backoff := streamBackoffInitial

	for {
		conn, err := s.dial(ctx)
		if err != nil {
			s.logger.Warn("event stream connect failed; retrying...", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > streamBackoffMax {
				backoff = streamBackoffMax
			}
			continue
		}

		s.logger.Info("event stream connected", "url", s.url)
		backoff = streamBackoffInitial

		err = s.readLoop(ctx, conn, onEvent)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("event stream disconnected; reconnecting...", "error", err)
	}
}

func (s *EventStream) dial(ctx context.Context) (*websocket.Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: streamHandshakeTimeout}
	conn, _, err := d.DialContext(ctx, s.url, nil)
	return conn, err
}

func (s *EventStream) readLoop(ctx context.Context, conn *websocket.Conn, onEvent func(Event)) error {
	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(streamPongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(streamPongTimeout))
		return nil
	})

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	pingTicker := time.NewTicker(streamPingInterval)
	defer pingTicker.Stop()
	go func() {
		for {
			select {
			case <-done:
				return
			case <-pingTicker.C:
				writeMu.Lock()
				err := conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			s.logger.Warn("malformed envelope dropped", "error", err)
			continue
		}

		ev, err := DecodeEvent(env)
		if err != nil {
			var unknown errUnknownEventType
			if errors.As(err, &unknown) {
				s.logger.Debug("ignoring event", "type", env.Type, "topic", env.Topic)
			} else {
				s.logger.Warn("undecodable event dropped", "type", env.Type, "error", err)
			}
			continue
		}

		onEvent(ev)
	}
}
