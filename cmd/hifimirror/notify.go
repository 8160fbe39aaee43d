package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Notifier: hub + per-client pumps + broadcaster
// ============================================================================
// Local consumers (screens, scripts) subscribe over a websocket and receive
// reducer-emitted broadcasts as {type, ts, data} envelopes. On connect a client
// gets one "state_init" frame carrying a full snapshot, fetched through the
// event loop so the daemon-owned state is never touched from here.
//
// Slow clients are disconnected when their send buffer fills; one stuck screen
// must not block the rest.
// ============================================================================

type notifyEnvelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// NotifyHub tracks subscribed websocket clients and fans frames out to them.
type NotifyHub struct {
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *notifyClient
	unregister chan *notifyClient

	mu      sync.Mutex
	clients map[*notifyClient]struct{}

	sendBuf int
}

// NewNotifyHub constructs a hub. Call Run(ctx) to start it.
func NewNotifyHub(logger *slog.Logger) *NotifyHub {
	return &NotifyHub{
		logger:     logger,
		broadcast:  make(chan []byte, 128),
		register:   make(chan *notifyClient, 16),
		unregister: make(chan *notifyClient, 16),
		clients:    make(map[*notifyClient]struct{}),
		sendBuf:    32,
	}
}

// Run processes hub events until ctx is cancelled, then disconnects everyone.
func (h *NotifyHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				if c.conn != nil {
					c.conn.Close()
				}
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("notify client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first; removing while ranging would mutate
			// the map under the lock.
			var slow []*notifyClient
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()
			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

func (h *NotifyHub) removeClient(c *notifyClient, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			c.conn.Close()
		}
		h.logger.Info("notify client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

// BroadcastBytes enqueues a serialized frame for fan-out. It never blocks; a
// full hub queue drops the frame.
func (h *NotifyHub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("notify queue full, dropping frame", "bytes", len(msg))
	}
}

type notifyClient struct {
	hub  *NotifyHub
	conn *websocket.Conn

	// send is never closed; the pumps exit via the connection close and the
	// channel is reclaimed with the client. Closing it from the hub would race
	// with the handler's initial-frame delivery.
	send chan []byte

	remoteAddr string
}

// trySend enqueues a frame for the write pump without ever blocking. Frames
// for a full or already-evicted client are dropped.
func (c *notifyClient) trySend(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

const (
	notifyWriteWait  = 5 * time.Second
	notifyPongWait   = 30 * time.Second
	notifyPingPeriod = 20 * time.Second
)

// writePump writes frames from the send queue to the websocket. It exits on
// write error, which the hub forces by closing the connection on eviction.
func (c *notifyClient) writePump() {
	ticker := time.NewTicker(notifyPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(notifyWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(notifyWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages to detect disconnects and service control
// frames, then unregisters the client.
func (c *notifyClient) readPump() {
	c.conn.SetReadDeadline(time.Now().Add(notifyPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(notifyPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.hub.unregister <- c
			return
		}
	}
}

// NotifyServer serves the subscriber websocket endpoint.
type NotifyServer struct {
	logger *slog.Logger
	hub    *NotifyHub

	// Snapshot requests go through the event loop so daemon-owned state is
	// never read from handler goroutines.
	events chan<- Event
}

func NewNotifyServer(logger *slog.Logger, events chan<- Event) *NotifyServer {
	return &NotifyServer{
		logger: logger,
		hub:    NewNotifyHub(logger),
		events: events,
	}
}

func (s *NotifyServer) Hub() *NotifyHub { return s.hub }

// Register registers the subscriber handler on the provided mux.
func (s *NotifyServer) Register(mux *http.ServeMux, path string) {
	mux.HandleFunc(path, s.handleSubscribe)
}

var notifyUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *NotifyServer) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := notifyUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("notify upgrade failed", "error", err)
		return
	}

	client := &notifyClient{
		hub:        s.hub,
		conn:       conn,
		send:       make(chan []byte, s.hub.sendBuf),
		remoteAddr: r.RemoteAddr,
	}
	s.hub.register <- client

	// Pumps outlive the handler; net/http cancels r.Context() on return, which
	// would kill the connection with a 1006 if the pumps used it.
	go client.writePump()
	go client.readPump()

	// Initial snapshot, fetched through the event loop. The request context is
	// fine here: if the client goes away mid-round-trip, give up.
	reply := make(chan Snapshot, 1)
	select {
	case <-r.Context().Done():
		return
	case s.events <- RequestSnapshot{Reply: reply}:
	}

	waitCtx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	select {
	case <-waitCtx.Done():
		if !errors.Is(waitCtx.Err(), context.Canceled) {
			s.logger.Warn("notify snapshot request timed out")
		}
	case snap := <-reply:
		now := time.Now().UTC()
		msg, mErr := json.Marshal(notifyEnvelope{Type: "state_init", Ts: &now, Data: snap})
		if mErr != nil {
			return
		}
		// The client may have disconnected during the snapshot round-trip; a
		// dropped init frame for a gone client is fine.
		if !client.trySend(msg) {
			s.hub.unregister <- client
		}
	}
}

// RunNotifier reads reducer-emitted broadcasts, serializes them, and fans them
// out via the hub. Intended to run as a single goroutine.
func RunNotifier(ctx context.Context, hub *NotifyHub, src <-chan Broadcast, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return

		case b, ok := <-src:
			if !ok {
				logger.Info("notifier stopping (source ended)")
				return
			}

			kind, at := broadcastWireType(b)
			if kind == "" {
				continue
			}
			ts := at
			if ts.IsZero() {
				ts = time.Now().UTC()
			}

			msg, err := json.Marshal(notifyEnvelope{Type: kind, Ts: &ts, Data: b})
			if err != nil {
				logger.Warn("notifier marshal failed", "type", kind, "error", err)
				continue
			}
			hub.BroadcastBytes(msg)
		}
	}
}

func broadcastWireType(b Broadcast) (string, time.Time) {
	switch ev := b.(type) {
	case BroadcastConnectionChanged:
		return "connection_changed", ev.At
	case BroadcastPositionSeek:
		return "position_seek", ev.At
	case BroadcastVolumeChanged:
		return "volume_changed", ev.At
	default:
		return "", time.Time{}
	}
}
