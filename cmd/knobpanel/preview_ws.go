package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Preview WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
// Remote viewers follow the panel without touching the render goroutine:
//
//   - the dispatcher pushes StateBroadcast values on a buffered channel
//   - the render host hands frame copies over a Mailbox (latest wins)
//   - one broadcaster goroutine turns both into JSON and fans out via the hub
//
// Messages are JSON text frames with an envelope {type, ts, data}:
//
//	state_init     sent once on connect   {screen, screen_name, mode, width, height}
//	state_changed  every dispatcher change {screen, screen_name, mode}
//	frame          at most preview.fps/s   {width, height, png}
//
// A client whose send queue fills up is disconnected.
// ============================================================================

const (
	wsTypeStateInit    = "state_init"
	wsTypeStateChanged = "state_changed"
	wsTypeFrame        = "frame"
)

// wsStateData is the payload of state_init and state_changed.
type wsStateData struct {
	Screen     int    `json:"screen"`
	ScreenName string `json:"screen_name"`
	Mode       string `json:"mode"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
}

// wsFrameData carries one rendered frame as base64 PNG.
type wsFrameData struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	PNG    string `json:"png"`
}

// envelope is the wire format for every WS message.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(typ string, at time.Time, data any) ([]byte, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return json.Marshal(envelope{Type: typ, Ts: &at, Data: data})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size (default 32).
	SendBuf int

	// BroadcastBuf is the hub inbound queue size (default 128).
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled, then drops every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("preview hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("preview hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("preview client connected", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.remove(c, "unregister")

		case msg := <-h.broadcast:
			var slow []*Client
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
				h.remove(c, "slow_client")
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

func (h *Hub) remove(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		h.logger.Info("preview client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

// BroadcastBytes enqueues a serialized message. It never blocks; a full queue
// drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("preview broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once

	remoteAddr string
	logger     *slog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, hub.sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

// close shuts the connection and the send queue. Safe to call more than once.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		close(c.send)
	})
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		c.logger.Debug("preview "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", ce.Code, "reason", ce.Text)
		return
	}
	c.logger.Debug("preview "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump drains the send queue onto the socket and keeps it alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump discards inbound messages; its only job is noticing the client
// going away.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			c.hub.unregister <- c
			return
		}
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

// PreviewServer owns the hub and the latest state snapshot served as state_init.
type PreviewServer struct {
	logger *slog.Logger
	hub    *Hub

	width, height int
	snapshot      atomic.Pointer[wsStateData]
}

func NewPreviewServer(logger *slog.Logger, width, height int, initial StateBroadcast, cfg HubConfig) *PreviewServer {
	s := &PreviewServer{
		logger: logger,
		hub:    NewHub(logger, cfg),
		width:  width,
		height: height,
	}
	s.setState(initial)
	return s
}

func (s *PreviewServer) Hub() *Hub { return s.hub }

func (s *PreviewServer) setState(b StateBroadcast) {
	s.snapshot.Store(&wsStateData{
		Screen:     b.State.ScreenIndex,
		ScreenName: b.ScreenName,
		Mode:       b.State.Mode.String(),
	})
}

// Register mounts the WS handler on mux.
func (s *PreviewServer) Register(mux *http.ServeMux, path string) {
	mux.HandleFunc(path, s.handleWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *PreviewServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("preview upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Queue state_init before registering so it is the first message out.
	snap := *s.snapshot.Load()
	snap.Width, snap.Height = s.width, s.height
	if msg, err := marshalEnvelope(wsTypeStateInit, time.Time{}, snap); err == nil {
		client.send <- msg
	}

	s.hub.register <- client

	// The pumps outlive the request; the hub and socket errors end them.
	go client.writePump()
	go client.readPump()
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster forwards dispatcher state changes immediately and polls the
// frame mailbox fps times per second. frames may be nil.
func RunBroadcaster(ctx context.Context, s *PreviewServer, src <-chan StateBroadcast, frames *Mailbox[previewFrame], fps int, logger *slog.Logger) {
	var tick <-chan time.Time
	if frames != nil && fps > 0 {
		t := time.NewTicker(time.Second / time.Duration(fps))
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("preview broadcaster stopped")
			return

		case b, ok := <-src:
			if !ok {
				logger.Info("preview broadcaster stopping (source ended)")
				return
			}
			s.setState(b)
			msg, err := marshalEnvelope(wsTypeStateChanged, b.At, wsStateData{
				Screen:     b.State.ScreenIndex,
				ScreenName: b.ScreenName,
				Mode:       b.State.Mode.String(),
			})
			if err != nil {
				logger.Warn("preview marshal failed", "error", err, "type", wsTypeStateChanged)
				continue
			}
			s.hub.BroadcastBytes(msg)

		case <-tick:
			if s.hub.Clients() == 0 {
				continue
			}
			var f previewFrame
			var have bool
			if err := frames.IfNew(func(v previewFrame) { f, have = v, true }); err != nil {
				logger.Warn("preview frames disabled", "error", err)
				tick = nil
				continue
			}
			if !have {
				continue
			}
			msg, err := encodeFrameMessage(f)
			if err != nil {
				logger.Warn("preview frame encode failed", "error", err)
				continue
			}
			s.hub.BroadcastBytes(msg)
		}
	}
}

// encodeFrameMessage wraps a frame as a "frame" message with a base64 PNG.
func encodeFrameMessage(f previewFrame) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, f.Image); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	b := f.Image.Bounds()
	return marshalEnvelope(wsTypeFrame, f.At.UTC(), wsFrameData{
		Width:  b.Dx(),
		Height: b.Dy(),
		PNG:    base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
}
