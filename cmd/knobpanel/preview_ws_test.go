package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Hub tests use clients with a nil websocket.Conn; Client.close tolerates it
// and nothing here writes to the socket.

func newTestHub(t *testing.T, sendBuf, broadcastBuf int) *Hub {
	t.Helper()
	return NewHub(slog.Default(), HubConfig{SendBuf: sendBuf, BroadcastBuf: broadcastBuf})
}

func runTestHub(t *testing.T, hub *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Errorf("timeout waiting for hub to stop")
		}
	})
}

func registerTestClient(t *testing.T, hub *Hub, name string, buf int) *Client {
	t.Helper()
	c := &Client{hub: hub, send: make(chan []byte, buf), remoteAddr: name, logger: slog.Default()}
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, name+" not registered in time")
	return c
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	hub := newTestHub(t, 4, 8)
	runTestHub(t, hub)

	c1 := registerTestClient(t, hub, "c1", 4)
	c2 := registerTestClient(t, hub, "c2", 4)

	msg := []byte(`{"type":"state_changed","data":{"screen":1}}`)
	hub.broadcast <- msg

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			if string(got) != string(msg) {
				t.Fatalf("%s got %q, want %q", c.remoteAddr, got, msg)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s to receive broadcast", c.remoteAddr)
		}
	}
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	hub := newTestHub(t, 1, 8)
	runTestHub(t, hub)

	slow := registerTestClient(t, hub, "slow", 1)
	fast := registerTestClient(t, hub, "fast", 8)

	slow.send <- []byte(`"already queued"`)

	msg := []byte(`{"type":"frame"}`)
	hub.broadcast <- msg

	select {
	case got := <-fast.send:
		if string(got) != string(msg) {
			t.Fatalf("fast client got %q, want %q", got, msg)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for fast client to receive broadcast")
	}

	<-slow.send // the pre-filled message
	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")

	if n := hub.Clients(); n != 1 {
		t.Fatalf("expected 1 client left, got %d", n)
	}
}

// readEnvelope reads one message and returns its type and raw data.
func readEnvelope(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return env.Type, env.Data
}

// TestPreviewServer_EndToEnd connects a real websocket client and checks the
// state_init, state_changed and frame messages.
func TestPreviewServer_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initial := StateBroadcast{ScreenName: "sensor"}
	s := NewPreviewServer(slog.Default(), 64, 32, initial, HubConfig{})
	go s.Hub().Run(ctx)

	src := make(chan StateBroadcast, 4)
	frames := NewMailbox[previewFrame]()
	go RunBroadcaster(ctx, s, src, frames, 100, slog.Default())

	ts := httptest.NewServer(newPreviewMux(s))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	typ, data := readEnvelope(t, conn)
	if typ != wsTypeStateInit {
		t.Fatalf("first message type %q, want %q", typ, wsTypeStateInit)
	}
	var init wsStateData
	_ = json.Unmarshal(data, &init)
	if init.ScreenName != "sensor" || init.Mode != "normal" || init.Width != 64 || init.Height != 32 {
		t.Fatalf("unexpected state_init: %+v", init)
	}

	waitUntil(t, time.Second, func() bool { return s.Hub().Clients() == 1 }, "client not registered")

	src <- StateBroadcast{State: DispatcherState{ScreenIndex: 2, Mode: ModeSelecting}, ScreenName: "pattern"}
	typ, data = readEnvelope(t, conn)
	if typ != wsTypeStateChanged {
		t.Fatalf("got %q, want %q", typ, wsTypeStateChanged)
	}
	var changed wsStateData
	_ = json.Unmarshal(data, &changed)
	if changed.Screen != 2 || changed.ScreenName != "pattern" || changed.Mode != "selecting" {
		t.Fatalf("unexpected state_changed: %+v", changed)
	}

	c := NewCanvas(64, 32)
	c.SetPixel(3, 4, colorWhite)
	_ = frames.Put(previewFrame{Image: c.Snapshot(), At: time.Now()})

	typ, data = readEnvelope(t, conn)
	if typ != wsTypeFrame {
		t.Fatalf("got %q, want %q", typ, wsTypeFrame)
	}
	var fd wsFrameData
	_ = json.Unmarshal(data, &fd)
	raw, err := base64.StdEncoding.DecodeString(fd.PNG)
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if r, _, _, _ := img.At(3, 4).RGBA(); r != 0xffff {
		t.Fatalf("expected the lit pixel to survive encoding")
	}

	// Later clients see the latest state.
	conn2, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial 2: %v", err)
	}
	defer conn2.Close()
	_, data = readEnvelope(t, conn2)
	var init2 wsStateData
	_ = json.Unmarshal(data, &init2)
	if init2.ScreenName != "pattern" {
		t.Fatalf("second client state_init: %+v", init2)
	}
}

func TestPreviewServer_HealthzAndShutdown(t *testing.T) {
	s := NewPreviewServer(slog.Default(), 64, 32, StateBroadcast{ScreenName: "meter"}, HubConfig{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- servePreview(ctx, ln, newPreviewMux(s), slog.Default()) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(string(body), "ok") {
		t.Fatalf("healthz: %d %q", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("servePreview: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("preview server did not stop")
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}
