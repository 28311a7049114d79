package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// envelope mirrors the daemon's preview message format.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type stateData struct {
	Screen     int    `json:"screen"`
	ScreenName string `json:"screen_name"`
	Mode       string `json:"mode"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
}

type frameData struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	PNG    string `json:"png"`
}

func main() {
	var (
		wsURL   = flag.String("ws", "ws://127.0.0.1:3001/ws", "knobpanel preview websocket URL")
		frames  = flag.Bool("frames", false, "Draw received frames as ASCII art")
		saveDir = flag.String("save-dir", "", "Write received frames as numbered PNG files into this directory")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}
	if *saveDir != "" {
		if err := os.MkdirAll(*saveDir, 0o755); err != nil {
			log.Fatalf("create save dir: %v", err)
		}
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("connected! (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	// The server pings every 20s; answering keeps the read deadline fresh too.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		n := 0
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(message))
				continue
			}
			n++
			handleTextMessage(message, n, *frames, *saveDir)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// handleTextMessage prints one preview message.
func handleTextMessage(message []byte, seq int, drawFrames bool, saveDir string) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}

	switch env.Type {
	case "state_init", "state_changed":
		var s stateData
		if err := json.Unmarshal(env.Data, &s); err != nil {
			fmt.Printf("[%s] malformed: %v\n", strings.ToUpper(env.Type), err)
			return
		}
		line := fmt.Sprintf("[%s] screen=%d (%s) mode=%s", strings.ToUpper(env.Type), s.Screen, s.ScreenName, s.Mode)
		if s.Width > 0 {
			line += fmt.Sprintf(" panel=%dx%d", s.Width, s.Height)
		}
		fmt.Println(line)

	case "frame":
		var f frameData
		if err := json.Unmarshal(env.Data, &f); err != nil {
			fmt.Printf("[FRAME] malformed: %v\n", err)
			return
		}
		raw, err := base64.StdEncoding.DecodeString(f.PNG)
		if err != nil {
			fmt.Printf("[FRAME] bad base64: %v\n", err)
			return
		}
		fmt.Printf("[FRAME] %dx%d, %d bytes png\n", f.Width, f.Height, len(raw))

		if saveDir != "" {
			path := filepath.Join(saveDir, fmt.Sprintf("frame-%06d.png", seq))
			if err := os.WriteFile(path, raw, 0o644); err != nil {
				log.Printf("save frame: %v", err)
			}
		}
		if drawFrames {
			img, err := png.Decode(bytes.NewReader(raw))
			if err != nil {
				fmt.Printf("[FRAME] bad png: %v\n", err)
				return
			}
			fmt.Print(asciiFrame(img))
		}

	default:
		prettyJSON, _ := json.MarshalIndent(env, "", "  ")
		fmt.Printf("[MESSAGE]\n%s\n\n", string(prettyJSON))
	}
}

// asciiFrame draws lit pixels as '#' and dark ones as '.'.
func asciiFrame(img image.Image) string {
	var b strings.Builder
	r := img.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			if (cr+cg+cb)/3 > 0x3000 {
				b.WriteByte('#')
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
