package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("knobpanel v%s\n", version)
	fmt.Println("Rotary knob driven screen controller for small matrix/OLED panels")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  knobpanel [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Decodes a quadrature knob with a push button into Left/Right/Click/")
	fmt.Println("  LongPress events and drives a set of full-screen views on a small")
	fmt.Println("  panel. Long press enters screen selection, turning picks a screen,")
	fmt.Println("  click confirms.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (defaults are used when empty)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (overrides config)")
	fmt.Println()
	fmt.Println("  -input-backend string")
	fmt.Println("        Knob input: gpio, evdev or none (overrides config)")
	fmt.Println()
	fmt.Println("  -display-sink string")
	fmt.Println("        Frame output: ssd1306, terminal or none (overrides config)")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix socket for event injection; empty disables IPC (overrides config)")
	fmt.Println()
	fmt.Println("  -preview-port int")
	fmt.Println("        Preview HTTP/WebSocket port; 0 disables preview (overrides config)")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Run on the Pi with the config in /etc")
	fmt.Println("  knobpanel -config /etc/knobpanel.yaml")
	fmt.Println()
	fmt.Println("  # Develop on a laptop: render in the terminal, drive it with knob-ctl")
	fmt.Println("  knobpanel -input-backend none -display-sink terminal")
	fmt.Println("  knob-ctl long-press && knob-ctl right && knob-ctl click")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - The first SIGINT/SIGTERM clears the panel and exits; a second one exits at once")
	fmt.Println("  - GPIO access needs root or membership in the gpio group")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath   = flag.String("config", "", "Path to YAML config file")
		logLevelStr  = flag.String("log-level", "", "Log level: error, warn, info, debug")
		inputBackend = flag.String("input-backend", "", "Knob input backend: gpio|evdev|none")
		displaySink  = flag.String("display-sink", "", "Display sink: ssd1306|terminal|none")
		ipcSocket    = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		previewPort  = flag.Int("preview-port", 0, "Preview HTTP/WebSocket port")
		_            = flag.Bool("version", false, "Print version and exit")
		_            = flag.Bool("help", false, "Print help message")
	)
	flag.Usage = printUsage
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(ExpandPath(*configPath))
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags the user actually set override the file.
	var ov FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log-level":
			ov.LogLevel = logLevelStr
		case "input-backend":
			ov.InputBackend = inputBackend
		case "display-sink":
			ov.DisplaySink = displaySink
		case "ipc-socket":
			ov.IPCSocketPath = ipcSocket
		case "preview-port":
			ov.PreviewPort = previewPort
		}
	})
	ov.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// The terminal sink owns stdout.
	logOut := os.Stdout
	if cfg.Display.Sink == displaySinkTerminal {
		logOut = os.Stderr
	}
	logger := setupLogger(logLevel, logOut)

	logger.Debug("starting knobpanel", "version", version)
	logger.Debug("configuration",
		"input_backend", cfg.Input.Backend,
		"display_sink", cfg.Display.Sink,
		"width", cfg.Display.Width,
		"height", cfg.Display.Height,
		"min_frame_ms", cfg.Render.MinFrameMS,
		"screens", cfg.Screens,
		"sensor_source", cfg.Sensor.Source,
		"ipc_enabled", cfg.IPC.Enabled,
		"ipc_socket", cfg.IPC.SocketPath,
		"preview_enabled", cfg.Preview.Enabled,
		"preview_port", cfg.Preview.Port)

	if err := run(cfg, logger); err != nil {
		logger.Error("knobpanel stopped with error", "error", err)
		os.Exit(1)
	}
}

// run wires the collaborators together and renders on the calling goroutine
// until shutdown.
func run(cfg Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stop shutdownFlag
	untrap := trapSignals(&stop, cancel, os.Exit, logger)
	defer untrap()

	// requestStop is what every fatal background failure funnels into.
	requestStop := func() {
		stop.Request()
		cancel()
	}

	events := newEventQueue()
	readings := NewMailbox[SensorReading]()

	screens, err := buildScreens(cfg.Screens, readings, logger)
	if err != nil {
		return err
	}

	var broadcasts chan StateBroadcast
	if cfg.Preview.Enabled {
		broadcasts = make(chan StateBroadcast, 64)
	}
	dispatcher, err := NewDispatcher(events, screens, broadcasts, componentLogger(logger, "dispatcher"))
	if err != nil {
		return err
	}

	sink, err := openFrameSink(cfg.Display, componentLogger(logger, "display"))
	if err != nil {
		return fmt.Errorf("open display: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("display close failed", "error", err)
		}
	}()

	host := newRenderHost(dispatcher, NewCanvas(cfg.Display.Width, cfg.Display.Height), sink,
		cfg.MinFrameInterval(), componentLogger(logger, "render"))

	// ------------------------------------------------------------------------
	// Knob decoder
	// ------------------------------------------------------------------------
	src, err := openKnobInput(cfg.Input, openLineSource, logger)
	if err != nil {
		return err
	}
	if src != nil {
		defer src.Close()
	}
	decoderDone := startDecoder(src, events, &stop, cfg.Input.ExitOnFailure, requestStop, logger)

	// ------------------------------------------------------------------------
	// Background services
	// ------------------------------------------------------------------------
	g, gctx := errgroup.WithContext(ctx)

	// fatal services take the process down when they fail.
	fatal := func(name string, fn func(context.Context) error) {
		g.Go(func() error {
			if err := fn(gctx); err != nil {
				logger.Error("service failed", "service", name, "error", err)
				requestStop()
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}

	producer, err := newSensorProducer(cfg.Sensor, readings, componentLogger(logger, "sensor"))
	if err != nil {
		return err
	}
	if producer != nil {
		g.Go(func() error {
			// The display keeps running on the last reading.
			if err := producer.Run(gctx); err != nil {
				logger.Warn("sensor producer ended", "error", err)
			}
			return nil
		})
	}

	if cfg.IPC.Enabled {
		ipcLogger := componentLogger(logger, "ipc")
		fatal("ipc", func(ctx context.Context) error {
			return runIPCServer(ctx, cfg.IPC.SocketPath, events, ipcLogger)
		})
	}

	if cfg.Preview.Enabled {
		frames := NewMailbox[previewFrame]()
		host.withPreview(frames, cfg.Preview.FPS)

		previewLogger := componentLogger(logger, "preview")
		initial := StateBroadcast{
			State:      dispatcher.State(),
			ScreenName: dispatcher.ActiveName(),
			At:         time.Now().UTC(),
		}
		ps := NewPreviewServer(previewLogger, cfg.Display.Width, cfg.Display.Height, initial, HubConfig{})

		g.Go(func() error {
			ps.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, ps, broadcasts, frames, cfg.Preview.FPS, previewLogger)
			return nil
		})
		fatal("preview", func(ctx context.Context) error {
			return runPreviewServer(ctx, cfg.Preview.Port, newPreviewMux(ps), previewLogger)
		})
	}

	logger.Info("knobpanel running",
		"screen", dispatcher.ActiveName(),
		"input", cfg.Input.Backend,
		"display", cfg.Display.Sink,
		"sensor", cfg.Sensor.Source)

	// ------------------------------------------------------------------------
	// Render loop (this goroutine) and shutdown
	// ------------------------------------------------------------------------
	renderErr := host.Run(&stop)
	if renderErr != nil {
		logger.Error("render loop failed", "error", renderErr)
	}
	requestStop()

	serviceErr := g.Wait()
	<-decoderDone

	logger.Info("shutdown complete", "events_pending", events.Len())
	return errors.Join(renderErr, serviceErr)
}

// openKnobInput opens the configured line source. An open failure is fatal
// only with exitOnFailure; otherwise it is logged and (nil, nil) is returned.
func openKnobInput(cfg InputConfig, open func(InputConfig) (LineSource, error), logger *slog.Logger) (LineSource, error) {
	src, err := open(cfg)
	if err == nil {
		return src, nil
	}
	if cfg.ExitOnFailure {
		return nil, fmt.Errorf("open knob input: %w", err)
	}
	logger.Error("knob input unavailable, continuing without it", "backend", cfg.Backend, "error", err)
	return nil, nil
}

// startDecoder runs the knob decoder over src on its own goroutine and returns
// a channel closed when it ends. A nil src yields an already closed channel.
func startDecoder(src LineSource, events eventSink, stop *shutdownFlag, exitOnFailure bool, requestStop func(), logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	if src == nil {
		close(done)
		return done
	}
	dec := newKnobDecoder(src, events, componentLogger(logger, "decoder"))
	go func() {
		defer close(done)
		if err := dec.Run(stop); err != nil {
			logDecoderFailure(logger, err)
			if exitOnFailure {
				requestStop()
			}
		}
	}()
	return done
}

// logDecoderFailure reports why the knob stopped producing events.
func logDecoderFailure(logger *slog.Logger, err error) {
	var hwErr *HardwareError
	if errors.As(err, &hwErr) {
		logger.Error("decoder failed, knob input disabled",
			"op", hwErr.Op,
			"line", hwErr.Line,
			"error", hwErr.Err)
		return
	}
	logger.Error("decoder failed, knob input disabled", "error", err)
}
