package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("hifimirror v%s\n", version)
	fmt.Println("Reactive state mirror for multi-source audio servers")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  hifimirror [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that mirrors an audio server's state over its websocket event")
	fmt.Println("  stream: playback position simulation between heartbeats, per-source")
	fmt.Println("  device presence tracking, and coalesced writes for sliders. Local")
	fmt.Println("  consumers subscribe on a websocket endpoint for state broadcasts.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (optional; defaults apply without one)")
	fmt.Println()
	fmt.Println("  -server-url string")
	fmt.Printf("        Audio server REST base URL (default %q)\n", DefaultConfig().Server.BaseURL)
	fmt.Println()
	fmt.Println("  -events-url string")
	fmt.Printf("        Audio server websocket event stream URL (default %q)\n", DefaultConfig().Server.EventsURL)
	fmt.Println()
	fmt.Println("  -server-timeout-ms int")
	fmt.Printf("        REST request timeout in ms (default %d)\n", defaultReadTimeoutMS)
	fmt.Println()
	fmt.Println("  -tick-ms int")
	fmt.Printf("        Daemon tick cadence in ms (default %d)\n", defaultTickMS)
	fmt.Println()
	fmt.Println("  -poll-interval-ms int")
	fmt.Printf("        Per-source status poll interval in ms (default %d)\n", defaultPollIntervalMS)
	fmt.Println()
	fmt.Println("  -notify-addr string")
	fmt.Printf("        Listen address for the subscriber endpoint (default %q)\n", DefaultConfig().Notify.Addr)
	fmt.Println()
	fmt.Println("  -cache-path string")
	fmt.Println("        Paired device cache sqlite path")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Mirror a local server with defaults")
	fmt.Println("  hifimirror")
	fmt.Println()
	fmt.Println("  # Remote server, verbose")
	fmt.Println("  hifimirror -server-url http://hifi.home.arpa:8080 -events-url ws://hifi.home.arpa:8080/api/events -log-level debug")
	fmt.Println()
}

func main() {
	var (
		configPath      = flag.String("config", "", "Path to YAML config file")
		serverURL       = flag.String("server-url", DefaultConfig().Server.BaseURL, "Audio server REST base URL")
		eventsURL       = flag.String("events-url", DefaultConfig().Server.EventsURL, "Audio server websocket event stream URL")
		serverTimeoutMS = flag.Int("server-timeout-ms", defaultReadTimeoutMS, "REST request timeout in milliseconds")
		tickMS          = flag.Int("tick-ms", defaultTickMS, "Daemon tick cadence in milliseconds")
		pollIntervalMS  = flag.Int("poll-interval-ms", defaultPollIntervalMS, "Per-source status poll interval in milliseconds")
		notifyAddr      = flag.String("notify-addr", DefaultConfig().Notify.Addr, "Listen address for the subscriber endpoint")
		cachePath       = flag.String("cache-path", "", "Paired device cache sqlite path")
		logLevelStr     = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion     = flag.Bool("version", false, "Print version and exit")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags the user actually set override the file.
	var overrides FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server-url":
			overrides.ServerBaseURL = serverURL
		case "events-url":
			overrides.ServerEventsURL = eventsURL
		case "server-timeout-ms":
			overrides.ServerTimeoutMS = serverTimeoutMS
		case "tick-ms":
			overrides.TickMS = tickMS
		case "poll-interval-ms":
			overrides.PollIntervalMS = pollIntervalMS
		case "notify-addr":
			overrides.NotifyAddr = notifyAddr
		case "cache-path":
			overrides.CachePath = cachePath
		case "log-level":
			overrides.LogLevel = logLevelStr
		}
	})
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(os.Stdout, logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cache *DeviceCache
	if cfg.Cache.Enabled {
		path := ExpandPath(cfg.Cache.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			logger.Warn("cannot create cache directory, continuing without cache", "path", path, "error", err)
		} else if cache, err = OpenDeviceCache(path); err != nil {
			logger.Warn("cannot open device cache, continuing without it", "path", path, "error", err)
			cache = nil
		}
	}
	if cache != nil {
		defer cache.Close()
		if devices, err := cache.All(ctx); err == nil && len(devices) > 0 {
			for _, d := range devices {
				logger.Info("remembered device", "source", d.Source, "device", d.DeviceName, "last_seen", d.LastSeenAt)
			}
		}
	}

	backend := NewBackendClient(cfg.Server.BaseURL, time.Duration(cfg.Server.TimeoutMS)*time.Millisecond, logger)

	stream, err := NewEventStream(cfg.Server.EventsURL, logger)
	if err != nil {
		logger.Error("invalid events URL", "error", err)
		os.Exit(1)
	}

	events := make(chan Event, 64)
	broadcasts := make(chan Broadcast, 128)

	state := NewClientState(cfg.Sources)
	mirrorCfg := cfg.ToMirrorConfig()
	tickInterval := time.Duration(cfg.Mirror.TickMS) * time.Millisecond

	notify := NewNotifyServer(logger, events)
	mux := http.NewServeMux()
	notify.Register(mux, cfg.Notify.Path)
	httpSrv := &http.Server{Addr: cfg.Notify.Addr, Handler: mux}

	logger.Info("starting hifimirror",
		"version", version,
		"server", cfg.Server.BaseURL,
		"events", cfg.Server.EventsURL,
		"notify", cfg.Notify.Addr+cfg.Notify.Path,
		"sources", cfg.Sources)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(ctx, events, backend, cache, mirrorCfg, state, tickInterval, broadcasts, logger)
		return nil
	})

	g.Go(func() error {
		err := stream.Run(ctx, func(ev Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		notify.Hub().Run(ctx)
		return nil
	})

	g.Go(func() error {
		RunNotifier(ctx, notify.Hub(), broadcasts, logger)
		return nil
	})

	g.Go(func() error {
		err := httpSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shut down cleanly")
}
