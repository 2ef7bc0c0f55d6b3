package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"ex-hibiki/internal/readingcache"
	"ex-hibiki/internal/statusfeed"
	"ex-hibiki/pkg/hibiki"
)

const (
	envConfigFile           = "STATUSD_CONFIG_FILE"
	defaultConfigFilePath   = "config/statusd.json"
	alternateConfigFilePath = "bin/config/statusd.json"

	defaultListenAddr         = ":8488"
	defaultShutdownTimeout    = 10 * time.Second
	defaultTickInterval       = 2 * time.Second
	defaultEchoDelay          = 5 * time.Second
	defaultDispatcherCapacity = 64
	defaultHistoryEntries     = 1000
	defaultHistoryTTL         = time.Hour

	emitterLive = "readings.live"
	emitterEcho = "readings.echo"
)

var defaultDevices = []string{"sensor-a", "sensor-b", "sensor-c"}

type appConfig struct {
	logLevel slog.Level

	listenAddr      string
	shutdownTimeout time.Duration

	tickInterval time.Duration
	devices      []string

	echoDelay          time.Duration
	dispatcherCapacity int64

	historyMaxEntries int
	historyTTL        time.Duration
}

type fileConfig struct {
	LogLevel        string            `json:"log_level"`
	Listen          string            `json:"listen"`
	ShutdownTimeout string            `json:"shutdown_timeout"`
	Feed            fileFeedConfig    `json:"feed"`
	Echo            fileEchoConfig    `json:"echo"`
	History         fileHistoryConfig `json:"history"`
}

type fileFeedConfig struct {
	TickInterval string   `json:"tick_interval"`
	Devices      []string `json:"devices"`
}

type fileEchoConfig struct {
	Delay              string `json:"delay"`
	DispatcherCapacity *int64 `json:"dispatcher_capacity"`
}

type fileHistoryConfig struct {
	MaxEntries *int   `json:"max_entries"`
	TTL        string `json:"ttl"`
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runApp(ctx, logger, cfg); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run statusd: %w", err)
	}

	return nil
}

func runApp(ctx context.Context, logger *slog.Logger, cfg appConfig) error {
	registry := hibiki.NewRegistry()

	live := hibiki.NewSharedEmitter[statusfeed.Reading]()
	if err := registry.Register(emitterLive, live); err != nil {
		return fmt.Errorf("register live emitter: %w", err)
	}

	runner := hibiki.NewDispatcher(cfg.dispatcherCapacity, hibiki.WithLogger(logger))
	echo := hibiki.NewTimedEmitter[statusfeed.Reading](hibiki.WithLogger(logger), hibiki.WithRunner(runner))
	if err := registry.Register(emitterEcho, echo); err != nil {
		return fmt.Errorf("register echo emitter: %w", err)
	}

	// Replay every reading into the live stream after the configured delay so
	// connected clients see recent history again as tagged echoes.
	echo.SubscribeDelayed(func(reading statusfeed.Reading) {
		reading.Status = "echo:" + reading.Status
		live.Emit(reading)
	}, cfg.echoDelay)

	history := readingcache.New(
		readingcache.WithMaxEntries(cfg.historyMaxEntries),
		readingcache.WithTTL(cfg.historyTTL),
	)
	live.Subscribe(history.Record)

	feed, err := statusfeed.NewSimulator(cfg.devices, cfg.tickInterval, clock.New())
	if err != nil {
		return fmt.Errorf("build status feed: %w", err)
	}

	gateway, err := newGateway(logger, registry)
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/ws", gateway.handleWebsocket(groupCtx))
	router.Get("/readings", handleReadings(history))
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group.Go(func() error {
		return feed.Run(groupCtx, func(reading statusfeed.Reading) {
			live.Emit(reading)
			echo.Emit(reading)
		})
	})
	group.Go(func() error {
		logger.Info("statusd listening", "addr", cfg.listenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()

		// Cleanup still runs after parent cancellation.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), cfg.shutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
		if err := runner.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}

		return errors.Join(errs...)
	})

	if err := group.Wait(); err != nil {
		return err
	}

	logger.Info("statusd stopped")

	return nil
}

func loadConfig() (appConfig, error) {
	cfg := defaultAppConfig()

	configFile, err := resolveConfigFilePath()
	if err != nil {
		return appConfig{}, err
	}
	if configFile == "" {
		return cfg, nil
	}

	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}

	return cfg, nil
}

func resolveConfigFilePath() (string, error) {
	if configFile := strings.TrimSpace(os.Getenv(envConfigFile)); configFile != "" {
		return configFile, nil
	}

	candidates := []string{defaultConfigFilePath, alternateConfigFilePath}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	// The daemon runs fine on defaults, so a missing config file is not an
	// error. An explicitly configured path still has to exist.
	return "", nil
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel: slog.LevelInfo,

		listenAddr:      defaultListenAddr,
		shutdownTimeout: defaultShutdownTimeout,

		tickInterval: defaultTickInterval,
		devices:      append([]string(nil), defaultDevices...),

		echoDelay:          defaultEchoDelay,
		dispatcherCapacity: defaultDispatcherCapacity,

		historyMaxEntries: defaultHistoryEntries,
		historyTTL:        defaultHistoryTTL,
	}
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	if listen := strings.TrimSpace(parsed.Listen); listen != "" {
		cfg.listenAddr = listen
	}

	if rawTimeout := strings.TrimSpace(parsed.ShutdownTimeout); rawTimeout != "" {
		timeout, err := time.ParseDuration(rawTimeout)
		if err != nil {
			return fmt.Errorf("parse shutdown_timeout: %w", err)
		}
		if timeout <= 0 {
			return fmt.Errorf("parse shutdown_timeout: must be > 0")
		}
		cfg.shutdownTimeout = timeout
	}

	if rawInterval := strings.TrimSpace(parsed.Feed.TickInterval); rawInterval != "" {
		interval, err := time.ParseDuration(rawInterval)
		if err != nil {
			return fmt.Errorf("parse feed.tick_interval: %w", err)
		}
		if interval <= 0 {
			return fmt.Errorf("parse feed.tick_interval: must be > 0")
		}
		cfg.tickInterval = interval
	}

	if parsed.Feed.Devices != nil {
		devices := make([]string, 0, len(parsed.Feed.Devices))
		for index, device := range parsed.Feed.Devices {
			device = strings.TrimSpace(device)
			if device == "" {
				return fmt.Errorf("parse feed.devices[%d]: must not be blank", index)
			}
			devices = append(devices, device)
		}
		if len(devices) == 0 {
			return fmt.Errorf("parse feed.devices: at least one device is required")
		}
		cfg.devices = devices
	}

	if rawDelay := strings.TrimSpace(parsed.Echo.Delay); rawDelay != "" {
		delay, err := time.ParseDuration(rawDelay)
		if err != nil {
			return fmt.Errorf("parse echo.delay: %w", err)
		}
		if delay < 0 {
			return fmt.Errorf("parse echo.delay: must be >= 0")
		}
		cfg.echoDelay = delay
	}

	if parsed.Echo.DispatcherCapacity != nil {
		if *parsed.Echo.DispatcherCapacity <= 0 {
			return fmt.Errorf("parse echo.dispatcher_capacity: must be > 0")
		}
		cfg.dispatcherCapacity = *parsed.Echo.DispatcherCapacity
	}

	if parsed.History.MaxEntries != nil {
		if *parsed.History.MaxEntries <= 0 {
			return fmt.Errorf("parse history.max_entries: must be > 0")
		}
		cfg.historyMaxEntries = *parsed.History.MaxEntries
	}
	if rawTTL := strings.TrimSpace(parsed.History.TTL); rawTTL != "" {
		ttl, err := time.ParseDuration(rawTTL)
		if err != nil {
			return fmt.Errorf("parse history.ttl: %w", err)
		}
		if ttl <= 0 {
			return fmt.Errorf("parse history.ttl: must be > 0")
		}
		cfg.historyTTL = ttl
	}

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}
