package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/kjstillabower/weatherbot/internal/bot"
	"github.com/kjstillabower/weatherbot/internal/cache"
	"github.com/kjstillabower/weatherbot/internal/circuitbreaker"
	"github.com/kjstillabower/weatherbot/internal/client"
	"github.com/kjstillabower/weatherbot/internal/config"
	"github.com/kjstillabower/weatherbot/internal/display"
	"github.com/kjstillabower/weatherbot/internal/display/is31fl3731"
	"github.com/kjstillabower/weatherbot/internal/history"
	httphandler "github.com/kjstillabower/weatherbot/internal/http"
	"github.com/kjstillabower/weatherbot/internal/lifecycle"
	"github.com/kjstillabower/weatherbot/internal/observability"
	"github.com/kjstillabower/weatherbot/internal/service"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

func main() {
	os.Exit(run(os.Args[0], os.Args[1:], os.Stdout))
}

// run wires and starts the bot and returns the process exit code.
func run(name string, args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	var debug, showVersion, once bool
	fs.BoolVar(&debug, "d", false, "debug logging")
	fs.BoolVar(&debug, "debug", false, "debug logging")
	fs.BoolVar(&showVersion, "v", false, "print version and exit")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.BoolVar(&once, "once", false, "poll and draw once, then exit leaving the frame on the display")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [-h|-help] | [-v|-version] | [-d|-debug] [-once]\n", name)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return 2
	}
	if showVersion {
		fmt.Fprintf(stdout, "%s version %s\n", name, version)
		return 0
	}

	logger, err := observability.NewLogger(debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", zap.Error(err))
		return 1
	}
	if cfg.LogFile != "" {
		fileLogger, err := observability.NewLogger(debug, cfg.LogFile)
		if err != nil {
			logger.Error("log file", zap.String("path", cfg.LogFile), zap.Error(err))
			return 1
		}
		logger = fileLogger
	}
	defer func() {
		if err := observability.FlushTelemetry(logger); err != nil {
			fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
		}
	}()

	logger.Info("weatherbot starting",
		zap.String("version", version),
		zap.String("provider", cfg.Provider),
		zap.String("station", cfg.Station),
		zap.String("scale", string(cfg.Scale)),
		zap.Duration("pollInterval", cfg.PollInterval),
		zap.String("driver", cfg.DisplayDriver))

	weatherClient, err := newWeatherClient(cfg, logger)
	if err != nil {
		logger.Error("weather client", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	validateCtx, cancel := context.WithTimeout(ctx, cfg.WeatherAPITimeout)
	err = weatherClient.ValidateAPIKey(validateCtx)
	cancel()
	if err != nil {
		if client.IsFatal(err) {
			logger.Error(fatalMessage(err), zap.Error(err))
			return 1
		}
		logger.Warn("could not validate API key, continuing", zap.Error(err))
	}

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Error("memcached cache", zap.Error(err))
			return 1
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Debug("cache backend: in_memory")
	}
	defer func() {
		if memcacheCloser != nil {
			if err := memcacheCloser.Close(); err != nil {
				logger.Error("memcached close", zap.Error(err))
			}
		}
	}()

	var store history.Store
	if cfg.HistoryPath != "" {
		s, err := history.NewSQLite(cfg.HistoryPath, logger)
		if err != nil {
			logger.Error("history", zap.Error(err))
			return 1
		}
		defer s.Close()
		store = s
		logger.Info("history enabled", zap.String("path", cfg.HistoryPath), zap.Duration("retention", cfg.HistoryRetention))
	}

	weatherService := service.NewWeatherService(weatherClient, cacheSvc, store, service.Options{
		TTL:       service.CacheTTL(cfg.PollInterval),
		Retention: cfg.HistoryRetention,
	}, logger)

	device, closeBus, err := openDevice(cfg, logger)
	if err != nil {
		logger.Error("display", zap.Error(err))
		return 1
	}
	defer closeBus()

	schedule, err := bot.NewSchedule(cfg.PollSchedule, cfg.PollInterval)
	if err != nil {
		logger.Error("poll schedule", zap.Error(err))
		return 1
	}
	opts := bot.Options{
		Station:       cfg.Station,
		Scale:         cfg.Scale,
		PollInterval:  cfg.PollInterval,
		ResetInterval: cfg.AverageResetInterval,
		PulseDelay:    cfg.PulseDelay,
		Schedule:      schedule,
		FeelsLike:     cfg.Temperature == config.TemperatureFeelsLike,
		Brightness: display.Brightness{
			Text:  cfg.TextBrightness,
			Wind:  cfg.WindBrightness,
			Gust:  cfg.GustBrightness,
			Pulse: cfg.PulseBrightness,
		},
	}
	if store != nil {
		opts.History = weatherService
	}
	b, err := bot.New(weatherService, device, opts, logger)
	if err != nil {
		logger.Error("bot", zap.Error(err))
		return 1
	}

	if once {
		if err := b.PollOnce(ctx); err != nil {
			logger.Error(fatalMessage(err), zap.Error(err))
			return 1
		}
		return 0
	}

	var srv *http.Server
	if cfg.ServerPort != "" {
		healthConfig := &httphandler.HealthConfig{
			DegradedWindow:   cfg.DegradedWindow,
			DegradedErrorPct: cfg.DegradedErrorPct,
			PollInterval:     cfg.PollInterval,
			Version:          version,
		}
		if memcacheCloser != nil {
			healthConfig.CachePing = memcacheCloser.Ping
		}
		handler := httphandler.NewHandler(b, healthConfig, logger)
		srv = &http.Server{
			Addr:         ":" + cfg.ServerPort,
			Handler:      httphandler.NewRouter(handler, logger),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("status server starting", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server", zap.Error(err))
			}
		}()
	}

	go func() {
		<-ctx.Done()
		lifecycle.SetShuttingDown(true)
	}()

	exit := 0
	if err := b.Run(ctx); err != nil {
		logger.Error(fatalMessage(err), zap.Error(err))
		exit = 1
	}
	lifecycle.SetShuttingDown(true)
	logger.Info("graceful shutdown triggered")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("status server shutdown", zap.Error(err))
		}
		if err := httphandler.WaitForInFlight(shutdownCtx, 50*time.Millisecond); err != nil {
			logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
		}
		cancel()
	}
	if err := device.Close(); err != nil {
		logger.Warn("display close", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return exit
}

func fatalMessage(err error) string {
	switch {
	case errors.Is(err, client.ErrInvalidAPIKey):
		return "weather API rejected the key, did you set the API key?"
	case errors.Is(err, client.ErrLocationNotFound):
		return "weather API does not know the station, check weather.station"
	default:
		return "poll loop stopped"
	}
}

func newWeatherClient(cfg *config.Config, logger *zap.Logger) (client.WeatherClient, error) {
	opts := client.Options{
		Timeout:           cfg.WeatherAPITimeout,
		RetryAttempts:     cfg.RetryAttempts,
		RetryBaseDelay:    cfg.RetryBaseDelay,
		RetryMaxDelay:     cfg.RetryMaxDelay,
		MaxCallsPerMinute: cfg.MaxCallsPerMinute,
		UserAgent:         cfg.UserAgent,
	}
	if cfg.CircuitBreakerEnabled {
		opts.Breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String())
				observability.SetCircuitBreakerStateGauge("weather_api", int(to))
				logger.Warn("circuit breaker transition", zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		observability.SetCircuitBreakerStateGauge("weather_api", 0)
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	switch cfg.Provider {
	case config.ProviderNWS:
		return client.NewNWSClient(cfg.WeatherAPIURL, cfg.Scale, opts)
	default:
		return client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.Scale, opts)
	}
}

// openDevice returns the configured display and a func that releases the
// I2C bus. The display itself is closed separately so -once can leave the
// last frame lit.
func openDevice(cfg *config.Config, logger *zap.Logger) (display.Device, func(), error) {
	if cfg.DisplayDriver == config.DriverConsole {
		return display.NewConsoleDevice(logger), func() {}, nil
	}

	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, nil, fmt.Errorf("open I2C bus %q: %w", cfg.I2CBus, err)
	}
	dev, err := is31fl3731.New(bus, &is31fl3731.Opts{Addr: cfg.I2CAddr, Brightness: cfg.Brightness})
	if err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("%w (a \"remote I/O error\" usually means the header is not seated)", err)
	}
	logger.Info("display ready", zap.String("device", dev.String()), zap.Bool("rotate180", cfg.Rotate180))
	closeBus := func() {
		if err := bus.Close(); err != nil {
			logger.Warn("I2C bus close", zap.Error(err))
		}
	}
	return display.NewMatrixDevice(dev, cfg.Rotate180), closeBus, nil
}
