package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weatherbot/internal/models"
	"github.com/kjstillabower/weatherbot/internal/validation"
)

const (
	ProviderOWM = "owm"
	ProviderNWS = "nws"

	DriverIS31FL3731 = "is31fl3731"
	DriverConsole    = "console"

	TemperatureActual    = "actual"
	TemperatureFeelsLike = "feels_like"

	defaultOWMURL = "https://api.openweathermap.org/data/2.5/weather"
	defaultNWSURL = "https://api.weather.gov"
)

// Config holds weatherbot configuration loaded from .env, YAML and the environment.
type Config struct {
	Provider          string // "owm" or "nws"
	Station           string
	Scale             models.Scale
	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	UserAgent         string

	PollInterval         time.Duration
	PollSchedule         string // cron expression; empty means aligned to PollInterval
	AverageResetInterval time.Duration
	PulseDelay           time.Duration
	Temperature          string // "actual" or "feels_like"

	DisplayDriver   string
	I2CBus          string
	I2CAddr         uint16
	Rotate180       bool
	Brightness      float64
	TextBrightness  float64
	WindBrightness  float64
	GustBrightness  float64
	PulseBrightness float64

	RetryAttempts     int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	MaxCallsPerMinute int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	CacheBackend          string // "in_memory" or "memcached"
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	HistoryPath      string // empty disables the observation log
	HistoryRetention time.Duration

	ServerPort       string // empty disables the status server
	ShutdownTimeout  time.Duration
	DegradedWindow   time.Duration
	DegradedErrorPct int

	LogFile string
}

type fileConfig struct {
	Weather struct {
		Provider  string `yaml:"provider"`
		Station   string `yaml:"station"`
		Scale     string `yaml:"scale"`
		URL       string `yaml:"url"`
		Timeout   string `yaml:"timeout"`
		UserAgent string `yaml:"user_agent"`
	} `yaml:"weather"`

	Poll struct {
		Interval           string `yaml:"interval"`
		Schedule           string `yaml:"schedule"`
		AverageReset       string `yaml:"average_reset"`
		PulseDelay         string `yaml:"pulse_delay"`
		DisplayTemperature string `yaml:"temperature"`
	} `yaml:"poll"`

	Display struct {
		Driver          string   `yaml:"driver"`
		I2CBus          string   `yaml:"i2c_bus"`
		I2CAddr         int      `yaml:"i2c_addr"`
		Rotate180       *bool    `yaml:"rotate_180"`
		Brightness      *float64 `yaml:"brightness"`
		TextBrightness  *float64 `yaml:"text_brightness"`
		WindBrightness  *float64 `yaml:"wind_brightness"`
		GustBrightness  *float64 `yaml:"gust_brightness"`
		PulseBrightness *float64 `yaml:"pulse_brightness"`
	} `yaml:"display"`

	Reliability struct {
		RetryMaxAttempts  int    `yaml:"retry_max_attempts"`
		RetryBaseDelay    string `yaml:"retry_base_delay"`
		RetryMaxDelay     string `yaml:"retry_max_delay"`
		MaxCallsPerMinute int    `yaml:"max_calls_per_minute"`
		CircuitBreaker    struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	History struct {
		Path      string `yaml:"path"`
		Retention string `yaml:"retention"`
	} `yaml:"history"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Log struct {
		File string `yaml:"file"`
	} `yaml:"log"`
}

type secretsFile struct {
	OWMAPIKey string `yaml:"owm_api_key"`
}

// Load reads .env (if present), config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml from the working directory. Environment variables win
// over both files. The API key comes from OWM_API_KEY, WEATHER_API_KEY or the
// secrets file and is only required for the owm provider.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.Provider = envOr("WEATHER_PROVIDER", fc.Weather.Provider)
	cfg.Provider = strings.ToLower(cfg.Provider)
	if cfg.Provider == "" {
		cfg.Provider = ProviderOWM
	}

	switch cfg.Provider {
	case ProviderNWS:
		cfg.Station = envOr("WEATHER_STATION", fc.Weather.Station)
		if cfg.Station == "" {
			cfg.Station = "KHEF"
		}
	default:
		cfg.Station = envOr("OWM_STATION", fc.Weather.Station)
		if cfg.Station == "" {
			cfg.Station = "Haymarket,VA,US"
		}
	}

	cfg.Scale = models.Scale(strings.ToUpper(strings.TrimSpace(fc.Weather.Scale)))
	if cfg.Scale == "" {
		cfg.Scale = models.Fahrenheit
	}

	cfg.WeatherAPIURL = strings.TrimSpace(fc.Weather.URL)
	if cfg.WeatherAPIURL == "" {
		if cfg.Provider == ProviderNWS {
			cfg.WeatherAPIURL = defaultNWSURL
		} else {
			cfg.WeatherAPIURL = defaultOWMURL
		}
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.Weather.Timeout, 10*time.Second)
	cfg.UserAgent = strings.TrimSpace(fc.Weather.UserAgent)
	if cfg.UserAgent == "" {
		cfg.UserAgent = "(weatherbot, weatherbot@localhost)"
	}

	if cfg.Provider == ProviderOWM {
		key, err := loadAPIKey(cwd)
		if err != nil {
			return nil, err
		}
		if key == "" {
			return nil, fmt.Errorf("OWM_API_KEY required (set env, .env or config/secrets.yaml owm_api_key)")
		}
		cfg.WeatherAPIKey = key
	}

	cfg.PollInterval = parseDuration(fc.Poll.Interval, 180*time.Second)
	cfg.PollSchedule = strings.TrimSpace(fc.Poll.Schedule)
	if cfg.PollSchedule != "" && strings.TrimSpace(fc.Poll.Interval) == "" {
		if cadence, err := scheduleCadence(cfg.PollSchedule); err == nil {
			cfg.PollInterval = cadence
		}
	}
	cfg.AverageResetInterval = parseDuration(fc.Poll.AverageReset, 60*time.Minute)
	cfg.PulseDelay = parseDuration(fc.Poll.PulseDelay, 50*time.Millisecond)
	cfg.Temperature = strings.ToLower(strings.TrimSpace(fc.Poll.DisplayTemperature))
	if cfg.Temperature == "" {
		cfg.Temperature = TemperatureActual
	}

	cfg.DisplayDriver = strings.ToLower(envOr("DISPLAY_DRIVER", fc.Display.Driver))
	if cfg.DisplayDriver == "" {
		cfg.DisplayDriver = DriverIS31FL3731
	}
	cfg.I2CBus = strings.TrimSpace(fc.Display.I2CBus)
	cfg.I2CAddr = uint16(fc.Display.I2CAddr)
	if cfg.I2CAddr == 0 {
		cfg.I2CAddr = 0x74
	}
	cfg.Rotate180 = true
	if fc.Display.Rotate180 != nil {
		cfg.Rotate180 = *fc.Display.Rotate180
	}
	cfg.Brightness = floatOr(fc.Display.Brightness, 1.0)
	cfg.TextBrightness = floatOr(fc.Display.TextBrightness, 0.2)
	cfg.WindBrightness = floatOr(fc.Display.WindBrightness, 0.1)
	cfg.GustBrightness = floatOr(fc.Display.GustBrightness, 0.2)
	cfg.PulseBrightness = floatOr(fc.Display.PulseBrightness, 0.2)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 10
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 10*time.Second)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 60*time.Second)
	cfg.MaxCallsPerMinute = fc.Reliability.MaxCallsPerMinute
	if cfg.MaxCallsPerMinute <= 0 {
		cfg.MaxCallsPerMinute = 30
	}
	cfg.CircuitBreakerEnabled = fc.Reliability.CircuitBreaker.Enabled
	cfg.CircuitBreakerFailureThreshold = fc.Reliability.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 3
	}
	cfg.CircuitBreakerSuccessThreshold = fc.Reliability.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 1
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 10*time.Minute)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = envOr("MEMCACHED_ADDRS", fc.Cache.Memcached.Addrs)
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.HistoryPath = strings.TrimSpace(fc.History.Path)
	cfg.HistoryRetention = parseDuration(fc.History.Retention, 7*24*time.Hour)

	cfg.ServerPort = strings.TrimSpace(fc.Server.Port)
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 5*time.Second)
	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 30*time.Minute)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	cfg.LogFile = strings.TrimSpace(fc.Log.File)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadAPIKey returns the key from OWM_API_KEY, WEATHER_API_KEY or
// config/secrets.yaml, in that order. A missing secrets file is not an error.
func loadAPIKey(cwd string) (string, error) {
	if key := strings.TrimSpace(os.Getenv("OWM_API_KEY")); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(os.Getenv("WEATHER_API_KEY")); key != "" {
		return key, nil
	}
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	secretsData, err := os.ReadFile(secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.OWMAPIKey), nil
}

func envOr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
}

func floatOr(v *float64, defaultVal float64) float64 {
	if v == nil {
		return defaultVal
	}
	return *v
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is so validate can reject them.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// cadenceSamples is how many firings scheduleCadence inspects; enough to
// cross day and week boundaries for hourly schedules.
const cadenceSamples = 1000

// scheduleCadence returns the fixed gap between firings of a cron
// expression. The trend reset and cache TTL are derived from the poll
// interval, so schedules whose gaps vary are rejected.
func scheduleCadence(expr string) (time.Duration, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", expr, err)
	}
	prev := sched.Next(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	next := sched.Next(prev)
	cadence := next.Sub(prev)
	for i := 0; i < cadenceSamples; i++ {
		prev, next = next, sched.Next(next)
		if gap := next.Sub(prev); gap != cadence {
			return 0, fmt.Errorf("%q fires at uneven intervals (%s then %s)", expr, cadence, gap)
		}
	}
	return cadence, nil
}

func validate(cfg *Config) error {
	switch cfg.Provider {
	case ProviderOWM, ProviderNWS:
	default:
		return fmt.Errorf("weather.provider must be owm or nws, got %q", cfg.Provider)
	}
	station, err := validation.ValidateStation(cfg.Provider == ProviderNWS, cfg.Station)
	if err != nil {
		return fmt.Errorf("weather.station %q: %w", cfg.Station, err)
	}
	cfg.Station = station
	if !cfg.Scale.Valid() {
		return fmt.Errorf("weather.scale must be F or C, got %q", cfg.Scale)
	}
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather.timeout must be positive")
	}
	if cfg.PollInterval < time.Second {
		return fmt.Errorf("poll.interval must be at least 1s, got %s", cfg.PollInterval)
	}
	if cfg.PollSchedule != "" {
		cadence, err := scheduleCadence(cfg.PollSchedule)
		if err != nil {
			return fmt.Errorf("poll.schedule: %w", err)
		}
		if cadence != cfg.PollInterval {
			return fmt.Errorf("poll.schedule fires every %s but poll.interval is %s; drop poll.interval or set it to match", cadence, cfg.PollInterval)
		}
	}
	switch cfg.Temperature {
	case TemperatureActual, TemperatureFeelsLike:
	default:
		return fmt.Errorf("poll.temperature must be actual or feels_like, got %q", cfg.Temperature)
	}
	switch cfg.DisplayDriver {
	case DriverIS31FL3731, DriverConsole:
	default:
		return fmt.Errorf("display.driver must be is31fl3731 or console, got %q", cfg.DisplayDriver)
	}
	for name, v := range map[string]float64{
		"brightness":       cfg.Brightness,
		"text_brightness":  cfg.TextBrightness,
		"wind_brightness":  cfg.WindBrightness,
		"gust_brightness":  cfg.GustBrightness,
		"pulse_brightness": cfg.PulseBrightness,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("display.%s must be within [0, 1], got %g", name, v)
		}
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	return nil
}
