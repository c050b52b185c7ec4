//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/weatherbot/internal/cache"
	"github.com/kjstillabower/weatherbot/internal/client"
	"github.com/kjstillabower/weatherbot/internal/history"
	"github.com/kjstillabower/weatherbot/internal/models"
	"github.com/kjstillabower/weatherbot/internal/service"
)

// IntegrationTestConfig holds configuration for tests that hit a live weather API.
type IntegrationTestConfig struct {
	Provider      string // "owm" or "nws"
	APIKey        string
	APIURL        string
	Station       string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from the environment.
// OWM runs are skipped when WEATHER_API_KEY is not set; NWS needs no key.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	cfg := IntegrationTestConfig{
		Provider:      os.Getenv("INTEGRATION_PROVIDER"),
		APIKey:        os.Getenv("WEATHER_API_KEY"),
		APIURL:        os.Getenv("WEATHER_API_URL"),
		Station:       os.Getenv("INTEGRATION_STATION"),
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: os.Getenv("MEMCACHED_ADDRS"),
	}
	if cfg.Provider == "" {
		cfg.Provider = "owm"
	}
	if cfg.MemcachedAddr == "" {
		cfg.MemcachedAddr = "localhost:11211"
	}

	switch cfg.Provider {
	case "nws":
		if cfg.APIURL == "" {
			cfg.APIURL = "https://api.weather.gov"
		}
		if cfg.Station == "" {
			cfg.Station = "KIAD"
		}
	default:
		if cfg.APIKey == "" {
			t.Skip("WEATHER_API_KEY not set, skipping integration test")
		}
		if cfg.APIURL == "" {
			cfg.APIURL = "https://api.openweathermap.org/data/2.5/weather"
		}
		if cfg.Station == "" {
			cfg.Station = "Haymarket,VA,US"
		}
	}
	return cfg
}

// SetupIntegrationClient creates a live weather client with short retries.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) client.WeatherClient {
	t.Helper()
	opts := client.Options{
		Timeout:        5 * time.Second,
		RetryAttempts:  2,
		RetryBaseDelay: 200 * time.Millisecond,
		RetryMaxDelay:  time.Second,
		UserAgent:      "weatherbot-integration-test",
	}
	var (
		c   client.WeatherClient
		err error
	)
	if cfg.Provider == "nws" {
		c, err = client.NewNWSClient(cfg.APIURL, models.Fahrenheit, opts)
	} else {
		c, err = client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, models.Fahrenheit, opts)
	}
	if err != nil {
		t.Fatalf("new %s client: %v", cfg.Provider, err)
	}
	return c
}

// SetupIntegrationService wires a live client, the configured cache and a
// SQLite history in t.TempDir into a WeatherService. Cleanup is registered on t.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, cache.Cache) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	var cacheSvc cache.Cache = cache.NewInMemoryCache()
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			cacheSvc = mc
			t.Cleanup(func() { mc.Close() })
			t.Logf("using memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("memcached not available, using in-memory cache")
		}
	}

	store, err := history.NewSQLite(t.TempDir()+"/history.db", logger)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc := service.NewWeatherService(SetupIntegrationClient(t, cfg), cacheSvc, store,
		service.Options{TTL: time.Minute, Retention: time.Hour}, logger)
	return svc, cacheSvc
}
