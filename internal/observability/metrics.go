package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/weatherbot/internal/models"
)

var (
	registry *prometheus.Registry

	// Status server request rate. Watch for: scrape gaps.
	HTTPRequestsTotal *prometheus.CounterVec

	// Status server latency per request.
	HTTPRequestDuration *prometheus.HistogramVec

	// Status server requests being served. Shutdown waits for this to reach zero.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream weather API call rate by provider and outcome. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Upstream latency per request. Watch for: p95 approaching the client timeout.
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts for weather API. Watch for: high retries = unstable upstream or flaky Wi-Fi.
	WeatherAPIRetriesTotal prometheus.Counter

	// Classified upstream failures (see client.CategorizeError).
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Poll cycles by result (success, error). Watch for: sustained errors.
	PollsTotal *prometheus.CounterVec

	// Unix time of the last successful poll. Watch for: time() - value > 3 poll intervals.
	LastSuccessfulPollTimestamp prometheus.Gauge

	// Latest temperatures in display scale; kind is actual, feels_like or average.
	TemperatureGauge *prometheus.GaugeVec

	// Latest wind in display units; kind is speed or gust.
	WindGauge *prometheus.GaugeVec

	// Latest relative humidity percentage.
	HumidityGauge prometheus.Gauge

	// Trend direction shown on the display: -1 falling, 0 steady, 1 rising.
	TrendDirectionGauge prometheus.Gauge

	// Frames pushed to the display by result. Watch for: errors = loose header / I2C trouble.
	DisplayWritesTotal *prometheus.CounterVec

	// Observation cache hits.
	CacheHitsTotal *prometheus.CounterVec

	// Observation cache errors by operation (get, set). Polls continue on cache errors.
	CacheErrorsTotal *prometheus.CounterVec

	// History store writes by result.
	HistoryWritesTotal *prometheus.CounterVec

	// Circuit breaker state: 0 closed, 1 open, 2 half_open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker state transitions.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of status server HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "Status server HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Status server HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of upstream weather API calls",
		},
		[]string{"provider", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Upstream weather API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for weather API calls",
		},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "Upstream weather API failures by category",
		},
		[]string{"category"},
	)
	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollsTotal",
			Help: "Total number of poll cycles by result",
		},
		[]string{"result"},
	)
	LastSuccessfulPollTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lastSuccessfulPollTimestampSeconds",
			Help: "Unix time of the last successful poll",
		},
	)
	TemperatureGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "temperature",
			Help: "Latest temperature in the display scale",
		},
		[]string{"kind"},
	)
	WindGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wind",
			Help: "Latest wind in display units (mph for F, kph for C)",
		},
		[]string{"kind"},
	)
	HumidityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "humidityPercent",
			Help: "Latest relative humidity",
		},
	)
	TrendDirectionGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trendDirection",
			Help: "Temperature trend shown on the display (-1 falling, 0 steady, 1 rising)",
		},
	)
	DisplayWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "displayWritesTotal",
			Help: "Total number of frames written to the display by result",
		},
		[]string{"result"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of observation cache hits",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Observation cache errors by operation",
		},
		[]string{"operation"},
	)
	HistoryWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "historyWritesTotal",
			Help: "Observation history writes by result",
		},
		[]string{"result"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half_open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal, WeatherAPIErrorsTotal,
		PollsTotal, LastSuccessfulPollTimestamp,
		TemperatureGauge, WindGauge, HumidityGauge, TrendDirectionGauge,
		DisplayWritesTotal,
		CacheHitsTotal, CacheErrorsTotal,
		HistoryWritesTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
	)
}

// RecordObservation publishes the values of a successful poll.
func RecordObservation(obs models.Observation, average float64, trend int) {
	TemperatureGauge.WithLabelValues("actual").Set(obs.Temperature)
	TemperatureGauge.WithLabelValues("feels_like").Set(obs.FeelsLike)
	TemperatureGauge.WithLabelValues("average").Set(average)
	WindGauge.WithLabelValues("speed").Set(obs.WindSpeed)
	WindGauge.WithLabelValues("gust").Set(obs.WindGust)
	HumidityGauge.Set(float64(obs.Humidity))
	TrendDirectionGauge.Set(float64(trend))
	PollsTotal.WithLabelValues("success").Inc()
	LastSuccessfulPollTimestamp.Set(float64(obs.FetchedAt.Unix()))
}

// RecordPollError counts a failed poll under its error category.
func RecordPollError(category string) {
	PollsTotal.WithLabelValues("error").Inc()
	WeatherAPIErrorsTotal.WithLabelValues(category).Inc()
}

// RecordCircuitBreakerTransition counts a breaker state change.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
}

// SetCircuitBreakerStateGauge sets the breaker state gauge (0 closed, 1 open, 2 half_open).
func SetCircuitBreakerStateGauge(component string, state int) {
	CircuitBreakerState.WithLabelValues(component).Set(float64(state))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
