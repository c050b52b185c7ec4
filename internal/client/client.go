package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kjstillabower/weatherbot/internal/circuitbreaker"
	"github.com/kjstillabower/weatherbot/internal/models"
	"github.com/kjstillabower/weatherbot/internal/observability"
)

// WeatherClient fetches current conditions for a station from one provider.
type WeatherClient interface {
	CurrentConditions(ctx context.Context, station string) (models.Observation, error)
	ValidateAPIKey(ctx context.Context) error
	Name() string
}

var (
	ErrInvalidAPIKey         = errors.New("invalid API key")
	ErrLocationNotFound      = errors.New("location not found")
	ErrUpstreamFailure       = errors.New("upstream failure")
	ErrRequestRejected       = errors.New("request rejected")
	ErrRateLimited           = errors.New("rate limited")
	ErrIncompleteObservation = errors.New("incomplete observation")
)

// IsFatal reports whether err is a configuration problem that no amount of
// polling will fix: a rejected API key or an unknown station.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidAPIKey) || errors.Is(err, ErrLocationNotFound)
}

// Options configures the HTTP behaviour shared by all providers.
type Options struct {
	Timeout           time.Duration
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	MaxCallsPerMinute int // 0 disables client-side rate limiting
	UserAgent         string
	Breaker           *circuitbreaker.CircuitBreaker
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 1
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 100 * time.Millisecond
	}
	if o.RetryMaxDelay < o.RetryBaseDelay {
		o.RetryMaxDelay = o.RetryBaseDelay
	}
	if o.UserAgent == "" {
		o.UserAgent = "weatherbot"
	}
	return o
}

// caller performs JSON GETs with rate limiting, retries and an optional breaker.
type caller struct {
	provider string
	opts     Options
	client   *http.Client
	limiter  *rate.Limiter
	// statusError maps a non-2xx response to a sentinel error; providers differ on 401/404.
	statusError func(resp *http.Response) error
}

func newCaller(provider string, opts Options, statusError func(*http.Response) error) *caller {
	opts = opts.withDefaults()
	var limiter *rate.Limiter
	if opts.MaxCallsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.MaxCallsPerMinute)), 1)
	}
	return &caller{
		provider:    provider,
		opts:        opts,
		client:      &http.Client{Timeout: opts.Timeout},
		limiter:     limiter,
		statusError: statusError,
	}
}

// getJSON GETs url into out, retrying transient failures with exponential backoff.
func (c *caller) getJSON(ctx context.Context, url string, header http.Header, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt < c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.attempt(ctx, url, header, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || !isRetryable(err) {
			return err
		}
	}

	if c.opts.RetryAttempts == 1 {
		return lastErr
	}
	return fmt.Errorf("exhausted %d attempts: %w", c.opts.RetryAttempts, lastErr)
}

func (c *caller) attempt(ctx context.Context, url string, header http.Header, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if c.opts.Breaker == nil {
		return c.callAPI(ctx, url, header, out)
	}
	return c.opts.Breaker.Call(ctx, func() error {
		return c.callAPI(ctx, url, header, out)
	})
}

func (c *caller) callAPI(ctx context.Context, url string, header http.Header, out interface{}) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(c.provider, "error").Inc()
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)
	for k, v := range header {
		req.Header[k] = v
	}
	if id := PollIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues(c.provider, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(c.provider, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(c.provider, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(c.provider, status).Observe(duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return c.statusError(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// commonStatusError handles the statuses every provider shares. Other 4xx
// answers will not change on retry and map to ErrRequestRejected.
func commonStatusError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrLocationNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return fmt.Errorf("%w: HTTP %d", ErrRequestRejected, resp.StatusCode)
	}
	return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, ErrRequestRejected) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "http request failed")
}

func (c *caller) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.opts.RetryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.opts.RetryMaxDelay) {
		delay = float64(c.opts.RetryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

type pollIDKey struct{}

// WithPollID tags ctx with the id of the current poll cycle. Clients forward it
// upstream as X-Correlation-ID.
func WithPollID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, pollIDKey{}, id)
}

// PollIDFromContext returns the poll id set by WithPollID, or "".
func PollIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(pollIDKey{}).(string); ok {
		return id
	}
	return ""
}
