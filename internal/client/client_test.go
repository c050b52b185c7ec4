package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weatherbot/internal/circuitbreaker"
	"github.com/kjstillabower/weatherbot/internal/models"
)

func TestCurrentConditions_RetryLogic(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(owmPayload())
	}))
	defer server.Close()

	opts := testOptions
	opts.RetryAttempts = 3
	client, err := NewOpenWeatherClient("test-api-key-12345", server.URL, models.Fahrenheit, opts)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	got, err := client.CurrentConditions(context.Background(), "london,gb")
	if err != nil {
		t.Fatalf("CurrentConditions() error = %v", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
	if got.Temperature != 41.7 {
		t.Errorf("Temperature = %v", got.Temperature)
	}
}

func TestCurrentConditions_ExhaustedRetries(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	opts := testOptions
	opts.RetryAttempts = 2
	client, _ := NewOpenWeatherClient("test-api-key-12345", server.URL, models.Fahrenheit, opts)

	_, err := client.CurrentConditions(context.Background(), "london,gb")
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Fatalf("error = %v, want ErrUpstreamFailure", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestCurrentConditions_NoRetryOnNonRetryableError(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	opts := testOptions
	opts.RetryAttempts = 3
	client, _ := NewOpenWeatherClient("test-api-key-12345", server.URL, models.Fahrenheit, opts)

	_, err := client.CurrentConditions(context.Background(), "london,gb")
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("error = %v, want ErrInvalidAPIKey", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("expected 1 attempt (no retry), got %d", n)
	}
}

func TestCurrentConditions_NoRetryOnOther4xx(t *testing.T) {
	for _, code := range []int{http.StatusBadRequest, http.StatusForbidden} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			var attempts int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attempts, 1)
				w.WriteHeader(code)
			}))
			defer server.Close()

			opts := testOptions
			opts.RetryAttempts = 5
			c, err := NewNWSClient(server.URL, models.Fahrenheit, opts)
			if err != nil {
				t.Fatalf("NewNWSClient() error = %v", err)
			}

			_, err = c.CurrentConditions(context.Background(), "KHEF")
			if !errors.Is(err, ErrRequestRejected) {
				t.Errorf("error = %v, want ErrRequestRejected", err)
			}
			if IsFatal(err) {
				t.Errorf("IsFatal(%v) = true, want the poll loop to carry on", err)
			}
			if n := atomic.LoadInt32(&attempts); n != 1 {
				t.Errorf("expected 1 attempt (no retry), got %d", n)
			}
		})
	}
}

func TestCurrentConditions_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClient("test-api-key-12345", server.URL, models.Fahrenheit, testOptions)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.CurrentConditions(ctx, "london,gb")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestCurrentConditions_ForwardsPollID(t *testing.T) {
	var captured string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Get("X-Correlation-ID")
		_ = json.NewEncoder(w).Encode(owmPayload())
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClient("test-api-key-12345", server.URL, models.Fahrenheit, testOptions)
	ctx := WithPollID(context.Background(), "poll-123")
	if _, err := client.CurrentConditions(ctx, "london,gb"); err != nil {
		t.Fatalf("CurrentConditions() error = %v", err)
	}
	if captured != "poll-123" {
		t.Errorf("X-Correlation-ID = %q, want poll-123", captured)
	}
	if PollIDFromContext(context.Background()) != "" {
		t.Error("PollIDFromContext on empty context should be empty")
	}
}

func TestCurrentConditions_BreakerStopsCalls(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	opts := testOptions
	opts.Breaker = circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, Timeout: time.Hour})
	client, _ := NewOpenWeatherClient("test-api-key-12345", server.URL, models.Fahrenheit, opts)

	_, _ = client.CurrentConditions(context.Background(), "london,gb")
	_, err := client.CurrentConditions(context.Background(), "london,gb")
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Errorf("second call error = %v, want circuitbreaker.ErrOpen", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("upstream attempts = %d, want 1", n)
	}
}

func TestCurrentConditions_RateLimiterSpacesCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(owmPayload())
	}))
	defer server.Close()

	opts := testOptions
	opts.MaxCallsPerMinute = 1200 // one call per 50ms
	client, _ := NewOpenWeatherClient("test-api-key-12345", server.URL, models.Fahrenheit, opts)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.CurrentConditions(context.Background(), "london,gb"); err != nil {
			t.Fatalf("call %d error = %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 calls took %v, want >= ~100ms with limiter", elapsed)
	}
}

func TestCalculateBackoff(t *testing.T) {
	c := newCaller("owm", Options{RetryBaseDelay: 100 * time.Millisecond, RetryMaxDelay: 300 * time.Millisecond}, commonStatusError)
	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{1, 100 * time.Millisecond, 110 * time.Millisecond},
		{2, 200 * time.Millisecond, 220 * time.Millisecond},
		{3, 300 * time.Millisecond, 330 * time.Millisecond},
		{6, 300 * time.Millisecond, 330 * time.Millisecond},
	}
	for _, tt := range tests {
		got := c.calculateBackoff(tt.attempt)
		if got < tt.min || got > tt.max {
			t.Errorf("calculateBackoff(%d) = %v, want in [%v, %v]", tt.attempt, got, tt.min, tt.max)
		}
	}
}

func TestStatusLabel(t *testing.T) {
	for code, want := range map[int]string{200: "success", 429: "rate_limited", 404: "client_error", 503: "server_error", 302: "error"} {
		if got := statusLabel(code); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
