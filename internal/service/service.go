package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weatherbot/internal/cache"
	"github.com/kjstillabower/weatherbot/internal/client"
	"github.com/kjstillabower/weatherbot/internal/history"
	"github.com/kjstillabower/weatherbot/internal/models"
	"github.com/kjstillabower/weatherbot/internal/observability"
)

// pruneEvery bounds how often the history log is trimmed.
const pruneEvery = time.Hour

// WeatherService fetches observations cache-aside and records fresh ones in
// the history log.
type WeatherService struct {
	client    client.WeatherClient
	cache     cache.Cache
	history   history.Store // nil disables history
	ttl       time.Duration
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu         sync.Mutex
	lastPruned time.Time
}

// Options configures a WeatherService.
type Options struct {
	// TTL is the cache lifetime. A restart or a -once run inside the TTL
	// reuses the entry instead of calling upstream.
	TTL time.Duration
	// Retention is how long history rows are kept (0 keeps everything).
	Retention time.Duration
}

// NewWeatherService creates a WeatherService. store may be nil.
func NewWeatherService(c client.WeatherClient, ch cache.Cache, store history.Store, opts Options, logger *zap.Logger) *WeatherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherService{
		client:    c,
		cache:     ch,
		history:   store,
		ttl:       opts.TTL,
		retention: opts.Retention,
		logger:    logger,
		now:       time.Now,
	}
}

// CacheTTL derives the cache lifetime from the poll interval: a tenth of the
// interval (at most 10s) shorter, so an entry never outlives the next poll.
func CacheTTL(pollInterval time.Duration) time.Duration {
	margin := pollInterval / 10
	if margin > 10*time.Second {
		margin = 10 * time.Second
	}
	ttl := pollInterval - margin
	if ttl <= 0 {
		return time.Second
	}
	return ttl
}

// Current returns the observation for station from cache, or fetches it from
// upstream on a miss. Cache and history failures are logged and never fail the call.
func (s *WeatherService) Current(ctx context.Context, station string) (models.Observation, error) {
	key := cache.Key(s.client.Name(), station)

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			observability.CacheErrorsTotal.WithLabelValues("get").Inc()
			s.logger.Warn("cache get failed", zap.String("key", key), zap.String("category", categorizeCacheError(err)), zap.Error(err))
		} else if ok {
			observability.CacheHitsTotal.WithLabelValues("observation").Inc()
			s.logger.Debug("cache hit", zap.String("key", key))
			cached.Cached = true
			return cached, nil
		}
	}

	return s.fetch(ctx, key, station)
}

// Refresh fetches from upstream without reading the cache, then stores the
// result like Current does. Scheduled polls use it so every poll gets a new
// upstream reading.
func (s *WeatherService) Refresh(ctx context.Context, station string) (models.Observation, error) {
	return s.fetch(ctx, cache.Key(s.client.Name(), station), station)
}

func (s *WeatherService) fetch(ctx context.Context, key, station string) (models.Observation, error) {
	obs, err := s.client.CurrentConditions(ctx, station)
	if err != nil {
		return models.Observation{}, fmt.Errorf("fetch conditions for %s: %w", station, err)
	}

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.Set(ctx, key, obs, s.ttl); err != nil {
			observability.CacheErrorsTotal.WithLabelValues("set").Inc()
			s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	s.record(ctx, obs)
	return obs, nil
}

func (s *WeatherService) record(ctx context.Context, obs models.Observation) {
	if s.history == nil {
		return
	}
	if err := s.history.Append(ctx, obs); err != nil {
		observability.HistoryWritesTotal.WithLabelValues("error").Inc()
		s.logger.Warn("history append failed", zap.Error(err))
		return
	}
	observability.HistoryWritesTotal.WithLabelValues("success").Inc()

	if s.retention <= 0 {
		return
	}
	now := s.now()
	s.mu.Lock()
	due := now.Sub(s.lastPruned) >= pruneEvery
	if due {
		s.lastPruned = now
	}
	s.mu.Unlock()
	if !due {
		return
	}
	n, err := s.history.Prune(ctx, now.Add(-s.retention))
	if err != nil {
		s.logger.Warn("history prune failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Debug("history pruned", zap.Int64("rows", n))
	}
}

// Recent returns stored observations for station fetched since t in the
// requested scale, oldest first. Rows recorded in another scale are skipped.
func (s *WeatherService) Recent(ctx context.Context, station string, scale models.Scale, t time.Time) ([]models.Observation, error) {
	if s.history == nil {
		return nil, nil
	}
	rows, err := s.history.Since(ctx, station, t)
	if err != nil {
		return nil, err
	}
	out := make([]models.Observation, 0, len(rows))
	for _, r := range rows {
		if r.Scale == scale {
			out = append(out, r)
		}
	}
	return out, nil
}

// categorizeCacheError returns a stable label for cache error logs (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
