package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kjstillabower/weatherbot/internal/models"
)

// Cache stores the latest observation per station so a restart (or a second
// display sharing memcached) inside one poll interval does not spend an API call.
type Cache interface {
	Get(ctx context.Context, station string) (models.Observation, bool, error)
	Set(ctx context.Context, station string, obs models.Observation, ttl time.Duration) error
}

// Key normalizes a station into a cache key: "Haymarket, VA,US" and
// "haymarket,va,us" share an entry.
func Key(provider, station string) string {
	s := strings.ToLower(strings.TrimSpace(station))
	s = strings.ReplaceAll(s, " ", "")
	return provider + ":" + s
}

// InMemoryCache implements Cache with a mutex-guarded map. Expired entries are
// removed on access.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	now  func() time.Time
}

type cacheEntry struct {
	value     models.Observation
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

// Get returns (obs, true, nil) on a hit and (zero, false, nil) on miss or expiry.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.Observation, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return models.Observation{}, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return models.Observation{}, false, nil
	}
	return entry.value, true, nil
}

// Set stores obs for ttl.
func (c *InMemoryCache) Set(ctx context.Context, key string, obs models.Observation, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{
		value:     obs,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}
