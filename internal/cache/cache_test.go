package cache

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/weatherbot/internal/models"
)

func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	val := models.Observation{Station: "london,gb", Temperature: 12.5, Scale: models.Celsius}
	if err := c.Set(ctx, "owm:london,gb", val, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "owm:london,gb")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Station != val.Station || got.Temperature != val.Temperature {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
}

func TestInMemoryCache_Get_Miss(t *testing.T) {
	c := NewInMemoryCache()
	_, ok, err := c.Get(context.Background(), "owm:nowhere")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false")
	}
}

func TestInMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	c := NewInMemoryCache()
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "k", models.Observation{Temperature: 1}, time.Minute)
	now = now.Add(59 * time.Second)
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatal("entry should still be fresh")
	}
	now = now.Add(2 * time.Second)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("entry should have expired")
	}
	if len(c.data) != 0 {
		t.Errorf("expired entry not removed, len = %d", len(c.data))
	}
}

func TestKey(t *testing.T) {
	if a, b := Key("owm", "Haymarket, VA,US"), Key("owm", " haymarket,va,us"); a != b {
		t.Errorf("Key mismatch: %q vs %q", a, b)
	}
	if Key("owm", "KHEF") == Key("nws", "KHEF") {
		t.Error("providers must not share keys")
	}
}

func TestExpirationSeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{0, 1},
		{500 * time.Millisecond, 1},
		{170 * time.Second, 170},
		{1500 * time.Millisecond, 2},
		{60 * 24 * time.Hour, 30 * 24 * 60 * 60},
	}
	for _, tt := range tests {
		if got := expirationSeconds(tt.ttl); got != tt.want {
			t.Errorf("expirationSeconds(%v) = %d, want %d", tt.ttl, got, tt.want)
		}
	}
}

func TestMemcachedCache_KeySanitized(t *testing.T) {
	c, err := NewMemcachedCache("localhost:11211", 0, 0)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	if got := c.key("owm:sao paulo,br"); got != "weatherbot:owm:sao_paulo,br" {
		t.Errorf("key = %q", got)
	}
	if _, err := NewMemcachedCache(" , ", 0, 0); err == nil {
		t.Error("NewMemcachedCache with no addresses should fail")
	}
}
