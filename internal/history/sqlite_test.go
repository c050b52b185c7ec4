package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/weatherbot/internal/models"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "history.db"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func obsAt(station string, temp float64, at time.Time) models.Observation {
	return models.Observation{
		Station:     station,
		Temperature: temp,
		FeelsLike:   temp - 1,
		Humidity:    60,
		WindSpeed:   5,
		WindGust:    9.5,
		Conditions:  "clear sky",
		Scale:       models.Fahrenheit,
		ObservedAt:  at.Add(-time.Minute),
		FetchedAt:   at,
	}
}

func TestSQLiteStore_AppendSince(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// Inserted out of order on purpose.
	for _, o := range []models.Observation{
		obsAt("KHEF", 52, base.Add(6*time.Minute)),
		obsAt("KHEF", 50, base),
		obsAt("KHEF", 51, base.Add(3*time.Minute)),
		obsAt("KIAD", 40, base.Add(3*time.Minute)),
	} {
		if err := s.Append(ctx, o); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := s.Since(ctx, "KHEF", base.Add(time.Minute))
	if err != nil {
		t.Fatalf("Since() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Since() returned %d rows, want 2", len(got))
	}
	if got[0].Temperature != 51 || got[1].Temperature != 52 {
		t.Errorf("Since() order = %v, %v; want 51, 52", got[0].Temperature, got[1].Temperature)
	}
	if !got[0].FetchedAt.Equal(base.Add(3 * time.Minute)) {
		t.Errorf("FetchedAt = %v", got[0].FetchedAt)
	}
	if got[0].Scale != models.Fahrenheit || got[0].WindGust != 9.5 || got[0].Conditions != "clear sky" {
		t.Errorf("round trip lost fields: %+v", got[0])
	}
}

func TestSQLiteStore_Prune(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := s.Append(ctx, obsAt("KHEF", float64(50+i), base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	n, err := s.Prune(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() removed %d, want 2", n)
	}
	left, _ := s.Since(ctx, "KHEF", time.Time{})
	if len(left) != 3 || left[0].Temperature != 52 {
		t.Errorf("after Prune got %d rows starting at %v", len(left), left)
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := NewSQLite(path, nil)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	if err := s.Append(ctx, obsAt("KHEF", 61, now)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	s.Close()

	s2, err := NewSQLite(path, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s2.Close()
	got, err := s2.Since(ctx, "KHEF", now.Add(-time.Hour))
	if err != nil || len(got) != 1 {
		t.Fatalf("Since() after reopen = %v, %v", got, err)
	}
}
