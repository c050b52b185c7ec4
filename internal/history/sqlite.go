// Package history persists observations so the running average survives a
// restart of the bot.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kjstillabower/weatherbot/internal/models"
)

// Store is the observation log used by the service and the bot.
type Store interface {
	Append(ctx context.Context, obs models.Observation) error
	Since(ctx context.Context, station string, t time.Time) ([]models.Observation, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

const schema = `CREATE TABLE IF NOT EXISTS observations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	station     TEXT    NOT NULL,
	scale       TEXT    NOT NULL,
	temperature REAL    NOT NULL,
	feels_like  REAL    NOT NULL,
	humidity    INTEGER NOT NULL,
	wind_speed  REAL    NOT NULL,
	wind_gust   REAL    NOT NULL,
	code        INTEGER NOT NULL,
	conditions  TEXT    NOT NULL,
	observed_at INTEGER NOT NULL,
	fetched_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS observations_station_fetched ON observations(station, fetched_at);`

// SQLiteStore implements Store on modernc.org/sqlite (pure Go, no cgo, so it
// cross-compiles for ARM boards).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and applies the schema.
func NewSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil && logger != nil {
		logger.Warn("could not set WAL mode", zap.String("path", path), zap.Error(err))
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append records one observation. Timestamps are stored as unix nanoseconds.
func (s *SQLiteStore) Append(ctx context.Context, obs models.Observation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO observations(station, scale, temperature, feels_like, humidity, wind_speed, wind_gust, code, conditions, observed_at, fetched_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		obs.Station, string(obs.Scale), obs.Temperature, obs.FeelsLike, obs.Humidity,
		obs.WindSpeed, obs.WindGust, obs.ConditionCode, obs.Conditions,
		obs.ObservedAt.UnixNano(), obs.FetchedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("append observation: %w", err)
	}
	return nil
}

// Since returns observations for station fetched at or after t, oldest first.
func (s *SQLiteStore) Since(ctx context.Context, station string, t time.Time) ([]models.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT station, scale, temperature, feels_like, humidity, wind_speed, wind_gust, code, conditions, observed_at, fetched_at
		 FROM observations WHERE station = ? AND fetched_at >= ? ORDER BY fetched_at ASC, id ASC`,
		station, t.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []models.Observation
	for rows.Next() {
		var (
			obs                 models.Observation
			scale               string
			observedAt, fetched int64
		)
		if err := rows.Scan(&obs.Station, &scale, &obs.Temperature, &obs.FeelsLike, &obs.Humidity,
			&obs.WindSpeed, &obs.WindGust, &obs.ConditionCode, &obs.Conditions, &observedAt, &fetched); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		obs.Scale = models.Scale(scale)
		obs.ObservedAt = time.Unix(0, observedAt).UTC()
		obs.FetchedAt = time.Unix(0, fetched).UTC()
		out = append(out, obs)
	}
	return out, rows.Err()
}

// Prune deletes observations fetched before the cutoff and returns how many went.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM observations WHERE fetched_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
