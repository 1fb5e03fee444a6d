package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kjstillabower/wardrobe-weather/internal/models"
)

// openSQLite is a package-level var to allow test injection.
var openSQLite = sql.Open

// SQLiteStore persists records in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir: %w", err)
		}
	}
	db, err := openSQLite("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	// One connection so the pragmas below apply to every statement.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migration: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS weather_records (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			latitude   REAL NOT NULL,
			longitude  REAL NOT NULL,
			date       TEXT NOT NULL,
			payload    TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE (latitude, longitude, date)
		);
	`)
	return err
}

// Lookup implements Store.Lookup.
func (s *SQLiteStore) Lookup(ctx context.Context, lat, lon float64, date string) (models.WeatherRecord, bool, error) {
	var payload, createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, created_at FROM weather_records
		 WHERE latitude = ? AND longitude = ? AND date = ?
		 LIMIT 1`,
		lat, lon, date,
	).Scan(&payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WeatherRecord{}, false, nil
	}
	if err != nil {
		return models.WeatherRecord{}, false, fmt.Errorf("sqlite: lookup: %w", err)
	}
	ts, _ := time.Parse(time.RFC3339Nano, createdAt)
	return models.WeatherRecord{
		Latitude:  lat,
		Longitude: lon,
		Date:      date,
		Payload:   []byte(payload),
		CreatedAt: ts,
	}, true, nil
}

// Insert implements Store.Insert using ON CONFLICT DO NOTHING.
func (s *SQLiteStore) Insert(ctx context.Context, rec models.WeatherRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO weather_records (latitude, longitude, date, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (latitude, longitude, date) DO NOTHING`,
		rec.Latitude, rec.Longitude, rec.Date, string(rec.Payload), rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert: %w", err)
	}
	return nil
}

// Count returns the number of stored rows.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM weather_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

// Ping implements Pinger.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
