package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjstillabower/wardrobe-weather/internal/models"
)

// PostgresStore persists records in a PostgreSQL table through a pgx pool.
// payload is JSON rather than JSONB so the provider's bytes are kept as sent.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS weather_records (
	id         BIGSERIAL PRIMARY KEY,
	latitude   DOUBLE PRECISION NOT NULL,
	longitude  DOUBLE PRECISION NOT NULL,
	date       DATE NOT NULL,
	payload    JSON NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (latitude, longitude, date)
)`

// NewPostgresStore connects to dsn and ensures the weather_records table exists.
func NewPostgresStore(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres: DATABASE_URL is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migration: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Lookup implements Store.Lookup.
func (s *PostgresStore) Lookup(ctx context.Context, lat, lon float64, date string) (models.WeatherRecord, bool, error) {
	day, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return models.WeatherRecord{}, false, fmt.Errorf("postgres: parse date: %w", err)
	}
	var (
		payload   []byte
		createdAt time.Time
	)
	err = s.pool.QueryRow(ctx,
		`SELECT payload, created_at FROM weather_records
		 WHERE latitude = $1 AND longitude = $2 AND date = $3
		 LIMIT 1`,
		lat, lon, day,
	).Scan(&payload, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.WeatherRecord{}, false, nil
	}
	if err != nil {
		return models.WeatherRecord{}, false, fmt.Errorf("postgres: lookup: %w", err)
	}
	return models.WeatherRecord{
		Latitude:  lat,
		Longitude: lon,
		Date:      date,
		Payload:   payload,
		CreatedAt: createdAt,
	}, true, nil
}

// Insert implements Store.Insert using ON CONFLICT DO NOTHING.
func (s *PostgresStore) Insert(ctx context.Context, rec models.WeatherRecord) error {
	day, err := time.Parse(models.DateLayout, rec.Date)
	if err != nil {
		return fmt.Errorf("postgres: parse date: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO weather_records (latitude, longitude, date, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (latitude, longitude, date) DO NOTHING`,
		rec.Latitude, rec.Longitude, day, []byte(rec.Payload), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert: %w", err)
	}
	return nil
}

// Ping implements Pinger.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes all pool connections.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
