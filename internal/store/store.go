// Package store persists weather records keyed by rounded coordinate and date.
//
// Every backend implements insert-if-absent: a second insert for the same key
// is a no-op rather than an error, so concurrent cache misses cannot create
// duplicate records.
package store

//go:generate mockgen -destination=../mocks/mock_store.go -package=mocks github.com/kjstillabower/wardrobe-weather/internal/store Store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kjstillabower/wardrobe-weather/internal/models"
)

// Backend names accepted by New.
const (
	BackendMemory    = "in_memory"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendMemcached = "memcached"
)

// ErrUnknownBackend is returned by New for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown store backend")

// Store is the weather record persistence contract.
// Lookup returns (record, true, nil) on hit and (zero, false, nil) on miss.
type Store interface {
	Lookup(ctx context.Context, lat, lon float64, date string) (models.WeatherRecord, bool, error)
	Insert(ctx context.Context, rec models.WeatherRecord) error
	Close() error
}

// Pinger is implemented by backends that can report reachability for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options selects and configures a backend.
type Options struct {
	Backend string

	SQLitePath string

	PostgresDSN      string
	PostgresMaxConns int32

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
}

// New opens the backend named in opts.Backend.
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendSQLite:
		return NewSQLiteStore(opts.SQLitePath)
	case BackendPostgres:
		return NewPostgresStore(ctx, opts.PostgresDSN, opts.PostgresMaxConns)
	case BackendMemcached:
		return NewMemcachedStore(opts.MemcachedAddrs, opts.MemcachedTimeout, opts.MemcachedMaxIdleConns)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
