//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/wardrobe-weather/internal/client"
	"github.com/kjstillabower/wardrobe-weather/internal/service"
	"github.com/kjstillabower/wardrobe-weather/internal/store"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	StoreBackend  string // in_memory, sqlite, postgres or memcached
	DatabaseURL   string
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	backend := os.Getenv("INTEGRATION_STORE_BACKEND")
	if backend == "" {
		backend = store.BackendSQLite
	}

	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        os.Getenv("WEATHER_API_URL"),
		StoreBackend:  backend,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationService builds the gate against the real provider and the configured
// backend. Falls back to the in-memory store when the backend cannot be opened.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, store.Store) {
	t.Helper()
	weatherClient, err := client.NewVisualCrossingClient(cfg.APIURL, 10*time.Second)
	if err != nil {
		t.Fatalf("NewVisualCrossingClient() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := store.New(ctx, store.Options{
		Backend:               cfg.StoreBackend,
		SQLitePath:            filepath.Join(t.TempDir(), "weather.db"),
		PostgresDSN:           cfg.DatabaseURL,
		PostgresMaxConns:      4,
		MemcachedAddrs:        cfg.MemcachedAddr,
		MemcachedTimeout:      500 * time.Millisecond,
		MemcachedMaxIdleConns: 2,
	})
	if err != nil {
		t.Logf("store backend %q not available (%v), using in-memory store", cfg.StoreBackend, err)
		st = store.NewMemoryStore()
	}
	t.Cleanup(func() { _ = st.Close() })

	svc := service.NewWeatherService(weatherClient, st, service.Options{
		APIKey: cfg.APIKey,
		Logger: zaptest.NewLogger(t),
	})
	return svc, st
}
