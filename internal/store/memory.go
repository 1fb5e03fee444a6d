package store

import (
	"context"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/kjstillabower/wardrobe-weather/internal/models"
)

// MemoryStore keeps records in a sharded concurrent map for the life of the process.
// Safe for concurrent use.
type MemoryStore struct {
	records cmap.ConcurrentMap[string, models.WeatherRecord]
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: cmap.New[models.WeatherRecord]()}
}

// Lookup implements Store.Lookup.
func (s *MemoryStore) Lookup(ctx context.Context, lat, lon float64, date string) (models.WeatherRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.WeatherRecord{}, false, err
	}
	rec, ok := s.records.Get(models.CacheKey(lat, lon, date))
	return rec, ok, nil
}

// Insert implements Store.Insert. The first record for a key wins.
func (s *MemoryStore) Insert(ctx context.Context, rec models.WeatherRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.records.SetIfAbsent(rec.Key(), rec)
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	return s.records.Count()
}

// Ping implements Pinger; memory is always reachable.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close implements Store.Close.
func (s *MemoryStore) Close() error {
	return nil
}
