package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/wardrobe-weather/internal/models"
)

const keyPrefix = "weather:"

// MemcachedStore implements Store using memcached. Items are written without
// expiration; an evicted item is simply a miss on the next lookup.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// memcachedItem is the stored value. Payload is a []byte so encoding/json writes it
// as base64 and the provider's bytes survive unchanged; a json.RawMessage field
// would be compacted.
type memcachedItem struct {
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

func encodeItem(rec models.WeatherRecord) ([]byte, error) {
	return json.Marshal(memcachedItem{Payload: rec.Payload, CreatedAt: rec.CreatedAt})
}

func decodeItem(lat, lon float64, date string, value []byte) (models.WeatherRecord, error) {
	var item memcachedItem
	if err := json.Unmarshal(value, &item); err != nil {
		return models.WeatherRecord{}, fmt.Errorf("memcached: decode item: %w", err)
	}
	return models.WeatherRecord{
		Latitude:  lat,
		Longitude: lon,
		Date:      date,
		Payload:   item.Payload,
		CreatedAt: item.CreatedAt,
	}, nil
}

func memcachedKey(lat, lon float64, date string) string {
	return keyPrefix + models.CacheKey(lat, lon, date)
}

// Lookup implements Store.Lookup.
func (s *MemcachedStore) Lookup(ctx context.Context, lat, lon float64, date string) (models.WeatherRecord, bool, error) {
	if ctx.Err() != nil {
		return models.WeatherRecord{}, false, ctx.Err()
	}
	item, err := s.client.Get(memcachedKey(lat, lon, date))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.WeatherRecord{}, false, nil
		}
		return models.WeatherRecord{}, false, err
	}
	rec, err := decodeItem(lat, lon, date, item.Value)
	if err != nil {
		return models.WeatherRecord{}, false, err
	}
	return rec, true, nil
}

// Insert implements Store.Insert with memcached Add, so an existing item is kept.
func (s *MemcachedStore) Insert(ctx context.Context, rec models.WeatherRecord) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	raw, err := encodeItem(rec)
	if err != nil {
		return err
	}
	err = s.client.Add(&memcache.Item{
		Key:   memcachedKey(rec.Latitude, rec.Longitude, rec.Date),
		Value: raw,
	})
	if errors.Is(err, memcache.ErrNotStored) {
		return nil
	}
	return err
}

// Ping implements Pinger.
func (s *MemcachedStore) Ping(ctx context.Context) error {
	return s.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
