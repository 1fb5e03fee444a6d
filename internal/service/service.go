package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/wardrobe-weather/internal/client"
	"github.com/kjstillabower/wardrobe-weather/internal/models"
	"github.com/kjstillabower/wardrobe-weather/internal/observability"
	"github.com/kjstillabower/wardrobe-weather/internal/store"
	"github.com/kjstillabower/wardrobe-weather/internal/validation"
)

// DefaultUnitGroup is used when neither the request nor Options name one.
const DefaultUnitGroup = "us"

// Request is a weather lookup. Latitude and Longitude are pointers so an absent
// value can be told apart from 0. Only absence counts as missing: a latitude or
// longitude of exactly 0 (the equator, the prime meridian) is a valid request,
// unlike a plain truthiness check which would reject it.
type Request struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Date      string   `json:"date"`
	UnitGroup string   `json:"unitGroup,omitempty"`
}

// Result is the payload served for a request along with the rounded key it was served under.
type Result struct {
	Payload   json.RawMessage
	Cached    bool
	Latitude  float64
	Longitude float64
	Date      string
}

// Options configures a WeatherService.
type Options struct {
	APIKey           string
	DefaultUnitGroup string
	Logger           *zap.Logger
}

// WeatherService is the cache-or-fetch gate: it serves a stored record for the
// rounded coordinate and date, or fetches one from the provider and stores it.
type WeatherService struct {
	provider  client.Provider
	store     store.Store
	apiKey    string
	unitGroup string
	logger    *zap.Logger
	misses    *missTracker
}

// NewWeatherService creates a new WeatherService with the provided dependencies.
func NewWeatherService(provider client.Provider, st store.Store, opts Options) *WeatherService {
	unitGroup := opts.DefaultUnitGroup
	if unitGroup == "" {
		unitGroup = DefaultUnitGroup
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherService{
		provider:  provider,
		store:     st,
		apiKey:    strings.TrimSpace(opts.APIKey),
		unitGroup: unitGroup,
		logger:    logger,
		misses:    newMissTracker(),
	}
}

// Configured reports whether a provider API key is set.
func (s *WeatherService) Configured() bool {
	return s.apiKey != ""
}

// GetWeather returns the weather payload for req. At most one provider call and
// one store insert happen per call; a hit touches only the store lookup.
// Store failures are logged and never fail the request.
func (s *WeatherService) GetWeather(ctx context.Context, req Request) (Result, error) {
	logger := observability.LoggerFromContext(ctx, s.logger)
	start := time.Now()

	date := strings.TrimSpace(req.Date)
	if req.Latitude == nil || req.Longitude == nil || date == "" {
		return Result{}, &ValidationError{Message: MissingParametersMessage}
	}
	unitGroup := strings.TrimSpace(req.UnitGroup)
	if unitGroup == "" {
		unitGroup = s.unitGroup
	}
	if err := validation.ValidateQuery(validation.Query{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Date:      date,
		UnitGroup: unitGroup,
	}); err != nil {
		var fe *validation.FieldError
		if errors.As(err, &fe) {
			return Result{}, &ValidationError{Field: fe.Field, Message: fe.Message}
		}
		return Result{}, &ValidationError{Message: err.Error()}
	}

	if s.apiKey == "" {
		return Result{}, &ConfigurationError{Message: "Weather API key is not configured"}
	}

	lat := models.RoundCoordinate(*req.Latitude)
	lon := models.RoundCoordinate(*req.Longitude)
	key := models.CacheKey(lat, lon, date)
	observability.WeatherQueriesTotal.Inc()

	rec, ok, err := s.store.Lookup(ctx, lat, lon, date)
	switch {
	case err != nil:
		cacheErr := &CacheError{Op: OpLookup, Key: key, Err: err}
		observability.CacheLookupsTotal.WithLabelValues("error").Inc()
		observability.CacheErrorsTotal.WithLabelValues(OpLookup, store.CategorizeError(err)).Inc()
		logger.Warn("weather cache lookup failed, treating as miss", zap.String("key", key), zap.Error(cacheErr))
	case ok:
		observability.CacheLookupsTotal.WithLabelValues("hit").Inc()
		logger.Debug("weather served", zap.String("key", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return Result{Payload: rec.Payload, Cached: true, Latitude: lat, Longitude: lon, Date: date}, nil
	default:
		observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
	}

	payload, err := s.fetch(ctx, key, client.FetchParams{
		Latitude:  lat,
		Longitude: lon,
		Date:      date,
		UnitGroup: unitGroup,
		APIKey:    s.apiKey,
	})
	if err != nil {
		return Result{}, fmt.Errorf("fetch weather for %s: %w", key, err)
	}

	insertErr := s.store.Insert(ctx, models.WeatherRecord{
		Latitude:  lat,
		Longitude: lon,
		Date:      date,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
	if insertErr != nil {
		cacheErr := &CacheError{Op: OpInsert, Key: key, Err: insertErr}
		observability.CacheErrorsTotal.WithLabelValues(OpInsert, store.CategorizeError(insertErr)).Inc()
		logger.Warn("weather cache insert failed", zap.String("key", key), zap.Error(cacheErr))
	}

	logger.Debug("weather served", zap.String("key", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return Result{Payload: payload, Cached: false, Latitude: lat, Longitude: lon, Date: date}, nil
}

// fetch calls the provider once, recording overlapping misses for the same key.
func (s *WeatherService) fetch(ctx context.Context, key string, p client.FetchParams) (json.RawMessage, error) {
	if n := s.misses.Begin(key); n > 1 {
		observability.ConcurrentMissesTotal.Inc()
	}
	observability.MissesInFlight.Inc()
	defer func() {
		observability.MissesInFlight.Dec()
		s.misses.Done(key)
	}()
	return s.provider.Fetch(ctx, p)
}
