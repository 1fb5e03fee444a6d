// Package warming prefetches weather for configured locations through the cache
// gate, so the first wear entry logged at a frequent place is a hit.
//
// Stored records never expire, so whatever the provider returns on the first
// fetch is served for that date forever. For today that is a forecast, and a run
// just after midnight would pin the earliest one. The warmer therefore targets a
// day DaysBack before today (yesterday by default), whose observations are final.
package warming

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/wardrobe-weather/internal/models"
	"github.com/kjstillabower/wardrobe-weather/internal/observability"
	"github.com/kjstillabower/wardrobe-weather/internal/service"
)

// WeatherFetcher is implemented by the gate.
type WeatherFetcher interface {
	GetWeather(ctx context.Context, req service.Request) (service.Result, error)
}

// Location is a named coordinate to keep warm.
type Location struct {
	Name      string  `yaml:"name"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// Config selects what a Warmer fetches.
type Config struct {
	Locations []Location
	// DaysBack is how many days before today to warm. 0 warms today's forecast.
	DaysBack  int
	// Timeout bounds each run (30s when unset).
	Timeout   time.Duration
	// TimeZone decides which calendar day is today (UTC when nil).
	TimeZone  *time.Location
}

// Warmer fetches one day's weather for each location.
type Warmer struct {
	fetcher   WeatherFetcher
	locations []Location
	daysBack  int
	logger    *zap.Logger
	timeout   time.Duration
	loc       *time.Location
	now       func() time.Time
}

// NewWarmer returns a Warmer for cfg.
func NewWarmer(fetcher WeatherFetcher, cfg Config, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.TimeZone == nil {
		cfg.TimeZone = time.UTC
	}
	if cfg.DaysBack < 0 {
		cfg.DaysBack = 0
	}
	return &Warmer{
		fetcher:   fetcher,
		locations: cfg.Locations,
		daysBack:  cfg.DaysBack,
		logger:    logger,
		timeout:   cfg.Timeout,
		loc:       cfg.TimeZone,
		now:       time.Now,
	}
}

// targetDate is the calendar date warmed by a run starting at now.
func (w *Warmer) targetDate() string {
	return w.now().In(w.loc).AddDate(0, 0, -w.daysBack).Format(models.DateLayout)
}

// Warm fetches every location concurrently and returns the joined per-location errors.
// Locations already stored for the target date are served from the store without an upstream call.
func (w *Warmer) Warm(ctx context.Context) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	date := w.targetDate()
	w.logger.Info("warming weather cache", zap.Int("locations", len(w.locations)), zap.String("date", date))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errs   []error
		cached int
	)
	for _, l := range w.locations {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lat, lon := l.Latitude, l.Longitude
			res, err := w.fetcher.GetWeather(ctx, service.Request{Latitude: &lat, Longitude: &lon, Date: date})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				observability.WarmingErrorsTotal.Inc()
				errs = append(errs, fmt.Errorf("warm %s: %w", l.Name, err))
				return
			}
			if res.Cached {
				cached++
			}
		}()
	}
	wg.Wait()

	duration := time.Since(start)
	observability.WarmingDuration.Observe(duration.Seconds())
	observability.WarmingRunsTotal.WithLabelValues(runResult(len(errs), len(w.locations))).Inc()
	w.logger.Info("weather cache warming complete",
		zap.Int("locations", len(w.locations)),
		zap.Int("already_cached", cached),
		zap.Int("errors", len(errs)),
		zap.Duration("duration", duration))

	return errors.Join(errs...)
}

func runResult(failed, total int) string {
	switch {
	case failed == 0:
		return "success"
	case failed < total:
		return "partial"
	default:
		return "failure"
	}
}

// Scheduler runs a Warmer on a fixed interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	warmer    *Warmer
	interval  time.Duration
	logger    *zap.Logger
}

// NewScheduler creates a Scheduler that warms every interval (15m when unset).
func NewScheduler(warmer *Warmer, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{scheduler: s, warmer: warmer, interval: interval, logger: logger}
}

// Start schedules the job and starts the scheduler. The first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.warmer.locations) == 0 {
		s.logger.Info("weather warming: no locations configured; nothing to schedule")
		return nil
	}
	_, err := s.scheduler.Every(s.interval).Do(func() {
		if err := s.warmer.Warm(context.Background()); err != nil {
			s.logger.Warn("weather warming run failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule weather warming: %w", err)
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler. Runs in progress finish on their own timeout.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}
