// Package health evaluates service status for the /health endpoint from request
// outcomes, dependency checks and the shutdown flag.
package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the reported service state.
type Status string

const (
	StatusHealthy      Status = "healthy"
	StatusDegraded     Status = "degraded"
	StatusOverloaded   Status = "overloaded"
	StatusShuttingDown Status = "shutting-down"
)

// Check reports whether a dependency is usable. A nil error means healthy.
type Check func(ctx context.Context) error

// Config holds the thresholds used by Evaluate. Zero values disable the related check.
type Config struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	CheckTimeout         time.Duration
}

// Report is the outcome of one evaluation.
type Report struct {
	Status Status
	Reason string
	Checks map[string]string
}

// Healthy reports whether the status should be served with 200.
func (r Report) Healthy() bool {
	return r.Status == StatusHealthy
}

type namedCheck struct {
	name  string
	check Check
}

// Monitor combines the tracker, dependency checks and shutdown flag into a Report.
type Monitor struct {
	cfg          Config
	tracker      *Tracker
	shuttingDown atomic.Bool

	mu     sync.RWMutex
	checks []namedCheck
}

// NewMonitor returns a Monitor reading outcomes from tracker.
func NewMonitor(cfg Config, tracker *Tracker) *Monitor {
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 2 * time.Second
	}
	return &Monitor{cfg: cfg, tracker: tracker}
}

// AddCheck registers a dependency check reported under name.
func (m *Monitor) AddCheck(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, namedCheck{name: name, check: check})
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT is received.
func (m *Monitor) SetShuttingDown(v bool) {
	m.shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func (m *Monitor) IsShuttingDown() bool {
	return m.shuttingDown.Load()
}

// Evaluate computes the current status. Order: shutting-down > failed dependency >
// overloaded > error-rate degraded > healthy. Dependency checks always run so the
// report lists every check.
func (m *Monitor) Evaluate(ctx context.Context) Report {
	checks, failed := m.runChecks(ctx)
	report := Report{Status: StatusHealthy, Checks: checks}

	switch {
	case m.IsShuttingDown():
		report.Status, report.Reason = StatusShuttingDown, "signal"
	case failed != "":
		report.Status, report.Reason = StatusDegraded, failed+"_unhealthy"
	case m.overloaded():
		report.Status, report.Reason = StatusOverloaded, "overload_threshold"
	case m.errorRateBreached():
		report.Status, report.Reason = StatusDegraded, "error_rate_breach"
	}
	return report
}

func (m *Monitor) runChecks(ctx context.Context) (map[string]string, string) {
	m.mu.RLock()
	checks := append([]namedCheck(nil), m.checks...)
	m.mu.RUnlock()

	results := make(map[string]string, len(checks))
	failed := ""
	for _, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
		err := c.check(checkCtx)
		cancel()
		if err != nil {
			results[c.name] = "unhealthy"
			if failed == "" {
				failed = c.name
			}
			continue
		}
		results[c.name] = "healthy"
	}
	return results, failed
}

// overloaded reports whether traffic in the window exceeds OverloadThresholdPct of
// what the rate limiter admits over that window.
func (m *Monitor) overloaded() bool {
	if m.tracker == nil || m.cfg.RateLimitRPS <= 0 || m.cfg.OverloadWindow <= 0 || m.cfg.OverloadThresholdPct <= 0 {
		return false
	}
	threshold := float64(m.cfg.RateLimitRPS) * m.cfg.OverloadWindow.Seconds() * float64(m.cfg.OverloadThresholdPct) / 100
	return float64(m.tracker.RequestCount(m.cfg.OverloadWindow)) > threshold
}

func (m *Monitor) errorRateBreached() bool {
	if m.tracker == nil || m.cfg.DegradedWindow <= 0 || m.cfg.DegradedErrorPct <= 0 {
		return false
	}
	errs, total := m.tracker.ErrorRate(m.cfg.DegradedWindow)
	if total == 0 {
		return false
	}
	return float64(errs)*100/float64(total) >= float64(m.cfg.DegradedErrorPct)
}
