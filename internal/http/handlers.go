package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/wardrobe-weather/internal/client"
	"github.com/kjstillabower/wardrobe-weather/internal/health"
	"github.com/kjstillabower/wardrobe-weather/internal/observability"
	"github.com/kjstillabower/wardrobe-weather/internal/service"
)

// CacheHeader reports whether a weather response was served from the store.
const CacheHeader = "X-Weather-Cache"

// maxRequestBody bounds POST bodies; a weather request is a handful of fields.
const maxRequestBody = 64 << 10

// WeatherService is the gate the handler serves.
type WeatherService interface {
	GetWeather(ctx context.Context, req service.Request) (service.Result, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather WeatherService
	monitor *health.Monitor
	tracker *health.Tracker
	logger  *zap.Logger
	version string

	healthStatusMu   sync.Mutex
	healthStatusPrev health.Status
}

// NewHandler returns a new Handler. monitor and tracker may be nil.
func NewHandler(weather WeatherService, monitor *health.Monitor, tracker *health.Tracker, logger *zap.Logger, version string) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if version == "" {
		version = "dev"
	}
	return &Handler{
		weather: weather,
		monitor: monitor,
		tracker: tracker,
		logger:  logger,
		version: version,
	}
}

// GetWeather handles POST /api/weather (JSON body) and GET /api/weather (query string).
// The provider payload is written verbatim on success.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	var (
		req service.Request
		err error
	)
	if r.Method == http.MethodPost {
		req, err = decodeBody(r)
	} else {
		req, err = parseQuery(r)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.weather.GetWeather(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.recordSuccess()

	cache := "miss"
	if result.Cached {
		cache = "hit"
	}
	w.Header().Set(CacheHeader, cache)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Payload)
}

func decodeBody(r *http.Request) (service.Request, error) {
	var req service.Request
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return service.Request{}, errors.New("invalid JSON body")
	}
	return req, nil
}

func parseQuery(r *http.Request) (service.Request, error) {
	q := r.URL.Query()
	req := service.Request{
		Date:      q.Get("date"),
		UnitGroup: q.Get("unitGroup"),
	}
	var err error
	if req.Latitude, err = parseCoordinate(q.Get("latitude"), "latitude"); err != nil {
		return service.Request{}, err
	}
	if req.Longitude, err = parseCoordinate(q.Get("longitude"), "longitude"); err != nil {
		return service.Request{}, err
	}
	return req, nil
}

// parseCoordinate returns nil for an absent value so the gate reports it as missing.
func parseCoordinate(raw, name string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errors.New(name + " must be a number")
	}
	return &v, nil
}

// writeServiceError maps gate errors onto status codes. Caller faults are 400;
// configuration and upstream faults are 500 and count toward the error rate.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context(), h.logger)

	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		writeError(w, http.StatusBadRequest, vErr.Message)
		return
	}
	h.recordError()

	var cfgErr *service.ConfigurationError
	var upErr *client.UpstreamError
	switch {
	case errors.As(err, &cfgErr):
		logger.Error("weather service misconfigured", zap.Error(err))
		writeError(w, http.StatusInternalServerError, cfgErr.Message)
	case errors.As(err, &upErr):
		logger.Warn("weather upstream error", zap.Int("status", upErr.StatusCode), zap.Error(err))
		writeError(w, http.StatusInternalServerError, upErr.Error())
	case errors.Is(err, client.ErrCircuitOpen):
		logger.Warn("weather upstream circuit open", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Weather provider temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("weather request timed out", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Weather request timed out")
	default:
		logger.Error("weather request failed", zap.Error(err), zap.String("category", string(client.CategorizeError(err))))
		writeError(w, http.StatusInternalServerError, "Failed to fetch weather data")
	}
}

func (h *Handler) recordSuccess() {
	if h.tracker != nil {
		h.tracker.RecordSuccess()
	}
}

func (h *Handler) recordError() {
	if h.tracker != nil {
		h.tracker.RecordError()
	}
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	report := health.Report{Status: health.StatusHealthy, Checks: map[string]string{}}
	if h.monitor != nil {
		report = h.monitor.Evaluate(r.Context())
	}

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != report.Status {
		h.logger.Info("health status transition",
			zap.String("previous_status", string(prev)),
			zap.String("current_status", string(report.Status)),
			zap.String("reason", report.Reason))
	}
	h.healthStatusPrev = report.Status
	h.healthStatusMu.Unlock()

	statusCode := http.StatusOK
	if !report.Healthy() {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]interface{}{
		"status":    report.Status,
		"service":   observability.ServiceName,
		"version":   h.version,
		"checks":    report.Checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
