package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/wardrobe-weather/internal/health"
	"github.com/kjstillabower/wardrobe-weather/internal/observability"
)

// RouterConfig wires the handler and optional pieces into a router.
type RouterConfig struct {
	Handler        *Handler
	Logger         *zap.Logger
	Limiter        *rate.Limiter
	Tracker        *health.Tracker
	RequestTimeout time.Duration
	// MCPHandler is mounted under /mcp when non-nil.
	MCPHandler http.Handler
}

// NewRouter builds the service router. /health and /metrics bypass the rate
// limiter and request timeout. /api goes through both; /mcp is rate limited only
// because streamable HTTP sessions can outlive a request timeout.
func NewRouter(cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", cfg.Handler.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter, cfg.Tracker))
	api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/weather", cfg.Handler.GetWeather).Methods(http.MethodGet, http.MethodPost)

	if cfg.MCPHandler != nil {
		router.PathPrefix("/mcp").Handler(RateLimitMiddleware(cfg.Limiter, cfg.Tracker)(cfg.MCPHandler))
	}
	return router
}
