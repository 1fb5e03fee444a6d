package client

//go:generate mockgen -destination=../mocks/mock_provider.go -package=mocks github.com/kjstillabower/wardrobe-weather/internal/client Provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/wardrobe-weather/internal/observability"
)

// DefaultBaseURL is the Visual Crossing timeline endpoint.
const DefaultBaseURL = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline"

// maxBodyBytes bounds how much of an upstream response is read.
const maxBodyBytes = 10 << 20

// Provider fetches a raw weather payload for a coordinate and date.
type Provider interface {
	Fetch(ctx context.Context, p FetchParams) (json.RawMessage, error)
}

// FetchParams are the inputs of a single upstream request. Coordinates are expected to be rounded already.
type FetchParams struct {
	Latitude  float64
	Longitude float64
	Date      string
	UnitGroup string
	APIKey    string
}

var (
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
	ErrCircuitOpen     = errors.New("circuit breaker open")
	ErrInvalidPayload  = errors.New("invalid weather payload")
)

// UpstreamError is a non-2xx response from the weather provider. It carries the
// status code and response body for diagnosis and is never retried.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("weather API error: %d %s", e.StatusCode, e.Body)
}

// Unwrap maps the status onto the package sentinels so callers can use errors.Is.
func (e *UpstreamError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrInvalidAPIKey
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrUpstreamFailure
	}
}

// VisualCrossingClient calls the Visual Crossing timeline API.
type VisualCrossingClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewVisualCrossingClient returns a client for baseURL (DefaultBaseURL when empty)
// with the given per-request timeout.
func NewVisualCrossingClient(baseURL string, timeout time.Duration) (*VisualCrossingClient, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	return &VisualCrossingClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// BreakerConfig configures the optional circuit breaker around upstream calls.
type BreakerConfig struct {
	FailureThreshold uint32
	HalfOpenRequests uint32
	OpenTimeout      time.Duration
	OnStateChange    func(from, to string)
}

// SetCircuitBreaker enables a circuit breaker that opens after FailureThreshold
// consecutive transport or 5xx/429 failures. 4xx responses and requests the
// caller cancelled do not count.
func (c *VisualCrossingClient) SetCircuitBreaker(cfg BreakerConfig) {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "weather_api",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(from.String(), to.String())
			}
		},
	})
}

// upstreamResponse is the raw result of one HTTP exchange.
type upstreamResponse struct {
	status int
	body   []byte
}

// Fetch performs one GET against {base}/{lat},{lon}/{date}. Non-2xx responses
// return *UpstreamError; the body of a 2xx response must be valid JSON.
func (c *VisualCrossingClient) Fetch(ctx context.Context, p FetchParams) (json.RawMessage, error) {
	req, err := c.buildRequest(ctx, p)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.execute(req)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.WeatherAPICallsTotal.WithLabelValues("circuit_open").Inc()
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		var upErr *UpstreamError
		if errors.As(err, &upErr) {
			return nil, upErr
		}
		return nil, err
	}

	if resp.status < 200 || resp.status >= 300 {
		return nil, &UpstreamError{StatusCode: resp.status, Body: string(resp.body)}
	}

	var payload json.RawMessage
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrInvalidPayload, err)
	}
	return payload, nil
}

// execute runs the request through the breaker when one is configured. Only
// transport errors, 5xx and 429 are reported to the breaker as failures.
func (c *VisualCrossingClient) execute(req *http.Request) (upstreamResponse, error) {
	if c.breaker == nil {
		return c.do(req)
	}
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(req)
	})
	if err != nil {
		return upstreamResponse{}, err
	}
	resp, ok := result.(upstreamResponse)
	if !ok {
		return upstreamResponse{}, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return resp, nil
}

func (c *VisualCrossingClient) do(req *http.Request) (upstreamResponse, error) {
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.Canceled) {
			return upstreamResponse{}, fmt.Errorf("request cancelled: %w", err)
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return upstreamResponse{}, fmt.Errorf("request timeout: %w", err)
		}
		return upstreamResponse{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return upstreamResponse{}, fmt.Errorf("read response body: %w", err)
	}
	out := upstreamResponse{status: resp.StatusCode, body: body}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return out, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return out, nil
}

func (c *VisualCrossingClient) buildRequest(ctx context.Context, p FetchParams) (*http.Request, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	location := strconv.FormatFloat(p.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(p.Longitude, 'f', -1, 64)
	u := base.JoinPath(location, p.Date)

	params := url.Values{}
	params.Set("unitGroup", p.UnitGroup)
	params.Set("key", p.APIKey)
	params.Set("contentType", "json")
	params.Set("include", "days")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
