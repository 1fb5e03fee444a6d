package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/wardrobe-weather/internal/observability"
)

func testParams() FetchParams {
	return FetchParams{
		Latitude:  38.29,
		Longitude: -122.46,
		Date:      "2024-03-01",
		UnitGroup: "us",
		APIKey:    "test-api-key-12345",
	}
}

func TestNewVisualCrossingClient_DefaultURL(t *testing.T) {
	c, err := NewVisualCrossingClient("", 2*time.Second)
	if err != nil {
		t.Fatalf("NewVisualCrossingClient() error = %v", err)
	}
	if c.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
	}
}

func TestNewVisualCrossingClient_InvalidURL(t *testing.T) {
	if _, err := NewVisualCrossingClient("://bad", time.Second); err == nil {
		t.Fatal("NewVisualCrossingClient() error = nil, want error for invalid URL")
	}
}

// TestVisualCrossingClient_Fetch_Success verifies the request path and query and that
// the response body is returned verbatim.
func TestVisualCrossingClient_Fetch_Success(t *testing.T) {
	body := `{"resolvedAddress":"38.29,-122.46","days":[{"datetime":"2024-03-01","tempmax":61.2}]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/timeline/38.29,-122.46/2024-03-01" {
			t.Errorf("path = %q, want /timeline/38.29,-122.46/2024-03-01", r.URL.Path)
		}
		q := r.URL.Query()
		want := map[string]string{
			"unitGroup":   "us",
			"key":         "test-api-key-12345",
			"contentType": "json",
			"include":     "days",
		}
		for k, v := range want {
			if got := q.Get(k); got != v {
				t.Errorf("query %s = %q, want %q", k, got, v)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	c, err := NewVisualCrossingClient(server.URL+"/timeline", 2*time.Second)
	if err != nil {
		t.Fatalf("NewVisualCrossingClient() error = %v", err)
	}
	got, err := c.Fetch(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(got) != body {
		t.Errorf("Fetch() = %s, want %s", got, body)
	}
}

// TestVisualCrossingClient_Fetch_ErrorStatus verifies non-2xx responses surface as
// *UpstreamError with status and body, mapped onto the sentinels.
func TestVisualCrossingClient_Fetch_ErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		sentinel   error
	}{
		{"bad request", http.StatusBadRequest, "Bad API Request:Invalid date format", ErrUpstreamFailure},
		{"unauthorized", http.StatusUnauthorized, "No account found with API key", ErrInvalidAPIKey},
		{"rate limited", http.StatusTooManyRequests, "Maximum daily cost exceeded", ErrRateLimited},
		{"server error", http.StatusInternalServerError, "oops", ErrUpstreamFailure},
		{"unavailable", http.StatusServiceUnavailable, "", ErrUpstreamFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c, _ := NewVisualCrossingClient(server.URL, 2*time.Second)
			_, err := c.Fetch(context.Background(), testParams())
			var upErr *UpstreamError
			if !errors.As(err, &upErr) {
				t.Fatalf("Fetch() error = %v, want *UpstreamError", err)
			}
			if upErr.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %d, want %d", upErr.StatusCode, tt.statusCode)
			}
			if upErr.Body != tt.body {
				t.Errorf("Body = %q, want %q", upErr.Body, tt.body)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(err, %v) = false", tt.sentinel)
			}
			if n := calls.Load(); n != 1 {
				t.Errorf("upstream calls = %d, want 1 (no retries)", n)
			}
		})
	}
}

func TestVisualCrossingClient_Fetch_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	c, _ := NewVisualCrossingClient(server.URL, 2*time.Second)
	_, err := c.Fetch(context.Background(), testParams())
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("Fetch() error = %v, want ErrInvalidPayload", err)
	}
}

func TestVisualCrossingClient_Fetch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, _ := NewVisualCrossingClient(server.URL, 20*time.Millisecond)
	_, err := c.Fetch(context.Background(), testParams())
	if err == nil {
		t.Fatal("Fetch() error = nil, want timeout")
	}
	if got := CategorizeError(err); got != ErrorCategoryTimeout && got != ErrorCategoryNetwork {
		t.Errorf("CategorizeError() = %v, want timeout", got)
	}
}

func TestVisualCrossingClient_Fetch_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, _ := NewVisualCrossingClient(server.URL, time.Second)
	_, err := c.Fetch(ctx, testParams())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Fetch() error = %v, want context.Canceled", err)
	}
}

// TestVisualCrossingClient_Fetch_CorrelationID verifies the correlation ID on the context is forwarded.
func TestVisualCrossingClient_Fetch_CorrelationID(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Correlation-ID")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, _ := NewVisualCrossingClient(server.URL, time.Second)
	ctx := observability.WithCorrelationID(context.Background(), "corr-123")
	if _, err := c.Fetch(ctx, testParams()); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got != "corr-123" {
		t.Errorf("X-Correlation-ID = %q, want corr-123", got)
	}
}

// TestVisualCrossingClient_CircuitBreaker verifies the breaker opens after consecutive
// 5xx failures and then short-circuits without calling upstream.
func TestVisualCrossingClient_CircuitBreaker(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	var transitions []string
	c, _ := NewVisualCrossingClient(server.URL, time.Second)
	c.SetCircuitBreaker(BreakerConfig{
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
		OnStateChange: func(from, to string) {
			transitions = append(transitions, from+"->"+to)
		},
	})

	for i := 0; i < 2; i++ {
		if _, err := c.Fetch(context.Background(), testParams()); !errors.Is(err, ErrUpstreamFailure) {
			t.Fatalf("Fetch() #%d error = %v, want ErrUpstreamFailure", i, err)
		}
	}
	_, err := c.Fetch(context.Background(), testParams())
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Fetch() error = %v, want ErrCircuitOpen", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("upstream calls = %d, want 2", n)
	}
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Errorf("transitions = %v, want [closed->open]", transitions)
	}
}

// TestVisualCrossingClient_CircuitBreaker_IgnoresCancellation verifies requests the
// caller abandoned do not count toward opening the breaker.
func TestVisualCrossingClient_CircuitBreaker_IgnoresCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"days":[]}`))
	}))
	defer server.Close()

	c, _ := NewVisualCrossingClient(server.URL, time.Second)
	c.SetCircuitBreaker(BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		_, err := c.Fetch(cancelled, testParams())
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Fetch() #%d error = %v, want context.Canceled", i, err)
		}
		if strings.Contains(err.Error(), "timeout") {
			t.Errorf("Fetch() #%d error = %q, want cancellation not reported as timeout", i, err)
		}
	}

	if _, err := c.Fetch(context.Background(), testParams()); err != nil {
		t.Fatalf("Fetch() after cancellations error = %v, want nil (breaker must stay closed)", err)
	}
}

// TestVisualCrossingClient_CircuitBreaker_IgnoresClientErrors verifies 4xx responses
// do not count toward opening the breaker.
func TestVisualCrossingClient_CircuitBreaker_IgnoresClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Bad API Request"))
	}))
	defer server.Close()

	c, _ := NewVisualCrossingClient(server.URL, time.Second)
	c.SetCircuitBreaker(BreakerConfig{FailureThreshold: 1})
	for i := 0; i < 3; i++ {
		_, err := c.Fetch(context.Background(), testParams())
		if errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("Fetch() #%d tripped breaker on 4xx", i)
		}
	}
}

func TestUpstreamError_Message(t *testing.T) {
	err := &UpstreamError{StatusCode: 400, Body: "Bad API Request"}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "Bad API Request") {
		t.Errorf("Error() = %q, want status and body", err.Error())
	}
}

func TestStatusLabel(t *testing.T) {
	tests := map[int]string{200: "success", 204: "success", 429: "rate_limited", 404: "client_error", 502: "server_error", 101: "error"}
	for code, want := range tests {
		if got := statusLabel(code); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
