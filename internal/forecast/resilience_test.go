package forecast

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func newTestBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "test-breaker",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})
}

func testBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MaxRetries:      3,
		InitialInterval: 1 * time.Millisecond,
		MaxInterval:     4 * time.Millisecond,
	}
}

func buildReq(url string) func() (*http.Request, error) {
	return func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, url, nil)
	}
}

func TestDoRequestWithResilience_4xxAbortsWithoutRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg := Config{HTTPClient: srv.Client(), Backoff: testBackoffConfig()}
	_, err := doRequestWithResilience(context.Background(), cfg, newTestBreaker(), buildReq(srv.URL))

	if err == nil {
		t.Fatal("expected error for 4xx response")
	}
	if !errors.Is(err, errBadRequest) {
		t.Fatalf("err = %v, want wrapped errBadRequest", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on 4xx)", calls)
	}
	if classifyError(err) != FailureUpstreamBadInput {
		t.Fatalf("classifyError = %v, want FailureUpstreamBadInput", classifyError(err))
	}
}

func TestDoRequestWithResilience_5xxRetriesThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := Config{HTTPClient: srv.Client(), Backoff: testBackoffConfig()}
	// Every attempt runs through the breaker, so newTestBreaker (trips at
	// 2 consecutive failures) would open before the 3rd attempt. This
	// test is about the retry loop, so its breaker trips only at 3.
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "test-breaker-retry",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	resp, err := doRequestWithResilience(context.Background(), cfg, cb, buildReq(srv.URL))

	if err != nil {
		t.Fatalf("unexpected error after eventual success: %v", err)
	}
	defer resp.Body.Close()
	if calls != 3 {
		t.Fatalf("calls = %d, want 3 (2 failures + 1 success)", calls)
	}
}

func TestDoRequestWithResilience_5xxExhaustsRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	backoff := testBackoffConfig()
	cfg := Config{HTTPClient: srv.Client(), Backoff: backoff}
	_, err := doRequestWithResilience(context.Background(), cfg, newTestBreaker(), buildReq(srv.URL))

	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// First call plus MaxRetries retries, capped by the breaker tripping
	// after 2 consecutive failures (it opens before all retries land).
	if calls < 2 {
		t.Fatalf("calls = %d, want at least 2", calls)
	}
}

func TestDoRequestWithResilience_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := newTestBreaker()
	// No retries, so each call to doRequestWithResilience is exactly one
	// breaker execution; two calls trips the test breaker's threshold.
	cfg := Config{HTTPClient: srv.Client(), Backoff: BackoffConfig{MaxRetries: 0, InitialInterval: time.Millisecond}}

	for i := 0; i < 2; i++ {
		if _, err := doRequestWithResilience(context.Background(), cfg, cb, buildReq(srv.URL)); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	_, err := doRequestWithResilience(context.Background(), cfg, cb, buildReq(srv.URL))
	if err == nil {
		t.Fatal("expected error once the breaker is open")
	}
	if !errors.Is(err, errCircuitOpen) {
		t.Fatalf("err = %v, want wrapped errCircuitOpen", err)
	}
	if classifyError(err) != FailureTransientNetwork {
		t.Fatalf("classifyError = %v, want FailureTransientNetwork", classifyError(err))
	}
}

func TestDoRequestWithResilience_ContextCanceledAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := Config{HTTPClient: srv.Client(), Backoff: testBackoffConfig()}
	_, err := doRequestWithResilience(ctx, cfg, newTestBreaker(), buildReq(srv.URL))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
