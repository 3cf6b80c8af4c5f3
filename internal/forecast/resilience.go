package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// doRequestWithResilience executes an HTTP request with retries,
// exponential backoff, and a circuit breaker. Every attempt runs through
// the breaker, and one breaker is shared across all batches.
func doRequestWithResilience(
	ctx context.Context,
	cfg Config,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.HTTPClient.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				resp.Body.Close()
				return nil, errRateLimited
			}
			if resp.StatusCode >= 500 {
				resp.Body.Close()
				return nil, errServerError
			}
			if resp.StatusCode >= 400 {
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %d", errBadRequest, resp.StatusCode)
			}

			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("forecast: unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		// 4xx aborts the batch without retry.
		if errors.Is(err, errBadRequest) {
			return nil, err
		}

		lastErr = err
		if attempt >= cfg.Backoff.MaxRetries {
			return nil, lastErr
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if cfg.Backoff.MaxInterval > 0 && delay > cfg.Backoff.MaxInterval {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}

var (
	errRateLimited = errors.New("forecast: rate limited")
	errServerError = errors.New("forecast: server error")
	errBadRequest  = errors.New("forecast: bad request")
	errCircuitOpen = errors.New("forecast: circuit breaker open")
)

// classifyError maps a resilience-layer error into the per-city failure
// taxonomy callers report.
func classifyError(err error) FailureKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, errRateLimited):
		return FailureUpstreamRateLimit
	case errors.Is(err, errBadRequest):
		return FailureUpstreamBadInput
	case errors.Is(err, errServerError), errors.Is(err, errCircuitOpen):
		return FailureTransientNetwork
	default:
		return FailureTransientNetwork
	}
}
