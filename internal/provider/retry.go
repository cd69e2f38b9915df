package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"
)

// backoffUnit scales the quadratic retry delay. Tests shrink it.
var backoffUnit = time.Second

// doWithRetry executes an HTTP request, retrying up to retries extra times on
// network failures, 429 and 502/503/504. A plain 500 is never retried here: it
// can carry a content rejection that the model client handles itself.
//
// With retries == 0 the request is made exactly once. When retries run out on
// a retryable status the last response is returned unread so the caller
// classifies it like any other failure.
func doWithRetry(ctx context.Context, client *http.Client, retries int, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			base := time.Duration(attempt*attempt) * backoffUnit
			jitter := time.Duration(rand.Int64N(int64(base/2 + 1)))
			backoff := base + jitter
			logger.Warn("retrying request", "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if attempt < retries && ctx.Err() == nil {
				logger.Warn("request failed, will retry", "error", err)
				continue
			}
			return nil, err
		}

		if !retryableStatus(resp.StatusCode) || attempt >= retries {
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		logger.Warn("transient status, will retry", "status", resp.StatusCode, "body", string(body))
	}
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
