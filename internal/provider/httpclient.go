package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"buddy/internal/domain"
)

const (
	defaultHTTPTimeout = 120 * time.Second
	maxErrorBody       = 4096
)

// SharedHTTPClient returns an HTTP client with connection pooling.
func SharedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// statusError drains a non-2xx response into a classified ProviderError.
// invalidContent reports whether the body describes a rejection of the
// model's own output.
func statusError(provider string, resp *http.Response, invalidContent func(status int, body string) bool) *domain.ProviderError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	kind := domain.KindForStatus(resp.StatusCode)
	if invalidContent != nil && invalidContent(resp.StatusCode, msg) {
		kind = domain.KindInvalidContent
	}
	return &domain.ProviderError{
		Kind:       kind,
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
}

// transportError wraps a failure to reach the provider. Context cancellation
// is passed through unchanged so callers can test for it directly.
func transportError(provider string, err error) error {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &domain.ProviderError{
		Kind:     domain.KindTransport,
		Provider: provider,
		Message:  fmt.Sprintf("request failed: %v", err),
		Err:      err,
	}
}

// invalidArgsError reports tool-call arguments the model produced that are not
// valid JSON.
func invalidArgsError(provider, tool string, err error) *domain.ProviderError {
	return &domain.ProviderError{
		Kind:     domain.KindInvalidContent,
		Provider: provider,
		Message:  fmt.Sprintf("tool %s: unparseable arguments", tool),
		Err:      err,
	}
}
