package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a provider failure. Adapters set it; callers branch on it
// instead of matching provider-specific error text.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindInvalidContent means the provider rejected the content the model itself
	// generated (malformed tool call, unparseable arguments). It is the only kind
	// the model client retries.
	KindInvalidContent
	KindTransport
	KindAuth
	KindRateLimit
	KindServer
	KindBadRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidContent:
		return "invalid_content"
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindServer:
		return "server"
	case KindBadRequest:
		return "bad_request"
	default:
		return "unknown"
	}
}

// ProviderError is returned by every adapter for a failed Chat call.
type ProviderError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %d (%s): %s", e.Provider, e.StatusCode, e.Kind, msg)
	}
	return fmt.Sprintf("%s (%s): %s", e.Provider, e.Kind, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// KindOf reports the ErrorKind carried by err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// IsInvalidContent reports whether err is a content rejection the model can retry.
func IsInvalidContent(err error) bool {
	return KindOf(err) == KindInvalidContent
}

// KindForStatus maps an HTTP status code to an ErrorKind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindBadRequest
	default:
		return KindUnknown
	}
}
