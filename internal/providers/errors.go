package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrEmptyResponse       = errors.New("empty response")
)

// UpstreamError wraps any failure talking to a back-end. StatusCode is zero for
// transport and decoding failures.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: upstream status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Temporary reports whether a caller could reasonably retry.
func (e *UpstreamError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// StatusError builds an UpstreamError for a non-2xx HTTP answer, keeping a short
// excerpt of the body for logs.
func StatusError(provider string, status int, body []byte) *UpstreamError {
	excerpt := strings.TrimSpace(string(body))
	if r := []rune(excerpt); len(r) > 200 {
		excerpt = string(r[:200])
	}
	if excerpt == "" {
		excerpt = http.StatusText(status)
	}
	return &UpstreamError{Provider: provider, StatusCode: status, Err: errors.New(excerpt)}
}
