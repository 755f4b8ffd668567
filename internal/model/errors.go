package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by stores when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned by InsertPosting when the dedup key is
	// already taken. Callers treat it as "already exists".
	ErrDuplicateKey = errors.New("duplicate dedup key")
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// TransportError reports a failed call to an external collaborator
// (fetch backend, completion provider, mail relay, webhook endpoint).
type TransportError struct {
	Transport string // "fetch", "completion", "mail", "webhook", "events"
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %v", e.Transport, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MalformedExtractionError reports a completion response that could not be
// parsed into candidates.
type MalformedExtractionError struct {
	Reason string
	Err    error
}

func (e *MalformedExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed extraction: %s: %v", e.Reason, e.Err)
	}
	return "malformed extraction: " + e.Reason
}

func (e *MalformedExtractionError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a setting that prevents an action, such as a
// webhook channel on a subscriber without a webhook URL.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Field, e.Reason)
}
