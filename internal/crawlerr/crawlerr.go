// Package crawlerr classifies failures met while probing, extracting and storing events
// so callers can branch on the kind instead of on message text.
package crawlerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a crawl failure.
type Kind string

const (
	// KindNetwork covers timeouts, DNS failures, refused connections and HTTP error statuses.
	KindNetwork Kind = "network"
	// KindRateLimited is an HTTP 429 or an equivalent upstream throttle.
	KindRateLimited Kind = "rate_limited"
	// KindParse is malformed or unexpected content. Not retried within a run.
	KindParse Kind = "parse"
	// KindValidation is a candidate missing a required field. Only that candidate is dropped.
	KindValidation Kind = "validation"
	// KindStoreConflict is a lost uniqueness race on content_hash.
	KindStoreConflict Kind = "store_conflict"
	// KindUnknown is anything unclassified.
	KindUnknown Kind = "unknown"
)

// LogLevel selects WARN or ERROR when a classified failure is logged.
type LogLevel int

const (
	LevelWarn LogLevel = iota
	LevelError
)

// Error is a classified crawl failure.
type Error struct {
	Kind       Kind
	Level      LogLevel
	StatusCode int
	URL        string
	Field      string
	Cause      error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode > 0:
		return fmt.Sprintf("%s: HTTP %d for %s", e.Kind, e.StatusCode, e.URL)
	case e.Field != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Field, e.Cause)
	case e.URL != "":
		return fmt.Sprintf("%s: %v for %s", e.Kind, e.Cause, e.URL)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// ErrStoreConflict is returned by stores when an insert violates the canonical content_hash constraint.
var ErrStoreConflict = &Error{Kind: KindStoreConflict, Cause: errors.New("content_hash already has a canonical event")}

// Network wraps a transport failure.
func Network(cause error, url string) *Error {
	return &Error{Kind: KindNetwork, Level: LevelWarn, URL: url, Cause: cause}
}

// RateLimited reports an upstream throttle.
func RateLimited(url string) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Level:      LevelWarn,
		StatusCode: http.StatusTooManyRequests,
		URL:        url,
		Cause:      errors.New("rate limited"),
	}
}

// Parse wraps a content decoding failure.
func Parse(cause error, url string) *Error {
	return &Error{Kind: KindParse, Level: LevelError, URL: url, Cause: cause}
}

// Validation reports a candidate missing a required field.
func Validation(field, reason string) *Error {
	return &Error{Kind: KindValidation, Level: LevelWarn, Field: field, Cause: errors.New(reason)}
}

// FromHTTPStatus classifies a non-2xx response.
func FromHTTPStatus(statusCode int, url string) *Error {
	cause := fmt.Errorf("HTTP %d", statusCode)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return RateLimited(url)
	case statusCode >= http.StatusInternalServerError:
		return &Error{Kind: KindNetwork, Level: LevelWarn, StatusCode: statusCode, URL: url, Cause: cause}
	case statusCode >= http.StatusBadRequest:
		return &Error{Kind: KindNetwork, Level: LevelError, StatusCode: statusCode, URL: url, Cause: cause}
	default:
		return &Error{Kind: KindUnknown, Level: LevelError, StatusCode: statusCode, URL: url, Cause: cause}
	}
}

// KindOf returns the kind of err, unwrapping as needed.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindUnknown
}

// IsRetryable reports whether retrying the same request may succeed: transport
// failures and 5xx responses. Client errors and parse failures are not retried.
func IsRetryable(err error) bool {
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindNetwork {
		return false
	}
	return ce.StatusCode == 0 || ce.StatusCode >= http.StatusInternalServerError
}

// IsRateLimited reports whether err is an upstream throttle.
func IsRateLimited(err error) bool { return KindOf(err) == KindRateLimited }

// IsValidation reports whether err rejects a single candidate.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsStoreConflict reports whether err is a lost content_hash race.
func IsStoreConflict(err error) bool { return KindOf(err) == KindStoreConflict }

// LevelOf returns the log level for err. Unclassified errors log at ERROR.
func LevelOf(err error) LogLevel {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Level
	}
	return LevelError
}
