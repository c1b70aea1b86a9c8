package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrRateLimited  = errors.New("too many attempts")
	ErrBadRequest   = errors.New("bad request")
	ErrBadResponse  = errors.New("unexpected server response")
)

// APIError is a non-2xx response. Message is the server's user-facing text
// and is meant to be shown verbatim. RetryAfter keeps the raw retry_after
// value (number or string) or the Retry-After header when the body has none.
type APIError struct {
	StatusCode        int
	Message           string
	Locked            bool
	RetryAfter        any
	RemainingAttempts *int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status to a sentinel so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests || e.Locked || hasRetryAfter(e.RetryAfter):
		return ErrRateLimited
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return ErrConflict
	case e.StatusCode >= 500:
		return ErrUnavailable
	case e.StatusCode >= 400:
		return ErrBadRequest
	default:
		return ErrBadResponse
	}
}

// hasRetryAfter reports whether v asks the caller to wait: a positive number
// of seconds or an HTTP date in the future.
func hasRetryAfter(v any) bool {
	switch value := v.(type) {
	case int:
		return value > 0
	case int64:
		return value > 0
	case float64:
		return value > 0
	case json.Number:
		f, err := value.Float64()
		return err == nil && f > 0
	case string:
		s := strings.TrimSpace(value)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f > 0
		}
		if t, err := http.ParseTime(s); err == nil {
			return t.After(time.Now())
		}
	}
	return false
}

// AsAPIError extracts an *APIError from err.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// UserMessage returns the server's message for err when it carries one,
// otherwise err.Error().
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if apiErr, ok := AsAPIError(err); ok && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
