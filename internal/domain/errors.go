package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an upstream fetch failed.
type ErrorKind string

const (
	// UpstreamNetworkError covers connection failures and timeouts.
	UpstreamNetworkError ErrorKind = "network_error"
	// UpstreamHTTPError is a non-2xx response status.
	UpstreamHTTPError ErrorKind = "http_error"
	// UpstreamParseError is a body that is not JSON or has the wrong shape.
	UpstreamParseError ErrorKind = "parse_error"
)

// Feed names used in errors, logs and metric labels.
const (
	FeedTelemetry = "telemetry"
	FeedWeather   = "weather"
)

// UpstreamError is returned by the feed clients for any failed fetch.
type UpstreamError struct {
	Kind       ErrorKind
	Feed       string
	StatusCode int // set for UpstreamHTTPError
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Kind == UpstreamHTTPError {
		return fmt.Sprintf("%s feed: %s: status %d: %v", e.Feed, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s feed: %s: %v", e.Feed, e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// UpstreamKind extracts the ErrorKind from err, or "" if err is not an UpstreamError.
func UpstreamKind(err error) ErrorKind {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return ""
}

// AggregateError is the single failure reported to API clients when a
// primary feed could not be used. It deliberately carries no partial data.
type AggregateError struct {
	Message    string
	StatusCode int // upstream status, only surfaced in strict mode
	Cause      error
}

func (e *AggregateError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *AggregateError) Unwrap() error { return e.Cause }
