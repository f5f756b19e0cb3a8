package smartfill

import (
	"errors"
	"fmt"
	"time"
)

type ErrorKind string

const (
	KindHTTP      ErrorKind = "http_error"
	KindAPI       ErrorKind = "api_error"
	KindTransport ErrorKind = "transport_error"
)

// Error is a single failed attempt.
type Error struct {
	Kind       ErrorKind
	StatusCode int  // KindHTTP
	Code       int  // KindAPI
	Timeout    bool // KindTransport
	Message    string
	cause      error
}

func (e *Error) Error() string {
	if e.Kind == KindAPI {
		return fmt.Sprintf("SmartFill API error %d: %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// FetchError is returned once every attempt has failed.
type FetchError struct {
	Last     *Error
	Attempts int
	Elapsed  time.Duration
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("SmartFill fetch failed after %d attempt(s) in %s: %v", e.Attempts, e.Elapsed.Round(time.Millisecond), e.Last)
}

func (e *FetchError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

// IsTransport reports whether err is a network or timeout failure.
func IsTransport(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindTransport
}
