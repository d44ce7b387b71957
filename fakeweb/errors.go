package fakeweb

import (
	"errors"
	"fmt"
)

var (
	// ErrRealConnectionForbidden is returned when no stub matches a URL and
	// real network connections are disallowed.
	ErrRealConnectionForbidden = errors.New("real HTTP connections not allowed")
	ErrConnect                 = errors.New("connect failed")
	ErrTooManyRedirects        = errors.New("too many redirects")
	ErrMalformedResponse       = errors.New("malformed response")
	ErrMalformedHeader         = errors.New("malformed header")
	ErrInvalidURL              = errors.New("invalid url")
	// ErrVerification wraps any error returned (or panic raised) by a
	// registration's verify hook.
	ErrVerification = errors.New("request verification failed")
)

// StatusError reports a response whose status code is outside the range a
// connection accepts as success. Code is StatusUnknown when the status line
// could not be parsed.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	if e.Code == StatusUnknown {
		return fmt.Sprintf("unknown response status for %s", e.URL)
	}
	return fmt.Sprintf("unexpected response status %d for %s", e.Code, e.URL)
}

type verifyError struct {
	cause error
}

func (e *verifyError) Error() string {
	return ErrVerification.Error() + ": " + e.cause.Error()
}

func (e *verifyError) Is(target error) bool {
	return target == ErrVerification
}

func (e *verifyError) Unwrap() error {
	return e.cause
}
