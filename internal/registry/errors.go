package registry

import (
	"fmt"
)

// TransportError is returned when a request could not be completed
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError is returned for non-2xx responses other than 429
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s returned status %d", e.URL, e.StatusCode)
}

// DecodeError is returned when a response body is not the expected JSON shape
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response from %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
