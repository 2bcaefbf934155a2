// ABOUTME: Error taxonomy for node sessions and payload decoding
// ABOUTME: Transport failures, not-connected guard and malformed payloads
package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send when the session has no open connection.
	ErrNotConnected = errors.New("protocol: session not connected")

	// ErrSessionClosed is returned once Close has been called.
	ErrSessionClosed = errors.New("protocol: session closed")

	// ErrMalformedPayload marks a payload that is missing a required field
	// or carries a field of the wrong type.
	ErrMalformedPayload = errors.New("protocol: malformed payload")
)

// TransportError reports a failure of the underlying connection or HTTP request.
type TransportError struct {
	Op         string // "connect", "read", "send" or "get"
	StatusCode int    // HTTP status of a rejected handshake, 0 otherwise
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("protocol: %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("protocol: %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PayloadError describes which field of a payload could not be decoded.
type PayloadError struct {
	Field  string
	Reason string
}

func (e *PayloadError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrMalformedPayload, e.Reason)
	}
	return fmt.Sprintf("%v: field %q %s", ErrMalformedPayload, e.Field, e.Reason)
}

func (e *PayloadError) Unwrap() error {
	return ErrMalformedPayload
}
