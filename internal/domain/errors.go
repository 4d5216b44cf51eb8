package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameter signals a malformed or out-of-range request parameter.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrUpstream signals an IQR service failure (unreachable, non-2xx, malformed body).
	ErrUpstream = errors.New("upstream error")
	// ErrDocumentJoin signals an index document without a matching IQR confidence.
	ErrDocumentJoin = errors.New("document join error")
	// ErrIndexUnavailable signals a document index failure.
	ErrIndexUnavailable = errors.New("document index unavailable")
	// ErrUnauthorized signals a missing or unknown API key.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
)

// InvalidParameterError wraps ErrInvalidParameter with the offending parameter.
type InvalidParameterError struct {
	Name   string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidParameter.Error(), e.Name, e.Reason)
}

func (e *InvalidParameterError) Unwrap() error { return ErrInvalidParameter }

// NewInvalidParameter creates an invalid parameter error.
func NewInvalidParameter(name, reason string) error {
	return &InvalidParameterError{Name: name, Reason: reason}
}

// UpstreamError wraps ErrUpstream with the failing call.
// Status is the HTTP status returned by the service, 0 when no response was received.
type UpstreamError struct {
	Service string
	Op      string
	Status  int
	Err     error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s: %s %s", ErrUpstream.Error(), e.Service, e.Op)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstream}
	}
	return []error{ErrUpstream, e.Err}
}

// DocumentJoinError wraps ErrDocumentJoin with the checksum that had no confidence.
type DocumentJoinError struct {
	Checksum string
	Reason   string
}

func (e *DocumentJoinError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", ErrDocumentJoin.Error(), e.Reason)
	}
	return fmt.Sprintf("%s: no confidence for checksum %q", ErrDocumentJoin.Error(), e.Checksum)
}

func (e *DocumentJoinError) Unwrap() error { return ErrDocumentJoin }
