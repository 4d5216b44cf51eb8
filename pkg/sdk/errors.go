package sdk

import (
	"errors"
	"fmt"

	"github.com/imagespace/iqrproxy/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidParameter = domain.ErrInvalidParameter
	ErrUnauthorized     = domain.ErrUnauthorized
	ErrRateLimited      = domain.ErrRateLimited
	ErrUpstream         = domain.ErrUpstream
	ErrIndexUnavailable = domain.ErrIndexUnavailable
	ErrDocumentJoin     = domain.ErrDocumentJoin
)

// codeSentinels maps API error codes to sentinel errors.
var codeSentinels = map[string]error{
	"invalid_parameter":   ErrInvalidParameter,
	"unauthorized":        ErrUnauthorized,
	"rate_limited":        ErrRateLimited,
	"upstream_error":      ErrUpstream,
	"index_error":         ErrIndexUnavailable,
	"document_join_error": ErrDocumentJoin,
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("iqrproxy: http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("iqrproxy: http %d: %s: %s", e.Status, e.Code, e.Message)
}

// Is reports whether the error code corresponds to target.
func (e *APIError) Is(target error) bool {
	sentinel, ok := codeSentinels[e.Code]
	return ok && errors.Is(sentinel, target)
}
