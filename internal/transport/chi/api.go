package chi

import (
	"time"

	domsession "github.com/imagespace/iqrproxy/internal/domain/session"
	healthuc "github.com/imagespace/iqrproxy/internal/usecase/health"
)

// ErrorResponseCode is the machine-readable error code of an ErrorResponse.
type ErrorResponseCode string

// Error codes.
const (
	ErrorResponseCodeInvalidParameter  ErrorResponseCode = "invalid_parameter"
	ErrorResponseCodeBadRequest        ErrorResponseCode = "bad_request"
	ErrorResponseCodeUnauthorized      ErrorResponseCode = "unauthorized"
	ErrorResponseCodeRateLimited       ErrorResponseCode = "rate_limited"
	ErrorResponseCodeUpstreamError     ErrorResponseCode = "upstream_error"
	ErrorResponseCodeIndexError        ErrorResponseCode = "index_error"
	ErrorResponseCodeDocumentJoinError ErrorResponseCode = "document_join_error"
	ErrorResponseCodeInternalError     ErrorResponseCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorResponseCode `json:"code"`
	Message string            `json:"message"`
}

// SessionRecord is the wire form of a session record.
type SessionRecord struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	CreatorID string    `json:"creatorId"`
	FolderID  string    `json:"folderId"`
	Created   time.Time `json:"created"`
}

// RefineRequest is the body of PUT /refine. Nil slices mean the field was absent.
type RefineRequest struct {
	SID      string    `json:"sid"`
	PosUUIDs *[]string `json:"pos_uuids"`
	NegUUIDs *[]string `json:"neg_uuids"`
}

// ResultsResponse is the body of GET /results.
type ResultsResponse struct {
	NumFound int              `json:"numFound"`
	Docs     []map[string]any `json:"docs"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status healthuc.Status                 `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

func sessionRecordToAPI(r domsession.Record) SessionRecord {
	return SessionRecord{
		ID:        r.ID(),
		Name:      r.Name(),
		CreatorID: r.Creator(),
		FolderID:  r.Folder(),
		Created:   r.Created(),
	}
}

func derefStrings(p *[]string) []string {
	if p == nil {
		return nil
	}
	if *p == nil {
		return []string{}
	}
	return *p
}
