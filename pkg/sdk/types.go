package sdk

import "time"

// Session is a session record created for the caller.
// SID is the IQR session id to pass to Refine and Results.
type Session struct {
	ID        string    `json:"_id"`
	SID       string    `json:"name"`
	CreatorID string    `json:"creatorId"`
	FolderID  string    `json:"folderId"`
	Created   time.Time `json:"created"`
}

// Document is an index document enriched with its IQR confidence.
type Document map[string]any

// Confidence returns the value stored under field, or 0 if absent.
func (d Document) Confidence(field string) float64 {
	v, _ := d[field].(float64)
	return v
}

// ResultsPage is one page of ranked results.
type ResultsPage struct {
	NumFound int        `json:"numFound"`
	Docs     []Document `json:"docs"`
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            `json:"status"` // "ok", "degraded", "error"
	Checks map[string]string `json:"checks"` // component → "ok"/"error"
}

type refineBody struct {
	SID      string   `json:"sid"`
	PosUUIDs []string `json:"pos_uuids"`
	NegUUIDs []string `json:"neg_uuids"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
