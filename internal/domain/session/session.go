package session

import (
	"fmt"
	"time"

	"github.com/imagespace/iqrproxy/internal/domain"
)

// DefaultFolder is the per-user folder holding session records.
const DefaultFolder = "sessions"

// AnonymousUser owns records created while authentication is disabled.
const AnonymousUser = "anonymous"

// Record is a named pointer to an IQR session, kept in a user's sessions folder.
// Name is the IQR session id.
type Record struct {
	id      string
	name    string
	creator string
	folder  string
	created time.Time
}

// NewRecord validates and creates a Record.
func NewRecord(id, name, creator, folder string, created time.Time) (Record, error) {
	if id == "" {
		return Record{}, fmt.Errorf("record id is required")
	}
	if name == "" {
		return Record{}, fmt.Errorf("session id is required")
	}
	if creator == "" {
		return Record{}, fmt.Errorf("creator is required")
	}
	if folder == "" {
		return Record{}, fmt.Errorf("folder is required")
	}
	return Reconstruct(id, name, creator, folder, created), nil
}

// Reconstruct creates a Record without validation (storage hydration).
func Reconstruct(id, name, creator, folder string, created time.Time) Record {
	return Record{id: id, name: name, creator: creator, folder: folder, created: created.UTC()}
}

// ID returns the record identifier.
func (r *Record) ID() string { return r.id }

// Name returns the IQR session id.
func (r *Record) Name() string { return r.name }

// Creator returns the owning user.
func (r *Record) Creator() string { return r.creator }

// Folder returns the folder holding the record.
func (r *Record) Folder() string { return r.folder }

// Created returns the creation time (UTC).
func (r *Record) Created() time.Time { return r.created }

// RefineRequest is a validated set of relevance judgements for one session.
type RefineRequest struct {
	sid      string
	positive []string
	negative []string
}

// NewRefineRequest validates refinement input. nil slices mean the field was absent;
// empty slices are allowed.
func NewRefineRequest(sid string, positive, negative []string) (RefineRequest, error) {
	if sid == "" {
		return RefineRequest{}, domain.NewInvalidParameter("sid", "is required")
	}
	if positive == nil {
		return RefineRequest{}, domain.NewInvalidParameter("pos_uuids", "is required")
	}
	if negative == nil {
		return RefineRequest{}, domain.NewInvalidParameter("neg_uuids", "is required")
	}
	for _, id := range positive {
		if id == "" {
			return RefineRequest{}, domain.NewInvalidParameter("pos_uuids", "must not contain empty ids")
		}
	}
	for _, id := range negative {
		if id == "" {
			return RefineRequest{}, domain.NewInvalidParameter("neg_uuids", "must not contain empty ids")
		}
	}
	return RefineRequest{
		sid:      sid,
		positive: append([]string{}, positive...),
		negative: append([]string{}, negative...),
	}, nil
}

// SID returns the IQR session id.
func (r *RefineRequest) SID() string { return r.sid }

// Positive returns the ids judged relevant.
func (r *RefineRequest) Positive() []string { return r.positive }

// Negative returns the ids judged not relevant.
func (r *RefineRequest) Negative() []string { return r.negative }
