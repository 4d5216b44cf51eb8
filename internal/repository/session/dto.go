package session

import (
	"fmt"
	"time"

	domsession "github.com/imagespace/iqrproxy/internal/domain/session"
)

// Hash field names. They match the item layout the web front end reads.
const (
	fieldID      = "_id"
	fieldName    = "name"
	fieldCreator = "creatorId"
	fieldFolder  = "folderId"
	fieldCreated = "created"
)

// recordToHash converts a Record to a map for HSET.
func recordToHash(r domsession.Record) map[string]string {
	return map[string]string{
		fieldID:      r.ID(),
		fieldName:    r.Name(),
		fieldCreator: r.Creator(),
		fieldFolder:  r.Folder(),
		fieldCreated: r.Created().Format(time.RFC3339Nano),
	}
}

// recordFromHash hydrates a Record from an HGETALL result map.
func recordFromHash(m map[string]string) (domsession.Record, error) {
	created, err := time.Parse(time.RFC3339Nano, m[fieldCreated])
	if err != nil {
		return domsession.Record{}, fmt.Errorf("invalid %s: %w", fieldCreated, err)
	}
	if m[fieldID] == "" || m[fieldName] == "" {
		return domsession.Record{}, fmt.Errorf("record is missing %s or %s", fieldID, fieldName)
	}
	return domsession.Reconstruct(m[fieldID], m[fieldName], m[fieldCreator], m[fieldFolder], created), nil
}
