package session

import (
	"context"
	"encoding/json"

	domsession "github.com/imagespace/iqrproxy/internal/domain/session"
)

// IQRClient is the session side of the IQR service.
type IQRClient interface {
	CreateSession(ctx context.Context) (string, error)
	Refine(ctx context.Context, req domsession.RefineRequest) (json.RawMessage, error)
}

// RecordRepository persists session records in per-user folders.
type RecordRepository interface {
	Save(ctx context.Context, r domsession.Record) error
	List(ctx context.Context, user, folder string) ([]domsession.Record, error)
}
