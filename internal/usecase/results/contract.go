package results

import (
	"context"

	"github.com/imagespace/iqrproxy/internal/domain/document"
	domresults "github.com/imagespace/iqrproxy/internal/domain/results"
)

// IQRClient fetches a window of the ranking held by an IQR session.
type IQRClient interface {
	Results(ctx context.Context, sid string, w domresults.Window) (domresults.IQRPage, error)
}

// DocumentIndex resolves field values to indexed documents.
// One value may match zero, one or many documents.
type DocumentIndex interface {
	FindByField(ctx context.Context, field string, values []string) ([]document.Document, error)
}
