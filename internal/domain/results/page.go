package results

import "github.com/imagespace/iqrproxy/internal/domain/document"

// Page is the ranked, enriched output of one results request.
type Page struct {
	TotalFound int
	Documents  []document.Enriched
}
