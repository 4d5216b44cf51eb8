package results

import (
	"sort"

	"github.com/imagespace/iqrproxy/internal/domain"
	"github.com/imagespace/iqrproxy/internal/domain/document"
)

// joinConfidences attaches to every document the confidence of its checksum.
// A document whose checksum is missing or has no confidence fails the whole join.
func joinConfidences(
	docs []document.Document, confidences map[string]float64, checksumField string,
) ([]document.Enriched, error) {
	out := make([]document.Enriched, 0, len(docs))
	for _, doc := range docs {
		sum, ok := doc.Checksum(checksumField)
		if !ok {
			return nil, &domain.DocumentJoinError{
				Reason: "document without a usable " + checksumField + " field",
			}
		}
		conf, ok := confidences[sum]
		if !ok {
			return nil, &domain.DocumentJoinError{Checksum: sum}
		}
		out = append(out, document.NewEnriched(doc, sum, conf))
	}
	return out, nil
}

// rankDocuments orders documents by confidence descending, then checksum descending.
// Documents sharing a checksum end up adjacent and keep their index order.
func rankDocuments(docs []document.Enriched) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Confidence() != docs[j].Confidence() {
			return docs[i].Confidence() > docs[j].Confidence()
		}
		return docs[i].Checksum() > docs[j].Checksum()
	})
}
