package document

// Default index field names.
const (
	// DefaultChecksumField is the index field holding the content checksum (SHA-1).
	DefaultChecksumField = "sha1sum_s_md"
	// DefaultConfidenceField is the field added to documents emitted by the results route.
	DefaultConfidenceField = "confidence"
)

// Document is an opaque field mapping returned by the document index.
type Document map[string]any

// Checksum returns the string value stored under field.
// Single-valued lists (multi-valued index fields holding one value) are unwrapped.
func (d Document) Checksum(field string) (string, bool) {
	switch v := d[field].(type) {
	case string:
		return v, v != ""
	case []any:
		if len(v) != 1 {
			return "", false
		}
		s, ok := v[0].(string)
		return s, ok && s != ""
	case []string:
		if len(v) != 1 {
			return "", false
		}
		return v[0], v[0] != ""
	default:
		return "", false
	}
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Enriched is an index document joined with its IQR confidence.
type Enriched struct {
	doc        Document
	checksum   string
	confidence float64
}

// NewEnriched attaches a confidence to doc. The source document is not modified.
func NewEnriched(doc Document, checksum string, confidence float64) Enriched {
	return Enriched{doc: doc.Clone(), checksum: checksum, confidence: confidence}
}

// Checksum returns the join key.
func (e *Enriched) Checksum() string { return e.checksum }

// Confidence returns the relevance score assigned by the IQR service.
func (e *Enriched) Confidence() float64 { return e.confidence }

// Fields returns the document fields with the confidence stored under confidenceField.
func (e *Enriched) Fields(confidenceField string) Document {
	out := e.doc.Clone()
	out[confidenceField] = e.confidence
	return out
}
