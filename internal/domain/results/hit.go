package results

import (
	"fmt"
	"math"
)

// RankedHit is one (checksum, confidence) pair from the IQR service.
type RankedHit struct {
	checksum   string
	confidence float64
}

// NewRankedHit validates and creates a RankedHit.
func NewRankedHit(checksum string, confidence float64) (RankedHit, error) {
	if checksum == "" {
		return RankedHit{}, fmt.Errorf("checksum is required")
	}
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) {
		return RankedHit{}, fmt.Errorf("confidence for %q is not a finite number", checksum)
	}
	return RankedHit{checksum: checksum, confidence: confidence}, nil
}

// Checksum returns the content checksum.
func (h RankedHit) Checksum() string { return h.checksum }

// Confidence returns the relevance score.
func (h RankedHit) Confidence() float64 { return h.confidence }

// IQRPage is one window of ranked hits plus the total size of the ranking.
type IQRPage struct {
	Total int
	Hits  []RankedHit
}

// Checksums returns the distinct checksums of the page in rank order.
func (p IQRPage) Checksums() []string {
	seen := make(map[string]struct{}, len(p.Hits))
	out := make([]string, 0, len(p.Hits))
	for _, h := range p.Hits {
		if _, ok := seen[h.checksum]; ok {
			continue
		}
		seen[h.checksum] = struct{}{}
		out = append(out, h.checksum)
	}
	return out
}

// Confidences maps each checksum to its confidence.
func (p IQRPage) Confidences() map[string]float64 {
	m := make(map[string]float64, len(p.Hits))
	for _, h := range p.Hits {
		m[h.checksum] = h.confidence
	}
	return m
}
