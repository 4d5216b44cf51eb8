package iqr

import (
	"bytes"
	"encoding/json"
	"fmt"

	domresults "github.com/imagespace/iqrproxy/internal/domain/results"
)

// sessionResponse is the body of POST /session.
type sessionResponse struct {
	SID *string `json:"sid"`
}

// resultsResponse is the body of GET /get_results. Pointers distinguish
// absent keys from zero values.
type resultsResponse struct {
	TotalResults *int          `json:"total_results"`
	Results      *[]resultPair `json:"results"`
}

// resultPair is one [checksum, confidence] tuple.
type resultPair struct {
	Checksum   string
	Confidence float64
}

func (p *resultPair) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("result entry is not an array: %w", err)
	}
	if len(tuple) != 2 {
		return fmt.Errorf("result entry has %d elements, want 2", len(tuple))
	}
	for i, v := range tuple {
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return fmt.Errorf("result entry element %d is null", i)
		}
	}
	if err := json.Unmarshal(tuple[0], &p.Checksum); err != nil {
		return fmt.Errorf("result checksum: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &p.Confidence); err != nil {
		return fmt.Errorf("result confidence: %w", err)
	}
	return nil
}

// toPage validates the decoded body and converts it to the domain page.
func (r *resultsResponse) toPage() (domresults.IQRPage, error) {
	if r.TotalResults == nil {
		return domresults.IQRPage{}, fmt.Errorf("missing key %q", "total_results")
	}
	if r.Results == nil {
		return domresults.IQRPage{}, fmt.Errorf("missing key %q", "results")
	}
	if *r.TotalResults < 0 {
		return domresults.IQRPage{}, fmt.Errorf("negative total_results %d", *r.TotalResults)
	}

	hits := make([]domresults.RankedHit, 0, len(*r.Results))
	for _, p := range *r.Results {
		h, err := domresults.NewRankedHit(p.Checksum, p.Confidence)
		if err != nil {
			return domresults.IQRPage{}, err
		}
		hits = append(hits, h)
	}
	return domresults.IQRPage{Total: *r.TotalResults, Hits: hits}, nil
}
