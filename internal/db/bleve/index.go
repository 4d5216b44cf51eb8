// Package bleve is an embedded document index backed by bleve.
package bleve

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/imagespace/iqrproxy/internal/domain"
	"github.com/imagespace/iqrproxy/internal/domain/document"
)

const batchSize = 500

// Index stores whole documents and finds them by exact field value.
type Index struct {
	index         bleve.Index
	checksumField string
	maxRows       int
}

// Open opens the index at path, creating it when missing. An empty path keeps the index in memory.
func Open(path, checksumField string, maxRows int) (*Index, error) {
	if checksumField == "" {
		checksumField = document.DefaultChecksumField
	}
	if maxRows <= 0 {
		maxRows = 1000
	}

	var (
		idx bleve.Index
		err error
	)
	switch {
	case path == "":
		idx, err = bleve.NewMemOnly(newMapping(checksumField))
	default:
		idx, err = bleve.Open(path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(path, newMapping(checksumField))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}

	return &Index{index: idx, checksumField: checksumField, maxRows: maxRows}, nil
}

// newMapping indexes the checksum field as a stored keyword; other fields are stored dynamically.
func newMapping(checksumField string) *mapping.IndexMappingImpl {
	checksum := bleve.NewKeywordFieldMapping()
	checksum.Store = true

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt(checksumField, checksum)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.StoreDynamic = true
	return indexMapping
}

// LoadJSONL indexes one JSON document per line. Documents are keyed by idField,
// or by line number when the field is absent. It returns the number of documents loaded.
func (i *Index) LoadJSONL(r io.Reader, idField string) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)

	batch := i.index.NewBatch()
	n, line := 0, 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var doc document.Document
		if err := json.Unmarshal(sc.Bytes(), &doc); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		id, ok := doc.Checksum(idField)
		if !ok {
			id = strconv.Itoa(line)
		}
		if err := batch.Index(id, map[string]any(doc)); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
		if batch.Size() >= batchSize {
			if err := i.index.Batch(batch); err != nil {
				return n, fmt.Errorf("flush batch: %w", err)
			}
			batch = i.index.NewBatch()
		}
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("read documents: %w", err)
	}
	if batch.Size() > 0 {
		if err := i.index.Batch(batch); err != nil {
			return n, fmt.Errorf("flush batch: %w", err)
		}
	}
	return n, nil
}

// FindByField returns every document whose field equals one of values, max_rows per search.
// Only the checksum field is indexed as a keyword; other fields match on analyzed terms.
func (i *Index) FindByField(ctx context.Context, field string, values []string) ([]document.Document, error) {
	if len(values) == 0 {
		return []document.Document{}, nil
	}

	terms := make([]query.Query, len(values))
	for n, v := range values {
		tq := bleve.NewTermQuery(v)
		tq.SetField(field)
		terms[n] = tq
	}

	q := bleve.NewDisjunctionQuery(terms...)
	docs := []document.Document{}
	for {
		req := bleve.NewSearchRequestOptions(q, i.maxRows, len(docs), false)
		req.Fields = []string{"*"}
		req.SortBy([]string{"_id"})

		res, err := i.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%w: bleve search: %w", domain.ErrIndexUnavailable, err)
		}
		for _, hit := range res.Hits {
			docs = append(docs, document.Document(hit.Fields))
		}
		if uint64(len(docs)) >= res.Total {
			return docs, nil
		}
		if len(res.Hits) == 0 {
			return nil, fmt.Errorf("%w: bleve search: read %d of %d matches",
				domain.ErrIndexUnavailable, len(docs), res.Total)
		}
	}
}

// Ping reports whether the index can be read.
func (i *Index) Ping(context.Context) error {
	if _, err := i.index.DocCount(); err != nil {
		return fmt.Errorf("%w: bleve: %w", domain.ErrIndexUnavailable, err)
	}
	return nil
}

// Close releases the index.
func (i *Index) Close() error {
	return i.index.Close()
}
