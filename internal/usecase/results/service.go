package results

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/imagespace/iqrproxy/internal/domain"
	"github.com/imagespace/iqrproxy/internal/domain/document"
	domresults "github.com/imagespace/iqrproxy/internal/domain/results"
	"github.com/imagespace/iqrproxy/internal/logger"
)

// Service assembles ranked result pages from an IQR session and the document index.
type Service struct {
	iqr           IQRClient
	index         DocumentIndex
	checksumField string
	defaultLimit  int
	maxLimit      int
}

// New creates a results service. An empty checksumField selects document.DefaultChecksumField.
func New(iqr IQRClient, index DocumentIndex, checksumField string) *Service {
	if checksumField == "" {
		checksumField = document.DefaultChecksumField
	}
	return &Service{
		iqr:           iqr,
		index:         index,
		checksumField: checksumField,
		defaultLimit:  domresults.DefaultLimit,
		maxLimit:      domresults.MaxLimit,
	}
}

// WithPagination overrides the default and maximum page size.
func (s *Service) WithPagination(defaultLimit, maxLimit int) *Service {
	if defaultLimit > 0 {
		s.defaultLimit = defaultLimit
	}
	if maxLimit > 0 {
		s.maxLimit = maxLimit
	}
	return s
}

// Results validates paging input and assembles the page. nil offset/limit take the defaults.
func (s *Service) Results(ctx context.Context, sid string, offset, limit *int) (domresults.Page, error) {
	if sid == "" {
		return domresults.Page{}, domain.NewInvalidParameter("sid", "is required")
	}
	w, err := domresults.NewWindow(offset, limit, s.defaultLimit, s.maxLimit)
	if err != nil {
		return domresults.Page{}, err
	}
	return s.Assemble(ctx, sid, w)
}

// Assemble fetches the window from the IQR session, resolves its checksums against
// the index and ranks the joined documents. It is all-or-nothing: any failure
// returns no documents.
func (s *Service) Assemble(ctx context.Context, sid string, w domresults.Window) (domresults.Page, error) {
	ctx = logger.With(ctx, zap.String("sid", sid))
	log := logger.FromContext(ctx)

	ranked, err := s.iqr.Results(ctx, sid, w)
	if err != nil {
		return domresults.Page{}, fmt.Errorf("fetch ranked window: %w", err)
	}

	page := domresults.Page{TotalFound: ranked.Total, Documents: []document.Enriched{}}

	checksums := ranked.Checksums()
	if len(checksums) == 0 {
		log.Debug("empty ranked window",
			zap.Int("offset", w.Offset()), zap.Int("end", w.End()), zap.Int("total", ranked.Total))
		return page, nil
	}

	docs, err := s.index.FindByField(ctx, s.checksumField, checksums)
	if err != nil {
		return domresults.Page{}, fmt.Errorf("lookup documents: %w", err)
	}

	enriched, err := joinConfidences(docs, ranked.Confidences(), s.checksumField)
	if err != nil {
		log.Warn("index and IQR ranking out of sync", zap.Error(err))
		return domresults.Page{}, err
	}
	rankDocuments(enriched)
	page.Documents = enriched

	log.Debug("results assembled",
		zap.Int("offset", w.Offset()),
		zap.Int("end", w.End()),
		zap.Int("ranked", len(checksums)),
		zap.Int("documents", len(enriched)),
		zap.Int("total", ranked.Total),
	)
	return page, nil
}
