// Package meili resolves checksums to documents stored in a Meilisearch index.
// The checksum field must be declared filterable on the index.
package meili

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	"github.com/imagespace/iqrproxy/internal/domain"
	"github.com/imagespace/iqrproxy/internal/domain/document"
	"github.com/imagespace/iqrproxy/internal/logger"
	"github.com/imagespace/iqrproxy/internal/metrics"
)

const serviceName = "meilisearch"

// Config holds Meilisearch settings.
type Config struct {
	Host    string
	APIKey  string
	Index   string
	MaxRows int
	Timeout time.Duration
}

// Client queries one Meilisearch index.
type Client struct {
	client  meilisearch.ServiceManager
	index   meilisearch.IndexManager
	maxRows int
}

// New creates a Meilisearch client.
func New(cfg Config) (*Client, error) {
	if cfg.Index == "" {
		return nil, fmt.Errorf("meilisearch index is required")
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := meilisearch.New(cfg.Host,
		meilisearch.WithAPIKey(cfg.APIKey),
		meilisearch.WithCustomClient(&http.Client{Timeout: cfg.Timeout}),
		meilisearch.DisableRetries(),
	)
	return &Client{
		client:  client,
		index:   client.Index(cfg.Index),
		maxRows: cfg.MaxRows,
	}, nil
}

type searchResponse struct {
	Hits       []document.Document `json:"hits"`
	TotalHits  int                 `json:"totalHits"`
	TotalPages int                 `json:"totalPages"`
}

// FindByField returns every document whose field equals one of values.
// Pages of max_rows hits are read until totalHits documents have been collected.
// totalHits is bounded by the index pagination.maxTotalHits setting.
func (c *Client) FindByField(ctx context.Context, field string, values []string) ([]document.Document, error) {
	if len(values) == 0 {
		return []document.Document{}, nil
	}

	filter := inFilter(field, values)
	docs := []document.Document{}
	for page := int64(1); ; page++ {
		resp, err := c.searchPage(ctx, filter, page)
		if err != nil {
			return nil, err
		}
		docs = append(docs, resp.Hits...)
		if len(docs) >= resp.TotalHits {
			return docs, nil
		}
		if len(resp.Hits) == 0 || page >= int64(resp.TotalPages) {
			return nil, fmt.Errorf("%w: meilisearch search: read %d of %d hits",
				domain.ErrIndexUnavailable, len(docs), resp.TotalHits)
		}
		logger.FromContext(ctx).Debug("meilisearch paging",
			zap.Int("read", len(docs)),
			zap.Int("total_hits", resp.TotalHits),
		)
	}
}

func (c *Client) searchPage(ctx context.Context, filter string, page int64) (*searchResponse, error) {
	req := &meilisearch.SearchRequest{
		Filter:      filter,
		Page:        page,
		HitsPerPage: int64(c.maxRows),
	}

	start := time.Now()
	raw, err := c.index.SearchRawWithContext(ctx, "", req)
	if err != nil {
		metrics.ObserveUpstream(serviceName, "search", 0, start)
		return nil, fmt.Errorf("%w: meilisearch search: %w", domain.ErrIndexUnavailable, err)
	}
	metrics.ObserveUpstream(serviceName, "search", 200, start)

	var resp searchResponse
	if raw == nil {
		return &resp, nil
	}
	if err := json.Unmarshal(*raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: meilisearch search: decode: %w", domain.ErrIndexUnavailable, err)
	}
	return &resp, nil
}

// Ping checks the server health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	if _, err := c.client.HealthWithContext(ctx); err != nil {
		metrics.ObserveUpstream(serviceName, "health", 0, start)
		return fmt.Errorf("%w: meilisearch health: %w", domain.ErrIndexUnavailable, err)
	}
	metrics.ObserveUpstream(serviceName, "health", 200, start)
	return nil
}

// inFilter builds `field IN ["v1", "v2"]`.
func inFilter(field string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return field + " IN [" + strings.Join(quoted, ", ") + "]"
}
