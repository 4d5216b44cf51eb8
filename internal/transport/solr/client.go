// Package solr resolves checksums to documents with a Solr terms query.
package solr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/imagespace/iqrproxy/internal/domain"
	"github.com/imagespace/iqrproxy/internal/domain/document"
	"github.com/imagespace/iqrproxy/internal/logger"
	"github.com/imagespace/iqrproxy/internal/metrics"
)

const serviceName = "solr"

const maxBodyBytes = 64 << 20

// Config holds Solr settings.
type Config struct {
	URL        string // e.g. http://solr:8983/solr
	Collection string
	MaxRows    int
	Timeout    time.Duration
}

// Client queries one Solr collection.
type Client struct {
	selectURL  string
	pingURL    string
	maxRows    int
	httpClient *http.Client
}

// New creates a Solr client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid solr url: %w", err)
	}
	if cfg.Collection == "" {
		return nil, errors.New("solr collection is required")
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	ping := base.JoinPath(cfg.Collection, "admin", "ping")
	ping.RawQuery = url.Values{"wt": {"json"}}.Encode()

	return &Client{
		selectURL:  base.JoinPath(cfg.Collection, "select").String(),
		pingURL:    ping.String(),
		maxRows:    cfg.MaxRows,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type selectResponse struct {
	Response *struct {
		NumFound int                 `json:"numFound"`
		Docs     []document.Document `json:"docs"`
	} `json:"response"`
}

// FindByField returns every document whose field equals one of values.
// Matches are read max_rows at a time until numFound documents have been collected.
func (c *Client) FindByField(ctx context.Context, field string, values []string) ([]document.Document, error) {
	if len(values) == 0 {
		return []document.Document{}, nil
	}

	q := termsQuery(field, values)
	docs := []document.Document{}
	for {
		page, numFound, err := c.selectPage(ctx, q, len(docs))
		if err != nil {
			return nil, err
		}
		docs = append(docs, page...)
		if len(docs) >= numFound {
			return docs, nil
		}
		if len(page) == 0 {
			return nil, fmt.Errorf("%w: solr select: read %d of %d matches",
				domain.ErrIndexUnavailable, len(docs), numFound)
		}
		logger.FromContext(ctx).Debug("solr paging",
			zap.Int("read", len(docs)),
			zap.Int("num_found", numFound),
		)
	}
}

func (c *Client) selectPage(ctx context.Context, q string, start int) ([]document.Document, int, error) {
	form := url.Values{
		"q":     {q},
		"start": {strconv.Itoa(start)},
		"rows":  {strconv.Itoa(c.maxRows)},
		"wt":    {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.selectURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("create solr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req, "select")
	if err != nil {
		return nil, 0, err
	}

	var resp selectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, fmt.Errorf("%w: solr select: decode: %w", domain.ErrIndexUnavailable, err)
	}
	if resp.Response == nil {
		return nil, 0, fmt.Errorf("%w: solr select: missing response", domain.ErrIndexUnavailable)
	}
	return resp.Response.Docs, resp.Response.NumFound, nil
}

// Ping checks the collection ping handler.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pingURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create solr ping request: %w", err)
	}
	_, err = c.do(req, "ping")
	return err
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstream(serviceName, op, 0, start)
		return nil, fmt.Errorf("%w: solr %s: %w", domain.ErrIndexUnavailable, op, err)
	}
	defer resp.Body.Close()
	metrics.ObserveUpstream(serviceName, op, resp.StatusCode, start)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: solr %s: read body: %w", domain.ErrIndexUnavailable, op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: solr %s: status %d", domain.ErrIndexUnavailable, op, resp.StatusCode)
	}
	return body, nil
}

// termsQuery builds {!terms f=<field>}v1,v2,... Values are comma separated,
// so commas inside a value are not supported.
func termsQuery(field string, values []string) string {
	return "{!terms f=" + field + "}" + strings.Join(values, ",")
}
