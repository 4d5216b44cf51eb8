package sdk

import (
	"bytes"
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
)

const maxErrorBodyBytes = 64 << 10

// Client is the iqrproxy SDK entry point.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
	obs     *observer
}

// New creates a Client for the API served at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{timeout: defaultTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("iqrproxy: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("iqrproxy: base url must be absolute http(s), got %q", baseURL)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{baseURL: u, apiKey: cfg.apiKey, http: hc, obs: obs}, nil
}

// CreateSession starts a new IQR session.
func (c *Client) CreateSession(ctx context.Context) (Session, error) {
	start := time.Now()
	var s Session
	err := c.do(ctx, http.MethodPost, "/session", nil, nil, &s)
	c.obs.observe("create_session", start, err)
	return s, err
}

// ListSessions returns the caller's session records ordered by creation time.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	start := time.Now()
	var out []Session
	err := c.do(ctx, http.MethodGet, "/session", nil, nil, &out)
	c.obs.observe("list_sessions", start, err)
	return out, err
}

// Refine submits relevance judgements for sid and returns the raw IQR response.
// Nil slices are sent as empty arrays.
func (c *Client) Refine(ctx context.Context, sid string, positive, negative []string) (json.RawMessage, error) {
	start := time.Now()
	body := refineBody{SID: sid, PosUUIDs: nonNil(positive), NegUUIDs: nonNil(negative)}
	var raw json.RawMessage
	err := c.do(ctx, http.MethodPut, "/refine", nil, body, &raw)
	c.obs.observe("refine", start, err)
	return raw, err
}

// Results returns the ranked documents of sid in [offset, offset+limit).
// A limit of 0 uses the server default.
func (c *Client) Results(ctx context.Context, sid string, offset, limit int) (ResultsPage, error) {
	start := time.Now()
	q := url.Values{"sid": {sid}}
	if offset != 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	if limit != 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var page ResultsPage
	err := c.do(ctx, http.MethodGet, "/results", q, nil, &page)
	c.obs.observe("results", start, err)
	return page, err
}

// Health checks the health of all system components.
// A degraded service answers 503 with a report; that is not an error.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	start := time.Now()
	var hs HealthStatus
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &hs)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable && hs.Status != "" {
		err = nil
	}
	c.obs.observe("health", start, err)
	return hs, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("iqrproxy: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("iqrproxy: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("iqrproxy: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		apiErr := &APIError{Status: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.Code != "" {
			apiErr.Code, apiErr.Message = eb.Code, eb.Message
			return apiErr
		}
		apiErr.Message = http.StatusText(resp.StatusCode)
		// Health reports are returned with 503.
		if resp.StatusCode == http.StatusServiceUnavailable && out != nil {
			_ = json.Unmarshal(data, out)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("iqrproxy: decode %s %s: %w", method, path, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
