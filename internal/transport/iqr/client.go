// Package iqr is an HTTP client for the Interactive Query Refinement service.
package iqr

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

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/imagespace/iqrproxy/internal/domain"
	domresults "github.com/imagespace/iqrproxy/internal/domain/results"
	domsession "github.com/imagespace/iqrproxy/internal/domain/session"
	"github.com/imagespace/iqrproxy/internal/logger"
	"github.com/imagespace/iqrproxy/internal/metrics"
)

const serviceName = "iqr"

// Operation names used in errors and metrics.
const (
	OpSession = "session"
	OpRefine  = "refine"
	OpResults = "get_results"
	OpPing    = "ping"
)

// maxBodyBytes caps how much of an IQR response is read.
const maxBodyBytes = 16 << 20

// Config holds client settings.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts uint          // get_results only; 1 = no retry
	RetryDelay    time.Duration // initial backoff delay
	RateLimit     float64       // requests per second; 0 = unlimited
	RateBurst     int
}

// Client talks to the IQR service.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	attempts   uint
	delay      time.Duration
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its timeout is left as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates an IQR client.
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid iqr base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid iqr base url %q: scheme must be http or https", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: timeout},
		attempts:   max(cfg.RetryAttempts, 1),
		delay:      cfg.RetryDelay,
	}
	if c.delay <= 0 {
		c.delay = 200 * time.Millisecond
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// CreateSession opens a new IQR session and returns its id.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	body, err := c.do(ctx, OpSession, http.MethodPost, "session", nil, nil)
	if err != nil {
		return "", err
	}

	var resp sessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", c.malformed(OpSession, err)
	}
	if resp.SID == nil || *resp.SID == "" {
		return "", c.malformed(OpSession, fmt.Errorf("missing key %q", "sid"))
	}
	return *resp.SID, nil
}

// Refine submits positive and negative example ids. The response body is returned verbatim.
func (c *Client) Refine(ctx context.Context, req domsession.RefineRequest) (json.RawMessage, error) {
	pos, err := json.Marshal(req.Positive())
	if err != nil {
		return nil, fmt.Errorf("encode pos_uuids: %w", err)
	}
	neg, err := json.Marshal(req.Negative())
	if err != nil {
		return nil, fmt.Errorf("encode neg_uuids: %w", err)
	}
	form := url.Values{
		"sid":       {req.SID()},
		"pos_uuids": {string(pos)},
		"neg_uuids": {string(neg)},
	}

	body, err := c.do(ctx, OpRefine, http.MethodPut, "refine", nil, form)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, c.malformed(OpRefine, errors.New("response is not valid JSON"))
	}
	return json.RawMessage(body), nil
}

// Results fetches the ranked window [w.Offset(), w.End()) of a session.
// Transient failures are retried with backoff up to the configured attempts.
func (c *Client) Results(ctx context.Context, sid string, w domresults.Window) (domresults.IQRPage, error) {
	query := url.Values{
		"sid": {sid},
		"i":   {strconv.Itoa(w.Offset())},
		"j":   {strconv.Itoa(w.End())},
	}

	var body []byte
	err := retry.Do(
		func() error {
			var err error
			body, err = c.do(ctx, OpResults, http.MethodGet, "get_results", query, nil)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(n uint, err error) {
			metrics.UpstreamRetriesTotal.WithLabelValues(serviceName, OpResults).Inc()
			logger.FromContext(ctx).Warn("retrying iqr request",
				zap.String("op", OpResults),
				zap.Uint("attempt", n+1),
				zap.Uint("max_attempts", c.attempts),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return domresults.IQRPage{}, err
	}

	var resp resultsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domresults.IQRPage{}, c.malformed(OpResults, err)
	}
	page, err := resp.toPage()
	if err != nil {
		return domresults.IQRPage{}, c.malformed(OpResults, err)
	}
	return page, nil
}

// Ping reports whether the IQR service answers HTTP at all. Any status below 500 counts as up.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String(), http.NoBody)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstream(serviceName, OpPing, 0, start)
		return &domain.UpstreamError{Service: serviceName, Op: OpPing, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	metrics.ObserveUpstream(serviceName, OpPing, resp.StatusCode, start)

	if resp.StatusCode >= http.StatusInternalServerError {
		return &domain.UpstreamError{Service: serviceName, Op: OpPing, Status: resp.StatusCode}
	}
	return nil
}

// do performs one request and returns the body of a 2xx response.
// The request is rebuilt on every call so it can be retried.
func (c *Client) do(
	ctx context.Context, op, method, path string, query, form url.Values,
) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &domain.UpstreamError{
				Service: serviceName,
				Op:      op,
				Err:     fmt.Errorf("%w: %w", domain.ErrRateLimited, err),
			}
		}
	}

	u := c.base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader = http.NoBody
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstream(serviceName, op, 0, start)
		return nil, &domain.UpstreamError{Service: serviceName, Op: op, Err: err}
	}
	defer resp.Body.Close()
	metrics.ObserveUpstream(serviceName, op, resp.StatusCode, start)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.UpstreamError{Service: serviceName, Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ue := &domain.UpstreamError{Service: serviceName, Op: op, Status: resp.StatusCode}
		if msg := truncate(data, 256); msg != "" {
			ue.Err = errors.New(msg)
		}
		return nil, ue
	}
	return data, nil
}

func (c *Client) malformed(op string, err error) error {
	return &domain.UpstreamError{Service: serviceName, Op: op, Err: fmt.Errorf("malformed response: %w", err)}
}

// isTransient reports whether a failed call is worth retrying:
// network errors without a response, and gateway-style statuses.
func isTransient(err error) bool {
	var ue *domain.UpstreamError
	if !errors.As(err, &ue) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrRateLimited) {
		return false
	}
	switch ue.Status {
	case 0:
		return true
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
