// Package vaulthttp is the resilient HTTP transport to the vault's REST API.
package vaulthttp

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/vaultctx/internal/domain"
	"github.com/kailas-cloud/vaultctx/internal/metrics"
	"github.com/kailas-cloud/vaultctx/internal/stream"
)

const (
	noteJSONContentType = "application/vnd.olrapi.note+json"
	markdownContentType = "text/markdown"
	maxErrorBody        = 512
	searchContextLength = 100
)

// Compile-time check: Client implements domain.Vault.
var _ domain.Vault = (*Client)(nil)

// Client talks to the vault REST API with per-operation timeouts, retries, a circuit breaker,
// a TTL response cache and an outbound rate limiter. Safe for concurrent use.
type Client struct {
	cfg     Config
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
	breaker *breaker
	cache   *responseCache
	shared  SharedCache
	now     func() time.Time
	logger  *zap.Logger
}

type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	accept      string
}

// New creates a vault client.
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, domain.NewValidationError("vault.base_url", fmt.Sprintf("invalid url %q", cfg.BaseURL))
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultConfig().DefaultTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Retry.Multiplier < 1 {
		cfg.Retry.Multiplier = 1
	}

	c := &Client{cfg: cfg, baseURL: base}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.http == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			// The vault plugin serves a self-signed certificate on localhost.
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in
		}
		c.http = &http.Client{Transport: transport}
	}
	if cfg.RateLimit.RPS > 0 {
		burst := max(cfg.RateLimit.Burst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), burst)
	}

	c.breaker = newBreaker(cfg.Breaker, c.now, c.onBreakerChange)
	c.cache = newResponseCache(cfg.Cache, c.now, c.shared)
	metrics.CircuitBreakerState.Set(float64(StateClosed))
	return c, nil
}

// Get fetches a note by vault-relative path.
func (c *Client) Get(ctx context.Context, notePath string) (domain.Response, error) {
	notePath = cleanPath(notePath)
	key := cacheKey(kindNote, notePath)
	if resp, ok := c.cache.get(ctx, kindNote, key); ok {
		return resp, nil
	}

	resp, err := c.execute(ctx, request{
		op:     OpGet,
		method: http.MethodGet,
		path:   vaultPath(notePath),
		accept: noteJSONContentType,
	})
	if err != nil {
		return domain.Response{}, err
	}
	c.cache.put(ctx, kindNote, key, resp)
	return resp, nil
}

// Post appends body to a note, creating it if needed.
func (c *Client) Post(ctx context.Context, notePath string, body []byte) (domain.Response, error) {
	return c.mutate(ctx, OpPost, http.MethodPost, notePath, body)
}

// Put creates or replaces a note.
func (c *Client) Put(ctx context.Context, notePath string, body []byte) (domain.Response, error) {
	return c.mutate(ctx, OpPut, http.MethodPut, notePath, body)
}

// Delete removes a note.
func (c *Client) Delete(ctx context.Context, notePath string) (domain.Response, error) {
	return c.mutate(ctx, OpDelete, http.MethodDelete, notePath, nil)
}

// Search runs a simple text search. limit <= 0 returns every hit.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewValidationError("query", "must not be empty")
	}

	key := cacheKey(kindSearch, query)
	resp, ok := c.cache.get(ctx, kindSearch, key)
	if !ok {
		var err error
		resp, err = c.execute(ctx, request{
			op:     OpSearch,
			method: http.MethodPost,
			path:   "/search/simple/",
			query: url.Values{
				"query":         {query},
				"contextLength": {strconv.Itoa(searchContextLength)},
			},
			accept: "application/json",
		})
		if err != nil {
			return nil, err
		}
		c.cache.put(ctx, kindSearch, key, resp)
	}

	hits, err := decodeSearch(resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", OpSearch, err)
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Status calls the vault root endpoint. It bypasses the cache but not the breaker.
func (c *Client) Status(ctx context.Context) error {
	_, err := c.execute(ctx, request{op: OpStatus, method: http.MethodGet, path: "/", accept: "application/json"})
	return err
}

// ClearCache drops every cached response.
func (c *Client) ClearCache(ctx context.Context) {
	c.cache.clear(ctx)
}

// GetCacheStats returns response cache counters.
func (c *Client) GetCacheStats() CacheStats {
	return c.cache.stats()
}

// GetCircuitBreakerState returns the breaker state and its rolling counters.
func (c *Client) GetCircuitBreakerState() BreakerSnapshot {
	return c.breaker.snapshot()
}

func (c *Client) mutate(ctx context.Context, op, method, notePath string, body []byte) (domain.Response, error) {
	notePath = cleanPath(notePath)
	if notePath == "" {
		return domain.Response{}, domain.NewValidationError("path", "must not be empty")
	}

	resp, err := c.execute(ctx, request{
		op:          op,
		method:      method,
		path:        vaultPath(notePath),
		body:        body,
		contentType: markdownContentType,
	})

	// A failed mutation may still have reached the vault.
	c.cache.invalidate(ctx, kindNote, cacheKey(kindNote, notePath))
	c.cache.invalidateKind(ctx, kindSearch)
	return resp, err
}

// execute runs req through the rate limiter, breaker and retry loop.
func (c *Client) execute(ctx context.Context, req request) (domain.Response, error) {
	log := c.logger.With(zap.String("operation", req.op), zap.String("path", req.path))

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= c.cfg.Retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Response{}, &domain.TimeoutError{Op: req.op, Err: err}
		}

		if attempt > 1 {
			delay := c.backoff(attempt - 1)
			metrics.VaultRetriesTotal.WithLabelValues(req.op).Inc()
			log.Warn("retrying vault request",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := sleep(ctx, delay); err != nil {
				return domain.Response{}, &domain.TimeoutError{Op: req.op, Err: err}
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return domain.Response{}, &domain.TimeoutError{Op: req.op, Err: fmt.Errorf("rate limiter: %w", err)}
			}
		}

		gen, err := c.breaker.allow()
		if err != nil {
			metrics.VaultRequestsTotal.WithLabelValues(req.op, "rejected").Inc()
			if lastErr == nil {
				lastErr = err
			} else {
				lastErr = errors.Join(err, lastErr)
			}
			return domain.Response{}, &domain.UpstreamUnavailableError{Op: req.op, Attempts: attempts, Err: lastErr}
		}

		attempts++
		resp, err := c.attempt(ctx, req)
		if err == nil {
			c.breaker.record(gen, false)
			return resp, nil
		}
		if ctx.Err() != nil {
			// The caller gave up; that says nothing about vault health.
			c.breaker.release(gen)
			return domain.Response{}, &domain.TimeoutError{Op: req.op, Err: ctx.Err()}
		}

		retryable := domain.IsRetryable(err)
		c.breaker.record(gen, retryable)
		if !retryable {
			return domain.Response{}, err
		}
		lastErr = err
	}

	return domain.Response{}, &domain.UpstreamUnavailableError{Op: req.op, Attempts: attempts, Err: lastErr}
}

// attempt performs one HTTP round trip bounded by the operation timeout.
func (c *Client) attempt(ctx context.Context, req request) (domain.Response, error) {
	timeout := c.timeout(req.op)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := *c.baseURL
	u.Path = c.baseURL.Path + req.path
	u.RawPath = ""
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return domain.Response{}, fmt.Errorf("%s: build request: %w", req.op, err)
	}
	if c.cfg.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
	if req.accept != "" {
		httpReq.Header.Set("Accept", req.accept)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.Response{}, c.observe(req.op, start, classifyTransportError(req.op, err))
	}
	defer httpResp.Body.Close()

	resp := domain.Response{
		StatusCode:  httpResp.StatusCode,
		ContentType: httpResp.Header.Get("Content-Type"),
	}

	if httpResp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return domain.Response{}, c.observe(req.op, start, &domain.StatusError{
			Op:         req.op,
			StatusCode: httpResp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		})
	}

	if httpResp.ContentLength < 0 {
		resp.Body, resp.Records, err = c.readStream(ctx, httpResp)
	} else {
		resp.Body, err = io.ReadAll(httpResp.Body)
	}
	if err != nil {
		return domain.Response{}, c.observe(req.op, start, classifyReadError(req.op, err))
	}

	return resp, c.observe(req.op, start, nil)
}

// readStream splits a chunked body into records while keeping the raw bytes.
func (c *Client) readStream(ctx context.Context, httpResp *http.Response) ([]byte, [][]byte, error) {
	var raw bytes.Buffer
	m := stream.New(c.cfg.Stream)
	m.OptimizeStreaming(httpResp.Header.Get("Content-Type"))
	records, err := m.ReadAll(ctx, io.TeeReader(httpResp.Body, &raw))
	if err != nil {
		return nil, nil, err
	}
	return raw.Bytes(), records, nil
}

func (c *Client) observe(op string, start time.Time, err error) error {
	metrics.VaultRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.VaultRequestsTotal.WithLabelValues(op, statusLabel(err)).Inc()
	return err
}

func (c *Client) timeout(op string) time.Duration {
	if d, ok := c.cfg.Timeouts[op]; ok && d > 0 {
		return d
	}
	return c.cfg.DefaultTimeout
}

// backoff returns the delay before retry n (1-based).
func (c *Client) backoff(n int) time.Duration {
	r := c.cfg.Retry
	d := time.Duration(float64(r.InitialBackoff) * math.Pow(r.Multiplier, float64(n-1)))
	if r.MaxBackoff > 0 && d > r.MaxBackoff {
		d = r.MaxBackoff
	}
	return d
}

func (c *Client) onBreakerChange(from, to State) {
	metrics.CircuitBreakerState.Set(float64(to))
	if to == StateClosed {
		c.logger.Info("vault circuit breaker closed", zap.Stringer("from", from))
		return
	}
	c.logger.Warn("vault circuit breaker state changed", zap.Stringer("from", from), zap.Stringer("to", to))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func classifyTransportError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &domain.TimeoutError{Op: op, Err: err}
	}
	return &domain.NetworkError{Op: op, Err: err}
}

func classifyReadError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, domain.ErrRecordTooLarge):
		return err
	default:
		return classifyTransportError(op, err)
	}
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var se *domain.StatusError
	switch {
	case errors.As(err, &se) && se.Retryable():
		return "server_error"
	case errors.As(err, &se):
		return "client_error"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	default:
		return "network_error"
	}
}

func cleanPath(p string) string {
	return strings.Trim(strings.TrimSpace(p), "/")
}

// vaultPath builds the unescaped request path; url.URL.String escapes each segment.
func vaultPath(notePath string) string {
	return "/vault/" + notePath
}

// searchHitWire is the vault's /search/simple/ item.
type searchHitWire struct {
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
	Matches  []struct {
		Match struct {
			Start int `json:"start"`
			End   int `json:"end"`
		} `json:"match"`
		Context string `json:"context"`
	} `json:"matches"`
}

func decodeSearch(resp domain.Response) ([]domain.SearchHit, error) {
	var wire []searchHitWire
	if len(resp.Records) > 0 && !bytes.HasPrefix(bytes.TrimSpace(resp.Body), []byte("[")) {
		for _, rec := range resp.Records {
			var h searchHitWire
			if err := json.Unmarshal(rec, &h); err != nil {
				return nil, fmt.Errorf("decode search record: %w", err)
			}
			wire = append(wire, h)
		}
	} else if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(wire))
	for _, w := range wire {
		if w.Filename == "" {
			continue
		}
		h := domain.SearchHit{Path: w.Filename, Score: w.Score}
		for _, m := range w.Matches {
			h.Matches = append(h.Matches, domain.SearchMatch{
				Start:   m.Match.Start,
				End:     m.Match.End,
				Context: m.Context,
			})
		}
		hits = append(hits, h)
	}
	return hits, nil
}
