// Package client talks to the findings backend over HTTP+JSON.
//
// Each source has its own endpoint family: the internal scanner lives at
// the root (/vulnerabilities, /update, /retest) and the Cloudflare feed
// under /api/cloudflare. Failures are returned to the caller and never
// retried here.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vulntrack/vulntrack/internal/ingest"
	"github.com/vulntrack/vulntrack/internal/types"
)

// ErrUnauthorized is returned when the backend answers 401. The client's
// token has already been cleared when it is returned.
var ErrUnauthorized = errors.New("unauthorized: please log in again")

// APIError is a non-2xx response other than 401.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

const maxErrorBody = 4 << 10

// Client is safe for concurrent use.
type Client struct {
	base           string
	http           *http.Client
	log            *zap.Logger
	limiter        *rate.Limiter
	ingest         ingest.Options
	onUnauthorized func()

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRetestInterval spaces bulk retest calls at least d apart. Zero means
// back-to-back.
func WithRetestInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.limiter = rate.NewLimiter(rate.Every(d), 1)
		} else {
			c.limiter = nil
		}
	}
}

// WithIngestOptions controls how fetched records are normalized.
func WithIngestOptions(o ingest.Options) Option { return func(c *Client) { c.ingest = o } }

// WithOnUnauthorized registers a hook run after a 401 clears the token.
func WithOnUnauthorized(fn func()) Option { return func(c *Client) { c.onUnauthorized = fn } }

// New builds a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
		log:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL is the backend root the client talks to.
func (c *Client) BaseURL() string { return c.base }

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(t string) {
	c.mu.Lock()
	c.token = t
	c.mu.Unlock()
}

func endpoint(src types.Source, name string) string {
	if src == types.SourceCloudflare {
		return "/api/cloudflare/" + name
	}
	return "/" + name
}

// do sends one request. body and out may be nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		rdr = bytes.NewReader(b)
	}
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	log := c.log.With(zap.String("method", method), zap.String("path", path), zap.String("request_id", reqID))
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug("request failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	log.Debug("response", zap.Int("status", resp.StatusCode), zap.Duration("duration", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.SetToken("")
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if w, ok := out.(io.Writer); ok {
		_, err = io.Copy(w, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Login exchanges credentials for a bearer token and keeps it on the client.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/login", nil, body, &resp); err != nil {
		return "", err
	}
	tok := resp.Token
	if tok == "" {
		tok = resp.AccessToken
	}
	if tok == "" {
		return "", errors.New("login: response carried no token")
	}
	c.SetToken(tok)
	return tok, nil
}

// ServerFilter narrows a Cloudflare fetch server-side. The internal
// endpoint takes no parameters and ignores it.
type ServerFilter struct {
	Domain   string
	Severity string
	Status   string
	Owner    string
}

func (f ServerFilter) values() url.Values {
	v := url.Values{}
	for k, s := range map[string]string{"domain": f.Domain, "severity": f.Severity, "status": f.Status, "owner": f.Owner} {
		if s = strings.TrimSpace(s); s != "" {
			v.Set(k, s)
		}
	}
	return v
}

// Findings fetches and normalizes the findings of one source.
func (c *Client) Findings(ctx context.Context, src types.Source, f ServerFilter) (ingest.Result, error) {
	var q url.Values
	if src == types.SourceCloudflare {
		q = f.values()
	}
	var buf bytes.Buffer
	if err := c.do(ctx, http.MethodGet, endpoint(src, "vulnerabilities"), q, nil, &buf); err != nil {
		return ingest.Result{}, err
	}
	res, err := ingest.Decode(src, &buf, c.ingest)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("fetch %s findings: %w", src, err)
	}
	if res.Discarded > 0 || res.Excluded > 0 {
		c.log.Debug("normalized findings", zap.String("source", string(src)),
			zap.Int("kept", len(res.Findings)), zap.Int("discarded", res.Discarded), zap.Int("excluded", res.Excluded))
	}
	return res, nil
}

// UpdateResponse is the backend's acknowledgement of a bulk update. Fields
// the backend omits stay zero.
type UpdateResponse struct {
	Success bool   `json:"success"`
	Updated int    `json:"updated"`
	Message string `json:"message,omitempty"`
}

// Update submits partial field updates. The call is not transactional;
// callers re-fetch to learn the authoritative state.
func (c *Client) Update(ctx context.Context, src types.Source, updates []types.Update) (UpdateResponse, error) {
	items := make([]map[string]any, 0, len(updates))
	for _, u := range updates {
		items = append(items, updateItem(src, u))
	}
	var resp UpdateResponse
	err := c.do(ctx, http.MethodPost, endpoint(src, "update"), nil, map[string]any{"updates": items}, &resp)
	return resp, err
}

func identity(src types.Source, name, host string) map[string]any {
	if src == types.SourceCloudflare {
		return map[string]any{"domain": host, "vulnerability_name": name}
	}
	return map[string]any{"name": name, "host": host}
}

func updateItem(src types.Source, u types.Update) map[string]any {
	m := identity(src, u.Name, u.Host)
	if u.Status != nil {
		m["status"] = string(*u.Status)
	}
	if u.Notes != nil {
		if src == types.SourceCloudflare {
			m["comments"] = *u.Notes
		} else {
			m["notes"] = *u.Notes
		}
	}
	if u.Assignee != nil {
		m["assignee"] = *u.Assignee
	}
	return m
}

// RetestResponse is the backend's answer to a single retest.
type RetestResponse struct {
	Success       bool   `json:"success"`
	Status        string `json:"status"`
	FindingsCount int    `json:"findingsCount"`
}

// Retest asks the backend to rescan one finding.
func (c *Client) Retest(ctx context.Context, src types.Source, f types.Finding) (RetestResponse, error) {
	var resp RetestResponse
	err := c.do(ctx, http.MethodPost, endpoint(src, "retest"), nil, identity(src, f.Name, f.Host), &resp)
	return resp, err
}

// ServerSummary is the backend-computed headline tally. It may disagree
// with engine.Summarize over the same data.
type ServerSummary struct {
	Total    int `json:"total"`
	Open     int `json:"open"`
	Fixed    int `json:"fixed"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Summary fetches GET /summary.
func (c *Client) Summary(ctx context.Context) (ServerSummary, error) {
	var s ServerSummary
	err := c.do(ctx, http.MethodGet, "/summary", nil, nil, &s)
	return s, err
}
