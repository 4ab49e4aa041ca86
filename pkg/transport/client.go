package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marbledata/marble/pkg/telemetry"
)

// Default transport limits.
const (
	DefaultMaxRetries     = 10
	DefaultRequestTimeout = 60 * time.Second
	DefaultPoolSize       = 32
	maxErrorBodyBytes     = 1 << 20
)

// DefaultSplittableStatuses are the status codes that trigger bisection of
// a multi-item batch: the server says the content is partially defective,
// so shrinking the batch isolates the bad items.
var DefaultSplittableStatuses = []int{400, 408, 409, 422, 502, 503, 504}

// DefaultRetryableStatuses are the status codes retried as a whole without
// splitting (408, 429 without Retry-After, and server errors at size 1).
var DefaultRetryableStatuses = []int{408, 429, 502, 503, 504}

// Options configures a Client. Zero values fall back to the documented
// defaults.
type Options struct {
	// BaseURL prefixes relative request URLs. Absolute URLs pass through.
	BaseURL string

	// Credentials computes the bearer token attached to every request.
	Credentials CredentialProvider

	// UserAgent identifies the client to the platform.
	UserAgent string

	// MaxRetries bounds status-driven retries (default 10).
	MaxRetries int

	// MaxConnectRetries bounds connect-failure retries (default MaxRetries).
	MaxConnectRetries int

	// MaxReadRetries bounds read/timeout-failure retries (default MaxRetries).
	MaxReadRetries int

	// MaxBackoff caps the exponential backoff delay.
	MaxBackoff time.Duration

	// RetryableStatuses overrides DefaultRetryableStatuses.
	RetryableStatuses []int

	// SplittableStatuses overrides DefaultSplittableStatuses.
	SplittableStatuses []int

	// MaxFailedSplits is the Tracker budget for batches created by the
	// client's helpers (default DefaultMaxFailedSplits).
	MaxFailedSplits int

	// RequestTimeout is the per-attempt HTTP timeout.
	RequestTimeout time.Duration

	// PoolSize is the HTTP connection pool size (idle conns per host).
	PoolSize int

	// Compress enables gzip compression of large request bodies.
	Compress bool

	// HTTPClient overrides the constructed client, for tests.
	HTTPClient *http.Client

	// Logger receives transport-level logs. Nil disables logging.
	Logger *telemetry.Logger

	// Metrics receives transport-level metrics. Nil disables metrics.
	Metrics *telemetry.Metrics

	// Tracer produces spans around attempts. Nil disables tracing.
	Tracer *telemetry.Tracer
}

// Client is the resilient HTTP transport to the platform API. It is safe
// for concurrent use; the underlying connection pool is shared by all
// workers.
type Client struct {
	opts       Options
	http       *http.Client
	retryable  map[int]bool
	splittable map[int]bool
	stats      *Stats
}

// NewClient creates a transport client from options.
func NewClient(opts Options) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.MaxConnectRetries <= 0 {
		opts.MaxConnectRetries = opts.MaxRetries
	}
	if opts.MaxReadRetries <= 0 {
		opts.MaxReadRetries = opts.MaxRetries
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}
	if len(opts.RetryableStatuses) == 0 {
		opts.RetryableStatuses = DefaultRetryableStatuses
	}
	if len(opts.SplittableStatuses) == 0 {
		opts.SplittableStatuses = DefaultSplittableStatuses
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: opts.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        opts.PoolSize,
				MaxIdleConnsPerHost: opts.PoolSize,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Client{
		opts:       opts,
		http:       httpClient,
		retryable:  statusSet(opts.RetryableStatuses),
		splittable: statusSet(opts.SplittableStatuses),
		stats:      NewStats(),
	}
}

// Stats returns the client's transfer statistics monitor.
func (c *Client) Stats() *Stats {
	return c.stats
}

// NewBatch creates a batch bound to the client's split budget.
func (c *Client) NewBatch(method, url string, items []Item) *Batch {
	return NewBatch(method, c.resolveURL(url), items, c.opts.MaxFailedSplits)
}

func statusSet(codes []int) map[int]bool {
	set := make(map[int]bool, len(codes))
	for _, code := range codes {
		set[code] = true
	}
	return set
}

func (c *Client) resolveURL(url string) string {
	if c.opts.BaseURL == "" || hasScheme(url) {
		return url
	}
	base := c.opts.BaseURL
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	if len(url) > 0 && url[0] != '/' {
		url = "/" + url
	}
	return base + url
}

func hasScheme(url string) bool {
	for i := 0; i < len(url); i++ {
		switch url[i] {
		case ':':
			return i > 0 && i+2 < len(url) && url[i+1] == '/' && url[i+2] == '/'
		case '/', '?', '#':
			return false
		}
	}
	return false
}

// attemptOutcome captures what the step machine needs from one exchange.
type attemptOutcome struct {
	status     int
	body       []byte
	retryAfter time.Duration
	err        error
}

// attempt performs one HTTP exchange for a request, with an items body for
// batches or the single body otherwise.
func (c *Client) attempt(ctx context.Context, req *Request, items []any) attemptOutcome {
	var payload any
	if items != nil {
		payload = map[string]any{"items": items}
	} else {
		payload = req.Body
	}

	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return attemptOutcome{err: fmt.Errorf("marshal request body: %w", err)}
		}
	}

	url := c.resolveURL(req.URL)
	compressed := false
	if c.opts.Compress && bodyBytes != nil {
		bodyBytes, compressed = compressBody(bodyBytes)
	}

	var bodyReader io.Reader
	if bodyBytes != nil {
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return attemptOutcome{err: err}
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	accept := req.Accept
	if accept == "" {
		accept = "application/json"
	}
	if bodyBytes != nil {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", accept)
	if compressed {
		httpReq.Header.Set("Content-Encoding", "gzip")
	}
	if c.opts.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.opts.UserAgent)
	}
	if err := applyAuth(ctx, httpReq, c.opts.Credentials); err != nil {
		return attemptOutcome{err: fmt.Errorf("credential provider: %w", err)}
	}

	if c.opts.Tracer != nil {
		spanCtx, span := c.opts.Tracer.StartSendSpan(ctx, req.Method, url, len(items))
		defer span.End()
		httpReq = httpReq.WithContext(spanCtx)
	}

	if c.opts.Metrics != nil {
		c.opts.Metrics.IncInflight()
		defer c.opts.Metrics.DecInflight()
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	elapsed := time.Since(start)
	c.stats.ObserveAttempt(elapsed, err == nil)

	if err != nil {
		if c.opts.Logger != nil {
			c.opts.Logger.Zerolog().Debug().
				Str("request_id", req.ID).
				Str("method", req.Method).
				Str("url", url).
				Err(err).
				Msg("transport attempt failed")
		}
		return attemptOutcome{err: err}
	}
	defer resp.Body.Close()

	if c.opts.Metrics != nil {
		c.opts.Metrics.ObserveRequest(req.Method, resp.StatusCode, elapsed)
	}

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if readErr != nil {
		return attemptOutcome{err: readErr}
	}

	return attemptOutcome{
		status:     resp.StatusCode,
		body:       respBody,
		retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// parseRetryAfter parses a Retry-After header as delay seconds or an HTTP
// date. Zero means the header was absent or unusable.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
