// Package overpass fetches element-graph documents from an Overpass API
// endpoint.
package overpass

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmbounds/pkg/core"
	"github.com/NERVsystems/osmbounds/pkg/monitoring"
	"github.com/NERVsystems/osmbounds/pkg/osm"
	"github.com/NERVsystems/osmbounds/pkg/tracing"
)

const (
	// DefaultURL is the public Overpass interpreter endpoint
	DefaultURL = "https://overpass-api.de/api/interpreter"

	// DefaultUserAgent identifies the client to the Overpass operators
	DefaultUserAgent = "osmbounds/0.1 (+https://github.com/NERVsystems/osmbounds)"

	// DefaultQueryTimeout is the server-side timeout in seconds. Country
	// relations take minutes to evaluate.
	DefaultQueryTimeout = 180

	serviceName = "overpass"
)

// Client is an osm.Source backed by the Overpass API. It is safe for
// concurrent use.
type Client struct {
	baseURL      string
	userAgent    string
	httpClient   *http.Client
	limiter      *rate.Limiter
	retry        core.RetryOptions
	queryTimeout int
	logger       *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLimiter sets the rate limiter every request attempt waits on. A nil
// limiter disables rate limiting.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRetryOptions sets the retry policy
func WithRetryOptions(opts core.RetryOptions) Option {
	return func(c *Client) { c.retry = opts }
}

// WithQueryTimeout sets the server-side query timeout in seconds
func WithQueryTimeout(seconds int) Option {
	return func(c *Client) { c.queryTimeout = seconds }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient returns a client for the interpreter at baseURL. The default
// limiter allows one request per second.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	c := &Client{
		baseURL:      baseURL,
		userAgent:    DefaultUserAgent,
		httpClient:   core.DefaultClient,
		limiter:      rate.NewLimiter(rate.Limit(1), 1),
		retry:        core.DefaultRetryOptions,
		queryTimeout: DefaultQueryTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.Logger == nil {
		c.retry.Logger = c.logger
	}
	return c
}

// Fetch returns the element-graph document for one element. The caller
// closes the returned body.
func (c *Client) Fetch(ctx context.Context, kind osm.Kind, id int64) (io.ReadCloser, error) {
	ctx, span := tracing.StartSpan(ctx, "overpass.fetch",
		trace.WithAttributes(tracing.ElementAttributes(kind.String(), id)...),
	)
	defer span.End()

	query := ElementQuery(kind, id, c.queryTimeout)
	c.logger.Debug("querying overpass", "kind", kind.String(), "id", id, "query", query)

	start := time.Now()
	data, err := c.query(ctx, kind, id, query)
	monitoring.RecordOverpassRequest(kind.String(), time.Since(start), err == nil)
	tracing.Finish(span, err, "overpass request failed")
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// query runs one interpreter request and returns the whole document.
func (c *Client) query(ctx context.Context, kind osm.Kind, id int64, query string) ([]byte, error) {
	resp, err := core.WithRetryFactory(ctx, c.requestFactory(ctx, query), c.httpClient, c.retry)
	if err != nil {
		monitoring.RecordError(serviceName, "request")
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		monitoring.RecordError(serviceName, "read")
		return nil, core.NewError(core.ErrNetworkError, fmt.Sprintf("reading overpass response: %v", err))
	}

	// A 200 carrying a runtime-error remark is a failed query, not an empty
	// result. Returning an error keeps the cache layers from storing it.
	if remark := runtimeError(data); remark != "" {
		monitoring.RecordError(serviceName, "runtime_error")
		c.logger.Warn("overpass reported a runtime error", "kind", kind.String(), "id", id, "remark", remark)
		code := core.ErrServiceUnavailable
		if strings.Contains(remark, "timed out") {
			code = core.ErrServiceTimeout
		}
		return nil, core.NewError(code, fmt.Sprintf("overpass %s %d: %s", kind, id, remark)).
			WithGuidance("The Overpass server could not evaluate the query. Try again later or raise the query timeout")
	}
	return data, nil
}

var (
	remarkOpen  = []byte("<remark>")
	remarkClose = []byte("</remark>")
)

// runtimeError returns the text of a remark reporting an Overpass runtime
// error, or "" when the document has none.
func runtimeError(data []byte) string {
	i := bytes.Index(data, remarkOpen)
	if i < 0 {
		return ""
	}
	rest := data[i+len(remarkOpen):]
	if j := bytes.Index(rest, remarkClose); j >= 0 {
		rest = rest[:j]
	}
	text := strings.TrimSpace(string(rest))
	if !strings.Contains(text, "runtime error") {
		return ""
	}
	return text
}

// Invalidate is a no-op; the client keeps nothing to drop.
func (c *Client) Invalidate(context.Context, osm.Kind, int64) error {
	return nil
}

// CheckHealth asks the endpoint for its status. Only 5xx responses and
// transport errors count as unhealthy.
func (c *Client) CheckHealth(ctx context.Context) error {
	statusURL := strings.TrimSuffix(c.baseURL, "/interpreter") + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create overpass health check request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("overpass health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("overpass health check returned status %d", resp.StatusCode)
	}
	return nil
}

// requestFactory builds a POST for query. Each attempt waits on the limiter
// first so retries are throttled too.
func (c *Client) requestFactory(ctx context.Context, query string) core.RequestFactory {
	return func() (*http.Request, error) {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		form := url.Values{"data": {query}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", c.userAgent)
		return req, nil
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if c.limiter.Allow() {
		return nil
	}

	start := time.Now()
	tracing.AddEvent(ctx, "rate_limit_wait")
	err := c.limiter.Wait(ctx)
	waited := time.Since(start)

	monitoring.RecordRateLimitWait(serviceName, waited)
	tracing.SetAttributes(ctx, attribute.Int64(tracing.AttrRateLimitWaitMs, waited.Milliseconds()))
	return err
}
