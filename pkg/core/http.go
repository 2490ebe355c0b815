package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/osmbounds/pkg/tracing"
)

// RetryOptions configures retry behavior for HTTP requests
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Logger       *slog.Logger
}

// DefaultRetryOptions retries Overpass requests a few times with
// exponential backoff
var DefaultRetryOptions = RetryOptions{
	MaxAttempts:  3,
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
	Multiplier:   2.0,
}

// DefaultClient is the HTTP client used when none is configured. Overpass
// responses for country-sized relations are slow, so the timeout is long.
var DefaultClient = &http.Client{
	Timeout: 5 * time.Minute,
	Transport: &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// RequestFactory creates a fresh request for each attempt, so requests
// with bodies can be retried.
type RequestFactory func() (*http.Request, error)

// retryable reports whether a response status is worth another attempt.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// retryAfter returns the delay a 429 or 503 response asks for in its
// Retry-After header, or 0. Only the delta-seconds form is understood.
func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// nextDelay grows delay by the multiplier, honoring a server-requested
// wait, capped at MaxDelay.
func (o RetryOptions) nextDelay(delay, requested time.Duration) time.Duration {
	delay = time.Duration(float64(delay) * o.Multiplier)
	if requested > delay {
		delay = requested
	}
	if o.MaxDelay > 0 && delay > o.MaxDelay {
		delay = o.MaxDelay
	}
	return delay
}

// WithRetryFactory performs HTTP requests created by a factory with retry
// logic. Only network errors, 429 and 5xx responses are retried. The caller
// owns the body of a successful response.
func WithRetryFactory(ctx context.Context, factory RequestFactory, client *http.Client, options RetryOptions) (*http.Response, error) {
	ctx, span := tracing.StartSpan(ctx, "http.request",
		trace.WithAttributes(
			attribute.Int("http.retry.max_attempts", options.MaxAttempts),
		),
	)
	defer span.End()

	if client == nil {
		client = DefaultClient
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	delay := options.InitialDelay
	wait := time.Duration(0)

	for attempt := 0; attempt < options.MaxAttempts; attempt++ {
		if attempt > 0 {
			tracing.AddEvent(ctx, "retry_attempt",
				trace.WithAttributes(
					attribute.Int("attempt", attempt+1),
					attribute.Int64("delay_ms", wait.Milliseconds()),
					attribute.String("error", fmt.Sprintf("%v", lastErr)),
				),
			)
			logger.Info("retrying request",
				"attempt", attempt+1,
				"max_attempts", options.MaxAttempts,
				"delay", wait,
				"last_error", lastErr)

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				tracing.Finish(span, ctx.Err(), "request cancelled")
				return nil, ctx.Err()
			}
		}

		req, err := factory()
		if err != nil {
			tracing.Finish(span, err, "request creation failed")
			return nil, fmt.Errorf("creating request: %w", err)
		}

		resp, err := client.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			span.SetAttributes(
				attribute.String(tracing.AttrHTTPMethod, req.Method),
				attribute.String("http.host", req.URL.Host),
				attribute.Int(tracing.AttrHTTPStatusCode, resp.StatusCode),
				attribute.Int("http.retry.attempts", attempt+1),
			)
			tracing.Finish(span, nil, "")
			logger.Debug("request successful",
				"status", resp.StatusCode,
				"content_length", resp.ContentLength,
				"url", req.URL.String())
			return resp, nil
		}

		if attempt == 0 {
			wait = delay
		} else {
			delay = options.nextDelay(delay, 0)
			wait = delay
		}

		if err != nil {
			lastErr = err
			logger.Error("request failed",
				"error", err,
				"attempt", attempt+1,
				"url", req.URL.String())
			continue
		}

		lastErr = ServiceError(req.URL.Host, resp.StatusCode, fmt.Sprintf("HTTP status %d", resp.StatusCode))
		logger.Error("request returned error status",
			"status", resp.StatusCode,
			"attempt", attempt+1,
			"url", req.URL.String())
		if requested := retryAfter(resp); requested > wait {
			wait = options.nextDelay(0, requested)
		}
		if err := resp.Body.Close(); err != nil {
			logger.Warn("failed to close response body", "error", err)
		}
		if !retryable(resp.StatusCode) {
			break
		}
	}

	tracing.Finish(span, lastErr, "request failed")

	if te, ok := lastErr.(*ToolError); ok {
		return nil, te
	}
	return nil, NewError(ErrNetworkError, fmt.Sprintf("request failed: %v", lastErr)).
		WithGuidance("The request failed after multiple attempts. Please try again later")
}
