// Package httpclient provides the HTTP transport primitive with retry, rate
// limiting, timeout and proxy support. It implements ports.HTTPDoer; the core
// never touches net/http directly.
package httpclient

import (
	"bytes"
	"context"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"time"

	xproxy "golang.org/x/net/proxy"

	"fleetops/internal/core/ports"
	"fleetops/internal/platform/errors"
	"fleetops/internal/platform/logx"
	"fleetops/internal/platform/rate"
)

// Config holds the configuration for the HTTP client.
type Config struct {
	// Timeout is the per-request timeout.
	// Default: 30 seconds. Firmware uploads use a much longer one.
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts for transient
	// transport failures. Auth verdicts (401/403) are never retried.
	// Default: 0 (no retries; the operation layer decides retry policy).
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries.
	// Default: 1 second.
	RetryBackoff time.Duration

	// MaxRetryBackoff is the maximum backoff duration between retries.
	// Default: 30 seconds.
	MaxRetryBackoff time.Duration

	// UserAgent is the User-Agent header value.
	UserAgent string

	// RateLimit is the maximum requests per second against the fleet.
	// 0 means no rate limiting.
	RateLimit float64

	// RateLimitBurst is the burst size for rate limiting.
	RateLimitBurst int

	// ProxyURL routes requests through a proxy (http://, https:// or
	// socks5://). Empty means direct connection.
	ProxyURL string

	// MaxBodyBytes caps how much of a response body is read into memory.
	// Default: 4 MiB. Device endpoints occasionally stream unbounded logs.
	MaxBodyBytes int64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		MaxRetries:      0,
		RetryBackoff:    1 * time.Second,
		MaxRetryBackoff: 30 * time.Second,
		UserAgent:       "fleetops/1.0",
		MaxBodyBytes:    4 << 20,
	}
}

// Client is the HTTP transport primitive. It satisfies ports.HTTPDoer.
type Client struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      logx.Logger
	config      Config
}

// New creates a new HTTP client with the given configuration.
func New(config Config, logger logx.Logger) (*Client, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = 1 * time.Second
	}
	if config.MaxRetryBackoff == 0 {
		config.MaxRetryBackoff = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "fleetops/1.0"
	}
	if config.MaxBodyBytes == 0 {
		config.MaxBodyBytes = 4 << 20
	}
	if config.RateLimitBurst == 0 {
		config.RateLimitBurst = 1
	}

	transport, err := buildTransport(config.ProxyURL)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.New(config.RateLimit, config.RateLimitBurst)
	}

	if logger == nil {
		logger = logx.New()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		rateLimiter: limiter,
		logger:      logger.With("component", "httpclient"),
		config:      config,
	}, nil
}

// buildTransport constructs the http.Transport, routing through a proxy when
// configured. socks5:// proxies go through the x/net dialer; http(s) proxies
// through the standard proxy function.
func buildTransport(proxyURL string) (*http.Transport, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        32,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if proxyURL == "" {
		return transport, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "invalid proxy url %q: %v", proxyURL, err)
	}

	switch u.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	case "socks5":
		dialer, err := xproxy.FromURL(u, xproxy.Direct)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "socks5 proxy: %v", err)
		}
		contextDialer, ok := dialer.(xproxy.ContextDialer)
		if !ok {
			return nil, errors.Wrap(errors.ErrInvalidInput, "socks5 dialer does not support context")
		}
		transport.DialContext = contextDialer.DialContext
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unsupported proxy scheme %q", u.Scheme)
	}

	return transport, nil
}

// Do sends one request and returns the response with its body fully read.
// Transport failures are mapped to the platform sentinels so the domain
// taxonomy can classify them without importing net.
func (c *Client) Do(ctx context.Context, req ports.Request) (*ports.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if c.rateLimiter != nil {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return nil, errors.Wrap(errors.ErrTimeout, "rate limit wait interrupted")
			}
		}

		resp, err := c.doOnce(ctx, req)
		if err != nil {
			lastErr = err
			if attempt < c.config.MaxRetries {
				c.logger.Warn("request failed, retrying",
					"method", req.Method,
					"url", req.URL,
					"attempt", attempt+1,
					"error", err.Error(),
				)
				if berr := c.backoff(ctx, attempt); berr != nil {
					return nil, lastErr
				}
				continue
			}
			return nil, lastErr
		}

		if c.isRetryableStatus(resp.StatusCode) && attempt < c.config.MaxRetries {
			c.logger.Warn("retryable status, retrying",
				"method", req.Method,
				"url", req.URL,
				"status", resp.StatusCode,
				"attempt", attempt+1,
			)
			lastErr = errors.Wrapf(errors.ErrConnectionFailed, "HTTP %d", resp.StatusCode)
			if berr := c.backoff(ctx, attempt); berr != nil {
				return nil, lastErr
			}
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// doOnce performs a single request without retry logic.
func (c *Client) doOnce(ctx context.Context, req ports.Request) (*ports.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "build request %s %s: %v", req.Method, req.URL, err)
	}

	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	for key, value := range req.Header {
		httpReq.Header.Set(key, value)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)

	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, c.config.MaxBodyBytes))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	c.logger.Debug("HTTP response",
		"method", req.Method,
		"url", req.URL,
		"status", httpResp.StatusCode,
		"duration_ms", duration.Milliseconds(),
	)

	headers := make(map[string]string, len(httpResp.Header))
	for k := range httpResp.Header {
		headers[k] = httpResp.Header.Get(k)
	}

	return &ports.Response{
		StatusCode: httpResp.StatusCode,
		Header:     headers,
		Body:       respBody,
	}, nil
}

// classifyTransportError maps a net/http error onto the platform sentinels.
func classifyTransportError(err error) error {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return errors.Wrap(errors.ErrTimeout, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Wrap(errors.ErrTimeout, err.Error())
	case errors.Is(err, context.Canceled):
		return errors.Wrap(errors.ErrTimeout, "request canceled")
	default:
		return errors.Wrap(errors.ErrConnectionFailed, err.Error())
	}
}

// isRetryableStatus reports whether a status code should trigger a retry.
// 401 is deliberately absent: an auth challenge is a verdict, not a fault.
func (c *Client) isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// backoff sleeps with exponential backoff before the next retry.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	d := time.Duration(float64(c.config.RetryBackoff) * math.Pow(2, float64(attempt)))
	if d > c.config.MaxRetryBackoff {
		d = c.config.MaxRetryBackoff
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
