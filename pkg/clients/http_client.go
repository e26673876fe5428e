// Package clients provides the shared HTTP client used by the retrievers.
package clients

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/ajitpratap0/protspace/pkg/errors"
	"github.com/ajitpratap0/protspace/pkg/metrics"
)

// UserAgent is sent with every request unless the caller overrides it.
const UserAgent = "protspace-annotate/1.0"

// maxErrorBody caps how much of an error response is kept in the error.
const maxErrorBody = 512

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	// Connection settings
	MaxIdleConns        int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host" json:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout" json:"idle_conn_timeout"`
	EnableHTTP2         bool          `yaml:"enable_http2" json:"enable_http2"`

	// Timeouts
	DialTimeout           time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout" json:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout" json:"response_header_timeout"`
	RequestTimeout        time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// Rate limiting, per client
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" json:"rate_burst"`

	// Retries
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`

	// Circuit breaker, per host
	CircuitBreakerEnabled bool          `yaml:"circuit_breaker_enabled" json:"circuit_breaker_enabled"`
	FailureThreshold      int           `yaml:"failure_threshold" json:"failure_threshold"`
	SuccessThreshold      int           `yaml:"success_threshold" json:"success_threshold"`
	CircuitTimeout        time.Duration `yaml:"circuit_timeout" json:"circuit_timeout"`

	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// DefaultHTTPConfig returns settings suited to the public EBI and UniProt
// REST services.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		EnableHTTP2:           true,
		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		RequestTimeout:        120 * time.Second,
		RateLimit:             5,
		RateBurst:             2,
		MaxAttempts:           3,
		InitialDelay:          time.Second,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      1,
		CircuitTimeout:        30 * time.Second,
		UserAgent:             UserAgent,
	}
}

// HTTPClient wraps net/http with rate limiting, retries, a per-host
// circuit breaker and transparent gzip decoding.
type HTTPClient struct {
	config     *HTTPConfig
	logger     *zap.Logger
	httpClient *http.Client
	transport  *http.Transport
	limiter    RateLimiter
	retry      *RetryPolicy

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewHTTPClient creates a client. A nil config uses DefaultHTTPConfig.
func NewHTTPClient(config *HTTPConfig, logger *zap.Logger) *HTTPClient {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &HTTPClient{
		config:   config,
		logger:   logger.With(zap.String("component", "http_client")),
		limiter:  NewRateLimiter(config.RateLimit, config.RateBurst),
		retry:    NewRetryPolicy(config.MaxAttempts, config.InitialDelay),
		breakers: make(map[string]*CircuitBreaker),
	}

	c.transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
		// Accept-Encoding is set by hand so gzip is decoded in readBody.
		DisableCompression: true,
		TLSClientConfig:    &tls.Config{MinVersion: tls.VersionTLS12},
	}

	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(c.transport); err != nil {
			c.logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	c.httpClient = &http.Client{
		Transport: c.transport,
		Timeout:   config.RequestTimeout,
	}
	return c
}

// Get fetches url and returns the decoded body of a 2xx response.
func (c *HTTPClient) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return c.Fetch(ctx, http.MethodGet, url, nil, headers)
}

// Post sends body to url and returns the decoded body of a 2xx response.
func (c *HTTPClient) Post(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, error) {
	return c.Fetch(ctx, http.MethodPost, url, body, headers)
}

// Fetch performs one logical request, retrying transient failures.
func (c *HTTPClient) Fetch(ctx context.Context, method, rawURL string, body []byte, headers map[string]string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid request url")
	}
	breaker := c.breaker(u.Host)

	var out []byte
	err = c.retry.ExecuteWithCondition(ctx, func() error {
		var attemptErr error
		out, attemptErr = c.do(ctx, breaker, method, u, body, headers)
		if attemptErr != nil {
			c.logger.Debug("request attempt failed",
				zap.String("method", method),
				zap.String("host", u.Host),
				zap.Error(attemptErr))
		}
		return attemptErr
	}, shouldRetry)
	return out, err
}

func shouldRetry(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	return errors.IsRetryable(err)
}

func (c *HTTPClient) do(ctx context.Context, breaker *CircuitBreaker, method string, u *url.URL, body []byte, headers map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "rate limiter wait cancelled")
	}
	if breaker != nil && !breaker.Allow() {
		return nil, errors.Wrap(ErrCircuitOpen, errors.ErrorTypeConnection, "request to "+u.Host+" rejected")
	}

	req, err := c.newRequest(ctx, method, u.String(), body, headers)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.HTTPLatency.WithLabelValues(u.Host, method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.HTTPRequests.WithLabelValues(u.Host, method, "error").Inc()
		if breaker != nil {
			breaker.RecordFailure()
		}
		if ctx.Err() != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "request cancelled")
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "request timed out")
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
	}
	defer resp.Body.Close()
	metrics.HTTPRequests.WithLabelValues(u.Host, method, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := readBody(resp)
	if err != nil {
		if breaker != nil {
			breaker.RecordFailure()
		}
		return nil, err
	}

	if statusErr := checkStatus(resp.StatusCode, data); statusErr != nil {
		if breaker != nil {
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				breaker.RecordFailure()
			} else {
				breaker.RecordSuccess()
			}
		}
		return nil, statusErr.WithDetail("url", u.String())
	}

	if breaker != nil {
		breaker.RecordSuccess()
	}
	return data, nil
}

func (c *HTTPClient) newRequest(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to build request")
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip")
	}
	if req.Header.Get("User-Agent") == "" {
		ua := c.config.UserAgent
		if ua == "" {
			ua = UserAgent
		}
		req.Header.Set("User-Agent", ua)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// readBody reads the whole response, decoding gzip when the server used it.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFormat, "invalid gzip response")
		}
		defer gz.Close()
		r = gz
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read response body")
	}
	return data, nil
}

// checkStatus maps a non-2xx status to a typed error.
func checkStatus(code int, body []byte) *errors.Error {
	if code >= 200 && code < 300 {
		return nil
	}
	snippet := string(body)
	if len(snippet) > maxErrorBody {
		snippet = snippet[:maxErrorBody]
	}

	var e *errors.Error
	switch {
	case code == http.StatusTooManyRequests:
		e = errors.New(errors.ErrorTypeRateLimit, "rate limited by server")
	case code == http.StatusNotFound:
		e = errors.New(errors.ErrorTypeNotFound, "resource not found")
	default:
		e = errors.New(errors.ErrorTypeUpstream, fmt.Sprintf("unexpected status %d", code))
	}
	return e.WithDetail("status", code).WithDetail("body", snippet)
}

func (c *HTTPClient) breaker(host string) *CircuitBreaker {
	if !c.config.CircuitBreakerEnabled {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[host]
	if !ok {
		cb = NewCircuitBreaker(host, c.config, c.logger)
		c.breakers[host] = cb
	}
	return cb
}

// BreakerState returns the circuit state for host; closed when untracked.
func (c *HTTPClient) BreakerState(host string) CircuitState {
	c.mu.Lock()
	cb, ok := c.breakers[host]
	c.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return cb.State()
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
