// Package client provides the HTTP transport of the feed client: request
// construction, error classification and bounded retry for transient failures.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postfeed_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postfeed_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postfeed_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postfeed_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postfeed_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postfeed_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// Doer sends a single HTTP request. *Client and session.Renewer implement it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the transport used by every API call.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the feed API, e.g. "http://localhost:5000/api"
	BaseURL string

	// User-Agent header sent with every request
	UserAgent string

	// Timeout bounds each attempt
	Timeout time.Duration

	// Retry applies to network, 5xx and 429 failures only
	Retry RetryConfig

	// HTTPClient overrides the default client (for testing).
	// A cookie jar is required for the refresh-token cookie.
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "postfeed-client/0.1.0",
		Timeout:   15 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", base.Scheme)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		config:     cfg,
		logger:     log.With().Str("component", "api-client").Logger(),
	}, nil
}

// SetLogger replaces the client logger.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// NewRequest builds a request against the base URL. A non-nil body is
// encoded as JSON and can be replayed on retry.
func (c *Client) NewRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(path, "/")
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Do performs an HTTP request, retrying transient failures with backoff.
//
// Responses with a status below 500 (other than 429) are returned to the
// caller untouched, including 401 which the session layer resolves. Once
// retries are exhausted the last failure is returned as an *APIError wrapped
// in ErrRetryExhausted.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	// Without GetBody a consumed body cannot be replayed.
	retry := c.config.Retry
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		retry.MaxAttempts = 1
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing API request")

	var resp *http.Response
	attempt := 0

	err := retryWithBackoff(ctx, retry, c.logger, func() (ErrorKind, error) {
		attempt++
		attemptReq := req
		if attempt > 1 {
			var err error
			if attemptReq, err = CloneRequest(req); err != nil {
				return "", err
			}
		}

		var reqErr error
		resp, reqErr = c.httpClient.Do(attemptReq)
		if reqErr != nil {
			c.logger.Warn().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(ErrorKindNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			resp = nil
			return ErrorKindNetwork, &APIError{
				Kind:    ErrorKindNetwork,
				Message: "network error",
				Err:     reqErr,
			}
		}

		status := strconv.Itoa(resp.StatusCode)
		kind := KindForStatus(resp.StatusCode)
		if kind == "" {
			requestsTotal.WithLabelValues(endpoint, status).Inc()
			return "", nil
		}

		errorsTotal.WithLabelValues(string(kind)).Inc()
		requestsTotal.WithLabelValues(endpoint, status).Inc()

		if !shouldRetry(kind) {
			// Let the caller handle 4xx
			return "", nil
		}

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(kind)).
			Msg("API request error")

		apiErr := errorFromResponse(resp)
		resp = nil
		return kind, apiErr
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// CloneRequest copies req with a fresh body so it can be sent again.
func CloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
		clone.Body = body
	}
	return clone, nil
}

// DecodeResponse decodes a JSON response into out, or returns the response
// as an *APIError when its status is 4xx/5xx. The body is always closed.
func DecodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		return errorFromResponse(resp)
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Kind:       ErrorKindServer,
			Message:    "invalid response format",
			Err:        err,
		}
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
