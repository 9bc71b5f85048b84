package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/voltline/evdash/internal/config"
	"github.com/voltline/evdash/internal/constants"
	"github.com/voltline/evdash/internal/http"
	"github.com/voltline/evdash/internal/logging"
	"github.com/voltline/evdash/internal/ratelimit"
	"github.com/voltline/evdash/internal/version"
)

const headerRequestID = "X-Request-ID"

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings, not all info
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// apiMetrics tracks API usage statistics
type apiMetrics struct {
	sync.Mutex
	totalCalls    int64
	callsByPath   map[string]int64
	windowStart   time.Time
	callsInWindow int64
}

// Client is the dashboard REST client. It is safe for concurrent use by
// several list controllers.
type Client struct {
	httpClient *nethttp.Client
	baseURL    string
	apiKey     string
	limiter    *ratelimit.Limiter
	logger     *logging.Logger
	metrics    *apiMetrics
}

// NewClient creates a new API client. A nil logger discards output.
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.API.BaseURL) == "" {
		return nil, fmt.Errorf("API base URL is empty: set base_url in the [api] section or use --api-url")
	}
	if _, err := url.Parse(cfg.API.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.Component("api")

	timeout := cfg.API.Timeout()
	if timeout <= 0 {
		timeout = constants.DefaultAPITimeout
	}

	// Configure HTTP client with proxy support
	httpClient, err := http.ConfigureHTTPClient(cfg.Proxy, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.API.BaseURL, "/"),
		apiKey:  cfg.API.APIKey,
		limiter: ratelimit.ForAPI(cfg.API.RequestsPerSecond, cfg.API.Burst, logger),
		logger:  logger,
		metrics: &apiMetrics{
			callsByPath: make(map[string]int64),
			windowStart: time.Now(),
		},
	}

	// Wrap with retry logic
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = cfg.API.RetryMax
	retryClient.RetryWaitMin = constants.RetryWaitMin
	retryClient.RetryWaitMax = constants.RetryWaitMax
	retryClient.Logger = &retryLogger{logger: logger}
	retryClient.CheckRetry = c.checkRetry
	retryClient.Backoff = backoff
	retryClient.ErrorHandler = finalResponse

	c.httpClient = retryClient.StandardClient()
	return c, nil
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// checkRetry retries network failures, 408, 429 and 5xx. A cancelled or
// expired context is never retried. A 429 also pauses the shared limiter for
// the Retry-After period so other lists back off too.
func (c *Client) checkRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	errType := http.ClassifyResponse(resp, err)
	if resp != nil && resp.StatusCode == nethttp.StatusTooManyRequests {
		if wait := http.RetryAfter(resp); wait > 0 {
			c.limiter.SetCooldown(wait)
		}
		c.logger.Warn().
			Str("path", resp.Request.URL.Path).
			Str("retry_after", resp.Header.Get("Retry-After")).
			Msg("throttled by API")
	}

	switch errType {
	case http.ErrorTypeNetwork, http.ErrorTypeRetryable:
		c.logger.Debug().Stringer("class", errType).Msg("retrying request")
		return true, nil
	default:
		return false, nil
	}
}

// finalResponse hands the last response to the caller once retries are
// exhausted, so its status can be classified. Cancellation and transport
// errors are returned as errors.
func finalResponse(resp *nethttp.Response, err error, _ int) (*nethttp.Response, error) {
	if resp == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return resp, nil
}

// backoff honors Retry-After on 429/503 and otherwise uses full-jitter exponential backoff.
func backoff(minWait, maxWait time.Duration, attemptNum int, resp *nethttp.Response) time.Duration {
	if http.RetryAfter(resp) > 0 {
		return retryablehttp.DefaultBackoff(minWait, maxWait, attemptNum, resp)
	}
	return max(http.CalculateBackoff(attemptNum+1, minWait, maxWait), minWait)
}

// getJSON performs an authenticated, rate-limited GET and decodes a 2xx body into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	// Wait for rate limiter to allow request
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	c.track(path)

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.New().String()
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Token "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set(headerRequestID, requestID)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn().Err(err).Str("path", path).Str("request_id", requestID).Msg("API call failed")
		}
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Str("request_id", requestID).
		Msg("API call")

	if err := checkStatus(resp, nethttp.MethodGet, path); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// track counts calls and logs a usage line every 30 seconds.
func (c *Client) track(path string) {
	c.metrics.Lock()
	defer c.metrics.Unlock()

	c.metrics.totalCalls++
	c.metrics.callsByPath[path]++
	c.metrics.callsInWindow++

	if elapsed := time.Since(c.metrics.windowStart); elapsed >= 30*time.Second {
		c.logger.Debug().
			Float64("req_per_sec", float64(c.metrics.callsInWindow)/elapsed.Seconds()).
			Int64("total_calls", c.metrics.totalCalls).
			Msg("API usage")
		c.metrics.callsInWindow = 0
		c.metrics.windowStart = time.Now()
	}
}

// CallCount returns how many requests were issued for path.
func (c *Client) CallCount(path string) int64 {
	c.metrics.Lock()
	defer c.metrics.Unlock()
	return c.metrics.callsByPath[path]
}
