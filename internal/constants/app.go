package constants

import (
	"time"
)

// List synchronization defaults
const (
	// DefaultPageSize - rows requested per page when the config does not say otherwise
	DefaultPageSize = 20

	// MaxPageSize - largest page the API accepts; larger requests are rejected
	MaxPageSize = 200

	// MaxSearchLength - longest accepted search string
	MaxSearchLength = 256

	// DefaultSearchDebounce - quiet period before typed search text is applied (300ms)
	DefaultSearchDebounce = 300 * time.Millisecond

	// MaxSearchDebounce - upper bound accepted from configuration
	MaxSearchDebounce = 5 * time.Second

	// DefaultScrollThrottle - minimum spacing between two load-more triggers (500ms)
	DefaultScrollThrottle = 500 * time.Millisecond

	// MaxScrollThrottle - upper bound accepted from configuration
	MaxScrollThrottle = 10 * time.Second

	// DefaultPrefetchMargin - rows below the viewport at which the next page is requested
	DefaultPrefetchMargin = 5.0

	// DefaultVisibilityThreshold - visible ratio of the sentinel needed to trigger (any overlap)
	DefaultVisibilityThreshold = 0.0
)

// Event bus
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	// Sized for several lists publishing transitions while a slow subscriber catches up.
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// API defaults
const (
	// DefaultAPIBaseURL - local fixture server address
	DefaultAPIBaseURL = "http://127.0.0.1:8089"

	// DefaultFixtureAddr - listen address for serve-fixtures
	DefaultFixtureAddr = "127.0.0.1:8089"

	// DefaultAPITimeout - per-request timeout applied by the HTTP client (30 seconds)
	DefaultAPITimeout = 30 * time.Second

	// DefaultRetryMax - transport-level retries for 5xx and 429 responses
	DefaultRetryMax = 4

	// RetryWaitMin - initial backoff between transport retries
	RetryWaitMin = 200 * time.Millisecond

	// RetryWaitMax - backoff cap between transport retries
	RetryWaitMax = 5 * time.Second

	// DefaultRequestsPerSecond - client-side request rate toward the API
	DefaultRequestsPerSecond = 10.0

	// DefaultRequestBurst - requests allowed back to back before throttling
	DefaultRequestBurst = 20
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (10 seconds)
	HTTPTLSHandshakeTimeout = 10 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (10 seconds)
	HTTPDialTimeout = 10 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second
)

// Log file rotation
const (
	// LogMaxSizeMB - size at which the log file is rotated
	LogMaxSizeMB = 10

	// LogMaxBackups - rotated files to keep
	LogMaxBackups = 5

	// LogMaxAgeDays - days to keep rotated files
	LogMaxAgeDays = 30
)
