// Package config provides configuration management for evdash.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/voltline/evdash/internal/constants"
)

// Config is the evdash configuration.
//
// Config file location:
//   - Windows: %APPDATA%\evdash\evdash.conf
//   - Unix: ~/.config/evdash/evdash.conf
//
// INI format:
//
//	[api]
//	base_url = https://dashboard.example.com
//	api_key = ...
//	timeout_seconds = 30
//	retry_max = 4
//	requests_per_second = 10
//	burst = 20
//
//	[proxy]
//	mode = no-proxy
//	host =
//	port = 8080
//	user =
//	no_proxy = localhost,127.0.0.1
//
//	[sync]
//	page_size = 20
//	search_debounce_ms = 300
//	scroll_throttle_ms = 500
//	prefetch_margin = 5
//	threshold = 0
//
//	[logging]
//	level = info
//	file =
type Config struct {
	API     APIConfig
	Proxy   ProxyConfig
	Sync    SyncConfig
	Logging LoggingConfig
}

// APIConfig configures the REST client.
type APIConfig struct {
	BaseURL string
	APIKey  string

	// TimeoutSeconds bounds one HTTP attempt. Default: 30
	TimeoutSeconds int

	// RetryMax is the number of transport retries for 5xx and 429. Default: 4
	RetryMax int

	// RequestsPerSecond and Burst configure the client-side token bucket.
	RequestsPerSecond float64
	Burst             int
}

// ProxyConfig configures an outbound HTTP proxy.
type ProxyConfig struct {
	// Mode is one of no-proxy, system, basic, ntlm.
	Mode string
	Host string
	Port int
	User string

	// Password is never written to disk.
	Password string

	// NoProxy is a comma-separated bypass list (hosts, domains, CIDRs).
	NoProxy string
}

// SyncConfig configures list synchronization.
type SyncConfig struct {
	PageSize         int
	SearchDebounceMs int
	ScrollThrottleMs int

	// PrefetchMargin is how many rows before the end of the list the next page is requested.
	PrefetchMargin float64

	// Threshold is the visible ratio of the sentinel that counts as reached (0..1).
	Threshold float64
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string
	// File enables a rotating JSON log file in addition to the console.
	File string
}

// Validation errors
var (
	ErrMissingBaseURL     = errors.New("api base_url is required")
	ErrInvalidTimeout     = errors.New("timeout_seconds must be between 1 and 600")
	ErrInvalidRetryMax    = errors.New("retry_max must be between 0 and 10")
	ErrInvalidRequestRate = errors.New("requests_per_second must be greater than 0")
	ErrInvalidBurst       = errors.New("burst must be at least 1")
	ErrInvalidProxyMode   = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost   = errors.New("proxy host is required for basic and ntlm modes")
	ErrInvalidPageSize    = fmt.Errorf("page_size must be between 1 and %d", constants.MaxPageSize)
	ErrInvalidDebounce    = fmt.Errorf("search_debounce_ms must be between 0 and %d", constants.MaxSearchDebounce.Milliseconds())
	ErrInvalidThrottle    = fmt.Errorf("scroll_throttle_ms must be between 0 and %d", constants.MaxScrollThrottle.Milliseconds())
	ErrInvalidPrefetch    = errors.New("prefetch_margin must not be negative")
	ErrInvalidThreshold   = errors.New("threshold must be between 0 and 1")
	ErrInvalidLogLevel    = errors.New("logging level must be one of debug, info, warn, error")
)

// Proxy modes
const (
	ProxyModeNone   = "no-proxy"
	ProxyModeSystem = "system"
	ProxyModeBasic  = "basic"
	ProxyModeNTLM   = "ntlm"
)

// Environment overrides
const (
	EnvAPIKey  = "EVDASH_API_KEY"
	EnvAPIURL  = "EVDASH_API_URL"
	EnvProxyPW = "EVDASH_PROXY_PASSWORD"
)

// DefaultConfigPath returns the default path for evdash.conf.
func DefaultConfigPath() (string, error) {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", errors.New("neither APPDATA nor USERPROFILE environment variable set")
			}
			appData = filepath.Join(userProfile, "AppData", "Roaming")
		}
		return filepath.Join(appData, "evdash", "evdash.conf"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "evdash", "evdash.conf"), nil
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           constants.DefaultAPIBaseURL,
			TimeoutSeconds:    int(constants.DefaultAPITimeout / time.Second),
			RetryMax:          constants.DefaultRetryMax,
			RequestsPerSecond: constants.DefaultRequestsPerSecond,
			Burst:             constants.DefaultRequestBurst,
		},
		Proxy: ProxyConfig{
			Mode: ProxyModeNone,
			Port: 8080,
		},
		Sync: SyncConfig{
			PageSize:         constants.DefaultPageSize,
			SearchDebounceMs: int(constants.DefaultSearchDebounce.Milliseconds()),
			ScrollThrottleMs: int(constants.DefaultScrollThrottle.Milliseconds()),
			PrefetchMargin:   constants.DefaultPrefetchMargin,
			Threshold:        constants.DefaultVisibilityThreshold,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from path, then applies environment overrides.
// If path is empty, uses the default path.
// If the file doesn't exist, returns the defaults and no error.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			cfg.ApplyEnv()
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.ApplyEnv()
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	api := iniFile.Section("api")
	cfg.API.BaseURL = api.Key("base_url").MustString(cfg.API.BaseURL)
	cfg.API.APIKey = api.Key("api_key").String()
	cfg.API.TimeoutSeconds = api.Key("timeout_seconds").MustInt(cfg.API.TimeoutSeconds)
	cfg.API.RetryMax = api.Key("retry_max").MustInt(cfg.API.RetryMax)
	cfg.API.RequestsPerSecond = api.Key("requests_per_second").MustFloat64(cfg.API.RequestsPerSecond)
	cfg.API.Burst = api.Key("burst").MustInt(cfg.API.Burst)

	proxy := iniFile.Section("proxy")
	cfg.Proxy.Mode = proxy.Key("mode").MustString(cfg.Proxy.Mode)
	cfg.Proxy.Host = proxy.Key("host").String()
	cfg.Proxy.Port = proxy.Key("port").MustInt(cfg.Proxy.Port)
	cfg.Proxy.User = proxy.Key("user").String()
	cfg.Proxy.NoProxy = proxy.Key("no_proxy").String()

	sync := iniFile.Section("sync")
	cfg.Sync.PageSize = sync.Key("page_size").MustInt(cfg.Sync.PageSize)
	cfg.Sync.SearchDebounceMs = sync.Key("search_debounce_ms").MustInt(cfg.Sync.SearchDebounceMs)
	cfg.Sync.ScrollThrottleMs = sync.Key("scroll_throttle_ms").MustInt(cfg.Sync.ScrollThrottleMs)
	cfg.Sync.PrefetchMargin = sync.Key("prefetch_margin").MustFloat64(cfg.Sync.PrefetchMargin)
	cfg.Sync.Threshold = sync.Key("threshold").MustFloat64(cfg.Sync.Threshold)

	logging := iniFile.Section("logging")
	cfg.Logging.Level = logging.Key("level").MustString(cfg.Logging.Level)
	cfg.Logging.File = logging.Key("file").String()

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides file values with EVDASH_* environment variables.
func (cfg *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.API.APIKey = v
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv(EnvProxyPW); v != "" {
		cfg.Proxy.Password = v
	}
}

// Save writes cfg to path. If path is empty, uses the default path.
// Creates parent directories if they don't exist. The proxy password is not saved.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	api, err := iniFile.NewSection("api")
	if err != nil {
		return fmt.Errorf("failed to create api section: %w", err)
	}
	api.Key("base_url").SetValue(cfg.API.BaseURL)
	api.Key("api_key").SetValue(cfg.API.APIKey)
	api.Key("timeout_seconds").SetValue(fmt.Sprintf("%d", cfg.API.TimeoutSeconds))
	api.Key("retry_max").SetValue(fmt.Sprintf("%d", cfg.API.RetryMax))
	api.Key("requests_per_second").SetValue(fmt.Sprintf("%g", cfg.API.RequestsPerSecond))
	api.Key("burst").SetValue(fmt.Sprintf("%d", cfg.API.Burst))

	proxy, err := iniFile.NewSection("proxy")
	if err != nil {
		return fmt.Errorf("failed to create proxy section: %w", err)
	}
	proxy.Key("mode").SetValue(cfg.Proxy.Mode)
	proxy.Key("host").SetValue(cfg.Proxy.Host)
	proxy.Key("port").SetValue(fmt.Sprintf("%d", cfg.Proxy.Port))
	proxy.Key("user").SetValue(cfg.Proxy.User)
	proxy.Key("no_proxy").SetValue(cfg.Proxy.NoProxy)

	sync, err := iniFile.NewSection("sync")
	if err != nil {
		return fmt.Errorf("failed to create sync section: %w", err)
	}
	sync.Key("page_size").SetValue(fmt.Sprintf("%d", cfg.Sync.PageSize))
	sync.Key("search_debounce_ms").SetValue(fmt.Sprintf("%d", cfg.Sync.SearchDebounceMs))
	sync.Key("scroll_throttle_ms").SetValue(fmt.Sprintf("%d", cfg.Sync.ScrollThrottleMs))
	sync.Key("prefetch_margin").SetValue(fmt.Sprintf("%g", cfg.Sync.PrefetchMargin))
	sync.Key("threshold").SetValue(fmt.Sprintf("%g", cfg.Sync.Threshold))

	logging, err := iniFile.NewSection("logging")
	if err != nil {
		return fmt.Errorf("failed to create logging section: %w", err)
	}
	logging.Key("level").SetValue(cfg.Logging.Level)
	logging.Key("file").SetValue(cfg.Logging.File)

	// Temporary file + rename, readable by the owner only (the file holds the API key)
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks the configuration. Returns nil if valid, or the first problem found.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.API.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	if cfg.API.TimeoutSeconds < 1 || cfg.API.TimeoutSeconds > 600 {
		return ErrInvalidTimeout
	}
	if cfg.API.RetryMax < 0 || cfg.API.RetryMax > 10 {
		return ErrInvalidRetryMax
	}
	if cfg.API.RequestsPerSecond <= 0 {
		return ErrInvalidRequestRate
	}
	if cfg.API.Burst < 1 {
		return ErrInvalidBurst
	}

	switch strings.ToLower(cfg.Proxy.Mode) {
	case ProxyModeNone, "", ProxyModeSystem:
	case ProxyModeBasic, ProxyModeNTLM:
		if cfg.Proxy.Host == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrInvalidProxyMode
	}

	if cfg.Sync.PageSize < 1 || cfg.Sync.PageSize > constants.MaxPageSize {
		return ErrInvalidPageSize
	}
	if cfg.Sync.SearchDebounceMs < 0 || time.Duration(cfg.Sync.SearchDebounceMs)*time.Millisecond > constants.MaxSearchDebounce {
		return ErrInvalidDebounce
	}
	if cfg.Sync.ScrollThrottleMs < 0 || time.Duration(cfg.Sync.ScrollThrottleMs)*time.Millisecond > constants.MaxScrollThrottle {
		return ErrInvalidThrottle
	}
	if cfg.Sync.PrefetchMargin < 0 {
		return ErrInvalidPrefetch
	}
	if cfg.Sync.Threshold < 0 || cfg.Sync.Threshold > 1 {
		return ErrInvalidThreshold
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}

// Timeout returns the per-attempt HTTP timeout.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SearchDebounce returns the search quiet period.
func (c SyncConfig) SearchDebounce() time.Duration {
	return time.Duration(c.SearchDebounceMs) * time.Millisecond
}

// ScrollThrottle returns the minimum spacing between load-more triggers.
func (c SyncConfig) ScrollThrottle() time.Duration {
	return time.Duration(c.ScrollThrottleMs) * time.Millisecond
}

// NeedsProxyPassword returns true if the proxy configuration requires a password
// but one has not been provided. Used by the CLI to decide whether to prompt.
func (c ProxyConfig) NeedsProxyPassword() bool {
	mode := strings.ToLower(c.Mode)
	if mode != ProxyModeBasic && mode != ProxyModeNTLM {
		return false
	}
	return c.User != "" && c.Password == ""
}
