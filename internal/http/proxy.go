package http

import (
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http/httpproxy"

	"github.com/voltline/evdash/internal/config"
	"github.com/voltline/evdash/internal/constants"
)

// ConfigureHTTPClient builds the base HTTP client for API calls with the
// proxy settings from cfg. timeout bounds a single attempt.
func ConfigureHTTPClient(cfg config.ProxyConfig, timeout time.Duration) (*nethttp.Client, error) {
	transport := &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8, // three lists plus headroom for retries
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
		ForceAttemptHTTP2:     true,
	}

	mode := strings.ToLower(cfg.Mode)
	switch mode {
	case config.ProxyModeNone, "":
		return finishClient(transport, timeout, false), nil

	case config.ProxyModeSystem:
		transport.Proxy = nethttp.ProxyFromEnvironment
		return finishClient(transport, timeout, systemProxySet()), nil

	case config.ProxyModeBasic, config.ProxyModeNTLM:
		if cfg.Host == "" {
			// A saved config can carry the mode without the host.
			log.Warn().Str("mode", mode).Msg("proxy host missing, connecting to the dashboard API directly")
			return finishClient(transport, timeout, false), nil
		}
		if mode == config.ProxyModeBasic && cfg.User != "" && cfg.Password == "" {
			log.Warn().Str("user", cfg.User).Msg("proxy password not set, sending requests without proxy credentials")
		}
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(cfg), cfg.NoProxy)
		client := finishClient(transport, timeout, true)
		if mode == config.ProxyModeNTLM {
			client.Transport = ntlmssp.Negotiator{RoundTripper: client.Transport}
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", cfg.Mode)
	}
}

const defaultProxyPort = 8080

// buildProxyURL embeds credentials only when both user and password are
// set; some proxies reject an empty password outright.
func buildProxyURL(cfg config.ProxyConfig) *url.URL {
	port := cfg.Port
	if port == 0 {
		port = defaultProxyPort
	}
	u := &url.URL{Scheme: "http", Host: net.JoinHostPort(cfg.Host, strconv.Itoa(port))}
	if cfg.User != "" && cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return u
}

// proxyFuncWithBypass routes every request through proxyURL except hosts
// matched by noProxy, a comma-separated list of domains, wildcards and CIDRs.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		via, err := proxyFunc(req.URL)
		ev := log.Debug().Str("host", req.URL.Host)
		if via != nil {
			ev = ev.Str("proxy", via.Host)
		}
		ev.Bool("direct", via == nil).Msg("route")
		return via, err
	}
}

func systemProxySet() bool {
	cfg := httpproxy.FromEnvironment()
	return cfg.HTTPProxy != "" || cfg.HTTPSProxy != ""
}
