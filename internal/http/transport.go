package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"
	"time"

	"golang.org/x/net/http2"
)

// finishClient applies the HTTP/2 policy to transport and wraps it in a client.
//
// HTTP/2 is disabled when a proxy is active (proxies often mishandle stream
// multiplexing) unless FORCE_HTTP2=true, and always when DISABLE_HTTP2=true.
func finishClient(tr *nethttp.Transport, timeout time.Duration, proxyActive bool) *nethttp.Client {
	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" || (proxyActive && os.Getenv("FORCE_HTTP2") != "true") {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	return &nethttp.Client{
		Transport: tr,
		Timeout:   timeout,
	}
}
