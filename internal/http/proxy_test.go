package http

import (
	"encoding/base64"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	ntlmssp "github.com/Azure/go-ntlmssp"

	"github.com/voltline/evdash/internal/config"
)

func TestProxyFuncWithBypass(t *testing.T) {
	proxyURL := &url.URL{Scheme: "http", Host: "proxy.corp:8080"}

	tests := []struct {
		name    string
		noProxy string
		target  string
		direct  bool
	}{
		{"empty list proxies everything", "", "https://api.dashboard.example/api/v1/stations/", false},
		{"wildcard subdomain", "*.dashboard.example", "https://api.dashboard.example/api/v1/stations/", true},
		{"bare domain matches root", "dashboard.example", "https://dashboard.example/api/v1/wallets/", true},
		{"bare domain matches subdomain", "dashboard.example", "https://eu.dashboard.example/api/v1/wallets/", true},
		{"cidr", "10.0.0.0/8", "http://10.20.0.7:8089/api/v1/transactions/", true},
		{"list with spaces", "*.internal.corp, 192.168.0.0/16, dashboard.example", "http://192.168.4.2/api/v1/stations/", true},
		{"no match", "*.internal.corp,10.0.0.0/8", "https://api.chargepoint.example/v1/", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(nethttp.MethodGet, tt.target, nil)
			got, err := proxyFuncWithBypass(proxyURL, tt.noProxy)(req)
			if err != nil {
				t.Fatalf("proxy func error = %v", err)
			}
			if tt.direct {
				if got != nil {
					t.Errorf("%s routed via %v, want direct", tt.target, got)
				}
				return
			}
			if got == nil || got.Host != "proxy.corp:8080" {
				t.Errorf("%s routed via %v, want proxy.corp:8080", tt.target, got)
			}
		})
	}
}

// TestBasicProxyCarriesCredentials sends a list request through a forward
// proxy and checks what the proxy receives.
func TestBasicProxyCarriesCredentials(t *testing.T) {
	var gotURL, gotAuth string
	proxy := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		gotURL = r.URL.String()
		gotAuth = r.Header.Get("Proxy-Authorization")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"count":0,"has_more":false,"results":[]}`)
	}))
	defer proxy.Close()

	u, _ := url.Parse(proxy.URL)
	host, port, _ := strings.Cut(u.Host, ":")
	portNum, err := strconv.Atoi(port)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.ProxyConfig{Mode: config.ProxyModeBasic, Host: host, Port: portNum, User: "ops", Password: "s3cret"}

	client, err := ConfigureHTTPClient(cfg, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Get("http://api.dashboard.example/api/v1/stations/?page=0")
	if err != nil {
		t.Fatalf("GET through proxy: %v", err)
	}
	resp.Body.Close()

	if gotURL != "http://api.dashboard.example/api/v1/stations/?page=0" {
		t.Errorf("proxy saw %q, want the absolute target URL", gotURL)
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("ops:s3cret"))
	if gotAuth != want {
		t.Errorf("Proxy-Authorization = %q, want %q", gotAuth, want)
	}
}

func TestConfigureHTTPClient_Modes(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ProxyConfig
		wantErr bool
		ntlm    bool
		proxied bool
	}{
		{name: "no proxy", cfg: config.ProxyConfig{Mode: config.ProxyModeNone}},
		{name: "empty mode", cfg: config.ProxyConfig{}},
		{name: "mode is case insensitive", cfg: config.ProxyConfig{Mode: "NO-PROXY"}},
		{name: "basic", cfg: config.ProxyConfig{Mode: config.ProxyModeBasic, Host: "proxy.corp", User: "u", Password: "p"}, proxied: true},
		{name: "basic without host falls back", cfg: config.ProxyConfig{Mode: config.ProxyModeBasic}},
		{name: "ntlm", cfg: config.ProxyConfig{Mode: config.ProxyModeNTLM, Host: "proxy.corp"}, ntlm: true},
		{name: "unknown", cfg: config.ProxyConfig{Mode: "socks"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := ConfigureHTTPClient(tt.cfg, 5*time.Second)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ConfigureHTTPClient() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if client.Timeout != 5*time.Second {
				t.Errorf("Timeout = %v, want 5s", client.Timeout)
			}
			_, isNTLM := client.Transport.(ntlmssp.Negotiator)
			if isNTLM != tt.ntlm {
				t.Errorf("NTLM transport = %v, want %v", isNTLM, tt.ntlm)
			}
			if tr, ok := client.Transport.(*nethttp.Transport); ok {
				if (tr.Proxy != nil) != tt.proxied {
					t.Errorf("proxy configured = %v, want %v", tr.Proxy != nil, tt.proxied)
				}
			}
		})
	}
}

func TestBuildProxyURL(t *testing.T) {
	u := buildProxyURL(config.ProxyConfig{Host: "proxy.corp", User: "alice", Password: "s3cret"})
	if u.Host != "proxy.corp:8080" {
		t.Errorf("Host = %s, want default port 8080", u.Host)
	}
	if pw, ok := u.User.Password(); !ok || pw != "s3cret" {
		t.Error("credentials not embedded")
	}

	u = buildProxyURL(config.ProxyConfig{Host: "proxy.corp", Port: 3128, User: "alice"})
	if u.User != nil {
		t.Error("user without password must not be embedded")
	}
	if u.Host != "proxy.corp:3128" {
		t.Errorf("Host = %s, want proxy.corp:3128", u.Host)
	}
}
