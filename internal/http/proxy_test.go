package http

import (
	nethttp "net/http"
	"net/url"
	"testing"

	ntlmssp "github.com/Azure/go-ntlmssp"

	"github.com/rescale/rescale-upload/internal/config"
)

func TestProxyFuncWithBypass(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")

	tests := []struct {
		name       string
		noProxy    string
		url        string
		wantBypass bool
	}{
		{"empty list always proxies", "", "https://api.example.com/data", false},
		{"wildcard subdomain", "*.example.com", "https://api.example.com/data", true},
		{"bare domain matches subdomain", "example.com", "https://api.example.com/data", true},
		{"cidr match", "10.0.0.0/8", "http://10.1.2.3:8080/api", true},
		{"non-matching host", "*.internal.corp,10.0.0.0/8", "https://api.rescale.com/v3/", false},
		{"list with spaces", "*.example.com, 192.168.0.0/16, internal.corp", "https://internal.corp/status", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proxyFunc := proxyFuncWithBypass(proxyURL, tt.noProxy)
			req, _ := nethttp.NewRequest("GET", tt.url, nil)
			result, err := proxyFunc(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantBypass && result != nil {
				t.Errorf("expected bypass for %s, got %v", tt.url, result)
			}
			if !tt.wantBypass {
				if result == nil {
					t.Fatalf("expected proxy for %s, got direct", tt.url)
				}
				if result.Host != "proxy.corp:8080" {
					t.Errorf("expected proxy host proxy.corp:8080, got %s", result.Host)
				}
			}
		})
	}
}

func TestBuildProxyURL(t *testing.T) {
	u := buildProxyURL(config.ProxyConfig{Host: "proxy.corp", User: "alice"})
	if u.Host != "proxy.corp:8080" {
		t.Errorf("expected default port 8080, got %s", u.Host)
	}
	if u.User != nil {
		t.Error("credentials must not be embedded without a password")
	}

	u = buildProxyURL(config.ProxyConfig{Host: "proxy.corp", Port: 3128, User: "alice", Password: "pw"})
	if u.Host != "proxy.corp:3128" {
		t.Errorf("expected port 3128, got %s", u.Host)
	}
	if pw, _ := u.User.Password(); pw != "pw" {
		t.Errorf("expected embedded password, got %q", pw)
	}
}

func TestConfigureHTTPClient_Modes(t *testing.T) {
	client, err := ConfigureHTTPClient(config.ProxyConfig{Mode: "no-proxy"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr, ok := client.Transport.(*nethttp.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", client.Transport)
	}
	if tr.Proxy != nil {
		t.Error("expected no proxy func in no-proxy mode")
	}
	if client.Timeout != 0 {
		t.Errorf("expected no client timeout, got %v", client.Timeout)
	}

	client, err = ConfigureHTTPClient(config.ProxyConfig{Mode: "ntlm", Host: "proxy.corp"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.Transport.(ntlmssp.Negotiator); !ok {
		t.Errorf("expected ntlm negotiator transport, got %T", client.Transport)
	}

	if _, err := ConfigureHTTPClient(config.ProxyConfig{Mode: "socks"}, nil); err == nil {
		t.Error("expected error for unsupported proxy mode")
	}
}

func TestNeedsProxyPassword(t *testing.T) {
	tests := []struct {
		cfg  config.ProxyConfig
		want bool
	}{
		{config.ProxyConfig{Mode: "system", User: "alice"}, false},
		{config.ProxyConfig{Mode: "basic", User: "alice"}, true},
		{config.ProxyConfig{Mode: "NTLM", User: "alice"}, true},
		{config.ProxyConfig{Mode: "basic", User: "alice", Password: "pw"}, false},
		{config.ProxyConfig{Mode: "basic"}, false},
	}

	for _, tt := range tests {
		if got := NeedsProxyPassword(tt.cfg); got != tt.want {
			t.Errorf("NeedsProxyPassword(%+v) = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}

func TestProxyActive(t *testing.T) {
	env := map[string]string{}
	getenv := func(k string) string { return env[k] }

	if proxyActive(config.ProxyConfig{Mode: "system"}, getenv) {
		t.Error("system mode without env vars should not be active")
	}
	env["HTTPS_PROXY"] = "http://proxy:8080"
	if !proxyActive(config.ProxyConfig{Mode: "system"}, getenv) {
		t.Error("system mode with HTTPS_PROXY should be active")
	}
	if proxyActive(config.ProxyConfig{Mode: "no-proxy"}, getenv) {
		t.Error("no-proxy mode should never be active")
	}
	if !proxyActive(config.ProxyConfig{Mode: "basic", Host: "p"}, getenv) {
		t.Error("basic mode should be active")
	}
}
