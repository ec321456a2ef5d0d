package middleware

import (
	"net/http/httptest"
	"testing"
)

func TestParseTrustedProxies(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected int // Number of networks parsed
		wantErr  bool
	}{
		{name: "empty", input: nil, expected: 0},
		{name: "single CIDR", input: []string{"10.0.0.0/8"}, expected: 1},
		{name: "multiple CIDRs", input: []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}, expected: 3},
		{name: "single IPv4 address", input: []string{"10.0.0.1"}, expected: 1},
		{name: "single IPv6 address", input: []string{"::1"}, expected: 1},
		{name: "blank entries skipped", input: []string{" ", "10.0.0.1 "}, expected: 1},
		{name: "bad prefix length", input: []string{"10.0.0.0/33"}, wantErr: true},
		{name: "not an address", input: []string{"gateway"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTrustedProxies(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %v", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(got) != tt.expected {
				t.Errorf("Expected %d networks, got %d", tt.expected, len(got))
			}
		})
	}
}

func TestTrustedProxies_Contains(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", "::1"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		addr string
		want bool
	}{
		{"10.1.2.3:5555", true},
		{"10.1.2.3", true},
		{"[::1]:8080", true},
		{"::ffff:10.0.0.7", true},
		{"192.0.2.1:80", false},
		{"not-an-ip", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := proxies.Contains(tt.addr); got != tt.want {
			t.Errorf("Contains(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}

	var none TrustedProxies
	if none.Contains("10.1.2.3:5555") {
		t.Error("An empty list trusts nobody")
	}
}

func TestTrustedProxies_ClientIP(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "direct client",
			remoteAddr: "192.0.2.10:40000",
			want:       "192.0.2.10",
		},
		{
			name:       "untrusted peer cannot spoof",
			remoteAddr: "192.0.2.10:40000",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.7"},
			want:       "192.0.2.10",
		},
		{
			name:       "trusted proxy with X-Real-IP",
			remoteAddr: "10.0.0.5:3000",
			headers:    map[string]string{"X-Real-IP": "198.51.100.7", "X-Forwarded-For": "203.0.113.9"},
			want:       "198.51.100.7",
		},
		{
			name:       "trusted proxy with forwarding chain",
			remoteAddr: "10.0.0.5:3000",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.4"},
			want:       "203.0.113.9",
		},
		{
			name:       "trusted proxy with garbage header",
			remoteAddr: "10.0.0.5:3000",
			headers:    map[string]string{"X-Forwarded-For": "unknown"},
			want:       "10.0.0.5",
		},
		{
			name:       "unparseable remote address",
			remoteAddr: "pipe",
			want:       "pipe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/shaking", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := proxies.ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
