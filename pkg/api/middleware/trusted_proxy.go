package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies lists the networks whose forwarding headers are believed.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies parses CIDR ranges or single addresses.
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	var out TrustedProxies
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			addr, err := netip.ParseAddr(e)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

// Contains reports whether remoteAddr, with or without a port, is trusted.
func (t TrustedProxies) Contains(remoteAddr string) bool {
	if len(t) == 0 {
		return false
	}
	addr, ok := parseHost(remoteAddr)
	if !ok {
		return false
	}
	for _, p := range t {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the caller's address. X-Real-IP and the leftmost
// X-Forwarded-For entry are only honoured when the direct peer is trusted.
func (t TrustedProxies) ClientIP(r *http.Request) string {
	if t.Contains(r.RemoteAddr) {
		if addr, ok := parseHost(r.Header.Get("X-Real-IP")); ok {
			return addr.String()
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if addr, ok := parseHost(first); ok {
				return addr.String()
			}
		}
	}

	if addr, ok := parseHost(r.RemoteAddr); ok {
		return addr.String()
	}
	return r.RemoteAddr
}

func parseHost(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, false
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
