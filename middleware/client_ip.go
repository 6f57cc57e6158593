package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies is the set of peers whose forwarding headers are believed.
// The zero value trusts nobody, so the caller is always the socket peer.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// ParseTrustedProxies accepts CIDRs and bare addresses.
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	var t TrustedProxies
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return TrustedProxies{}, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			t.prefixes = append(t.prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return TrustedProxies{}, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		t.prefixes = append(t.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return t, nil
}

func (t TrustedProxies) trusts(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range t.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the socket peer unless the peer is a trusted proxy. For a
// trusted peer, X-Forwarded-For is walked from the right and the first
// untrusted hop wins; X-Real-IP and CF-Connecting-IP are read next.
func (t TrustedProxies) ClientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	addr, err := netip.ParseAddr(peer)
	if err != nil || !t.trusts(addr) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			if i == 0 || !t.trusts(hop) {
				return hop.Unmap().String()
			}
		}
	}
	for _, h := range []string{"X-Real-IP", "CF-Connecting-IP"} {
		if ip, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get(h))); err == nil {
			return ip.Unmap().String()
		}
	}
	return peer
}

// CallerID is the rate-limit and audit identity of an unauthenticated
// request: "ip:<addr>", or "unknown" when no address is available.
func (t TrustedProxies) CallerID(r *http.Request) string {
	return callerFromIP(t.ClientIP(r))
}

// ClientIP returns the connection's remote host. Forwarding headers are
// ignored; use TrustedProxies.ClientIP behind a proxy.
func ClientIP(r *http.Request) string {
	return TrustedProxies{}.ClientIP(r)
}

// CallerID is TrustedProxies.CallerID with no trusted proxies.
func CallerID(r *http.Request) string {
	return TrustedProxies{}.CallerID(r)
}

func callerFromIP(ip string) string {
	if ip == "" {
		return "unknown"
	}
	return "ip:" + ip
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return strings.TrimSpace(remoteAddr)
	}
	return host
}
