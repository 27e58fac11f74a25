package metadata

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"adpulse/pkg/requestcontext"
)

// Header names read by ClientMetadata.
const (
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-IP"
	HeaderSessionID    = "X-Session-ID"
	HeaderCFCountry    = "CF-IPCountry"
	HeaderCountryCode  = "X-Country-Code"
)

// ClientMetadata extracts client IP, User-Agent, Referer and edge hints from
// the request and adds them to the context for use by handlers and services.
// Forwarding headers are honoured only when the peer is in trusted.
func ClientMetadata(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r, trusted), r.Header.Get("User-Agent"))
			ctx = requestcontext.WithReferrer(ctx, r.Referer())
			ctx = requestcontext.WithSessionHint(ctx, strings.TrimSpace(r.Header.Get(HeaderSessionID)))
			ctx = requestcontext.WithCountryHint(ctx, countryHint(r))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func countryHint(r *http.Request) string {
	if c := r.Header.Get(HeaderCFCountry); c != "" {
		return strings.TrimSpace(c)
	}
	return strings.TrimSpace(r.Header.Get(HeaderCountryCode))
}

// ClientIPFromRequest returns the peer address unless the peer is a trusted
// proxy. Behind trusted proxies, X-Forwarded-For is walked right to left and
// the first untrusted hop is the client; X-Real-IP is the fallback.
func ClientIPFromRequest(r *http.Request, trusted []netip.Prefix) string {
	peer := remoteIP(r.RemoteAddr)
	if peer == "" {
		return "unknown"
	}
	if !isTrusted(peer, trusted) {
		return peer
	}

	if xff := r.Header.Get(HeaderForwardedFor); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !isTrusted(hop, trusted) {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get(HeaderRealIP)); xri != "" {
		return xri
	}
	return peer
}

// ParseTrustedProxies parses CIDR prefixes or bare addresses.
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return prefixes, nil
}

// remoteIP strips the port from RemoteAddr ("ip:port" or "[::1]:port").
func remoteIP(addr string) string {
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
