package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// CallerIdentity is the admission-control key for one caller: the
// authenticated subject when upstream auth resolved one, otherwise the
// client IP.
type CallerIdentity struct {
	// Subject is the authenticated user id, empty for anonymous callers.
	Subject string

	// ClientIP is the resolved client address.
	ClientIP string
}

// Authenticated reports whether the caller has a resolved subject.
func (id CallerIdentity) Authenticated() bool {
	return id.Subject != ""
}

// Key returns the scope-prefixed bucket key, so a user id and an IP that
// happen to share text never collide.
func (id CallerIdentity) Key() string {
	if id.Authenticated() {
		return "user:" + id.Subject
	}
	return "ip:" + id.ClientIP
}

type identityKey struct{}

// ContextWithSubject records the authenticated subject resolved by the
// upstream auth layer.
func ContextWithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, identityKey{}, subject)
}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(identityKey{}).(string)
	return subject
}

// IdentityResolver resolves the caller identity for a request. The client
// IP comes from the forwarded chain's first hop, then the real-IP header,
// then the socket address. When trusted proxies are configured, forwarding
// headers are only honored on connections from one of them.
type IdentityResolver struct {
	trustedCIDRs []*net.IPNet
}

// NewIdentityResolver creates a resolver. Entries may be CIDRs or single
// addresses; invalid entries are skipped.
func NewIdentityResolver(trustedProxies []string) *IdentityResolver {
	cidrs := make([]*net.IPNet, 0, len(trustedProxies))
	for _, proxy := range trustedProxies {
		_, cidr, err := net.ParseCIDR(proxy)
		if err != nil {
			ip := net.ParseIP(proxy)
			if ip == nil {
				continue
			}
			cidr = singleIPToCIDR(ip)
		}
		cidrs = append(cidrs, cidr)
	}
	return &IdentityResolver{trustedCIDRs: cidrs}
}

// singleIPToCIDR converts a single IP address to a /32 or /128 CIDR.
func singleIPToCIDR(ip net.IP) *net.IPNet {
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	return &net.IPNet{
		IP:   ip,
		Mask: net.CIDRMask(bits, bits),
	}
}

// Resolve returns the caller identity for the request.
func (res *IdentityResolver) Resolve(r *http.Request) CallerIdentity {
	return CallerIdentity{
		Subject:  SubjectFromContext(r.Context()),
		ClientIP: res.clientIP(r),
	}
}

// clientIP resolves the client address in priority order.
func (res *IdentityResolver) clientIP(r *http.Request) string {
	remoteIP := stripPort(r.RemoteAddr)

	if len(res.trustedCIDRs) > 0 && !res.isTrusted(remoteIP) {
		return remoteIP
	}

	if xff := r.Header.Get(HeaderXForwardedFor); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get(HeaderXRealIP)); realIP != "" {
		if net.ParseIP(realIP) != nil {
			return realIP
		}
	}

	return remoteIP
}

// isTrusted checks if the given IP string is within any trusted CIDR.
func (res *IdentityResolver) isTrusted(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, cidr := range res.trustedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// stripPort removes the port from an address string. Handles both IPv4
// ("192.168.1.1:8080") and IPv6 ("[::1]:8080") formats.
func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
