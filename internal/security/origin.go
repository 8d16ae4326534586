package security

import (
	"net"
	"net/url"
	"strings"

	"github.com/yndnr/rsvpguard/internal/core/domain"
)

// OriginVerdict is the result of CheckOrigin.
type OriginVerdict struct {
	OK       bool
	Severity domain.Severity
	// Problem is "insecure_transport", "disallowed_origin" or "malformed_origin".
	Problem string
}

// CheckOrigin verifies a caller-supplied Origin header against the policy.
// An empty origin is accepted.
func CheckOrigin(p Policy, origin string) OriginVerdict {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return OriginVerdict{OK: true}
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return OriginVerdict{Severity: domain.SeverityHigh, Problem: "malformed_origin"}
	}
	host := strings.ToLower(u.Hostname())

	if !strings.EqualFold(u.Scheme, "https") {
		if !(p.AllowInsecureLocalhost && isLocalhost(host)) {
			return OriginVerdict{Severity: domain.SeverityMedium, Problem: "insecure_transport"}
		}
	}
	if len(p.AllowedOrigins) == 0 || hostAllowed(host, p.AllowedOrigins) {
		return OriginVerdict{OK: true}
	}
	return OriginVerdict{Severity: domain.SeverityHigh, Problem: "disallowed_origin"}
}

func hostAllowed(host string, allowed []string) bool {
	for _, a := range allowed {
		// Entries may be written as full origins.
		if i := strings.Index(a, "://"); i >= 0 {
			a = a[i+3:]
		}
		a = strings.TrimSuffix(a, "/")
		if h, _, err := net.SplitHostPort(a); err == nil {
			a = h
		}
		if suffix, ok := strings.CutPrefix(a, "*."); ok {
			if strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if host == a {
			return true
		}
	}
	return false
}

func isLocalhost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
