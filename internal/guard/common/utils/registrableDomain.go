package utils

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// CanonicalHost returns a host name in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - No trailing dot
func CanonicalHost(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}

// HostOf extracts the host from a URL. Inputs without a scheme are treated as
// bare host[/path] strings. Returns "" when nothing host-like is present.
func HostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return CanonicalHost(u.Hostname())
}

// RegistrableDomain reduces a URL or host to its eTLD+1 ("docs.google.com" -> "google.com").
// Falls back to the canonical host when the public suffix list cannot decide
// (IP literals, single-label hosts).
func RegistrableDomain(raw string) string {
	host := HostOf(raw)
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	apex, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return apex
}
