package util

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// GetDomain returns the registrable domain (eTLD+1) of rawURL, e.g. "sub.example.co.uk" -> "example.co.uk".
// It falls back to the bare host when the public suffix list has no answer.
func GetDomain(rawURL string) string {
	host := rawURL
	if strings.Contains(rawURL, "/") {
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return ""
		}
		host = parsed.Hostname()
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// DomainAllowed reports whether rawURL's registrable domain is in allowed.
// An empty allowlist permits everything.
func DomainAllowed(rawURL string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	domain := GetDomain(rawURL)
	for _, a := range allowed {
		if domain == GetDomain(a) {
			return true
		}
	}
	return false
}
