package util

import (
	"net/url"
	"strings"
)

// trackingParams are dropped from query strings regardless of case.
// Any parameter starting with utm_ is dropped as well.
var trackingParams = map[string]bool{
	"ref":     true,
	"ref_src": true,
	"fbclid":  true,
	"gclid":   true,
	"igshid":  true,
	"mc_cid":  true,
	"mc_eid":  true,
	"spm":     true,
	"source":  true,
	"mkt_tok": true,
}

const trackingPrefix = "utm_"

func isTrackingParam(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, trackingPrefix) || trackingParams[lower]
}

// validScheme reports whether s has the RFC 3986 scheme shape.
func validScheme(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return s != ""
}

// NormalizeURL canonicalizes rawURL so that scheme, default ports, host case, leading "www.",
// trailing slashes, tracking parameters, parameter order and fragments do not
// affect identity. It never fails: empty or host-less input yields "", and input
// that cannot be parsed is returned trimmed. NormalizeURL(NormalizeURL(x)) == NormalizeURL(x).
func NormalizeURL(rawURL string) string {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return ""
	}

	if i := strings.Index(u, "://"); i > 0 && validScheme(u[:i]) {
		u = u[i+len("://"):]
	} else {
		u = strings.TrimPrefix(u, "//")
	}
	u = "https://" + u

	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}

	host := strings.ToLower(parsed.Host)
	if h, port, ok := strings.Cut(host, ":"); ok && !strings.HasPrefix(host, "[") && (port == "443" || port == "80") {
		host = h
	}
	for strings.HasPrefix(host, "www.") {
		host = strings.TrimPrefix(host, "www.")
	}
	if host == "" {
		return ""
	}
	parsed.Scheme = "https"
	parsed.Host = host

	path := parsed.Path
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	if path == "" {
		path = "/"
	}
	parsed.Path = path
	// Clear RawPath so String() re-encodes from the trimmed Path
	parsed.RawPath = ""

	// ParseQuery keeps every well-formed pair even when it reports an error for another.
	query, _ := url.ParseQuery(parsed.RawQuery)
	kept := url.Values{}
	for key, values := range query {
		if key == "" || isTrackingParam(key) {
			continue
		}
		for _, v := range values {
			if v != "" {
				kept.Set(key, v)
				break
			}
		}
	}
	// Encode sorts by key
	parsed.RawQuery = kept.Encode()
	parsed.ForceQuery = false

	parsed.Fragment = ""
	parsed.RawFragment = ""

	return parsed.String()
}

// Hostname returns the lower-cased host of an already normalized URL, without port.
func Hostname(normalizedURL string) string {
	parsed, err := url.Parse(normalizedURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
