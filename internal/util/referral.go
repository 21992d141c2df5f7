package util

import (
	"net/url"
	"strings"
)

// redirectParams maps known link-wrapping hosts to the query parameter carrying the destination.
var redirectParams = map[string]string{
	"click.linksynergy.com": "murl",
	"go.redirectingat.com":  "url",
	"www.google.com":        "q",
	"google.com":            "q",
	"news.google.com":       "url",
	"l.facebook.com":        "u",
	"out.reddit.com":        "url",
}

// UnwrapRedirect returns the destination of an affiliate or click-tracking wrapper link.
// The boolean reports whether rawURL was a recognized wrapper with a usable destination.
func UnwrapRedirect(rawURL string) (string, bool) {
	parsedURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL, false
	}

	param, ok := redirectParams[strings.ToLower(parsedURL.Host)]
	if !ok {
		return rawURL, false
	}
	// google.com/url?q=... is the only google.com path that wraps a link
	if strings.HasSuffix(parsedURL.Host, "google.com") && parsedURL.Host != "news.google.com" && parsedURL.Path != "/url" {
		return rawURL, false
	}

	dest := parsedURL.Query().Get(param)
	if dest == "" {
		return rawURL, false
	}
	lower := strings.ToLower(dest)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return rawURL, false
	}
	return dest, true
}
