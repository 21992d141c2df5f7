package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/deal-radar/internal/util"
)

const (
	userAgent    = "deal-radar/1.0 (+https://github.com/pauljones0/deal-radar)"
	maxPageBytes = 8 << 20
)

// Page is a fetched document.
type Page struct {
	URL         string
	ContentType string
	Body        []byte
}

// PageLoader fetches a document by URL.
type PageLoader interface {
	Load(ctx context.Context, url string) (Page, error)
}

// HTTPLoader fetches pages over HTTP, restricted to an allowlist of registrable domains and
// throttled by a shared rate limiter. 429 and 5xx responses are retried with backoff.
type HTTPLoader struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	allowed    []string
	backoff    util.Backoff
}

// NewHTTPLoader creates a loader. ratePerSecond <= 0 disables throttling; an empty allowlist
// permits every domain.
func NewHTTPLoader(allowed []string, ratePerSecond float64) *HTTPLoader {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &HTTPLoader{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
		allowed: allowed,
		backoff: util.DefaultBackoff,
	}
}

// CheckURL rejects non-http(s) URLs and hosts outside the allowlist.
func CheckURL(rawURL string, allowed []string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL %s: %w", rawURL, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme %s: only http and https allowed", parsedURL.Scheme)
	}
	if !util.DomainAllowed(rawURL, allowed) {
		return fmt.Errorf("security violation: URL hostname %s is not in allowlist", parsedURL.Hostname())
	}
	return nil
}

func (l *HTTPLoader) Load(ctx context.Context, urlStr string) (Page, error) {
	if err := CheckURL(urlStr, l.allowed); err != nil {
		return Page{}, err
	}

	var page Page
	err := l.backoff.Do(ctx, func(attempt int) error {
		if attempt > 0 {
			slog.Warn("Retrying feed fetch", "url", urlStr, "attempt", attempt+1)
		}
		if err := l.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		p, err := l.fetch(ctx, urlStr)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	return page, err
}

func (l *HTTPLoader) fetch(ctx context.Context, urlStr string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return Page{}, util.Permanent(fmt.Errorf("failed to create request for URL %s: %w", urlStr, err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/json, text/html;q=0.9, */*;q=0.8")

	res, err := l.httpClient.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("failed to fetch URL %s: %w", urlStr, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		err := fmt.Errorf("failed to fetch URL %s: status code %d", urlStr, res.StatusCode)
		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
			return Page{}, err
		}
		return Page{}, util.Permanent(err)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxPageBytes))
	if err != nil {
		return Page{}, fmt.Errorf("failed to read body of %s: %w", urlStr, err)
	}
	return Page{URL: res.Request.URL.String(), ContentType: res.Header.Get("Content-Type"), Body: body}, nil
}
