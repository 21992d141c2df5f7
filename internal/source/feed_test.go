package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauljones0/deal-radar/internal/config"
	"github.com/pauljones0/deal-radar/internal/util"
)

func fastLoader() *HTTPLoader {
	l := NewHTTPLoader(nil, 0)
	l.backoff = util.Backoff{Retries: 2, Base: time.Millisecond, Max: 5 * time.Millisecond}
	return l
}

func TestCheckURL(t *testing.T) {
	allowed := []string{"example.com", "news.ycombinator.com"}
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://example.com/feed", false},
		{"https://blog.example.com/feed", false},
		{"https://ycombinator.com/x", false},
		{"ftp://example.com/feed", true},
		{"https://evil.com/feed", true},
		{"https://example.com.evil.com/feed", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := CheckURL(tt.url, allowed)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHTTPLoader_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssFeed))
	}))
	defer srv.Close()

	page, err := fastLoader().Load(context.Background(), srv.URL+"/rss")
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, "application/rss+xml", page.ContentType)
	assert.Equal(t, srv.URL+"/rss", page.URL)
}

func TestHTTPLoader_ClientErrorIsPermanent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := fastLoader().Load(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status code 404")
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPLoader_RejectsDisallowedHost(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	l := fastLoader()
	l.allowed = []string{"example.com"}
	_, err := l.Load(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allowlist")
	assert.Zero(t, hits.Load())
}

type stubLoader struct {
	pages map[string]Page
	calls atomic.Int32
}

func (s *stubLoader) Load(_ context.Context, url string) (Page, error) {
	s.calls.Add(1)
	p, ok := s.pages[url]
	if !ok {
		return Page{}, errors.New("not found")
	}
	return p, nil
}

func TestFeedSource_Fetch(t *testing.T) {
	loader := &stubLoader{pages: map[string]Page{
		"https://feeds.example.com/rss":  {Body: []byte(rssFeed)},
		"https://blog.example.com/atom": {Body: []byte(atomFeed)},
	}}
	topics := &config.Topics{
		Concurrency: 2,
		Topics: []config.Topic{
			{Name: "launches", Feeds: []config.Feed{{URL: "https://feeds.example.com/rss"}, {URL: "https://broken.example.com/"}}},
			{Name: "blogs", Feeds: []config.Feed{{URL: "https://blog.example.com/atom", Kind: config.FeedAtom}}},
		},
	}

	recs, err := NewFeedSource(topics, loader, nil).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 5)
	assert.Equal(t, int32(3), loader.calls.Load())

	byTopic := map[string]int{}
	for _, r := range recs {
		byTopic[r.Topic]++
	}
	assert.Equal(t, map[string]int{"launches": 3, "blogs": 2}, byTopic)
}

func TestFeedSource_AllFeedsFailed(t *testing.T) {
	topics := &config.Topics{Topics: []config.Topic{
		{Name: "a", Feeds: []config.Feed{{URL: "https://x.example.com"}, {URL: "https://y.example.com"}}},
	}}
	_, err := NewFeedSource(topics, &stubLoader{}, nil).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 feeds failed")
}

func TestFeedSource_UsesRendererForRenderFeeds(t *testing.T) {
	plain := &stubLoader{}
	rendered := &stubLoader{pages: map[string]Page{
		"https://spa.example.com/": {Body: []byte(`<html><body><article><h2><a href="/p/1">Rendered</a></h2></article></body></html>`)},
	}}
	topics := &config.Topics{Topics: []config.Topic{
		{Name: "spa", Feeds: []config.Feed{{URL: "https://spa.example.com/", Render: true, Kind: config.FeedHTML}}},
	}}

	recs, err := NewFeedSource(topics, plain, rendered).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "https://spa.example.com/p/1", recs[0].URL)
	assert.Zero(t, plain.calls.Load())
}

func TestFeedSource_NoTopics(t *testing.T) {
	recs, err := NewFeedSource(nil, &stubLoader{}, nil).Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}
