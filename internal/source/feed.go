package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pauljones0/deal-radar/internal/config"
	"github.com/pauljones0/deal-radar/internal/models"
)

const defaultConcurrency = 5

// FeedSource fetches every feed of every configured topic concurrently.
type FeedSource struct {
	topics      []config.Topic
	loader      PageLoader
	renderer    PageLoader
	concurrency int
}

// NewFeedSource builds a source over topics. renderer may be nil, in which case feeds marked
// render are loaded with the plain loader.
func NewFeedSource(topics *config.Topics, loader, renderer PageLoader) *FeedSource {
	f := &FeedSource{loader: loader, renderer: renderer, concurrency: defaultConcurrency}
	if topics != nil {
		f.topics = topics.Topics
		if topics.Concurrency > 0 {
			f.concurrency = topics.Concurrency
		}
	}
	return f
}

func (f *FeedSource) Name() string { return "feeds" }

// Fetch loads all feeds. A failing feed is logged and skipped; Fetch only fails when every
// feed failed.
func (f *FeedSource) Fetch(ctx context.Context) ([]models.Record, error) {
	var (
		mu      sync.Mutex
		records []models.Record
		failed  int
		total   int
		lastErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, topic := range f.topics {
		for _, feed := range topic.Feeds {
			total++
			g.Go(func() error {
				recs, err := f.fetchFeed(gctx, feed)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed++
					lastErr = err
					slog.Warn("Failed to fetch feed", "topic", topic.Name, "url", feed.URL, "error", err)
					return nil
				}
				records = append(records, withTopic(recs, topic.Name)...)
				return nil
			})
		}
	}
	// Goroutines never return errors; a cancelled parent context surfaces below.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return records, err
	}
	if total > 0 && failed == total {
		return nil, fmt.Errorf("all %d feeds failed: %w", total, lastErr)
	}
	return records, nil
}

func (f *FeedSource) fetchFeed(ctx context.Context, feed config.Feed) ([]models.Record, error) {
	loader := f.loader
	if feed.Render && f.renderer != nil {
		loader = f.renderer
	}
	if loader == nil {
		return nil, errors.New("no page loader configured")
	}
	page, err := loader.Load(ctx, feed.URL)
	if err != nil {
		return nil, err
	}
	if page.URL == "" {
		page.URL = feed.URL
	}
	return ParsePage(page, feed.Kind, feed.Selectors)
}
