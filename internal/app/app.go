// Package app wires configuration into the store, engine and batch processor shared by the
// HTTP server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"google.golang.org/api/option"

	"github.com/pauljones0/deal-radar/internal/config"
	"github.com/pauljones0/deal-radar/internal/health"
	"github.com/pauljones0/deal-radar/internal/lifecycle"
	"github.com/pauljones0/deal-radar/internal/lock"
	"github.com/pauljones0/deal-radar/internal/notifier"
	"github.com/pauljones0/deal-radar/internal/processor"
	"github.com/pauljones0/deal-radar/internal/source"
	"github.com/pauljones0/deal-radar/internal/storage"
)

const (
	postgresMaxConns = 8
	renderSettle     = 2 * time.Second
)

// App holds the wired components. Close releases the store and the lock client.
type App struct {
	Config    *config.Config
	Store     storage.Store
	Engine    *processor.Engine
	Checker   *health.Checker
	Processor *processor.DealProcessor

	closers []io.Closer
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// OpenStore connects to the configured backend.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		slog.Warn("Using in-memory store, deals will not survive restarts")
		return storage.NewMemory(), nil
	case config.BackendPostgres:
		return storage.NewPostgres(ctx, cfg.DatabaseURL, postgresMaxConns)
	case config.BackendFirestore:
		var opts []option.ClientOption
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		return storage.NewFirestore(ctx, cfg.ProjectID, cfg.FirestoreCollection, opts...)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// NewEngine builds the upsert engine over store from cfg.
func NewEngine(store processor.DealStore, cfg *config.Config) *processor.Engine {
	policy := lifecycle.Policy{
		ReactivationWindow:         cfg.ReactivationWindow,
		ReactivateWithoutTimestamp: cfg.ReactivateLegacyDismissed,
	}
	return processor.NewEngine(store, processor.EngineOptions{
		EvidenceURLsMax: cfg.EvidenceURLsMax,
		Policy:          &policy,
		StoreTimeout:    cfg.StoreTimeout,
		Atomic:          cfg.AtomicUpsert,
	})
}

// New wires everything. Topic feeds are optional: a missing topics file only disables the
// feed source.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreBackend, err)
	}
	a := &App{Config: cfg, Store: store, closers: []io.Closer{store}}

	locker, err := newLocker(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if c, ok := locker.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	sources, err := feedSources(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Engine = NewEngine(store, cfg)
	a.Checker = health.New(store, a.Engine.EvidenceMax())
	a.Processor = processor.New(a.Engine, sources, store, a.Checker, notifier.New(cfg.DiscordWebhookURL), locker, cfg)
	return a, nil
}

func newLocker(ctx context.Context, cfg *config.Config) (processor.Locker, error) {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, batches run without a distributed lock")
		return lock.Noop{}, nil
	}
	l, err := lock.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect run lock: %w", err)
	}
	return l, nil
}

func feedSources(cfg *config.Config) ([]processor.RecordSource, error) {
	if cfg.TopicsConfigPath == "" {
		return nil, nil
	}
	topics, err := config.LoadTopics(cfg.TopicsConfigPath)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("Topics config not found, feed source disabled", "path", cfg.TopicsConfigPath)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	loader := source.NewHTTPLoader(cfg.AllowedDomains, topics.RatePerSecond)
	var renderer source.PageLoader
	if topics.NeedsRender() {
		renderer = source.NewChromeRenderer(cfg.AllowedDomains, renderSettle)
	}
	slog.Info("Loaded topics", "topics", len(topics.Topics), "feeds", topics.FeedCount())
	return []processor.RecordSource{source.NewFeedSource(topics, loader, renderer)}, nil
}

// Close releases every resource New opened.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			slog.Warn("Failed to close resource", "error", err)
		}
	}
	a.closers = nil
}
