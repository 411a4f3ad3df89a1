package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pauljones0/promo-reply-bot/internal/ai"
	"github.com/pauljones0/promo-reply-bot/internal/config"
	"github.com/pauljones0/promo-reply-bot/internal/notifier"
	"github.com/pauljones0/promo-reply-bot/internal/processor"
	"github.com/pauljones0/promo-reply-bot/internal/scraper"
	"github.com/pauljones0/promo-reply-bot/internal/storage"
	"github.com/pauljones0/promo-reply-bot/internal/xapi"
)

// app holds the clients shared by the stages of one process.
type app struct {
	cfg      *config.Config
	store    processor.QueueStore
	closers  []func() error
	notifier *notifier.Client
	x        *xapi.Client
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		notifier: notifier.New(cfg.DiscordWebhookURL),
		x:        newXClient(cfg),
	}

	switch cfg.StorageBackend {
	case config.BackendFirestore:
		fs, err := storage.NewFirestoreStore(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize firestore: %w", err)
		}
		a.store = fs
		a.closers = append(a.closers, fs.Close)
	default:
		js, err := storage.NewJSONStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		a.store = js
	}
	slog.Info("Queue store ready", "backend", cfg.StorageBackend)
	return a, nil
}

func newXClient(cfg *config.Config) *xapi.Client {
	return xapi.New(xapi.Options{
		BaseURL:         cfg.XAPIBaseURL,
		BearerToken:     cfg.XBearerToken,
		UserAccessToken: cfg.XUserAccessToken,
		PostsPerSecond:  cfg.XPostsPerSecond,
		MaxResults:      cfg.SearchMaxResults,
		Timeout:         cfg.RequestTimeout,
	})
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("Error closing client", "error", err)
		}
	}
}

func (a *app) stage(ctx context.Context, name string) (processor.Stage, error) {
	switch name {
	case processor.StageSearch:
		return a.searcher()
	case processor.StagePrepare:
		return a.preparer(ctx)
	case processor.StageSend:
		return a.dispatcher()
	default:
		return nil, fmt.Errorf("unknown stage %q", name)
	}
}

func (a *app) searcher() (*processor.Searcher, error) {
	if err := a.cfg.RequireSearch(); err != nil {
		return nil, err
	}
	keywords, err := config.LoadKeywords(a.cfg.KeywordsFile)
	if err != nil {
		return nil, err
	}
	return processor.NewSearcher(a.store, a.x, a.notifier, keywords, a.cfg), nil
}

func (a *app) preparer(ctx context.Context) (*processor.Preparer, error) {
	if err := a.cfg.RequirePrepare(); err != nil {
		return nil, err
	}
	gen, err := ai.NewGenerator(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	return processor.NewPreparer(a.store, gen, a.promotionSource(), a.notifier, a.cfg), nil
}

func (a *app) dispatcher() (*processor.Dispatcher, error) {
	if err := a.cfg.RequireSend(); err != nil {
		return nil, err
	}
	return processor.NewDispatcher(a.store, a.x, a.notifier, a.cfg), nil
}

// promotionSource prefers the landing page when one is configured and falls
// back to the local markdown file.
func (a *app) promotionSource() scraper.Source {
	file := scraper.NewFileSource(a.cfg.PromotionFile)
	if a.cfg.PromotionURL == "" {
		return file
	}
	client := scraper.New(a.cfg.PromotionDomains(), scraper.LoadConfig(a.cfg.SelectorsFile))
	return scraper.FirstAvailable(scraper.NewURLSource(client, a.cfg.PromotionURL), file)
}
