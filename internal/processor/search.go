package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/pauljones0/promo-reply-bot/internal/config"
	"github.com/pauljones0/promo-reply-bot/internal/models"
	"github.com/pauljones0/promo-reply-bot/internal/observability"
	"github.com/pauljones0/promo-reply-bot/internal/validator"
)

// Searcher fetches posts for one keyword per run and appends them to the
// stored search results. Keywords are used round-robin across runs.
type Searcher struct {
	store    QueueStore
	source   PostSource
	notifier RunNotifier
	keywords config.KeywordList
	config   *config.Config
	validate *validator.Validator
	now      func() time.Time
}

func NewSearcher(store QueueStore, source PostSource, n RunNotifier, keywords config.KeywordList, cfg *config.Config) *Searcher {
	return &Searcher{
		store:    store,
		source:   source,
		notifier: n,
		keywords: keywords,
		config:   cfg,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (s *Searcher) Name() string { return StageSearch }

func (s *Searcher) Run(ctx context.Context) (models.RunSummary, error) {
	summary, logger := newRun(StageSearch)
	if len(s.keywords.Keywords) == 0 {
		fail(StageSearch)
		return summary, models.ErrNoKeywords
	}

	index, err := s.currentIndex(ctx)
	if err != nil {
		fail(StageSearch)
		return summary, err
	}
	keyword := s.keywords.Keywords[index]
	summary.Keyword = keyword

	now := s.now().UTC()
	// The search API rejects end times too close to the present.
	end := now.Add(-s.config.SearchEndOffset)
	start := end.Add(-s.config.SearchWindow)
	logger.Info("Searching posts", "keyword", keyword, "start", start, "end", end)

	posts, err := s.source.SearchRecent(ctx, keyword, start, end)
	if err != nil {
		// A failed feed means no new data this run; rotation still advances.
		logger.Warn("Search failed, treating as no new data", "keyword", keyword, "error", err)
		posts = nil
	}

	valid := make([]models.CandidatePost, 0, len(posts))
	for _, p := range posts {
		p.Keyword = keyword
		p.FetchedAt = now
		if err := s.validate.ValidateStruct(p); err != nil {
			logger.Debug("Dropping invalid post", "post_id", p.PostID, "fields", validator.FailedFields(err))
			summary.Skipped++
			continue
		}
		valid = append(valid, p)
	}
	observability.PostsFetched.WithLabelValues(keyword).Add(float64(len(valid)))

	if len(valid) > 0 {
		total, err := s.store.AppendSearchResults(ctx, valid)
		if err != nil {
			fail(StageSearch)
			return summary, fmt.Errorf("failed to save search results: %w", err)
		}
		logger.Info("Stored search results", "new", len(valid), "total", total)

		if s.config.MaxStoredResults > 0 && total > s.config.MaxStoredResults {
			if err := s.store.TrimSearchResults(ctx, s.config.MaxStoredResults); err != nil {
				logger.Warn("Failed to trim search results", "error", err)
			}
		}
	} else {
		logger.Info("No posts found", "keyword", keyword)
	}

	next := (index + 1) % len(s.keywords.Keywords)
	if err := s.store.SaveKeywordState(ctx, models.KeywordState{CurrentIndex: next, LastUsed: now}); err != nil {
		fail(StageSearch)
		return summary, fmt.Errorf("failed to save keyword state: %w", err)
	}
	logger.Info("Next keyword", "keyword", s.keywords.Keywords[next])

	summary.Count = len(valid)
	summary.Empty = len(valid) == 0
	return finish(ctx, s.notifier, logger, summary, s.now()), nil
}

// currentIndex prefers the saved rotation state over the index in the keyword file.
func (s *Searcher) currentIndex(ctx context.Context) (int, error) {
	state, err := s.store.LoadKeywordState(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load keyword state: %w", err)
	}
	index := s.keywords.CurrentIndex
	if state != nil {
		index = state.CurrentIndex
	}
	if index < 0 || index >= len(s.keywords.Keywords) {
		index = 0
	}
	return index, nil
}
