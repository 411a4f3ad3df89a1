package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pauljones0/promo-reply-bot/internal/config"
	"github.com/pauljones0/promo-reply-bot/internal/models"
	"github.com/pauljones0/promo-reply-bot/internal/observability"
	"github.com/pauljones0/promo-reply-bot/internal/ranking"
	"github.com/pauljones0/promo-reply-bot/internal/util"
	"github.com/pauljones0/promo-reply-bot/internal/validator"
)

// Preparer selects the best fresh candidates and drafts a reply for each.
type Preparer struct {
	store     QueueStore
	generator ReplyGenerator
	promotion PromotionSource
	notifier  RunNotifier
	config    *config.Config
	validate  *validator.Validator
	now       func() time.Time
}

func NewPreparer(store QueueStore, g ReplyGenerator, promo PromotionSource, n RunNotifier, cfg *config.Config) *Preparer {
	return &Preparer{
		store:     store,
		generator: g,
		promotion: promo,
		notifier:  n,
		config:    cfg,
		validate:  validator.New(),
		now:       time.Now,
	}
}

func (p *Preparer) Name() string { return StagePrepare }

func (p *Preparer) Run(ctx context.Context) (models.RunSummary, error) {
	summary, logger := newRun(StagePrepare)

	promotion, err := p.promotion.Promotion(ctx)
	if err != nil {
		fail(StagePrepare)
		return summary, fmt.Errorf("failed to load promotion content: %w", err)
	}

	results, err := p.store.LoadSearchResults(ctx)
	if err != nil {
		fail(StagePrepare)
		return summary, fmt.Errorf("failed to load search results: %w", err)
	}
	if len(results) == 0 {
		logger.Info("No search results available")
		summary.Empty = true
		return finish(ctx, p.notifier, logger, summary, p.now()), nil
	}

	sent, err := p.store.LoadSentLog(ctx)
	if err != nil {
		fail(StagePrepare)
		return summary, fmt.Errorf("failed to load sent log: %w", err)
	}
	pending, err := p.store.LoadPending(ctx)
	if err != nil {
		fail(StagePrepare)
		return summary, fmt.Errorf("failed to load pending replies: %w", err)
	}

	now := p.now().UTC()
	candidates := ranking.SelectCandidates(results, ranking.ExcludedIDs(sent, pending), now, p.config.RecencyWindow, p.config.BatchLimit)
	if len(candidates) == 0 {
		logger.Info("No new posts to reply to")
		summary.Empty = true
		return finish(ctx, p.notifier, logger, summary, p.now()), nil
	}
	logger.Info("Selected candidates", "count", len(candidates))

	prepared := p.draftReplies(ctx, logger, candidates, promotion, now, &summary)
	if len(prepared) == 0 {
		logger.Info("No replies were prepared")
		summary.Empty = true
		return finish(ctx, p.notifier, logger, summary, p.now()), nil
	}

	// Replies from earlier runs stay queued; expiry is enforced at send time.
	batch := make([]models.PreparedReply, 0, len(pending)+len(prepared))
	batch = append(batch, pending...)
	batch = append(batch, prepared...)
	if err := p.store.ReplacePending(ctx, batch); err != nil {
		fail(StagePrepare)
		return summary, fmt.Errorf("failed to save pending replies: %w", err)
	}
	observability.PendingQueue.Set(float64(len(batch)))

	if p.notifier != nil {
		if err := p.notifier.SendForReview(ctx, prepared); err != nil {
			logger.Warn("Failed to send replies for review", "error", err)
		}
	}

	summary.Count = len(prepared)
	return finish(ctx, p.notifier, logger, summary, p.now()), nil
}

func (p *Preparer) draftReplies(ctx context.Context, logger *slog.Logger, candidates []models.CandidatePost, promotion string, now time.Time, summary *models.RunSummary) []models.PreparedReply {
	prepared := make([]models.PreparedReply, 0, len(candidates))
	for i, post := range candidates {
		logger.Info("Drafting reply", "position", i+1, "of", len(candidates), "post_id", post.PostID,
			"score", ranking.EngagementScore(post), "text", util.Preview(post.Text, 100))

		text, err := p.generate(ctx, post, promotion)
		if err != nil {
			logger.Warn("Reply generation unavailable, skipping post", "post_id", post.PostID, "error", err)
			observability.RepliesPrepared.WithLabelValues("unavailable").Inc()
			summary.Skipped++
			continue
		}

		reply := models.PreparedReply{
			ID:         models.PreparedReplyID(post.PostID),
			PreparedAt: now,
			ExpiresAt:  now.Add(p.config.ReplyTTL),
			Target:     post,
			ReplyText:  text,
			Keyword:    post.Keyword,
			Status:     models.StatusPending,
		}
		if err := p.validate.ValidateStruct(reply); err != nil {
			logger.Warn("Prepared reply failed validation, skipping post", "post_id", post.PostID, "fields", validator.FailedFields(err))
			observability.RepliesPrepared.WithLabelValues("invalid").Inc()
			summary.Skipped++
			continue
		}

		observability.RepliesPrepared.WithLabelValues("ok").Inc()
		logger.Info("Reply prepared", "post_id", post.PostID, "reply", util.Preview(text, 100))
		prepared = append(prepared, reply)
	}
	return prepared
}

func (p *Preparer) generate(ctx context.Context, post models.CandidatePost, promotion string) (string, error) {
	genCtx, cancel := withTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	text, err := p.generator.GenerateReply(genCtx, post, promotion)
	if err != nil {
		return "", err
	}
	text = util.TruncateRunes(strings.TrimSpace(text), models.MaxReplyLength)
	if text == "" {
		return "", fmt.Errorf("empty reply for post %s", post.PostID)
	}
	return text, nil
}
