package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pauljones0/promo-reply-bot/internal/models"
	"github.com/pauljones0/promo-reply-bot/internal/observability"
)

const (
	StageSearch  = "search"
	StagePrepare = "prepare"
	StageSend    = "send"
)

// Stage is one independently schedulable step of the pipeline.
type Stage interface {
	Name() string
	Run(ctx context.Context) (models.RunSummary, error)
}

// Pipeline runs stages in order and stops at the first fatal error.
type Pipeline struct {
	stages []Stage
}

func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

func (p *Pipeline) Run(ctx context.Context) ([]models.RunSummary, error) {
	summaries := make([]models.RunSummary, 0, len(p.stages))
	for _, s := range p.stages {
		summary, err := s.Run(ctx)
		if err != nil {
			return summaries, fmt.Errorf("%s stage: %w", s.Name(), err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func newRun(stage string) (models.RunSummary, *slog.Logger) {
	id := ulid.Make().String()
	return models.RunSummary{Stage: stage, RunID: id}, slog.Default().With("stage", stage, "run_id", id)
}

// finish stamps the summary, records metrics and forwards it to the notifier.
func finish(ctx context.Context, n RunNotifier, logger *slog.Logger, summary models.RunSummary, now time.Time) models.RunSummary {
	summary.FinishedAt = now
	outcome := "ok"
	if summary.Empty {
		outcome = "empty"
	}
	observability.StageRuns.WithLabelValues(summary.Stage, outcome).Inc()

	logger.Info("Stage finished", "count", summary.Count, "skipped", summary.Skipped,
		"failed", summary.Failed, "dropped", summary.Dropped, "empty", summary.Empty)

	if n != nil {
		if err := n.SendSummary(ctx, summary); err != nil {
			logger.Warn("Failed to send run summary", "error", err)
		}
	}
	return summary
}

func fail(stage string) {
	observability.StageRuns.WithLabelValues(stage, "error").Inc()
}

// withTimeout bounds a single external call; a zero timeout leaves ctx as is.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
