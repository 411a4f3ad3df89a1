package processor

import (
	"context"
	"time"

	"github.com/pauljones0/promo-reply-bot/internal/models"
)

// PostSource searches the platform for posts matching a keyword.
type PostSource interface {
	SearchRecent(ctx context.Context, keyword string, start, end time.Time) ([]models.CandidatePost, error)
}

// ReplyGenerator drafts a reply for a post. Any error means the draft is unavailable.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, post models.CandidatePost, promotion string) (string, error)
}

// ReplyDeliverer posts a reply and returns the platform-assigned reply ID.
type ReplyDeliverer interface {
	PostReply(ctx context.Context, text, inReplyToID string) (string, error)
}

// PromotionSource provides the product description used in prompts.
type PromotionSource interface {
	Promotion(ctx context.Context) (string, error)
}

// QueueStore abstracts the state shared between stage runs.
type QueueStore interface {
	LoadSearchResults(ctx context.Context) ([]models.CandidatePost, error)
	// AppendSearchResults returns the total number of stored results.
	AppendSearchResults(ctx context.Context, posts []models.CandidatePost) (int, error)
	TrimSearchResults(ctx context.Context, maxResults int) error

	LoadPending(ctx context.Context) ([]models.PreparedReply, error)
	ReplacePending(ctx context.Context, replies []models.PreparedReply) error

	LoadSentLog(ctx context.Context) ([]models.SentRecord, error)
	AppendSent(ctx context.Context, records []models.SentRecord) error

	// LoadKeywordState returns nil when no rotation state has been saved yet.
	LoadKeywordState(ctx context.Context) (*models.KeywordState, error)
	SaveKeywordState(ctx context.Context, state models.KeywordState) error
}

// RunNotifier reports stage results to operators.
type RunNotifier interface {
	SendSummary(ctx context.Context, summary models.RunSummary) error
	SendForReview(ctx context.Context, replies []models.PreparedReply) error
}
