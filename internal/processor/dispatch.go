package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pauljones0/promo-reply-bot/internal/config"
	"github.com/pauljones0/promo-reply-bot/internal/models"
	"github.com/pauljones0/promo-reply-bot/internal/observability"
	"github.com/pauljones0/promo-reply-bot/internal/util"
)

// DispatchPolicy bounds how long a failing reply stays queued.
// MaxAttempts 0 retries forever; DropExpired false sends stale replies.
type DispatchPolicy struct {
	MaxAttempts int
	DropExpired bool
}

// DispatchOutcome partitions a pending batch after one delivery pass.
// Retry keeps the input order of the failed items. Delivered holds the
// replies behind Sent, marked sent, in the same order.
type DispatchOutcome struct {
	Sent      []models.SentRecord
	Delivered []models.PreparedReply
	Retry     []models.PreparedReply
	Dropped   []models.PreparedReply
}

// Dispatcher delivers the pending batch and maintains the sent log.
type Dispatcher struct {
	store     QueueStore
	deliverer ReplyDeliverer
	notifier  RunNotifier
	policy    DispatchPolicy
	timeout   time.Duration
	now       func() time.Time
}

func NewDispatcher(store QueueStore, d ReplyDeliverer, n RunNotifier, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		store:     store,
		deliverer: d,
		notifier:  n,
		policy: DispatchPolicy{
			MaxAttempts: cfg.MaxSendAttempts,
			DropExpired: cfg.DropExpired,
		},
		timeout: cfg.RequestTimeout,
		now:     time.Now,
	}
}

func (d *Dispatcher) Name() string { return StageSend }

func (d *Dispatcher) Run(ctx context.Context) (models.RunSummary, error) {
	summary, logger := newRun(StageSend)

	pending, err := d.store.LoadPending(ctx)
	if err != nil {
		fail(StageSend)
		return summary, fmt.Errorf("failed to load pending replies: %w", err)
	}
	if len(pending) == 0 {
		logger.Info("No replies to send")
		summary.Empty = true
		return finish(ctx, d.notifier, logger, summary, d.now()), nil
	}

	sentLog, err := d.store.LoadSentLog(ctx)
	if err != nil {
		fail(StageSend)
		return summary, fmt.Errorf("failed to load sent log: %w", err)
	}
	alreadySent := make(map[string]struct{}, len(sentLog))
	for _, r := range sentLog {
		alreadySent[r.PostID] = struct{}{}
	}

	logger.Info("Sending prepared replies", "count", len(pending))
	outcome := d.DispatchAll(ctx, logger, pending, alreadySent)

	// The sent log is written first: it is what keeps posts from being selected again.
	// Delivered replies it could not record stay pending, marked sent, until it can.
	var saveErr error
	keep := outcome.Retry
	if len(outcome.Sent) > 0 {
		if err := d.store.AppendSent(ctx, outcome.Sent); err != nil {
			saveErr = fmt.Errorf("failed to append sent records: %w", err)
			keep = append(append(make([]models.PreparedReply, 0, len(outcome.Delivered)+len(outcome.Retry)), outcome.Delivered...), outcome.Retry...)
			logger.Error("Delivered replies kept pending until the sent log is writable", "count", len(outcome.Delivered))
		}
	}
	if err := d.store.ReplacePending(ctx, keep); err != nil {
		saveErr = errors.Join(saveErr, fmt.Errorf("failed to replace pending replies: %w", err))
	}
	if saveErr != nil {
		fail(StageSend)
		return summary, saveErr
	}
	observability.PendingQueue.Set(float64(len(keep)))

	if len(outcome.Retry) > 0 {
		logger.Warn("Replies failed and kept for retry", "count", len(outcome.Retry))
	}
	logger.Info("Sent log updated", "total", len(sentLog)+len(outcome.Sent))

	summary.Count = len(outcome.Sent)
	summary.Failed = len(outcome.Retry)
	summary.Dropped = len(outcome.Dropped)
	return finish(ctx, d.notifier, logger, summary, d.now()), nil
}

// DispatchAll attempts delivery of every pending reply in order. alreadySent is
// updated with each newly delivered target. Failed replies come back with
// Attempts incremented and Status failed; replies that exhaust the policy, are
// expired, or target an already answered post are dropped. Replies delivered
// in an earlier run are recorded without being sent again, and replies the
// deliverer deferred are requeued unchanged.
func (d *Dispatcher) DispatchAll(ctx context.Context, logger *slog.Logger, pending []models.PreparedReply, alreadySent map[string]struct{}) DispatchOutcome {
	outcome := DispatchOutcome{
		Sent:  make([]models.SentRecord, 0, len(pending)),
		Retry: make([]models.PreparedReply, 0),
	}
	if alreadySent == nil {
		alreadySent = make(map[string]struct{})
	}

	for i, reply := range pending {
		targetID := reply.Target.PostID
		log := logger.With("reply_id", reply.ID, "post_id", targetID)

		if reply.Delivered() {
			if _, recorded := alreadySent[targetID]; !recorded {
				log.Info("Recording reply delivered in an earlier run", "platform_reply_id", reply.SentReplyID)
				outcome.Sent = append(outcome.Sent, sentRecord(reply, reply.SentReplyID, *reply.SentAt))
				outcome.Delivered = append(outcome.Delivered, reply)
				alreadySent[targetID] = struct{}{}
			}
			continue
		}
		if ctx.Err() != nil {
			// Not attempted, so not counted against the reply.
			outcome.Retry = append(outcome.Retry, reply)
			continue
		}
		if _, dup := alreadySent[targetID]; dup {
			log.Warn("Post already has a reply, dropping duplicate")
			observability.Deliveries.WithLabelValues("duplicate").Inc()
			outcome.Dropped = append(outcome.Dropped, reply)
			continue
		}
		now := d.now().UTC()
		if d.policy.DropExpired && reply.Expired(now) {
			log.Warn("Reply expired before delivery, dropping", "expires_at", reply.ExpiresAt)
			observability.Deliveries.WithLabelValues("expired").Inc()
			outcome.Dropped = append(outcome.Dropped, reply)
			continue
		}

		log.Info("Sending reply", "position", i+1, "of", len(pending),
			"target", util.Preview(reply.Target.Text, 50), "reply", util.Preview(reply.ReplyText, 100))

		replyID, err := d.deliver(ctx, reply)
		if errors.Is(err, models.ErrDeliveryDeferred) {
			log.Warn("Reply not sent, keeping for the next run", "error", err)
			observability.Deliveries.WithLabelValues("deferred").Inc()
			outcome.Retry = append(outcome.Retry, reply)
			continue
		}
		if err != nil {
			reply.Attempts++
			reply.Status = models.StatusFailed
			reply.LastError = err.Error()

			if d.policy.MaxAttempts > 0 && reply.Attempts >= d.policy.MaxAttempts {
				log.Error("Reply failed too many times, dropping", "attempts", reply.Attempts, "error", err)
				observability.Deliveries.WithLabelValues("exhausted").Inc()
				outcome.Dropped = append(outcome.Dropped, reply)
				continue
			}
			log.Warn("Failed to send reply, keeping for retry", "attempts", reply.Attempts, "error", err)
			observability.Deliveries.WithLabelValues("failed").Inc()
			outcome.Retry = append(outcome.Retry, reply)
			continue
		}

		sentAt := d.now().UTC()
		reply.Status = models.StatusSent
		reply.SentReplyID = replyID
		reply.SentAt = &sentAt
		outcome.Sent = append(outcome.Sent, sentRecord(reply, replyID, sentAt))
		outcome.Delivered = append(outcome.Delivered, reply)
		alreadySent[targetID] = struct{}{}
		observability.Deliveries.WithLabelValues("sent").Inc()
		log.Info("Reply sent", "platform_reply_id", replyID)
	}
	return outcome
}

func sentRecord(reply models.PreparedReply, replyID string, sentAt time.Time) models.SentRecord {
	return models.SentRecord{
		PostID:       reply.Target.PostID,
		ReplyID:      replyID,
		SentAt:       sentAt,
		ReplyText:    reply.ReplyText,
		TargetAuthor: reply.Target.AuthorID,
		Keyword:      reply.Keyword,
	}
}

func (d *Dispatcher) deliver(ctx context.Context, reply models.PreparedReply) (string, error) {
	sendCtx, cancel := withTimeout(ctx, d.timeout)
	defer cancel()

	replyID, err := d.deliverer.PostReply(sendCtx, reply.ReplyText, reply.Target.PostID)
	if err != nil {
		return "", err
	}
	if replyID == "" {
		return "", errors.New("platform returned an empty reply id")
	}
	return replyID, nil
}
