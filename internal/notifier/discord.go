package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/promo-reply-bot/internal/models"
	"github.com/pauljones0/promo-reply-bot/internal/ranking"
	"github.com/pauljones0/promo-reply-bot/internal/util"
)

const (
	colorOK      = 3066993  // #2ECC71
	colorEmpty   = 9807270  // #95A5A6
	colorProblem = 15105570 // #E67E22
	colorReview  = 3447003  // #3498DB

	maxRetries = 3
	// Discord accepts at most 10 embeds per message.
	maxEmbedsPerMessage = 10

	postURLFormat = "https://x.com/i/web/status/%s"
)

// Client posts run summaries and reply drafts to a Discord webhook.
// An empty webhook URL turns every call into a no-op.
type Client struct {
	webhookURL  string
	client      *http.Client
	rateLimiter *rate.Limiter
}

func New(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		// Webhooks allow 5 requests per 2 seconds.
		rateLimiter: rate.NewLimiter(rate.Every(400*time.Millisecond), 1),
	}
}

// SendSummary posts the outcome of one stage run.
func (c *Client) SendSummary(ctx context.Context, summary models.RunSummary) error {
	if c.webhookURL == "" {
		return nil
	}
	return c.post(ctx, discordWebhookPayload{Embeds: []discordEmbed{formatSummaryEmbed(summary)}})
}

// SendForReview posts the freshly prepared replies so an operator can read them before the send stage.
func (c *Client) SendForReview(ctx context.Context, replies []models.PreparedReply) error {
	if c.webhookURL == "" || len(replies) == 0 {
		return nil
	}
	embeds := make([]discordEmbed, 0, len(replies))
	for _, r := range replies {
		embeds = append(embeds, formatReplyEmbed(r))
	}
	for start := 0; start < len(embeds); start += maxEmbedsPerMessage {
		end := min(start+maxEmbedsPerMessage, len(embeds))
		payload := discordWebhookPayload{Embeds: embeds[start:end]}
		if start == 0 {
			payload.Content = fmt.Sprintf("%d replies ready for review", len(replies))
		}
		if err := c.post(ctx, payload); err != nil {
			return err
		}
	}
	return nil
}

// Internal structures
type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	URL         string              `json:"url,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      discordEmbedFooter  `json:"footer,omitempty"`
}

func formatSummaryEmbed(s models.RunSummary) discordEmbed {
	color := colorOK
	switch {
	case s.Failed > 0 || s.Dropped > 0:
		color = colorProblem
	case s.Empty:
		color = colorEmpty
	}

	fields := []discordEmbedField{{Name: "Count", Value: fmt.Sprintf("%d", s.Count), Inline: true}}
	if s.Keyword != "" {
		fields = append(fields, discordEmbedField{Name: "Keyword", Value: s.Keyword, Inline: true})
	}
	if s.Skipped > 0 {
		fields = append(fields, discordEmbedField{Name: "Skipped", Value: fmt.Sprintf("%d", s.Skipped), Inline: true})
	}
	if s.Failed > 0 {
		fields = append(fields, discordEmbedField{Name: "Kept for retry", Value: fmt.Sprintf("%d", s.Failed), Inline: true})
	}
	if s.Dropped > 0 {
		fields = append(fields, discordEmbedField{Name: "Dropped", Value: fmt.Sprintf("%d", s.Dropped), Inline: true})
	}

	var timestamp string
	if !s.FinishedAt.IsZero() {
		timestamp = s.FinishedAt.UTC().Format(time.RFC3339)
	}

	description := ""
	if s.Empty {
		description = "Nothing to do this run."
	}

	return discordEmbed{
		Title:       fmt.Sprintf("%s run finished", s.Stage),
		Description: description,
		Timestamp:   timestamp,
		Color:       color,
		Fields:      fields,
		Footer:      discordEmbedFooter{Text: "run " + s.RunID},
	}
}

func formatReplyEmbed(r models.PreparedReply) discordEmbed {
	target := r.Target
	return discordEmbed{
		Title:       util.TruncateRunes(util.Preview(target.Text, 200), 256),
		URL:         fmt.Sprintf(postURLFormat, target.PostID),
		Description: r.ReplyText,
		Timestamp:   r.PreparedAt.UTC().Format(time.RFC3339),
		Color:       colorReview,
		Fields: []discordEmbedField{
			{Name: "Keyword", Value: r.Keyword, Inline: true},
			{Name: "Engagement", Value: fmt.Sprintf("👍 %d  🔁 %d  💬 %d", target.Likes, target.Shares, target.Replies), Inline: true},
			{Name: "Score", Value: fmt.Sprintf("%.0f", ranking.EngagementScore(target)), Inline: true},
		},
		Footer: discordEmbedFooter{Text: "expires " + r.ExpiresAt.UTC().Format(time.RFC3339)},
	}
}

func (c *Client) post(ctx context.Context, payload discordWebhookPayload) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payloadBytes))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		backoff := retryBackoff(resp, attempt)
		if backoff == 0 || attempt >= maxRetries {
			return fmt.Errorf("discord status: %s, body: %s", resp.Status, string(bodyBytes))
		}
		slog.Warn("Discord request failed, retrying", "status", resp.StatusCode, "attempt", attempt+1, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// retryBackoff returns how long to wait before retrying resp, or zero when the
// request should not be retried.
func retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs := util.SafeAtoi(resp.Header.Get("Retry-After")); secs > 0 {
			return time.Duration(secs) * time.Second
		}
		return time.Duration(1<<attempt) * time.Second
	case resp.StatusCode >= 500:
		return time.Duration(1<<attempt) * 250 * time.Millisecond
	default:
		return 0
	}
}
