// Package ranking selects which fetched posts are worth replying to.
package ranking

import "github.com/pauljones0/promo-reply-bot/internal/models"

const (
	likeWeight  = 3
	shareWeight = 2
	replyWeight = 1
)

// EngagementScore weights likes over shares and shares over replies.
func EngagementScore(p models.CandidatePost) float64 {
	return float64(likeWeight*p.Likes + shareWeight*p.Shares + replyWeight*p.Replies)
}
