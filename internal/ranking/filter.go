package ranking

import (
	"strings"
	"time"

	"github.com/pauljones0/promo-reply-bot/internal/models"
)

// DefaultRecencyWindow is the maximum age of a post eligible for a reply.
const DefaultRecencyWindow = 48 * time.Hour

// createdAtLayouts are tried in order. The platform returns RFC3339 with
// milliseconds; older stored results may lack a zone.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseCreatedAt parses a stored post timestamp. Values without a zone are
// taken as UTC.
func ParseCreatedAt(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FilterCandidates drops excluded posts and posts that are not strictly
// younger than window at now. Posts with an unparseable timestamp are dropped.
// Input order is preserved.
func FilterCandidates(posts []models.CandidatePost, excluded map[string]struct{}, now time.Time, window time.Duration) []models.CandidatePost {
	out := make([]models.CandidatePost, 0, len(posts))
	for _, p := range posts {
		if _, skip := excluded[p.PostID]; skip {
			continue
		}
		created, ok := ParseCreatedAt(p.CreatedAt)
		if !ok {
			continue
		}
		if now.Sub(created) >= window {
			continue
		}
		out = append(out, p)
	}
	return out
}

// UniqueByID keeps the first occurrence of every post ID.
func UniqueByID(posts []models.CandidatePost) []models.CandidatePost {
	seen := make(map[string]struct{}, len(posts))
	out := make([]models.CandidatePost, 0, len(posts))
	for _, p := range posts {
		if _, dup := seen[p.PostID]; dup {
			continue
		}
		seen[p.PostID] = struct{}{}
		out = append(out, p)
	}
	return out
}
