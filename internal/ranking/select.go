package ranking

import (
	"sort"
	"time"

	"github.com/pauljones0/promo-reply-bot/internal/models"
)

// DefaultBatchLimit is the number of replies drafted per prepare run.
const DefaultBatchLimit = 5

// SelectCandidates filters posts, ranks the survivors by engagement score
// (highest first, ties keep their input order) and returns at most limit of
// them. An empty result is not an error.
func SelectCandidates(posts []models.CandidatePost, excluded map[string]struct{}, now time.Time, window time.Duration, limit int) []models.CandidatePost {
	if limit <= 0 {
		return nil
	}

	candidates := FilterCandidates(UniqueByID(posts), excluded, now, window)
	sort.SliceStable(candidates, func(i, j int) bool {
		return EngagementScore(candidates[i]) > EngagementScore(candidates[j])
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// ExcludedIDs builds the exclusion set from the sent log and the replies
// already waiting in the pending batch.
func ExcludedIDs(sent []models.SentRecord, pending []models.PreparedReply) map[string]struct{} {
	ids := make(map[string]struct{}, len(sent)+len(pending))
	for _, r := range sent {
		ids[r.PostID] = struct{}{}
	}
	for _, p := range pending {
		ids[p.Target.PostID] = struct{}{}
	}
	return ids
}
