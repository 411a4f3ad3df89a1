package ai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pauljones0/promo-reply-bot/internal/models"
	"github.com/pauljones0/promo-reply-bot/internal/util"
)

// ErrUnavailable wraps every generation failure. Callers skip the post.
var ErrUnavailable = errors.New("reply generation unavailable")

const systemPrompt = "You are a helpful assistant that writes natural replies on X (Twitter)."

// BuildReplyPrompt renders the user prompt for a single target post.
func BuildReplyPrompt(post models.CandidatePost, promotion string) string {
	return fmt.Sprintf(`You are a helpful social media assistant promoting the product described below.

Platform Info:
%s

Target Post:
Author ID: %s
Text: %s
Keyword that matched: %s

Task: Create a natural, helpful reply that:
1. Addresses their specific need or comment
2. Introduces the product as a solution
3. Mentions ONE key benefit relevant to their post
4. Sounds conversational, not promotional
5. Is under %d characters

Do not use hashtags. Do not sound like a bot. Be helpful and genuine.

Reply:`, strings.TrimSpace(promotion), post.AuthorID, post.Text, post.Keyword, models.MaxReplyLength)
}

// CleanReply strips the wrapping models like to add around a reply and bounds
// it to the platform limit.
func CleanReply(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```text")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if rest, ok := strings.CutPrefix(s, "Reply:"); ok {
		s = strings.TrimSpace(rest)
	}
	for _, q := range [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}} {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			s = strings.TrimSpace(s[len(q[0]) : len(s)-len(q[1])])
			break
		}
	}
	return util.TruncateRunes(s, models.MaxReplyLength)
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}
