package models

import "time"

// MaxReplyLength is the platform character limit for a reply.
const MaxReplyLength = 280

// ReplyStatus is the lifecycle state of a prepared reply.
type ReplyStatus string

const (
	StatusPending ReplyStatus = "pending"
	StatusSent    ReplyStatus = "sent"
	StatusFailed  ReplyStatus = "failed"
)

// PreparedReply is a drafted reply waiting to be delivered.
type PreparedReply struct {
	ID         string        `json:"id" firestore:"-"`
	PreparedAt time.Time     `json:"prepared_at" firestore:"preparedAt" validate:"required"`
	ExpiresAt  time.Time     `json:"expires_at" firestore:"expiresAt" validate:"required,gtfield=PreparedAt"`
	Target     CandidatePost `json:"target_tweet" firestore:"targetTweet"`
	ReplyText  string        `json:"reply_text" firestore:"replyText" validate:"required,max=280"`
	Keyword    string        `json:"keyword_triggered" firestore:"keywordTriggered"`
	Status     ReplyStatus   `json:"status" firestore:"status" validate:"oneof=pending sent failed"`
	Attempts   int           `json:"attempts,omitempty" firestore:"attempts,omitempty"`
	LastError  string        `json:"last_error,omitempty" firestore:"lastError,omitempty"`
	// SentReplyID and SentAt are set on a delivered reply whose sent record
	// could not be written yet.
	SentReplyID string     `json:"sent_reply_id,omitempty" firestore:"sentReplyID,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty" firestore:"sentAt,omitempty"`
}

// PreparedReplyID derives the reply identity from the target post.
func PreparedReplyID(postID string) string {
	return postID + "_reply"
}

// Delivered reports whether the reply reached the platform in an earlier run.
func (r PreparedReply) Delivered() bool {
	return r.Status == StatusSent && r.SentReplyID != "" && r.SentAt != nil
}

// Expired reports whether the reply is past its expiry at now.
func (r PreparedReply) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// SentRecord is the permanent log entry for a delivered reply.
type SentRecord struct {
	PostID       string    `json:"tweet_id" firestore:"tweetID"`
	ReplyID      string    `json:"reply_id" firestore:"replyID"`
	SentAt       time.Time `json:"sent_at" firestore:"sentAt"`
	ReplyText    string    `json:"reply_text" firestore:"replyText"`
	TargetAuthor string    `json:"target_author" firestore:"targetAuthor"`
	Keyword      string    `json:"keyword" firestore:"keyword"`
}

// RunSummary is what a stage run reports to its caller.
type RunSummary struct {
	Stage      string    `json:"stage"`
	RunID      string    `json:"run_id"`
	Keyword    string    `json:"keyword,omitempty"`
	Count      int       `json:"count"`
	Skipped    int       `json:"skipped,omitempty"`
	Failed     int       `json:"failed,omitempty"`
	Dropped    int       `json:"dropped,omitempty"`
	Empty      bool      `json:"empty"`
	FinishedAt time.Time `json:"finished_at"`
}
