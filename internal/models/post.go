package models

import (
	"errors"
	"time"
)

// ErrAlreadySent is returned when a sent record for the target post already exists.
var ErrAlreadySent = errors.New("reply already sent for post")

// ErrDeliveryDeferred wraps delivery errors for replies that never reached
// the platform, such as calls refused by an open circuit breaker.
var ErrDeliveryDeferred = errors.New("delivery deferred, reply not sent")

// ErrNoKeywords is returned when the keyword list is empty or missing.
var ErrNoKeywords = errors.New("no keywords configured")

// CandidatePost is a post fetched from the platform search that matched a keyword.
// CreatedAt keeps the raw platform timestamp so that unparseable values can be
// dropped during selection instead of failing the fetch.
type CandidatePost struct {
	PostID    string    `json:"tweet_id" firestore:"tweetID" validate:"required"`
	AuthorID  string    `json:"author_id" firestore:"authorID" validate:"required"`
	Text      string    `json:"text" firestore:"text" validate:"required"`
	CreatedAt string    `json:"created_at" firestore:"createdAt"`
	Keyword   string    `json:"keyword" firestore:"keyword" validate:"required"`
	Likes     int       `json:"likes" firestore:"likes" validate:"gte=0"`
	Shares    int       `json:"retweets" firestore:"retweets" validate:"gte=0"`
	Replies   int       `json:"replies" firestore:"replies" validate:"gte=0"`
	FetchedAt time.Time `json:"timestamp" firestore:"timestamp"`
}

// KeywordState tracks the keyword rotation between search runs.
type KeywordState struct {
	CurrentIndex int       `json:"current_index" firestore:"currentIndex"`
	LastUsed     time.Time `json:"last_used" firestore:"lastUsed"`
}
