package validator

import (
	"strings"
	"testing"
	"time"

	"github.com/pauljones0/promo-reply-bot/internal/models"
)

func validPost() models.CandidatePost {
	return models.CandidatePost{
		PostID:    "1790000000000000001",
		AuthorID:  "42",
		Text:      "anyone know a way to sell ebooks for crypto?",
		CreatedAt: "2025-06-10T11:00:00.000Z",
		Keyword:   "sell ebooks crypto",
		Likes:     10,
		Shares:    2,
		Replies:   1,
	}
}

func TestValidator_CandidatePost(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		mutate  func(p *models.CandidatePost)
		wantErr bool
	}{
		{"valid post", func(p *models.CandidatePost) {}, false},
		{"missing id", func(p *models.CandidatePost) { p.PostID = "" }, true},
		{"missing author", func(p *models.CandidatePost) { p.AuthorID = "" }, true},
		{"missing text", func(p *models.CandidatePost) { p.Text = "" }, true},
		{"negative likes", func(p *models.CandidatePost) { p.Likes = -1 }, true},
		{"negative shares", func(p *models.CandidatePost) { p.Shares = -4 }, true},
		{"malformed created_at is allowed", func(p *models.CandidatePost) { p.CreatedAt = "garbage" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPost()
			tt.mutate(&p)
			if err := v.ValidateStruct(p); (err != nil) != tt.wantErr {
				t.Errorf("ValidateStruct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidator_PreparedReply(t *testing.T) {
	v := New()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	valid := models.PreparedReply{
		ID:         models.PreparedReplyID("1790000000000000001"),
		PreparedAt: now,
		ExpiresAt:  now.Add(24 * time.Hour),
		Target:     validPost(),
		ReplyText:  "Have a look at our checkout, it takes crypto out of the box.",
		Keyword:    "sell ebooks crypto",
		Status:     models.StatusPending,
	}

	tests := []struct {
		name    string
		mutate  func(r *models.PreparedReply)
		wantErr bool
	}{
		{"valid reply", func(r *models.PreparedReply) {}, false},
		{"too long", func(r *models.PreparedReply) { r.ReplyText = strings.Repeat("a", 281) }, true},
		{"exactly at limit", func(r *models.PreparedReply) { r.ReplyText = strings.Repeat("é", 280) }, false},
		{"empty text", func(r *models.PreparedReply) { r.ReplyText = "" }, true},
		{"expiry not after creation", func(r *models.PreparedReply) { r.ExpiresAt = r.PreparedAt }, true},
		{"unknown status", func(r *models.PreparedReply) { r.Status = "queued" }, true},
		{"invalid target", func(r *models.PreparedReply) { r.Target.PostID = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			if err := v.ValidateStruct(r); (err != nil) != tt.wantErr {
				t.Errorf("ValidateStruct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFailedFields_UsesJSONNames(t *testing.T) {
	v := New()
	p := validPost()
	p.PostID = ""

	err := v.ValidateStruct(p)
	fields := FailedFields(err)
	if len(fields) != 1 || fields[0] != "CandidatePost.tweet_id" {
		t.Errorf("FailedFields() = %v, want [CandidatePost.tweet_id]", fields)
	}
	if FailedFields(nil) != nil {
		t.Error("FailedFields(nil) should be nil")
	}
}
