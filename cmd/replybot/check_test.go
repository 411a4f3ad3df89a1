package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pauljones0/promo-reply-bot/internal/config"
	"github.com/pauljones0/promo-reply-bot/internal/xapi"
)

type mockAccount struct {
	user    xapi.User
	meErr   error
	postErr error
	posted  []string
}

func (m *mockAccount) Me(_ context.Context) (xapi.User, error) {
	return m.user, m.meErr
}

func (m *mockAccount) PostTweet(_ context.Context, text string) (string, error) {
	m.posted = append(m.posted, text)
	if m.postErr != nil {
		return "", m.postErr
	}
	return "1001", nil
}

func checkClock() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) }

func checkConfig() *config.Config {
	return &config.Config{XBearerToken: "bearer", XUserAccessToken: "user"}
}

func TestCheckCredentials_ReportsAccount(t *testing.T) {
	x := &mockAccount{user: xapi.User{ID: "42", Username: "ebookshop"}}
	var out bytes.Buffer

	if err := checkCredentials(context.Background(), checkConfig(), x, false, &out, checkClock); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "@ebookshop (42)") {
		t.Errorf("output = %q", out.String())
	}
	if len(x.posted) != 0 {
		t.Errorf("nothing should be posted without --post, got %v", x.posted)
	}
}

func TestCheckCredentials_PublishesTestPost(t *testing.T) {
	x := &mockAccount{user: xapi.User{ID: "42", Username: "ebookshop"}}
	var out bytes.Buffer

	if err := checkCredentials(context.Background(), checkConfig(), x, true, &out, checkClock); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(x.posted) != 1 || x.posted[0] != "Test post from promo-reply-bot at 2025-06-10T12:00:00Z" {
		t.Errorf("unexpected test post: %v", x.posted)
	}
	if !strings.Contains(out.String(), "Test post published: 1001") {
		t.Errorf("output = %q", out.String())
	}
}

func TestCheckCredentials_MissingUserToken(t *testing.T) {
	cfg := checkConfig()
	cfg.XUserAccessToken = ""
	x := &mockAccount{}

	err := checkCredentials(context.Background(), cfg, x, true, &bytes.Buffer{}, checkClock)
	if err == nil || !strings.Contains(err.Error(), "X_USER_ACCESS_TOKEN") {
		t.Fatalf("expected missing token error, got %v", err)
	}
	if len(x.posted) != 0 {
		t.Error("nothing should be posted without credentials")
	}
}

func TestCheckCredentials_RejectedToken(t *testing.T) {
	x := &mockAccount{meErr: &xapi.APIError{StatusCode: 401, Status: "401 Unauthorized"}}

	err := checkCredentials(context.Background(), checkConfig(), x, true, &bytes.Buffer{}, checkClock)
	var apiErr *xapi.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 {
		t.Fatalf("expected wrapped 401, got %v", err)
	}
	if len(x.posted) != 0 {
		t.Error("a rejected token should stop before posting")
	}
}

func TestCheckCredentials_MissingBearerIsAWarning(t *testing.T) {
	cfg := checkConfig()
	cfg.XBearerToken = ""
	var out bytes.Buffer

	if err := checkCredentials(context.Background(), cfg, &mockAccount{user: xapi.User{ID: "1", Username: "u"}}, false, &out, checkClock); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "warning: X_BEARER_TOKEN") {
		t.Errorf("output = %q", out.String())
	}
}
