package xapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/pauljones0/promo-reply-bot/internal/models"
)

func newTestClient(serverURL string) *Client {
	c := New(Options{
		BaseURL:         serverURL,
		BearerToken:     "bearer-tok",
		UserAccessToken: "user-tok",
		MaxResults:      100,
		Timeout:         5 * time.Second,
	})
	// Override rate limiter and backoff for tests to run fast
	c.rateLimiter = rate.NewLimiter(rate.Inf, 1)
	c.retryBase = time.Millisecond
	return c
}

func TestClient_SearchRecent(t *testing.T) {
	start := time.Date(2025, 6, 9, 11, 59, 30, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != searchPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer bearer-tok" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		q := r.URL.Query()
		want := map[string]string{
			"query":        "sell ebooks crypto -is:retweet",
			"max_results":  "100",
			"tweet.fields": "author_id,created_at,public_metrics",
			"start_time":   "2025-06-09T11:59:30Z",
			"end_time":     "2025-06-10T11:59:30Z",
		}
		for k, v := range want {
			if q.Get(k) != v {
				t.Errorf("query %s = %q, want %q", k, q.Get(k), v)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": [
				{"id": "1", "text": "first", "author_id": "a1", "created_at": "2025-06-10T10:00:00.000Z",
				 "public_metrics": {"like_count": 10, "retweet_count": 2, "reply_count": 1, "quote_count": 0}},
				{"id": "2", "text": "second", "author_id": "a2", "created_at": "2025-06-10T09:00:00.000Z",
				 "public_metrics": {"like_count": 0, "retweet_count": 0, "reply_count": 0}}
			],
			"meta": {"result_count": 2}
		}`))
	}))
	defer server.Close()

	posts, err := newTestClient(server.URL).SearchRecent(context.Background(), "sell ebooks crypto", start, end)
	if err != nil {
		t.Fatalf("SearchRecent() error: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	p := posts[0]
	if p.PostID != "1" || p.AuthorID != "a1" || p.Text != "first" || p.CreatedAt != "2025-06-10T10:00:00.000Z" {
		t.Errorf("unexpected post: %+v", p)
	}
	if p.Likes != 10 || p.Shares != 2 || p.Replies != 1 || p.Keyword != "sell ebooks crypto" {
		t.Errorf("unexpected metrics: %+v", p)
	}
}

func TestClient_SearchRecent_NoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"meta": {"result_count": 0}}`))
	}))
	defer server.Close()

	posts, err := newTestClient(server.URL).SearchRecent(context.Background(), "kw", time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("SearchRecent() error: %v", err)
	}
	if len(posts) != 0 {
		t.Errorf("expected no posts, got %d", len(posts))
	}
}

func TestClient_SearchRecent_RetriesOn5xx(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"data": [{"id": "1", "text": "t", "author_id": "a"}]}`))
	}))
	defer server.Close()

	posts, err := newTestClient(server.URL).SearchRecent(context.Background(), "kw", time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("SearchRecent() should succeed after retries: %v", err)
	}
	if len(posts) != 1 {
		t.Errorf("expected 1 post, got %d", len(posts))
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("expected 3 attempts, got %d", atomic.LoadInt32(&attempts))
	}
}

func TestClient_SearchRecent_RateLimited(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set("x-rate-limit-reset", "1749556800")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"title": "Too Many Requests"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).SearchRecent(context.Background(), "kw", time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if !apiErr.ResetAt.Equal(time.Unix(1749556800, 0)) {
		t.Errorf("ResetAt = %v", apiErr.ResetAt)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("rate limited search should not be retried, got %d attempts", atomic.LoadInt32(&attempts))
	}
}

func TestClient_SearchRecent_NoRetryOn4xx(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).SearchRecent(context.Background(), "kw", time.Now().Add(-time.Hour), time.Now())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("expected 1 attempt, got %d", atomic.LoadInt32(&attempts))
	}
}

func TestClient_PostReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != tweetsPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer user-tok" {
			t.Errorf("Authorization = %q, want user token", got)
		}

		var req createTweetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		if req.Text != "Check out our store" || req.Reply == nil || req.Reply.InReplyToTweetID != "123" {
			t.Errorf("unexpected payload: %+v", req)
		}

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data": {"id": "999", "text": "Check out our store"}}`))
	}))
	defer server.Close()

	id, err := newTestClient(server.URL).PostReply(context.Background(), "Check out our store", "123")
	if err != nil {
		t.Fatalf("PostReply() error: %v", err)
	}
	if id != "999" {
		t.Errorf("reply id = %q, want 999", id)
	}
}

func TestClient_PostReply_BreakerOpensOnServerErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	for i := 0; i < 3; i++ {
		_, err := c.PostReply(context.Background(), "hi", "1")
		if err == nil {
			t.Fatalf("call %d should fail", i)
		}
		if errors.Is(err, models.ErrDeliveryDeferred) {
			t.Errorf("call %d reached the server and should not be deferred", i)
		}
	}
	_, err := c.PostReply(context.Background(), "hi", "1")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if !errors.Is(err, models.ErrDeliveryDeferred) {
		t.Errorf("refused call should be reported as deferred, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("open breaker should not reach the server, got %d requests", atomic.LoadInt32(&attempts))
	}
}

func TestClient_PostReply_ClientErrorsDoNotTripBreaker(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail": "You are not allowed to create a Tweet with duplicate content."}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	for i := 0; i < 5; i++ {
		_, err := c.PostReply(context.Background(), "hi", "1")
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
			t.Fatalf("call %d: expected 403 APIError, got %v", i, err)
		}
	}
	if atomic.LoadInt32(&attempts) != 5 {
		t.Errorf("expected every call to reach the server, got %d", atomic.LoadInt32(&attempts))
	}
}

func TestAPIError_Temporary(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusForbidden, false},
	}
	for _, tt := range tests {
		if got := (&APIError{StatusCode: tt.status}).Temporary(); got != tt.want {
			t.Errorf("Temporary() for %d = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestClient_PostTweet_OmitsReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		if _, ok := raw["reply"]; ok {
			t.Errorf("standalone post should not carry a reply field: %v", raw)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data": {"id": "1000", "text": "hello"}}`))
	}))
	defer server.Close()

	id, err := newTestClient(server.URL).PostTweet(context.Background(), "hello")
	if err != nil || id != "1000" {
		t.Fatalf("PostTweet() = %q, %v", id, err)
	}
}

func TestClient_Me(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != mePath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer user-tok" {
			t.Errorf("Authorization = %q, want user token", got)
		}
		w.Write([]byte(`{"data": {"id": "42", "name": "Ebook Shop", "username": "ebookshop"}}`))
	}))
	defer server.Close()

	u, err := newTestClient(server.URL).Me(context.Background())
	if err != nil {
		t.Fatalf("Me() error: %v", err)
	}
	if u.ID != "42" || u.Username != "ebookshop" {
		t.Errorf("unexpected user: %+v", u)
	}
}

func TestClient_Me_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"title":"Unauthorized"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Me(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}
