package processor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/pauljones0/promo-reply-bot/internal/config"
	"github.com/pauljones0/promo-reply-bot/internal/models"
)

func newTestSearcher(store QueueStore, source PostSource, keywords config.KeywordList) *Searcher {
	s := NewSearcher(store, source, nil, keywords, testConfig())
	s.now = fixedClock()
	return s
}

func rawPost(id string) models.CandidatePost {
	p := post(id, 1, 1, 1, time.Hour)
	p.Keyword = ""
	return p
}

func TestSearcherRun_UsesKeywordFileIndexFirst(t *testing.T) {
	store := newMockStore()
	source := &mockSource{posts: []models.CandidatePost{rawPost("1"), rawPost("2")}}
	keywords := config.KeywordList{Keywords: []string{"a", "b", "c"}, CurrentIndex: 1}

	summary, err := newTestSearcher(store, source, keywords).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.keywords[0] != "b" || summary.Keyword != "b" {
		t.Errorf("searched %v, want b", source.keywords)
	}
	if summary.Count != 2 {
		t.Errorf("count = %d, want 2", summary.Count)
	}
	if store.state == nil || store.state.CurrentIndex != 2 || !store.state.LastUsed.Equal(testNow) {
		t.Errorf("unexpected saved state: %+v", store.state)
	}
	for _, p := range store.results {
		if p.Keyword != "b" || !p.FetchedAt.Equal(testNow) {
			t.Errorf("stored post not stamped: %+v", p)
		}
	}
}

func TestSearcherRun_RotatesAcrossRuns(t *testing.T) {
	store := newMockStore()
	store.state = &models.KeywordState{CurrentIndex: 2}
	source := &mockSource{}
	s := newTestSearcher(store, source, config.KeywordList{Keywords: []string{"a", "b", "c"}})

	for i := 0; i < 4; i++ {
		if _, err := s.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	want := []string{"c", "a", "b", "c"}
	for i := range want {
		if source.keywords[i] != want[i] {
			t.Errorf("run %d searched %s, want %s", i, source.keywords[i], want[i])
		}
	}
}

func TestSearcherRun_OutOfRangeStateResets(t *testing.T) {
	store := newMockStore()
	store.state = &models.KeywordState{CurrentIndex: 9}
	source := &mockSource{}

	if _, err := newTestSearcher(store, source, config.KeywordList{Keywords: []string{"a", "b"}}).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.keywords[0] != "a" || store.state.CurrentIndex != 1 {
		t.Errorf("expected reset to a, searched %v next=%d", source.keywords, store.state.CurrentIndex)
	}
}

func TestSearcherRun_SearchWindow(t *testing.T) {
	source := &mockSource{}
	if _, err := newTestSearcher(newMockStore(), source, config.KeywordList{Keywords: []string{"a"}}).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantEnd := testNow.Add(-30 * time.Second)
	if !source.end.Equal(wantEnd) {
		t.Errorf("end = %v, want %v", source.end, wantEnd)
	}
	if !source.start.Equal(wantEnd.Add(-24 * time.Hour)) {
		t.Errorf("start = %v, want %v", source.start, wantEnd.Add(-24*time.Hour))
	}
}

func TestSearcherRun_FeedFailureIsNoData(t *testing.T) {
	store := newMockStore()
	source := &mockSource{err: errors.New("503")}

	summary, err := newTestSearcher(store, source, config.KeywordList{Keywords: []string{"a", "b"}}).Run(context.Background())
	if err != nil {
		t.Fatalf("feed failure must not be fatal: %v", err)
	}
	if !summary.Empty || summary.Count != 0 {
		t.Errorf("expected empty result, got %+v", summary)
	}
	if store.appendCalls != 0 {
		t.Error("nothing should be appended")
	}
	if store.state == nil || store.state.CurrentIndex != 1 {
		t.Errorf("rotation should advance on failure, got %+v", store.state)
	}
}

func TestSearcherRun_DropsInvalidPosts(t *testing.T) {
	store := newMockStore()
	bad := rawPost("2")
	bad.AuthorID = ""
	source := &mockSource{posts: []models.CandidatePost{rawPost("1"), bad}}

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	summary, err := newTestSearcher(store, source, config.KeywordList{Keywords: []string{"a"}}).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Count != 1 || summary.Skipped != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if len(store.results) != 1 || store.results[0].PostID != "1" {
		t.Errorf("unexpected stored results: %+v", store.results)
	}
	if !strings.Contains(logs.String(), `"fields":["CandidatePost.author_id"]`) {
		t.Errorf("drop log should name the failed field, got %s", logs.String())
	}
}

func TestSearcherRun_TrimsStoredResults(t *testing.T) {
	store := newMockStore()
	store.results = []models.CandidatePost{rawPost("old1"), rawPost("old2")}
	source := &mockSource{posts: []models.CandidatePost{rawPost("new")}}
	s := newTestSearcher(store, source, config.KeywordList{Keywords: []string{"a"}})
	s.config.MaxStoredResults = 2

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.trimmedTo != 2 {
		t.Errorf("expected trim to 2, got %d", store.trimmedTo)
	}
	if len(store.results) != 2 || store.results[1].PostID != "new" {
		t.Errorf("unexpected results after trim: %+v", store.results)
	}
}

func TestSearcherRun_NoKeywords(t *testing.T) {
	_, err := newTestSearcher(newMockStore(), &mockSource{}, config.KeywordList{}).Run(context.Background())
	if !errors.Is(err, models.ErrNoKeywords) {
		t.Fatalf("expected ErrNoKeywords, got %v", err)
	}
}

func TestSearcherRun_AppendErrorIsFatal(t *testing.T) {
	store := newMockStore()
	store.appendErr = errors.New("disk full")
	source := &mockSource{posts: []models.CandidatePost{rawPost("1")}}

	if _, err := newTestSearcher(store, source, config.KeywordList{Keywords: []string{"a"}}).Run(context.Background()); !errors.Is(err, store.appendErr) {
		t.Fatalf("expected append error, got %v", err)
	}
}
