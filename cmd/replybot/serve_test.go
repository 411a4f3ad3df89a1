package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pauljones0/promo-reply-bot/internal/models"
	"github.com/pauljones0/promo-reply-bot/internal/observability"
	"github.com/pauljones0/promo-reply-bot/internal/processor"
)

type fakeStage struct {
	name    string
	summary models.RunSummary
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeStage) Name() string { return f.name }

func (f *fakeStage) Run(_ context.Context) (models.RunSummary, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	return f.summary, f.err
}

func newTestServer(stages ...processor.Stage) *Server {
	s := &Server{stages: make(map[string]processor.Stage), setupErrs: make(map[string]error)}
	for _, st := range stages {
		s.stages[st.Name()] = st
	}
	return s
}

func TestStageHandler_ReturnsSummary(t *testing.T) {
	srv := newTestServer(&fakeStage{name: processor.StageSend, summary: models.RunSummary{Stage: "send", RunID: "01J", Count: 2}})
	mux := srv.routes(prometheus.NewRegistry())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/send", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got models.RunSummary
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Count != 2 || got.RunID != "01J" {
		t.Errorf("unexpected summary: %+v", got)
	}
}

func TestStageHandler_StageError(t *testing.T) {
	srv := newTestServer(&fakeStage{name: processor.StageSearch, err: errors.New("keywords missing")})
	rec := httptest.NewRecorder()
	srv.routes(prometheus.NewRegistry()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/search", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "keywords missing") {
		t.Errorf("body should carry the error: %s", rec.Body.String())
	}
}

func TestStageHandler_DisabledStage(t *testing.T) {
	srv := newTestServer()
	srv.setupErrs[processor.StagePrepare] = errors.New("GEMINI_API_KEY environment variable is required")

	rec := httptest.NewRecorder()
	srv.routes(prometheus.NewRegistry()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/prepare", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "GEMINI_API_KEY") {
		t.Errorf("body should explain why: %s", rec.Body.String())
	}
}

func TestStageHandler_RejectsOverlappingRuns(t *testing.T) {
	slow := &fakeStage{name: processor.StageSearch, block: make(chan struct{}), started: make(chan struct{})}
	srv := newTestServer(slow, &fakeStage{name: processor.StageSend})
	mux := srv.routes(prometheus.NewRegistry())

	done := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/search", nil))
		done <- rec.Code
	}()
	<-slow.started

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/send", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("overlapping run status = %d, want 409", rec.Code)
	}

	close(slow.block)
	if code := <-done; code != http.StatusOK {
		t.Errorf("first run status = %d", code)
	}
}

func TestRoutes_HealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	observability.Register(reg)
	observability.StageRuns.WithLabelValues("send", "ok").Inc()
	mux := newTestServer().routes(reg)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "replybot_stage_runs_total") {
		t.Errorf("metrics endpoint missing stage counter: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/send", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /send status = %d, want 405", rec.Code)
	}
}
