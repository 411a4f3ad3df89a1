package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/pauljones0/promo-reply-bot/internal/observability"
	"github.com/pauljones0/promo-reply-bot/internal/processor"
)

const stageRunTimeout = 10 * time.Minute

// Server exposes each stage as an HTTP trigger. Only one stage runs at a time.
type Server struct {
	stages map[string]processor.Stage
	// setupErrs holds why a stage could not be built, reported on trigger.
	setupErrs map[string]error
	mu        sync.Mutex
}

func newServer(ctx context.Context, a *app) *Server {
	s := &Server{
		stages:    make(map[string]processor.Stage),
		setupErrs: make(map[string]error),
	}
	for _, name := range []string{processor.StageSearch, processor.StagePrepare, processor.StageSend} {
		stage, err := a.stage(ctx, name)
		if err != nil {
			slog.Warn("Stage disabled", "stage", name, "error", err)
			s.setupErrs[name] = err
			continue
		}
		s.stages[name] = stage
	}
	return s
}

func (s *Server) routes(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /search", s.stageHandler(processor.StageSearch))
	mux.HandleFunc("POST /prepare", s.stageHandler(processor.StagePrepare))
	mux.HandleFunc("POST /send", s.stageHandler(processor.StageSend))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) stageHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stage, ok := s.stages[name]
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": s.setupErrs[name].Error()})
			return
		}
		if !s.mu.TryLock() {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "another stage is running"})
			return
		}
		defer s.mu.Unlock()

		// The run outlives a dropped client connection.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), stageRunTimeout)
		defer cancel()

		summary, err := stage.Run(ctx)
		if err != nil {
			slog.Error("Stage run failed", "stage", name, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error(), "run_id": summary.RunID})
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observability.Register(reg)

	srv := newServer(ctx, a)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.routes(reg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: stageRunTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Listening on port", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to listen and serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Server stopped.")
	return nil
}
