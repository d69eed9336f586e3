// Package server exposes the pipeline jobs over HTTP so an external
// scheduler can trigger runs and receive completion callbacks.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// JobRequest carries the optional parameters of a job trigger. LeadDate
// overrides which day's leads the aggregation and generation jobs work on;
// jobs without a date knob ignore it.
type JobRequest struct {
	CallbackURL string `json:"callback_url" validate:"omitempty,url"`
	LeadDate    string `json:"lead_date" validate:"omitempty,datetime=2006-01-02"`
}

// JobFunc runs one pipeline job and returns its counts for the callback
// payload. The returned value must be JSON-marshalable.
type JobFunc func(ctx context.Context, req JobRequest) (any, error)

// Server routes job-trigger requests to registered pipeline jobs.
type Server struct {
	jobs     map[string]JobFunc
	validate *validator.Validate
	callback *callbackClient
	router   chi.Router

	// jobCtx outlives individual requests so background jobs survive the
	// client disconnecting.
	jobCtx context.Context
}

// New creates a Server. jobs maps URL job names to their runners.
func New(jobCtx context.Context, jobs map[string]JobFunc) *Server {
	s := &Server{
		jobs:     jobs,
		validate: validator.New(),
		callback: newCallbackClient(),
		jobCtx:   jobCtx,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/jobs/{job}", s.handleJob)

	s.router = r
	return s
}

// Handler returns the HTTP handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the server until ctx is canceled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server: listen")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		zap.L().Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return eris.Wrap(srv.Shutdown(shutdownCtx), "server: shutdown")
	})
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "job")
	job, ok := s.jobs[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job: " + name})
		return
	}

	var req JobRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	go s.runJob(name, job, req)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"job":    name,
	})
}

func (s *Server) runJob(name string, job JobFunc, req JobRequest) {
	start := time.Now()
	counts, err := job(s.jobCtx, req)
	if err != nil {
		zap.L().Error("job failed",
			zap.String("job", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		s.notify(name, req.CallbackURL, map[string]any{
			"status": "error",
			"job":    name,
			"error":  err.Error(),
		})
		return
	}

	zap.L().Info("job finished",
		zap.String("job", name),
		zap.Duration("elapsed", time.Since(start)),
	)
	s.notify(name, req.CallbackURL, map[string]any{
		"status": "ok",
		"job":    name,
		"counts": counts,
	})
}

func (s *Server) notify(name, callbackURL string, payload map[string]any) {
	if callbackURL == "" {
		return
	}
	if err := s.callback.Post(s.jobCtx, callbackURL, payload); err != nil {
		zap.L().Warn("callback delivery failed",
			zap.String("job", name),
			zap.String("callback_url", callbackURL),
			zap.Error(err),
		)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}
