// Package api exposes the HTTP interface for the ingestion service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/socialpulse/crawl-ingest/internal/config"
	"github.com/socialpulse/crawl-ingest/internal/ingest"
	"github.com/socialpulse/crawl-ingest/internal/metrics"
	"github.com/socialpulse/crawl-ingest/internal/platform"
	"github.com/socialpulse/crawl-ingest/internal/poller"
)

// Engine is the subset of the crawl engine the HTTP layer drives.
type Engine interface {
	Trigger(ctx context.Context, platform string, params map[string]any) (ingest.TriggerResult, error)
	Job(ctx context.Context, jobID string) (ingest.CrawlJob, error)
	CheckStatus(ctx context.Context, jobID string) (ingest.StatusSnapshot, error)
	Download(ctx context.Context, jobID string) (ingest.DownloadResult, error)
}

// Watcher hands triggered jobs to the background poller.
type Watcher interface {
	Watch(jobID string) bool
	Stats() poller.Stats
}

// Server wires HTTP handlers to the engine and poller.
type Server struct {
	router  chi.Router
	engine  Engine
	watcher Watcher
	logger  *zap.Logger
	cfg     config.Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(eng Engine, watcher Watcher, cfg config.Config, logger *zap.Logger) *Server {
	s := &Server{
		engine:  eng,
		watcher: watcher,
		logger:  logger.Named("api"),
		cfg:     cfg,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.Server.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/crawl", func(r chi.Router) {
			r.Post("/trigger", s.triggerCrawl)
			r.Route("/{crawl_id}", func(r chi.Router) {
				r.Get("/", s.getCrawl)
				r.Get("/status", s.getCrawlStatus)
				r.Post("/download", s.downloadCrawl)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"poller": s.watcher.Stats(),
	})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type triggerRequest struct {
	Platform string         `json:"platform"`
	Params   map[string]any `json:"params"`
}

func (s *Server) triggerCrawl(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Platform == "" {
		s.writeError(w, http.StatusBadRequest, "missing platform")
		return
	}
	result, err := s.engine.Trigger(r.Context(), req.Platform, req.Params)
	if err != nil {
		s.writeError(w, triggerStatus(err), err.Error())
		return
	}
	result.Background = s.watcher.Watch(result.JobID)
	if !result.Background {
		s.logger.Warn("crawl not scheduled for background polling",
			zap.String("crawl_id", result.JobID),
		)
	}
	s.writeJSON(w, http.StatusAccepted, result)
}

func (s *Server) getCrawl(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "crawl_id")
	job, err := s.engine.Job(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, ingest.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "crawl not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) getCrawlStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "crawl_id")
	snapshot, err := s.engine.CheckStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, ingest.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "crawl not found")
			return
		}
		var reqErr *ingest.ProviderRequestError
		if errors.As(err, &reqErr) {
			s.writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) downloadCrawl(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "crawl_id")
	result, err := s.engine.Download(r.Context(), jobID)
	if err != nil {
		s.writeError(w, downloadStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// triggerStatus maps trigger failures onto response codes. Caller
// mistakes are 4xx; provider trouble is a bad gateway.
func triggerStatus(err error) int {
	var invalid *ingest.InvalidParamsError
	var reqErr *ingest.ProviderRequestError
	var protoErr *ingest.ProviderProtocolError
	switch {
	case errors.Is(err, platform.ErrUnknownPlatform):
		return http.StatusNotFound
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &reqErr), errors.As(err, &protoErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func downloadStatus(err error) int {
	var notReady *ingest.NotReadyError
	var reqErr *ingest.ProviderRequestError
	var parseErr *ingest.ParseFailure
	switch {
	case errors.Is(err, ingest.ErrJobNotFound):
		return http.StatusNotFound
	case errors.As(err, &notReady):
		return http.StatusConflict
	case errors.As(err, &reqErr):
		return http.StatusBadGateway
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}
