package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
	"github.com/JakeFAU/creatorcrawl/internal/metrics"
	"github.com/JakeFAU/creatorcrawl/internal/orchestrator"
)

const (
	defaultResultLimit = 100
	maxResultLimit     = 1000
	requestTimeout     = 30 * time.Second
)

// ProgressSource reports the live run summary.
type ProgressSource interface {
	Progress() orchestrator.Summary
}

// EntrySource lists accepted entries in insertion order.
type EntrySource interface {
	Entries() []crawler.Entry
}

// Server wires HTTP handlers to the running orchestrator and result store.
type Server struct {
	router   chi.Router
	progress ProgressSource
	entries  EntrySource
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(progress ProgressSource, entries EntrySource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		progress: progress,
		entries:  entries,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/progress", s.getProgress)
		r.Route("/results", func(r chi.Router) {
			r.Get("/", s.listResults)
			r.Get("/{username}", s.getResult)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz fails once the run has aborted so health checks surface fatal store errors.
func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.progress == nil {
		writeError(w, http.StatusServiceUnavailable, "progress unavailable")
		return
	}
	summary := s.progress.Progress()
	if summary.State == orchestrator.StateAborted {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": summary.State, "error": summary.Error})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": summary.State})
}

func (s *Server) getProgress(w http.ResponseWriter, _ *http.Request) {
	if s.progress == nil {
		writeError(w, http.StatusServiceUnavailable, "progress unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"progress": s.progress.Progress()})
}

// listResults handles GET /v1/results?limit=&offset=&provenance=.
func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	if s.entries == nil {
		writeError(w, http.StatusServiceUnavailable, "result store unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultResultLimit, maxResultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	provenance := strings.TrimSpace(r.URL.Query().Get("provenance"))
	switch crawler.ProvenanceKind(provenance) {
	case "", crawler.ProvenanceSearch, crawler.ProvenanceCategory:
	default:
		writeError(w, http.StatusBadRequest, "invalid provenance")
		return
	}

	all := s.entries.Entries()
	filtered := make([]crawler.Entry, 0, len(all))
	for _, entry := range all {
		if provenance == "" || string(entry.Provenance) == provenance {
			filtered = append(filtered, entry)
		}
	}
	page := []crawler.Entry{}
	if offset < len(filtered) {
		end := min(offset+limit, len(filtered))
		page = filtered[offset:end]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   len(filtered),
		"results": page,
	})
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	if s.entries == nil {
		writeError(w, http.StatusServiceUnavailable, "result store unavailable")
		return
	}
	username := strings.TrimPrefix(chi.URLParam(r, "username"), "@")
	for _, entry := range s.entries.Entries() {
		if entry.Username == username {
			writeJSON(w, http.StatusOK, map[string]any{"result": entry})
			return
		}
	}
	writeError(w, http.StatusNotFound, "result not found")
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", RequestID(r.Context())),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

// RequestID returns the request ID stored by the server middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
