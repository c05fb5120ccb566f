package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/dotcommander/continuity/internal/config"
	"github.com/dotcommander/continuity/internal/consistency"
	"github.com/dotcommander/continuity/internal/content"
	"github.com/dotcommander/continuity/internal/narrative"
	"github.com/dotcommander/continuity/internal/observability"
	"github.com/dotcommander/continuity/internal/universe"
)

// Server exposes the engine over HTTP.
type Server struct {
	engine   *consistency.Engine
	metrics  *observability.Metrics
	limiter  *rate.Limiter
	limits   config.Limits
	validate *validator.Validate
	logger   *slog.Logger
}

func New(engine *consistency.Engine, limits config.Limits, obs observability.Observer) *Server {
	return &Server{
		engine:   engine,
		metrics:  obs.Metrics,
		limiter:  rate.NewLimiter(rate.Limit(float64(limits.RateLimit.RequestsPerMinute)/60.0), limits.RateLimit.BurstSize),
		limits:   limits,
		validate: validator.New(),
		logger:   obs.Component("http"),
	}
}

// Handler returns the routed handler. Only the /v1 API is rate limited.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/universes/{id}/validate", s.api("validate", s.handleValidate))
	mux.Handle("POST /v1/universes/{id}/content", s.api("update", s.handleUpdate))
	mux.Handle("GET /v1/universes", s.api("universes", s.handleUniverses))
	mux.Handle("GET /v1/universes/{id}", s.api("universe", s.handleUniverse))
	mux.Handle("GET /v1/universes/{id}/versions", s.api("versions", s.handleVersions))
	mux.Handle("POST /v1/universes/{id}/rollback", s.api("rollback", s.handleRollback))
	mux.Handle("POST /v1/corrections/apply", s.api("corrections", s.handleCorrections))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.limits.ReadTimeout,
		ReadTimeout:       s.limits.ReadTimeout,
		WriteTimeout:      s.limits.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.limits.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// api wraps a handler with rate limiting, a body size cap and a server span.
func (s *Server) api(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := observability.Tracer().Start(ctx, "http."+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("http.route", r.Pattern)),
		)
		defer span.End()

		r.Body = http.MaxBytesReader(w, r.Body, s.limits.MaxBodyBytes)
		h(w, r.WithContext(ctx))
	})
}

type contentRequest struct {
	TabType     content.TabType `json:"tabType" validate:"required"`
	ContentType string          `json:"contentType" validate:"required"`
	Content     json.RawMessage `json:"content" validate:"required"`
}

type correctionsRequest struct {
	TabType     content.TabType        `json:"tabType" validate:"required"`
	Content     json.RawMessage        `json:"content" validate:"required"`
	Corrections []narrative.Correction `json:"corrections" validate:"required"`
}

type correctionsResponse struct {
	TabType content.TabType `json:"tabType"`
	Content content.Payload `json:"content"`
}

type rollbackRequest struct {
	VersionID string `json:"versionId" validate:"required"`
}

type universesResponse struct {
	Universes []string `json:"universes"`
}

type versionsResponse struct {
	Versions []universe.Version `json:"versions"`
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return false
	}
	return true
}

func (s *Server) payload(w http.ResponseWriter, tab content.TabType, raw json.RawMessage) (content.Payload, bool) {
	p, err := content.Decode(tab, raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return p, true
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, ok := s.payload(w, req.TabType, req.Content)
	if !ok {
		return
	}
	result, err := s.engine.ValidateContentConsistency(r.Context(), p, req.ContentType, r.PathValue("id"), req.TabType)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleUpdate always accepts: update failures are the engine's to log and count.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, ok := s.payload(w, req.TabType, req.Content)
	if !ok {
		return
	}
	s.engine.UpdateUniverseWithContent(r.Context(), p, req.ContentType, r.PathValue("id"), req.TabType)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleCorrections(w http.ResponseWriter, r *http.Request) {
	var req correctionsRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, ok := s.payload(w, req.TabType, req.Content)
	if !ok {
		return
	}
	corrected, err := s.engine.ApplyConsistencyCorrections(p, req.Corrections)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, correctionsResponse{TabType: corrected.TabType(), Content: corrected})
}

func (s *Server) handleUniverse(w http.ResponseWriter, r *http.Request) {
	u, err := s.engine.Universe(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleUniverses(w http.ResponseWriter, r *http.Request) {
	ids, err := s.engine.Universes(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, universesResponse{Universes: ids})
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if param := r.URL.Query().Get("limit"); param != "" {
		parsed, err := strconv.Atoi(param)
		if err != nil || parsed < 1 || parsed > 1000 {
			s.writeError(w, http.StatusBadRequest, "invalid limit: must be 1-1000")
			return
		}
		limit = parsed
	}
	versions, err := s.engine.Versions(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if versions == nil {
		versions = []universe.Version{}
	}
	s.writeJSON(w, http.StatusOK, versionsResponse{Versions: versions})
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req rollbackRequest
	if !s.decode(w, r, &req) {
		return
	}
	u, err := s.engine.Rollback(r.Context(), r.PathValue("id"), req.VersionID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, u)
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, consistency.ErrInvalidArgument), errors.Is(err, universe.ErrInvalidUniverseID):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, universe.ErrUnknownVersion), errors.Is(err, universe.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, universe.ErrVersioningUnsupported):
		s.writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.Error("request failed", "route", r.Pattern, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to write JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
