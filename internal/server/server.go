// Package server exposes a pipeline over HTTP.
//
// POST /v1/ask streams one turn as newline-delimited JSON events; every
// request gets its own session so concurrent requests never share sinks.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/koustreak/datchat/internal/errs"
	"github.com/koustreak/datchat/internal/logger"
	"github.com/koustreak/datchat/internal/metrics"
	"github.com/koustreak/datchat/internal/pipeline"
)

// Config configures the HTTP listener and the ask rate limit.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// AskTimeout replaces WriteTimeout for /v1/ask streams and bounds the
	// turn. Zero leaves the stream without a write deadline.
	AskTimeout time.Duration

	// RequestsPerSecond limits /v1/ask across all clients. Zero disables
	// the limit.
	RequestsPerSecond float64
	Burst             int
}

// Server routes HTTP requests to a shared pipeline.
type Server struct {
	cfg      Config
	pipeline *pipeline.Pipeline
	limiter  *rate.Limiter
	log      *logger.Logger
	router   chi.Router
}

// New builds the router.
func New(p *pipeline.Pipeline, cfg Config, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{cfg: cfg, pipeline: p, log: log}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(metrics.Middleware)

	r.Get("/v1/health", s.handleHealth)
	r.Get("/v1/tables", s.handleTables)
	r.With(s.rateLimit).Post("/v1/ask", s.handleAsk)
	r.Handle("/metrics", metrics.Handler())

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer returns an *http.Server configured from Config.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"mode":   string(s.pipeline.Mode()),
	})
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	db := s.pipeline.DB()
	if db == nil {
		writeError(w, http.StatusConflict, errs.New(errs.ErrKindInvalidInput, "Schema mode has no live database."))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	tables, err := db.UsableTableNames(ctx)
	if err != nil {
		s.log.ErrorWith("list tables failed", err, nil)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dialect": string(db.Dialect()),
		"tables":  tables,
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, errs.New(errs.ErrKindInvalidInput, "Too many questions at once. Please retry shortly."))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	var body errorBody
	body.Error.Kind = errs.KindOf(err).String()
	body.Error.Message = errs.UserMessage(err)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind to the HTTP status of a non-streamed reply.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindInvalidInput, errs.ErrKindUnsafeQuery:
		return http.StatusBadRequest
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindConnectionFailed, errs.ErrKindEndpoint, errs.ErrKindEndpointConfig:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
