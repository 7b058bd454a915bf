package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sb2gs-service/internal/metrics"
	"github.com/JakeFAU/sb2gs-service/internal/pipeline"
	"github.com/JakeFAU/sb2gs-service/internal/scratch"
)

// Runner executes one decompile request.
type Runner interface {
	Run(ctx context.Context, rawID string) (pipeline.Result, error)
}

// Config controls request handling.
type Config struct {
	// RequestTimeout bounds a decompile request end to end; 0 disables it.
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the decompile pipeline.
type Server struct {
	router chi.Router
	runner Runner
	ids    scratch.IDGenerator
	cfg    Config
	logger *zap.Logger
	pages  pages
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, ids scratch.IDGenerator, cfg Config, logger *zap.Logger) (*Server, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if ids == nil {
		return nil, errors.New("id generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	rendered, err := renderPages()
	if err != nil {
		return nil, err
	}
	s := &Server{
		runner: runner,
		ids:    ids,
		cfg:    cfg,
		logger: logger,
		pages:  rendered,
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/", s.page(s.pages.home))
	r.Get("/about", s.page(s.pages.about))
	r.Get("/ping", s.ping)
	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(corsMiddleware)
		for _, path := range []string{"/api/sb2gs", "/api/sb2gs/", "/sb2gs", "/sb2gs/"} {
			r.Get(path, s.decompile)
		}
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ping(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "PONG")
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		s.logger.Debug("healthz write failed", zap.Error(err))
	}
}

func (s *Server) page(body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(body); err != nil {
			s.logger.Debug("page write failed", zap.Error(err))
		}
	}
}

func (s *Server) decompile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	res, err := s.runner.Run(ctx, r.URL.Query().Get("id"))
	if err != nil {
		status, body := errorResponse(err)
		writeText(w, status, body)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.ProjectID.String()+".zip"))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Archive)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Archive); err != nil {
		s.logger.Warn("archive write failed",
			zap.String("request_id", pipeline.RequestIDFrom(r.Context())),
			zap.Error(err),
		)
	}
}

// errorResponse maps a pipeline failure onto its status code and plaintext body.
func errorResponse(err error) (int, string) {
	var perr *scratch.Error
	if !errors.As(err, &perr) {
		return http.StatusInternalServerError, err.Error()
	}
	status := perr.Kind.HTTPStatus()
	switch perr.Kind {
	case scratch.KindInvalidInput:
		return status, "invalid project id: " + message(perr)
	case scratch.KindTokenUnavailable:
		return status, "Could not get a project token, but got json response: " + perr.Detail
	case scratch.KindDecompile:
		return status, "sb2gs decompile error: " + message(perr)
	default:
		return status, perr.Error()
	}
}

// message prefers the human-facing detail over the wrapped cause.
func message(perr *scratch.Error) string {
	switch {
	case perr.Detail != "":
		return perr.Detail
	case perr.Err != nil:
		return perr.Err.Error()
	default:
		return string(perr.Kind)
	}
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(msg)); err != nil {
		zap.L().Debug("write text failed", zap.Error(err))
	}
}
