// Package server exposes the pipeline over HTTP.
//
// Routes:
//
//	POST /upload                    PDF upload; 202 {"task_id": ...}
//	GET  /status/{taskID}           background task status
//	POST /convert                   near-JSON relations → IMF document
//	GET  /documents                 processed document names
//	GET  /documents/{name}          processed output (?part=imf|relations|components)
//	GET  /documents/{name}/render   preview (?format=svg|dot|pdf|png)
//	POST /chat                      question about an uploaded document
//	GET  /version                   build information
//	GET  /healthz                   liveness
package server

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/imfgraph/pkg/errors"
	"github.com/matzehuels/imfgraph/pkg/pipeline"
	"github.com/matzehuels/imfgraph/pkg/store"
	"github.com/matzehuels/imfgraph/pkg/task"
)

// DefaultMaxUploadBytes bounds an upload when Config leaves it unset.
const DefaultMaxUploadBytes = 32 << 20

// TextExtractor returns the text of an uploaded document.
type TextExtractor interface {
	Text(ctx context.Context, data []byte) (string, error)
}

// Config wires the server's collaborators.
type Config struct {
	Runner    *pipeline.Runner
	Tasks     *task.Runner
	Store     store.Store
	Extractor TextExtractor
	Options   pipeline.Options
	Logger    *log.Logger

	UploadDir      string
	MaxUploadBytes int64
}

// Server handles HTTP requests.
type Server struct {
	runner    *pipeline.Runner
	tasks     *task.Runner
	store     store.Store
	extractor TextExtractor
	opts      pipeline.Options
	logger    *log.Logger

	uploadDir string
	maxUpload int64
}

// New validates cfg and prepares the upload directory.
func New(cfg Config) (*Server, error) {
	if cfg.Runner == nil || cfg.Tasks == nil || cfg.Store == nil || cfg.Extractor == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "server needs a runner, task runner, store and extractor")
	}
	if cfg.UploadDir == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "server needs an upload directory")
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "create upload directory")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Server{
		runner:    cfg.Runner,
		tasks:     cfg.Tasks,
		store:     cfg.Store,
		extractor: cfg.Extractor,
		opts:      cfg.Options,
		logger:    cfg.Logger,
		uploadDir: cfg.UploadDir,
		maxUpload: cfg.MaxUploadBytes,
	}, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))

	r.Get("/version", s.handleVersion)
	r.Post("/upload", s.handleUpload)
	r.Get("/status/{taskID}", s.handleStatus)
	r.Post("/convert", s.handleConvert)
	r.Post("/chat", s.handleChat)
	r.Route("/documents", func(r chi.Router) {
		r.Get("/", s.handleListDocuments)
		r.Get("/{name}", s.handleGetDocument)
		r.Get("/{name}/render", s.handleRenderDocument)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then drains
// requests and running tasks.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return s.tasks.Shutdown(shutdownCtx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
