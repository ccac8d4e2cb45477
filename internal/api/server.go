// Package api exposes chapter audio operations over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/chapter-audio-service/internal/catalog"
	"github.com/book-expert/chapter-audio-service/internal/core"
	"github.com/book-expert/chapter-audio-service/internal/observe"
	"github.com/book-expert/chapter-audio-service/internal/versioning"
	"github.com/book-expert/logger"
	"github.com/gorilla/mux"
)

const (
	filesPath    = "/api/audio/files/"
	maxBodyBytes = 1 << 20
)

// Dependencies are the collaborators the handlers orchestrate.
type Dependencies struct {
	Manager       *versioning.Manager
	Synthesizer   versioning.Synthesizer
	Store         core.ArtifactStore
	Catalog       *catalog.Registry
	Authenticator core.Authenticator
	Metrics       *observe.Metrics
	Log           *logger.Logger
	// MetricsHandler is mounted at MetricsPath when set.
	MetricsHandler http.Handler
	MetricsPath    string
	Checkers       []Checker
}

// Options configure the HTTP listener.
type Options struct {
	ListenAddr      string
	PublicBaseURL   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server routes HTTP requests to the version manager and the gateway.
type Server struct {
	manager  *versioning.Manager
	synth    versioning.Synthesizer
	store    core.ArtifactStore
	catalog  *catalog.Registry
	auth     core.Authenticator
	metrics  *observe.Metrics
	log      *logger.Logger
	checkers []Checker
	opts     Options
	router   *mux.Router
}

// NewServer wires the routes.
func NewServer(deps Dependencies, opts Options) *Server {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observe.Discard()
	}

	s := &Server{
		manager:  deps.Manager,
		synth:    deps.Synthesizer,
		store:    deps.Store,
		catalog:  deps.Catalog,
		auth:     deps.Authenticator,
		metrics:  metrics,
		log:      deps.Log,
		checkers: deps.Checkers,
		opts:     opts,
		router:   mux.NewRouter(),
	}

	s.router.Use(observe.Middleware(metrics, deps.Log))

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)

	if deps.MetricsHandler != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}

		s.router.Handle(path, deps.MetricsHandler).Methods(http.MethodGet)
	}

	s.router.HandleFunc(filesPath+"{filename}", s.handleFile).Methods(http.MethodGet, http.MethodHead)

	authed := s.router.PathPrefix("/api/audio").Subrouter()
	authed.Use(s.requireAuth)

	authed.HandleFunc("/generate", s.handleGenerate).Methods(http.MethodPost)
	authed.HandleFunc("/voices", s.handleVoices).Methods(http.MethodGet)
	authed.HandleFunc("/music", s.handleMusic).Methods(http.MethodGet)
	authed.HandleFunc("/sound-effects", s.handleSoundEffects).Methods(http.MethodGet)

	authed.HandleFunc("/chapters/{chapterId}", s.handleClear).Methods(http.MethodDelete)

	chapters := authed.PathPrefix("/chapters/{chapterId}").Subrouter()
	chapters.HandleFunc("/generate", s.handleGenerateChapter).Methods(http.MethodPost)
	chapters.HandleFunc("/settings", s.handleUpdateSettings).Methods(http.MethodPut)
	chapters.HandleFunc("/versions", s.handleListVersions).Methods(http.MethodGet)
	chapters.HandleFunc("/versions/{version}/restore", s.handleRestore).Methods(http.MethodPost)

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.opts.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("HTTP server listening on %s", s.opts.ListenAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownTimeout := s.opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.log.Info("HTTP server shutting down")

	err := server.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	return nil
}

// artifactURL builds the absolute retrieval URL of an artifact.
func (s *Server) artifactURL(r *http.Request, artifactID string) string {
	base := strings.TrimRight(s.opts.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}

		switch forwarded := strings.ToLower(r.Header.Get("X-Forwarded-Proto")); forwarded {
		case "http", "https":
			scheme = forwarded
		}

		base = scheme + "://" + r.Host
	}

	return base + filesPath + artifactID
}
