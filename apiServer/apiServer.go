// Package apiServer exposes the publish pipeline and the local catalog
// over HTTP. Publishes run asynchronously; the caller polls the upload
// flow until it reports done.
package apiServer

import (
	"log/slog"
	"net/http"
	"sync"

	suistream "github.com/suistream/suistream"
)

// AuthFunc authenticates one request. A nil error admits the request.
type AuthFunc func(r *http.Request, app *suistream.SuiStream) error

// Option configures the server.
type Option func(s *Server)

type Server struct {
	mux     *http.ServeMux
	app     *suistream.SuiStream
	log     *slog.Logger
	auth    AuthFunc
	tracker *Tracker

	// publishMu serializes publishes: the signing collaborator issues
	// one prompt at a time.
	publishMu sync.Mutex
}

func New(app *suistream.SuiStream, opts ...Option) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		app:     app,
		log:     slog.Default(),
		auth:    defaultAuth,
		tracker: NewTracker(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

// Tracker returns the flow tracker so the handle's OnStatus callback can
// be wired to it.
func (s *Server) Tracker() *Tracker {
	return s.tracker
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/videos", s.handlePublish)
	s.mux.HandleFunc("GET /v1/videos", s.handleListVideos)
	s.mux.HandleFunc("GET /v1/videos/{id}", s.handleGetVideo)
	s.mux.HandleFunc("GET /v1/uploads/{id}", s.handleUploadStatus)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	} else {
		w.Header().Set("Vary", "Origin")
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)

	allowedHeaders := r.Header.Get("Access-Control-Request-Headers")
	if allowedHeaders == "" {
		allowedHeaders = "Content-Type, Accept, Authorization"
	}
	w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.URL.Path != "/healthz" {
		if err := s.auth(r, s.app); err != nil {
			s.log.Warn("authentication failed", "error", err)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
	}

	s.mux.ServeHTTP(w, r)
}

// defaultAuth admits everything. Deployments restrict access with
// WithAuth or WithToken.
func defaultAuth(*http.Request, *suistream.SuiStream) error {
	return nil
}
