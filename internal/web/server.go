// Package web is the HTTP control surface: batch submission, instance
// status polling, and ad-hoc blob management against the storage tiers.
package web

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/docflow/internal/blobstore"
	"github.com/example/docflow/internal/engine"
	"github.com/example/docflow/internal/observability"
)

// Server is the control surface HTTP server.
type Server struct {
	addr     string
	handlers *Handlers
	router   chi.Router
	metrics  *observability.Metrics
	httpSrv  *http.Server
}

// NewServer creates the server and mounts its routes.
func NewServer(addr string, eng *engine.Engine, store blobstore.Store, signer *blobstore.URLSigner, metrics *observability.Metrics) *Server {
	s := &Server{
		addr:     addr,
		handlers: NewHandlers(eng, store, signer),
		metrics:  metrics,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Post("/client/{definitionName}", s.handlers.StartBatch)
	r.Get("/runtime/instances/{id}", s.handlers.GetInstance)

	r.Post("/uploadBlob", s.handlers.UploadBlob)
	r.Post("/deleteBlobs", s.handlers.DeleteBlobs)
	r.Get("/getBlobsByContainer", s.handlers.ListBlobs)
	r.Get("/blob/{container}/{name}", s.handlers.DownloadBlob)

	s.router = r
}

// observe records per-route request durations.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		next.ServeHTTP(w, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPDuration().WithLabels(r.Method + " " + route).Observe(time.Since(start))
	})
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	log.Printf("web: listening on %s", s.addr)
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
